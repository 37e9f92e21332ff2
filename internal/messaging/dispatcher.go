package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/wa-navigator/internal/channels/whatsapp"
	"github.com/wolfman30/wa-navigator/internal/observability/metrics"
	"github.com/wolfman30/wa-navigator/internal/reply"
	"github.com/wolfman30/wa-navigator/pkg/logging"
)

// Outcome is the result of one send attempt.
type Outcome string

const (
	OutcomeSent   Outcome = "SENT"
	OutcomeFailed Outcome = "FAILED"
)

// Delivery describes a dispatched message.
type Delivery struct {
	Outcome           Outcome        `json:"status"`
	ProviderMessageID string         `json:"message_id,omitempty"`
	Response          map[string]any `json:"response,omitempty"`
	Reason            string         `json:"reason,omitempty"`
	RecordID          uuid.UUID      `json:"record_id"`
}

// Sent reports whether the provider accepted the message.
func (d Delivery) Sent() bool { return d.Outcome == OutcomeSent }

// Dispatcher sends payloads through a Sender and records exactly one OUTBOUND
// entry per attempt. Send never retries.
type Dispatcher struct {
	sender  Sender
	log     *Log
	from    string
	metrics *metrics.ChatbotMetrics
	logger  *logging.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSenderNumber sets the from number written to outbound records.
func WithSenderNumber(from string) DispatcherOption {
	return func(d *Dispatcher) {
		if from != "" {
			d.from = from
		}
	}
}

func WithMetrics(m *metrics.ChatbotMetrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithDispatcherLogger(l *logging.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher wires a sender to the message log.
func NewDispatcher(sender Sender, log *Log, opts ...DispatcherOption) *Dispatcher {
	if sender == nil {
		panic("messaging: dispatcher requires a sender")
	}
	if log == nil {
		panic("messaging: dispatcher requires a message log")
	}
	d := &Dispatcher{
		sender: sender,
		log:    log,
		from:   DefaultBotNumber,
		logger: logging.Default(),
		tracer: otel.Tracer("wa-navigator.internal.messaging"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Mode reports the sender strategy.
func (d *Dispatcher) Mode() string { return d.sender.Mode() }

// SendReply builds spec for to and dispatches it. Only construction errors are
// returned; delivery problems are reported in the Delivery.
func (d *Dispatcher) SendReply(ctx context.Context, to string, spec reply.Spec) (Delivery, error) {
	msg, err := reply.Build(to, spec)
	if err != nil {
		return Delivery{}, err
	}
	return d.Send(ctx, msg), nil
}

// Send makes one attempt to deliver msg and logs the outcome.
func (d *Dispatcher) Send(ctx context.Context, msg whatsapp.OutboundMessage) Delivery {
	ctx, span := d.tracer.Start(ctx, "messaging.dispatch.send", trace.WithAttributes(
		attribute.String("messaging.mode", d.sender.Mode()),
		attribute.String("messaging.content_type", msg.ContentType()),
	))
	defer span.End()

	start := time.Now()
	result, err := d.sender.Send(ctx, msg)
	elapsed := time.Since(start).Seconds()

	delivery := Delivery{
		Outcome:           OutcomeSent,
		ProviderMessageID: result.ProviderMessageID,
		Response:          result.Response,
	}
	status := StatusSent
	if err != nil {
		span.RecordError(err)
		delivery.Outcome = OutcomeFailed
		delivery.Reason = err.Error()
		status = StatusFailed
		d.logger.Warn("whatsapp send failed", "to", msg.To, "mode", d.sender.Mode(), "error", err)
	}
	d.metrics.ObserveOutbound(d.sender.Mode(), string(status), elapsed)

	rec, logErr := d.log.RecordOutbound(ctx, Record{
		ProviderMessageID: delivery.ProviderMessageID,
		FromNumber:        d.from,
		ToNumber:          msg.To,
		Body:              msg.Body(),
		ContentType:       msg.ContentType(),
		Status:            status,
		Timestamp:         d.now(),
		ErrorReason:       delivery.Reason,
	})
	if logErr != nil {
		d.logger.Warn("failed to record outbound message", "to", msg.To, "status", status, "error", logErr)
	} else {
		delivery.RecordID = rec.ID
	}
	return delivery
}
