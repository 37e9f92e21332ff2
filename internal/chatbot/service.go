// Package chatbot processes WhatsApp webhook deliveries: it logs every message,
// drives the conversation engine and dispatches the replies.
package chatbot

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/wa-navigator/internal/analytics"
	"github.com/wolfman30/wa-navigator/internal/channels/whatsapp"
	"github.com/wolfman30/wa-navigator/internal/conversation"
	"github.com/wolfman30/wa-navigator/internal/messaging"
	"github.com/wolfman30/wa-navigator/internal/observability/metrics"
	"github.com/wolfman30/wa-navigator/pkg/logging"
)

const defaultConcurrency = 4

// Summary counts what one delivery produced.
type Summary struct {
	Messages  int `json:"messages"`
	Statuses  int `json:"statuses"`
	Replies   int `json:"replies"`
	Malformed int `json:"malformed"`
	Failed    int `json:"failed"`
}

// Service wires the normalizer, engine, dispatcher and message log together.
type Service struct {
	engine      *conversation.Engine
	dispatcher  *messaging.Dispatcher
	log         *messaging.Log
	analytics   *analytics.Recorder
	metrics     *metrics.ChatbotMetrics
	logger      *logging.Logger
	tracer      trace.Tracer
	concurrency int
}

// Option customizes a Service.
type Option func(*Service)

func WithAnalytics(r *analytics.Recorder) Option {
	return func(s *Service) { s.analytics = r }
}

func WithMetrics(m *metrics.ChatbotMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConcurrency bounds how many phones of one delivery are handled at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func NewService(engine *conversation.Engine, dispatcher *messaging.Dispatcher, log *messaging.Log, opts ...Option) *Service {
	if engine == nil {
		panic("chatbot: engine cannot be nil")
	}
	if dispatcher == nil {
		panic("chatbot: dispatcher cannot be nil")
	}
	if log == nil {
		panic("chatbot: message log cannot be nil")
	}
	s := &Service{
		engine:      engine,
		dispatcher:  dispatcher,
		log:         log,
		logger:      logging.Default(),
		tracer:      otel.Tracer("wa-navigator.internal.chatbot"),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleWebhook processes one POST body. The error is non-nil only when the
// envelope itself cannot be decoded; every other failure is contained to the
// event that caused it and reported in the Summary.
func (s *Service) HandleWebhook(ctx context.Context, body []byte) (Summary, error) {
	ctx, span := s.tracer.Start(ctx, "chatbot.webhook.handle")
	defer span.End()

	events, itemErrs, err := whatsapp.Normalize(body)
	if err != nil {
		span.RecordError(err)
		return Summary{}, err
	}

	var summary Summary
	for _, ie := range itemErrs {
		s.logger.Warn("skipping malformed webhook item", "error", ie.Error())
		s.metrics.ObserveInbound("malformed", "skipped")
	}
	summary.Malformed = len(itemErrs)
	span.SetAttributes(
		attribute.Int("chatbot.events", len(events)),
		attribute.Int("chatbot.malformed", len(itemErrs)),
	)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, batch := range groupByPhone(events) {
		g.Go(func() error {
			var local Summary
			for _, ev := range batch {
				replies, err := s.processEvent(ctx, ev)
				switch ev.Kind {
				case whatsapp.EventInbound:
					local.Messages++
				case whatsapp.EventStatus:
					local.Statuses++
				}
				local.Replies += replies
				if err != nil {
					local.Failed++
				}
			}
			mu.Lock()
			summary.Messages += local.Messages
			summary.Statuses += local.Statuses
			summary.Replies += local.Replies
			summary.Failed += local.Failed
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return summary, nil
}

// processEvent handles a single event and never lets a panic escape.
func (s *Service) processEvent(ctx context.Context, ev whatsapp.Event) (replies int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chatbot: panic processing %s event: %v", ev.Kind, r)
			s.logger.Error("recovered from panic processing webhook event", "kind", ev.Kind, "panic", r)
		}
		outcome := "processed"
		if err != nil {
			outcome = "failed"
		}
		s.metrics.ObserveInbound(string(ev.Kind), outcome)
	}()

	switch ev.Kind {
	case whatsapp.EventInbound:
		if ev.Inbound == nil {
			return 0, fmt.Errorf("chatbot: inbound event without message")
		}
		return s.handleInbound(ctx, *ev.Inbound)
	case whatsapp.EventStatus:
		if ev.Status == nil {
			return 0, fmt.Errorf("chatbot: status event without update")
		}
		return 0, s.handleStatus(ctx, *ev.Status)
	default:
		return 0, fmt.Errorf("chatbot: unknown event kind %q", ev.Kind)
	}
}

func (s *Service) handleInbound(ctx context.Context, msg whatsapp.InboundMessage) (int, error) {
	ctx, span := s.tracer.Start(ctx, "chatbot.inbound", trace.WithAttributes(
		attribute.String("whatsapp.message_id", msg.MessageID),
		attribute.String("whatsapp.content_type", msg.ContentType),
	))
	defer span.End()

	s.logger.Info("processing inbound message", "message_id", msg.MessageID, "from", msg.From, "type", msg.ContentType)

	if _, err := s.log.RecordInbound(ctx, msg); err != nil {
		s.logger.Error("failed to record inbound message", "message_id", msg.MessageID, "error", err)
	}
	s.analytics.RecordInteraction(msg.From, msg.Text, msg.ContentType, msg.Timestamp)

	if !msg.HasText {
		s.logger.Debug("inbound message has no text, not driving conversation", "message_id", msg.MessageID, "type", msg.ContentType)
		return 0, nil
	}

	out, err := s.engine.Handle(ctx, msg.From, msg.Text)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("chatbot: handle message %s: %w", msg.MessageID, err)
	}
	s.recordNavigation(msg, out)

	sent := 0
	var firstErr error
	for _, spec := range out.Replies {
		delivery, err := s.dispatcher.SendReply(ctx, msg.From, spec)
		if err != nil {
			s.logger.Error("failed to build reply", "to", msg.From, "kind", spec.Kind(), "error", err)
			span.RecordError(err)
			if firstErr == nil {
				firstErr = fmt.Errorf("chatbot: build reply: %w", err)
			}
			continue
		}
		if delivery.Sent() {
			sent++
		}
	}
	return sent, firstErr
}

func (s *Service) recordNavigation(msg whatsapp.InboundMessage, out conversation.Outcome) {
	switch out.Previous {
	case conversation.StateRoutePlanning:
		from, to, ok := conversation.ParseRouteRequest(msg.Text)
		if !ok {
			to = msg.Text
		}
		s.analytics.RecordNavigationRequest(msg.From, from, to, string(out.Previous))
	case conversation.StateLocationSearch:
		s.analytics.RecordNavigationRequest(msg.From, "", msg.Text, string(out.Previous))
	}
	if out.Changed {
		s.analytics.RecordEvent("state_transition", msg.From, map[string]string{
			"from": string(out.Previous),
			"to":   string(out.Session.State),
		})
	}
}

func (s *Service) handleStatus(ctx context.Context, st whatsapp.StatusUpdate) error {
	changed, err := s.log.RecordStatus(ctx, st)
	if err != nil {
		s.logger.Error("failed to apply status update", "message_id", st.MessageID, "status", st.Status, "error", err)
		return fmt.Errorf("chatbot: apply status %s: %w", st.MessageID, err)
	}
	s.logger.Debug("message status update", "message_id", st.MessageID, "status", st.Status, "applied", changed)
	return nil
}

// groupByPhone splits events into per-phone batches, keeping arrival order
// inside each batch and ordering batches by first appearance.
func groupByPhone(events []whatsapp.Event) [][]whatsapp.Event {
	index := map[string]int{}
	var batches [][]whatsapp.Event
	for _, ev := range events {
		key := eventPhone(ev)
		i, ok := index[key]
		if !ok {
			i = len(batches)
			index[key] = i
			batches = append(batches, nil)
		}
		batches[i] = append(batches[i], ev)
	}
	return batches
}

func eventPhone(ev whatsapp.Event) string {
	switch {
	case ev.Inbound != nil:
		return ev.Inbound.From
	case ev.Status != nil:
		return ev.Status.RecipientID
	default:
		return ""
	}
}
