// Package analytics records chatbot usage events to an external sink without
// blocking message handling.
package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/wa-navigator/internal/observability/metrics"
	"github.com/wolfman30/wa-navigator/pkg/logging"
)

// Collection groups events the same way downstream reports read them.
type Collection string

const (
	CollectionInteractions Collection = "user_interactions"
	CollectionNavigation   Collection = "navigation_requests"
	CollectionEvents       Collection = "analytics"
)

const (
	defaultTimeout = 5 * time.Second
	eventTTL       = 90 * 24 * time.Hour
	platform       = "whatsapp"
)

// Event is one analytics document.
type Event struct {
	EventID     string            `dynamodbav:"eventId" json:"eventId"`
	Collection  Collection        `dynamodbav:"collection" json:"collection"`
	EventType   string            `dynamodbav:"eventType" json:"eventType"`
	PhoneNumber string            `dynamodbav:"phoneNumber,omitempty" json:"phoneNumber,omitempty"`
	Platform    string            `dynamodbav:"platform" json:"platform"`
	Data        map[string]string `dynamodbav:"data,omitempty" json:"data,omitempty"`
	CreatedAt   string            `dynamodbav:"createdAt" json:"createdAt"`
	ExpiresAt   int64             `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// Sink persists analytics events.
type Sink interface {
	Put(ctx context.Context, event Event) error
}

// NoopSink drops every event.
type NoopSink struct{}

func (NoopSink) Put(context.Context, Event) error { return nil }

// Recorder fires events at a Sink in the background. Each write runs with its
// own timeout and a failing or panicking sink is only logged. A nil Recorder
// is valid and records nothing.
type Recorder struct {
	sink    Sink
	timeout time.Duration
	logger  *logging.Logger
	metrics *metrics.ChatbotMetrics
	now     func() time.Time
	wg      sync.WaitGroup
}

// Option customizes a Recorder.
type Option func(*Recorder)

func WithTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithLogger(l *logging.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithMetrics(m *metrics.ChatbotMetrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// NewRecorder wraps sink. A nil sink behaves like NoopSink.
func NewRecorder(sink Sink, opts ...Option) *Recorder {
	if sink == nil {
		sink = NoopSink{}
	}
	r := &Recorder{
		sink:    sink,
		timeout: defaultTimeout,
		logger:  logging.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordInteraction stores an inbound user message.
func (r *Recorder) RecordInteraction(phone, text, contentType string, sentAt time.Time) {
	if r == nil {
		return
	}
	data := map[string]string{
		"messageText": text,
		"messageType": contentType,
	}
	if !sentAt.IsZero() {
		data["timestamp"] = sentAt.UTC().Format(time.RFC3339)
	}
	r.fire(CollectionInteractions, "user_interaction", phone, data)
}

// RecordNavigationRequest stores a route or location lookup request.
func (r *Recorder) RecordNavigationRequest(phone, from, to, requestType string) {
	if r == nil {
		return
	}
	r.fire(CollectionNavigation, "navigation_request", phone, map[string]string{
		"fromLocation": from,
		"toLocation":   to,
		"requestType":  requestType,
	})
}

// RecordEvent stores a free-form event such as a state transition.
func (r *Recorder) RecordEvent(eventType, phone string, data map[string]string) {
	if r == nil {
		return
	}
	r.fire(CollectionEvents, eventType, phone, data)
}

// Wait blocks until every in-flight write has finished.
func (r *Recorder) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

func (r *Recorder) fire(collection Collection, eventType, phone string, data map[string]string) {
	now := r.now()
	event := Event{
		EventID:     uuid.NewString(),
		Collection:  collection,
		EventType:   eventType,
		PhoneNumber: phone,
		Platform:    platform,
		Data:        data,
		CreatedAt:   now.Format(time.RFC3339Nano),
		ExpiresAt:   now.Add(eventTTL).Unix(),
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := r.put(event)
		status := "ok"
		if err != nil {
			status = "error"
			r.logger.Warn("analytics write failed",
				"collection", collection,
				"event_type", eventType,
				"phone", phone,
				"error", err,
			)
		}
		r.metrics.ObserveAnalytics(string(collection), status)
	}()
}

func (r *Recorder) put(event Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("analytics: sink panicked: %v", rec)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.sink.Put(ctx, event)
}
