package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/wa-navigator/internal/reply"
	"github.com/wolfman30/wa-navigator/pkg/logging"
)

// TransitionObserver is notified for every handled input.
type TransitionObserver interface {
	ObserveTransition(from, to string)
}

// Outcome describes one handled input.
type Outcome struct {
	Previous State
	Session  Session
	Replies  []reply.Spec
	Changed  bool
	// SaveErr is set when the new state could not be persisted. Replies are
	// still valid and should be sent.
	SaveErr error
}

// Engine drives the per-phone state machine on top of a SessionStore.
type Engine struct {
	store    SessionStore
	locker   Locker
	fallback *KeyedLocker
	logger   *logging.Logger
	events   *EventLogger
	observer TransitionObserver
	tracer   trace.Tracer
	now      func() time.Time
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithLocker replaces the default in-process locker.
func WithLocker(l Locker) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *logging.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver attaches a transition observer such as metrics.
func WithObserver(o TransitionObserver) EngineOption {
	return func(e *Engine) { e.observer = o }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine. store is required.
func NewEngine(store SessionStore, opts ...EngineOption) *Engine {
	if store == nil {
		panic("conversation: engine requires a session store")
	}
	e := &Engine{
		store:    store,
		locker:   NewKeyedLocker(),
		fallback: NewKeyedLocker(),
		logger:   logging.Default(),
		tracer:   otel.Tracer("wa-navigator.internal.conversation"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.events = NewEventLogger(e.logger)
	return e
}

// Handle runs one input through the state machine for phone. Inputs for the
// same phone are serialized. A failed session lookup restarts the user at
// WELCOME; a failed save is reported in Outcome.SaveErr. The error return is
// only set when ctx ends before the lock is acquired.
func (e *Engine) Handle(ctx context.Context, phone, input string) (Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "conversation.engine.handle")
	defer span.End()

	unlock, err := e.lock(ctx, phone)
	if err != nil {
		span.RecordError(err)
		return Outcome{}, err
	}
	defer unlock()

	sess, err := e.store.GetOrCreate(ctx, phone)
	if err != nil {
		e.logger.Error("session lookup failed, restarting at welcome", "phone", phone, "error", err)
		span.RecordError(err)
		sess = NewSession(phone, e.now())
	}
	if sess.NavigationPath == string(InitialState) && sess.State == InitialState {
		e.events.SessionStarted(ctx, phone)
	}

	current := sess.State
	if !current.Valid() {
		e.events.UnknownState(ctx, phone, string(current))
		current = InitialState
	}
	e.events.InputReceived(ctx, phone, current, input)

	result := Transition(current, input)
	out := Outcome{
		Previous: current,
		Replies:  result.Replies,
		Changed:  result.Next != current,
	}

	sess.State = result.Next
	if out.Changed {
		sess.NavigationPath = AppendPath(sess.NavigationPath, result.Next)
		e.events.StateChanged(ctx, phone, current, result.Next)
	}
	sess.Active = true
	sess.UpdatedAt = e.now()
	if e.observer != nil {
		e.observer.ObserveTransition(string(current), string(result.Next))
	}
	span.SetAttributes(
		attribute.String("conversation.state.from", string(current)),
		attribute.String("conversation.state.to", string(result.Next)),
	)

	saved, err := e.store.Save(ctx, sess)
	if err != nil {
		e.logger.Error("session save failed", "phone", phone, "state", result.Next, "error", err)
		span.RecordError(err)
		out.SaveErr = err
		out.Session = sess
		return out, nil
	}
	out.Session = saved
	return out, nil
}

// CurrentState returns the active state for phone, or WELCOME when none.
func (e *Engine) CurrentState(ctx context.Context, phone string) State {
	sess, err := e.store.GetActive(ctx, phone)
	if err != nil || !sess.State.Valid() {
		return InitialState
	}
	return sess.State
}

// UpdatePreferences stores an opaque preferences blob on the session.
func (e *Engine) UpdatePreferences(ctx context.Context, phone, preferences string) (Session, error) {
	unlock, err := e.lock(ctx, phone)
	if err != nil {
		return Session{}, err
	}
	defer unlock()

	sess, err := e.store.GetOrCreate(ctx, phone)
	if err != nil {
		return Session{}, fmt.Errorf("conversation: update preferences: %w", err)
	}
	sess.Preferences = preferences
	sess.UpdatedAt = e.now()
	return e.store.Save(ctx, sess)
}

// EndSession deactivates the active session for phone. Missing sessions are
// not an error.
func (e *Engine) EndSession(ctx context.Context, phone string) error {
	unlock, err := e.lock(ctx, phone)
	if err != nil {
		return err
	}
	defer unlock()

	sess, err := e.store.GetActive(ctx, phone)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("conversation: end session: %w", err)
	}
	sess.Active = false
	sess.UpdatedAt = e.now()
	if _, err := e.store.Save(ctx, sess); err != nil {
		return fmt.Errorf("conversation: end session: %w", err)
	}
	e.events.SessionEnded(ctx, phone, "ended")
	return nil
}

// Reset puts phone back at WELCOME with a fresh path. The session is created
// when missing.
func (e *Engine) Reset(ctx context.Context, phone string) (Session, error) {
	unlock, err := e.lock(ctx, phone)
	if err != nil {
		return Session{}, err
	}
	defer unlock()

	sess, err := e.store.FindByPhoneNumber(ctx, phone)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		sess = NewSession(phone, e.now())
	case err != nil:
		return Session{}, fmt.Errorf("conversation: reset session: %w", err)
	}
	sess.State = InitialState
	sess.NavigationPath = string(InitialState)
	sess.Active = true
	sess.UpdatedAt = e.now()
	saved, err := e.store.Save(ctx, sess)
	if err != nil {
		return Session{}, fmt.Errorf("conversation: reset session: %w", err)
	}
	e.events.SessionEnded(ctx, phone, "reset")
	return saved, nil
}

// CleanupIdle deactivates sessions untouched for longer than maxIdle.
func (e *Engine) CleanupIdle(ctx context.Context, maxIdle time.Duration) (int64, error) {
	if maxIdle <= 0 {
		maxIdle = 24 * time.Hour
	}
	n, err := e.store.DeactivateOlderThan(ctx, e.now().Add(-maxIdle))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.Info("deactivated idle sessions", "count", n, "max_idle", maxIdle.String())
	}
	return n, nil
}

// lock acquires the per-phone lock. When the lock backend is broken the work
// is serialized within this process instead; only a cancelled ctx aborts.
func (e *Engine) lock(ctx context.Context, phone string) (func(), error) {
	key := strings.TrimSpace(phone)
	unlock, err := e.locker.Lock(ctx, key)
	if err == nil {
		return unlock, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	e.logger.Warn("session lock unavailable, serializing in process", "phone", phone, "error", err)
	return e.fallback.Lock(ctx, key)
}
