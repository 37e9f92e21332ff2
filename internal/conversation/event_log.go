package conversation

import (
	"context"
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/wolfman30/wa-navigator/pkg/logging"
)

// ConversationEvent is one structured entry in the conversation lifecycle.
// All events share the same base fields for easy filtering:
//
//	grep '"event":"state_changed"' /var/log/app.log
//	grep '"phone":"15551234567"' /var/log/app.log
type ConversationEvent struct {
	Time  string         `json:"time"`
	Event string         `json:"event"`
	Phone string         `json:"phone"`
	State string         `json:"state,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

const maxLoggedInput = 200

// EventLogger emits one JSON line per conversation decision point.
type EventLogger struct {
	logger *logging.Logger
}

// NewEventLogger creates a new conversation event logger.
func NewEventLogger(logger *logging.Logger) *EventLogger {
	return &EventLogger{logger: logger}
}

// Log emits a structured conversation event.
func (e *EventLogger) Log(_ context.Context, event, phone string, state State, data map[string]any) {
	if e == nil || e.logger == nil {
		return
	}
	evt := ConversationEvent{
		Time:  time.Now().UTC().Format(time.RFC3339Nano),
		Event: event,
		Phone: phone,
		State: string(state),
		Data:  data,
	}
	b, _ := json.Marshal(evt)
	e.logger.Info(string(b))
}

func (e *EventLogger) SessionStarted(ctx context.Context, phone string) {
	e.Log(ctx, "session_started", phone, InitialState, nil)
}

func (e *EventLogger) InputReceived(ctx context.Context, phone string, state State, input string) {
	msg := input
	if utf8.RuneCountInString(msg) > maxLoggedInput {
		msg = string([]rune(msg)[:maxLoggedInput]) + "..."
	}
	e.Log(ctx, "input_received", phone, state, map[string]any{"input": msg})
}

func (e *EventLogger) StateChanged(ctx context.Context, phone string, from, to State) {
	e.Log(ctx, "state_changed", phone, to, map[string]any{"from": string(from)})
}

func (e *EventLogger) UnknownState(ctx context.Context, phone, stored string) {
	e.Log(ctx, "unknown_state_recovered", phone, InitialState, map[string]any{"stored_state": stored})
}

func (e *EventLogger) SessionEnded(ctx context.Context, phone string, reason string) {
	e.Log(ctx, "session_ended", phone, "", map[string]any{"reason": reason})
}
