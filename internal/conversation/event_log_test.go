package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/wolfman30/wa-navigator/pkg/logging"
)

func TestEventLoggerEmitsOneJSONEventPerLine(t *testing.T) {
	var buf bytes.Buffer
	events := NewEventLogger(logging.NewWithWriter(&buf, "info"))

	events.StateChanged(context.Background(), "1555", StateMainMenu, StateNavigationHelp)
	events.InputReceived(context.Background(), "1555", StateMainMenu, strings.Repeat("x", 300))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two log lines, got %d", len(lines))
	}

	var outer struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &outer); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	var evt ConversationEvent
	if err := json.Unmarshal([]byte(outer.Msg), &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if evt.Event != "state_changed" || evt.Phone != "1555" || evt.State != string(StateNavigationHelp) {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt.Data["from"] != string(StateMainMenu) {
		t.Fatalf("expected from state in data, got %v", evt.Data)
	}

	if err := json.Unmarshal([]byte(lines[1]), &outer); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if err := json.Unmarshal([]byte(outer.Msg), &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if input, _ := evt.Data["input"].(string); len(input) != 203 {
		t.Fatalf("expected input truncated to 200 chars plus ellipsis, got %d", len(input))
	}
}

func TestEventLoggerNilSafe(t *testing.T) {
	var events *EventLogger
	events.SessionStarted(context.Background(), "1555")
	NewEventLogger(nil).SessionEnded(context.Background(), "1555", "admin")
}

func TestEventLoggerTruncatesInputByRunes(t *testing.T) {
	var buf bytes.Buffer
	events := NewEventLogger(logging.NewWithWriter(&buf, "info"))

	events.InputReceived(context.Background(), "1555", StateRoutePlanning, strings.Repeat("a🧭", 150))

	var outer struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &outer); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	var evt ConversationEvent
	if err := json.Unmarshal([]byte(outer.Msg), &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	input, _ := evt.Data["input"].(string)
	if strings.ContainsRune(input, utf8.RuneError) {
		t.Fatalf("expected no split runes, got %q", input)
	}
	if got := utf8.RuneCountInString(input); got != 203 {
		t.Fatalf("expected 200 runes plus ellipsis, got %d", got)
	}
	if !strings.HasPrefix(input, strings.Repeat("a🧭", 100)) {
		t.Fatalf("unexpected truncated input %q", input)
	}
}
