package chatbot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/wa-navigator/internal/analytics"
	"github.com/wolfman30/wa-navigator/internal/channels/whatsapp"
	"github.com/wolfman30/wa-navigator/internal/conversation"
	"github.com/wolfman30/wa-navigator/internal/messaging"
	"github.com/wolfman30/wa-navigator/pkg/logging"
)

type captureSink struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (s *captureSink) Put(_ context.Context, e analytics.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *captureSink) snapshot() []analytics.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]analytics.Event(nil), s.events...)
}

func (s *captureSink) collections() map[analytics.Collection]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[analytics.Collection]int{}
	for _, e := range s.events {
		out[e.Collection]++
	}
	return out
}

type panicSender struct{ target string }

func (p panicSender) Mode() string { return "panic" }

func (p panicSender) Send(ctx context.Context, msg whatsapp.OutboundMessage) (messaging.SendResult, error) {
	if msg.To == p.target {
		panic("provider exploded")
	}
	return messaging.NewMockSender().Send(ctx, msg)
}

type harness struct {
	svc      *Service
	sessions *conversation.MemorySessionStore
	messages *messaging.MemoryStore
	log      *messaging.Log
	sink     *captureSink
	recorder *analytics.Recorder
}

func newHarness(t *testing.T, sender messaging.Sender) *harness {
	t.Helper()
	if sender == nil {
		sender = messaging.NewMockSender()
	}
	logger := logging.Discard()
	sessions := conversation.NewMemorySessionStore()
	messages := messaging.NewMemoryStore()
	msgLog := messaging.NewLog(messages, logger)
	sink := &captureSink{}
	recorder := analytics.NewRecorder(sink, analytics.WithLogger(logger))

	engine := conversation.NewEngine(sessions, conversation.WithLogger(logger))
	dispatcher := messaging.NewDispatcher(sender, msgLog, messaging.WithDispatcherLogger(logger))
	svc := NewService(engine, dispatcher, msgLog,
		WithLogger(logger),
		WithAnalytics(recorder),
		WithConcurrency(2),
	)
	return &harness{svc: svc, sessions: sessions, messages: messages, log: msgLog, sink: sink, recorder: recorder}
}

func envelope(messages []map[string]any, statuses []map[string]any) []byte {
	value := map[string]any{
		"messaging_product": "whatsapp",
		"metadata":          map[string]any{"display_phone_number": "15550000000", "phone_number_id": "PNID"},
	}
	if messages != nil {
		value["messages"] = messages
	}
	if statuses != nil {
		value["statuses"] = statuses
	}
	body, _ := json.Marshal(map[string]any{
		"object": "whatsapp_business_account",
		"entry": []any{map[string]any{
			"id":      "WABA",
			"changes": []any{map[string]any{"field": "messages", "value": value}},
		}},
	})
	return body
}

func textMessage(id, from, text string) map[string]any {
	return map[string]any{
		"id":        id,
		"from":      from,
		"timestamp": "1700000000",
		"type":      "text",
		"text":      map[string]any{"body": text},
	}
}

func buttonReply(id, from, buttonID string) map[string]any {
	return map[string]any{
		"id":        id,
		"from":      from,
		"timestamp": "1700000001",
		"type":      "interactive",
		"interactive": map[string]any{
			"type":         "button_reply",
			"button_reply": map[string]any{"id": buttonID, "title": "x"},
		},
	}
}

func TestHandleWebhookFirstMessageSendsWelcome(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	summary, err := h.svc.HandleWebhook(ctx, envelope([]map[string]any{textMessage("wamid.1", "15551234567", "hi")}, nil))
	require.NoError(t, err)
	assert.Equal(t, Summary{Messages: 1, Replies: 1}, summary)

	sess, err := h.sessions.GetActive(ctx, "15551234567")
	require.NoError(t, err)
	assert.Equal(t, conversation.StateMainMenu, sess.State)
	assert.Equal(t, "WELCOME -> MAIN_MENU", sess.NavigationPath)

	history, err := h.log.History(ctx, "15551234567")
	require.NoError(t, err)
	require.Len(t, history, 2)
	var inbound, outbound messaging.Record
	for _, rec := range history {
		if rec.Direction == messaging.DirectionInbound {
			inbound = rec
		} else {
			outbound = rec
		}
	}
	assert.Equal(t, messaging.StatusReceived, inbound.Status)
	assert.Equal(t, "PNID", inbound.ToNumber)
	assert.Equal(t, messaging.StatusSent, outbound.Status)
	assert.Equal(t, "button", outbound.ContentType)

	h.recorder.Wait()
	collections := h.sink.collections()
	assert.Equal(t, 1, collections[analytics.CollectionInteractions])
	assert.Equal(t, 1, collections[analytics.CollectionEvents])
}

func TestHandleWebhookKeepsPerPhoneOrder(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	body := envelope([]map[string]any{
		textMessage("a1", "1111", "hi"),
		textMessage("b1", "2222", "hi"),
		buttonReply("a2", "1111", "navigation_help"),
		textMessage("a3", "1111", "menu"),
	}, nil)
	summary, err := h.svc.HandleWebhook(ctx, body)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Messages)
	assert.Equal(t, 0, summary.Failed)

	a, err := h.sessions.GetActive(ctx, "1111")
	require.NoError(t, err)
	assert.Equal(t, "WELCOME -> MAIN_MENU -> NAVIGATION_HELP -> MAIN_MENU", a.NavigationPath)

	b, err := h.sessions.GetActive(ctx, "2222")
	require.NoError(t, err)
	assert.Equal(t, conversation.StateMainMenu, b.State)
}

func TestHandleWebhookNonTextIsLoggedOnly(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	image := map[string]any{"id": "img", "from": "3333", "timestamp": "1700000000", "type": "image", "image": map[string]any{"id": "media"}}
	summary, err := h.svc.HandleWebhook(ctx, envelope([]map[string]any{image}, nil))
	require.NoError(t, err)
	assert.Equal(t, Summary{Messages: 1}, summary)

	_, err = h.sessions.GetActive(ctx, "3333")
	assert.ErrorIs(t, err, conversation.ErrSessionNotFound)
	counts, _ := h.messages.Counts(ctx)
	assert.Equal(t, int64(1), counts.Inbound)
	assert.Equal(t, int64(0), counts.Outbound)
}

func TestHandleWebhookAppliesStatuses(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.log.RecordOutbound(ctx, messaging.Record{ProviderMessageID: "wamid.out", ToNumber: "4444", Status: messaging.StatusSent})
	require.NoError(t, err)

	body := envelope(nil, []map[string]any{
		{"id": "wamid.out", "status": "delivered", "recipient_id": "4444", "timestamp": "1700000100"},
		{"id": "wamid.unknown", "status": "read", "recipient_id": "5555", "timestamp": "1700000100"},
	})
	summary, err := h.svc.HandleWebhook(ctx, body)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Statuses)
	assert.Equal(t, 0, summary.Failed)

	rec, err := h.messages.FindByProviderID(ctx, "wamid.out")
	require.NoError(t, err)
	assert.Equal(t, messaging.StatusDelivered, rec.Status)
	counts, _ := h.messages.Counts(ctx)
	assert.Equal(t, int64(1), counts.Total)
}

func TestHandleWebhookSkipsMalformedSibling(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	bad := map[string]any{"id": "nofrom", "type": "text", "text": map[string]any{"body": "hi"}}
	summary, err := h.svc.HandleWebhook(ctx, envelope([]map[string]any{bad, textMessage("ok", "6666", "hi")}, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Malformed)
	assert.Equal(t, 1, summary.Messages)

	_, err = h.sessions.GetActive(ctx, "6666")
	require.NoError(t, err)
}

func TestHandleWebhookRejectsBadEnvelope(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.HandleWebhook(context.Background(), []byte(`{"entry": "nope"`))
	require.Error(t, err)
}

func TestHandleWebhookContainsPanics(t *testing.T) {
	h := newHarness(t, panicSender{target: "7777"})
	ctx := context.Background()

	summary, err := h.svc.HandleWebhook(ctx, envelope([]map[string]any{
		textMessage("p1", "7777", "hi"),
		textMessage("p2", "8888", "hi"),
	}, nil))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Messages)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Replies)

	history, err := h.log.History(ctx, "8888")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestHandleWebhookRecordsNavigationRequests(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.svc.HandleWebhook(ctx, envelope([]map[string]any{
		textMessage("n1", "9999", "hi"),
		buttonReply("n2", "9999", "navigation_help"),
		buttonReply("n3", "9999", "get_directions"),
		textMessage("n4", "9999", "Central Station"),
		textMessage("n5", "9999", "From current location to Times Square, NYC"),
	}, nil))
	require.NoError(t, err)

	sess, err := h.sessions.GetActive(ctx, "9999")
	require.NoError(t, err)
	assert.Equal(t, conversation.StateRoutePlanning, sess.State)

	h.recorder.Wait()
	assert.Equal(t, 2, h.sink.collections()[analytics.CollectionNavigation])

	// Writes are asynchronous, so index by destination.
	byDestination := map[string]map[string]string{}
	for _, e := range h.sink.snapshot() {
		if e.Collection == analytics.CollectionNavigation {
			byDestination[e.Data["toLocation"]] = e.Data
		}
	}
	require.Len(t, byDestination, 2)
	require.Contains(t, byDestination, "Central Station")
	assert.Equal(t, "", byDestination["Central Station"]["fromLocation"])
	require.Contains(t, byDestination, "Times Square, NYC")
	assert.Equal(t, "current location", byDestination["Times Square, NYC"]["fromLocation"])
	assert.Equal(t, string(conversation.StateRoutePlanning), byDestination["Times Square, NYC"]["requestType"])
}

func TestGroupByPhone(t *testing.T) {
	ev := func(from string, n int) whatsapp.Event {
		return whatsapp.Event{Kind: whatsapp.EventInbound, Inbound: &whatsapp.InboundMessage{From: from, MessageID: fmt.Sprint(n)}}
	}
	batches := groupByPhone([]whatsapp.Event{ev("a", 1), ev("b", 2), ev("a", 3)})
	require.Len(t, batches, 2)
	var ids []string
	for _, e := range batches[0] {
		ids = append(ids, e.Inbound.MessageID)
	}
	assert.Equal(t, "1,3", strings.Join(ids, ","))
}
