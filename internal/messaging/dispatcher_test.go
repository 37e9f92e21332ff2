package messaging

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/wa-navigator/internal/channels/whatsapp"
	"github.com/wolfman30/wa-navigator/internal/reply"
	"github.com/wolfman30/wa-navigator/pkg/logging"
)

type stubSender struct {
	result SendResult
	err    error
	calls  int
}

func (s *stubSender) Mode() string { return "stub" }

func (s *stubSender) Send(_ context.Context, _ whatsapp.OutboundMessage) (SendResult, error) {
	s.calls++
	return s.result, s.err
}

type brokenStore struct{ *MemoryStore }

func (brokenStore) Insert(context.Context, Record) (Record, error) {
	return Record{}, errors.New("disk full")
}

func TestMockSenderIsDeterministic(t *testing.T) {
	msg, err := reply.Build("1555", reply.Text{Body: "hello"})
	require.NoError(t, err)

	first, err := NewMockSender().Send(context.Background(), msg)
	require.NoError(t, err)
	second, err := NewMockSender().Send(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "1555", first.Response["to"])
	assert.Equal(t, "hello", first.Response["message"])
	assert.Equal(t, "text", first.Response["type"])
	assert.Equal(t, "SENT", first.Response["status"])
	assert.Empty(t, first.ProviderMessageID)
}

func TestDispatcherMockModeDoesNoIO(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	sender, reason := BuildSender(SenderConfig{MockMode: true, APIBaseURL: server.URL, PhoneNumberID: "P", AccessToken: "T"}, logging.Discard())
	require.Empty(t, reason)
	assert.Equal(t, ModeMock, sender.Mode())

	store := NewMemoryStore()
	d := NewDispatcher(sender, NewLog(store, logging.Discard()), WithDispatcherLogger(logging.Discard()))
	delivery, err := d.SendReply(context.Background(), "1555", reply.Buttons{
		Body:    "pick",
		Buttons: []reply.Button{{ID: "a", Title: "A"}},
	})
	require.NoError(t, err)
	assert.True(t, delivery.Sent())
	assert.Equal(t, "button", delivery.Response["type"])
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))

	recs, _ := store.ListByPhone(context.Background(), "1555", 10)
	require.Len(t, recs, 1)
	assert.Equal(t, DirectionOutbound, recs[0].Direction)
	assert.Equal(t, StatusSent, recs[0].Status)
	assert.Equal(t, "button", recs[0].ContentType)
	assert.Equal(t, DefaultBotNumber, recs[0].FromNumber)
}

func TestDispatcherLiveSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.live"}]}`))
	}))
	defer server.Close()

	sender, reason := BuildSender(SenderConfig{APIBaseURL: server.URL, PhoneNumberID: "PNID", AccessToken: "T"}, logging.Discard())
	require.Empty(t, reason)
	require.Equal(t, ModeLive, sender.Mode())

	store := NewMemoryStore()
	d := NewDispatcher(sender, NewLog(store, logging.Discard()), WithSenderNumber("PNID"), WithDispatcherLogger(logging.Discard()))
	delivery, err := d.SendReply(context.Background(), "1555", reply.Text{Body: "hi"})
	require.NoError(t, err)
	assert.True(t, delivery.Sent())
	assert.Equal(t, "wamid.live", delivery.ProviderMessageID)

	rec, err := store.FindByProviderID(context.Background(), "wamid.live")
	require.NoError(t, err)
	assert.Equal(t, StatusSent, rec.Status)
	assert.Equal(t, "PNID", rec.FromNumber)
}

func TestDispatcherFailureRecordsOnce(t *testing.T) {
	sender := &stubSender{err: errors.New("boom")}
	store := NewMemoryStore()
	d := NewDispatcher(sender, NewLog(store, logging.Discard()), WithDispatcherLogger(logging.Discard()))

	delivery, err := d.SendReply(context.Background(), "1555", reply.Text{Body: "hi"})
	require.NoError(t, err)
	assert.False(t, delivery.Sent())
	assert.Equal(t, OutcomeFailed, delivery.Outcome)
	assert.Equal(t, "boom", delivery.Reason)
	assert.Equal(t, 1, sender.calls)

	counts, _ := store.Counts(context.Background())
	assert.Equal(t, int64(1), counts.Outbound)
	recs, _ := store.ListByPhone(context.Background(), "1555", 10)
	assert.Equal(t, StatusFailed, recs[0].Status)
	assert.Equal(t, "boom", recs[0].ErrorReason)
}

func TestDispatcherRejectsInvalidReplyBeforeSending(t *testing.T) {
	sender := &stubSender{}
	store := NewMemoryStore()
	d := NewDispatcher(sender, NewLog(store, logging.Discard()), WithDispatcherLogger(logging.Discard()))

	_, err := d.SendReply(context.Background(), "1555", reply.Buttons{Body: "x", Buttons: make([]reply.Button, 4)})
	require.ErrorIs(t, err, reply.ErrInvalidReply)
	assert.Equal(t, 0, sender.calls)
	counts, _ := store.Counts(context.Background())
	assert.Equal(t, int64(0), counts.Total)
}

func TestDispatcherLogFailureKeepsResult(t *testing.T) {
	sender := &stubSender{result: SendResult{ProviderMessageID: "wamid.x"}}
	d := NewDispatcher(sender, NewLog(brokenStore{NewMemoryStore()}, logging.Discard()), WithDispatcherLogger(logging.Discard()))

	delivery := d.Send(context.Background(), whatsapp.OutboundMessage{To: "1", Type: "text", Text: &whatsapp.TextBody{Body: "x"}})
	assert.True(t, delivery.Sent())
	assert.Equal(t, "wamid.x", delivery.ProviderMessageID)
}

func TestBuildSenderFallsBackWithoutCredentials(t *testing.T) {
	sender, reason := BuildSender(SenderConfig{MockMode: false}, logging.Discard())
	assert.Equal(t, ModeMock, sender.Mode())
	assert.Contains(t, reason, "WHATSAPP_ACCESS_TOKEN missing")
}

func TestLiveSenderRequiresMessageID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","messages":[]}`))
	}))
	defer server.Close()
	client, err := whatsapp.NewClient(whatsapp.ClientConfig{BaseURL: server.URL, PhoneNumberID: "P", AccessToken: "T", Logger: logging.Discard()})
	require.NoError(t, err)

	_, err = NewLiveSender(client).Send(context.Background(), whatsapp.OutboundMessage{To: "1", Type: "text", Text: &whatsapp.TextBody{Body: "x"}})
	require.Error(t, err)
}
