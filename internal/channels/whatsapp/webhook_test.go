package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const textWebhook = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA_1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "15550000000", "phone_number_id": "PNID"},
        "contacts": [{"wa_id": "15551234567", "profile": {"name": "Ada"}}],
        "messages": [{
          "id": "wamid.1",
          "from": "15551234567",
          "timestamp": "1700000000",
          "type": "text",
          "text": {"body": "hello"}
        }]
      }
    }]
  }]
}`

func TestNormalizeTextMessage(t *testing.T) {
	events, problems, err := Normalize([]byte(textWebhook))
	require.NoError(t, err)
	assert.Empty(t, problems)
	require.Len(t, events, 1)

	ev := events[0]
	require.Equal(t, EventInbound, ev.Kind)
	require.NotNil(t, ev.Inbound)
	assert.Equal(t, "15551234567", ev.Inbound.From)
	assert.Equal(t, "wamid.1", ev.Inbound.MessageID)
	assert.Equal(t, "hello", ev.Inbound.Text)
	assert.True(t, ev.Inbound.HasText)
	assert.Equal(t, "text", ev.Inbound.ContentType)
	assert.Equal(t, "Ada", ev.Inbound.ProfileName)
	assert.Equal(t, "PNID", ev.Inbound.PhoneNumberID)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ev.Inbound.Timestamp)
}

func TestNormalizeExtractionPriority(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
		hasText bool
	}{
		{
			name:    "button reply id",
			message: `{"id":"m","from":"1","type":"interactive","interactive":{"type":"button_reply","button_reply":{"id":"navigation_help","title":"Nav"}}}`,
			want:    "navigation_help",
			hasText: true,
		},
		{
			name:    "list reply id",
			message: `{"id":"m","from":"1","type":"interactive","interactive":{"type":"list_reply","list_reply":{"id":"settings","title":"Settings"}}}`,
			want:    "settings",
			hasText: true,
		},
		{
			name:    "text wins over interactive",
			message: `{"id":"m","from":"1","type":"text","text":{"body":"hi"},"interactive":{"button_reply":{"id":"x"}}}`,
			want:    "hi",
			hasText: true,
		},
		{
			name:    "image has no text",
			message: `{"id":"m","from":"1","type":"image","image":{"id":"media"}}`,
			want:    "",
			hasText: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"entry":[{"changes":[{"field":"messages","value":{"messages":[` + tt.message + `]}}]}]}`
			events, _, err := Normalize([]byte(body))
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, tt.want, events[0].Inbound.Text)
			assert.Equal(t, tt.hasText, events[0].Inbound.HasText)
		})
	}
}

func TestNormalizeStatuses(t *testing.T) {
	body := `{"entry":[{"changes":[{"field":"messages","value":{"statuses":[
		{"id":"wamid.out","status":"delivered","timestamp":"1700000100","recipient_id":"15551234567"}
	]}}]}]}`
	events, problems, err := Normalize([]byte(body))
	require.NoError(t, err)
	assert.Empty(t, problems)
	require.Len(t, events, 1)
	require.Equal(t, EventStatus, events[0].Kind)
	assert.Equal(t, "wamid.out", events[0].Status.MessageID)
	assert.Equal(t, "delivered", events[0].Status.Status)
	assert.Equal(t, "15551234567", events[0].Status.RecipientID)
}

func TestNormalizeEmptyShapes(t *testing.T) {
	bodies := []string{
		`{}`,
		`{"entry":[]}`,
		`{"entry":[{"changes":[]}]}`,
		`{"entry":[{"changes":[{"field":"messages","value":{}}]}]}`,
		`{"entry":[{"changes":[{"field":"messages"}]}]}`,
		`{"entry":[{"changes":[{"field":"account_update","value":{"messages":[{"from":"1","text":{"body":"x"}}]}}]}]}`,
	}
	for _, body := range bodies {
		events, problems, err := Normalize([]byte(body))
		require.NoError(t, err, body)
		assert.Empty(t, events, body)
		assert.Empty(t, problems, body)
	}
}

func TestNormalizeSkipsMalformedSibling(t *testing.T) {
	body := `{"entry":[{"changes":[
		{"field":"messages","value":"not-an-object"},
		{"field":"messages","value":{"messages":[
			{"id":"bad","from":"1","text":"should be an object"},
			{"id":"good","from":"2","type":"text","text":{"body":"ok"}}
		],"statuses":[{"status":"read"}]}}
	]}]}`
	events, problems, err := Normalize([]byte(body))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "good", events[0].Inbound.MessageID)
	require.Len(t, problems, 3)
	assert.Equal(t, "value", problems[0].Item)
	assert.Equal(t, "messages", problems[1].Item)
	assert.Equal(t, "statuses", problems[2].Item)
}

func TestNormalizeSkipsMalformedChange(t *testing.T) {
	good := `{"field":"messages","value":{"messages":[{"id":"%s","from":"1555","type":"text","text":{"body":"hi"}}]}}`
	body := `{"entry":[
		{"id":"A","changes":[` + fmt.Sprintf(good, "a") + `]},
		{"id":"B","changes":[{"field":7}]},
		{"id":"C","changes":[` + fmt.Sprintf(good, "c") + `,"junk"]},
		"not-an-entry"
	]}`
	events, problems, err := Normalize([]byte(body))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Inbound.MessageID)
	assert.Equal(t, "c", events[1].Inbound.MessageID)

	require.Len(t, problems, 3)
	assert.Equal(t, "change", problems[0].Item)
	assert.Equal(t, 1, problems[0].Entry)
	assert.Equal(t, "change", problems[1].Item)
	assert.Equal(t, 2, problems[1].Entry)
	assert.Equal(t, 1, problems[1].Change)
	assert.Equal(t, "entry", problems[2].Item)
	assert.Equal(t, 3, problems[2].Entry)
}

func TestNormalizeRejectsBadEnvelope(t *testing.T) {
	_, _, err := Normalize([]byte(`{"entry":`))
	require.Error(t, err)
}

func TestNormalizeUnparsableTimestamp(t *testing.T) {
	body := `{"entry":[{"changes":[{"field":"messages","value":{"messages":[{"id":"m","from":"1","timestamp":"soon","text":{"body":"x"}}]}}]}]}`
	events, _, err := Normalize([]byte(body))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Inbound.Timestamp.IsZero())
}

func TestVerifyChallenge(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		token     string
		challenge string
		ok        bool
	}{
		{"valid", "hub.mode=subscribe&hub.verify_token=secret&hub.challenge=C123", "secret", "C123", true},
		{"alias names", "mode=subscribe&verify_token=secret&challenge=C9", "secret", "C9", true},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=C", "secret", "", false},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=secret&hub.challenge=C", "secret", "", false},
		{"unconfigured token", "hub.mode=subscribe&hub.verify_token=&hub.challenge=C", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			got, ok := VerifyChallenge(q, tt.token)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.challenge, got)
		})
	}
}

func TestVerifySignature(t *testing.T) {
	secret := "app_secret"
	body := []byte(textWebhook)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	validSig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		want      bool
	}{
		{"valid signature", secret, body, validSig, true},
		{"wrong signature", secret, body, "sha256=00", false},
		{"empty signature", secret, body, "", false},
		{"empty secret", "", body, validSig, false},
		{"missing prefix", secret, body, "abcdef", false},
		{"tampered body", secret, []byte(`{}`), validSig, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.secret, tt.body, tt.signature); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}
