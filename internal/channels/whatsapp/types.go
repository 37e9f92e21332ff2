package whatsapp

import (
	"encoding/json"
	"time"
)

// WebhookEnvelope is the top-level payload delivered by the WhatsApp Cloud API.
// Entries stay raw so a malformed entry cannot poison its siblings.
type WebhookEnvelope struct {
	Object string            `json:"object"`
	Entry  []json.RawMessage `json:"entry"`
}

// WebhookEntry groups changes for one business account. Changes are decoded
// one at a time.
type WebhookEntry struct {
	ID      string            `json:"id"`
	Changes []json.RawMessage `json:"changes"`
}

// WebhookChange is a single field change notification.
type WebhookChange struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// changeValue mirrors the "messages" field value. Messages and statuses stay raw
// and are decoded one at a time.
type changeValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         Metadata          `json:"metadata"`
	Contacts         []Contact         `json:"contacts"`
	Messages         []json.RawMessage `json:"messages"`
	Statuses         []json.RawMessage `json:"statuses"`
}

// Metadata identifies the business number that received the event.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact carries the sender profile.
type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type rawMessage struct {
	ID          string          `json:"id"`
	From        string          `json:"from"`
	Timestamp   string          `json:"timestamp"`
	Type        string          `json:"type"`
	Text        *rawText        `json:"text,omitempty"`
	Interactive *rawInteractive `json:"interactive,omitempty"`
}

type rawText struct {
	Body string `json:"body"`
}

type rawInteractive struct {
	Type        string    `json:"type"`
	ButtonReply *rawReply `json:"button_reply,omitempty"`
	ListReply   *rawReply `json:"list_reply,omitempty"`
}

type rawReply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type rawStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// EventKind discriminates normalized events.
type EventKind string

const (
	EventInbound EventKind = "inbound"
	EventStatus  EventKind = "status"
)

// Event is a normalized webhook item. Exactly one of Inbound or Status is set.
type Event struct {
	Kind    EventKind
	Inbound *InboundMessage
	Status  *StatusUpdate
}

// InboundMessage is a user message after text extraction.
type InboundMessage struct {
	From          string
	MessageID     string
	Timestamp     time.Time
	ContentType   string
	Text          string
	HasText       bool
	ProfileName   string
	PhoneNumberID string
}

// StatusUpdate reports delivery progress for a message we sent.
type StatusUpdate struct {
	MessageID   string
	Status      string
	RecipientID string
	Timestamp   time.Time
}

// OutboundMessage is the Graph API send payload.
type OutboundMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *TextBody    `json:"text,omitempty"`
	Interactive      *Interactive `json:"interactive,omitempty"`
}

// TextBody is the payload for type=text.
type TextBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

// Interactive is the payload for type=interactive.
type Interactive struct {
	Type   string          `json:"type"`
	Body   InteractiveBody `json:"body"`
	Action Action          `json:"action"`
}

// InteractiveBody holds the message text of an interactive payload.
type InteractiveBody struct {
	Text string `json:"text"`
}

// Action holds reply buttons or a list menu.
type Action struct {
	Buttons  []ActionButton `json:"buttons,omitempty"`
	Button   string         `json:"button,omitempty"`
	Sections []Section      `json:"sections,omitempty"`
}

// ActionButton is a quick-reply button.
type ActionButton struct {
	Type  string      `json:"type"`
	Reply ButtonReply `json:"reply"`
}

// ButtonReply is the id/title pair shown on a button.
type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Section is a titled group of list rows.
type Section struct {
	Title string `json:"title"`
	Rows  []Row  `json:"rows"`
}

// Row is a selectable list entry.
type Row struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Body returns the human-readable text of the payload.
func (m OutboundMessage) Body() string {
	switch {
	case m.Text != nil:
		return m.Text.Body
	case m.Interactive != nil:
		return m.Interactive.Body.Text
	default:
		return ""
	}
}

// ContentType reports the logged content type: text, button or list.
func (m OutboundMessage) ContentType() string {
	if m.Interactive != nil && m.Interactive.Type != "" {
		return m.Interactive.Type
	}
	return m.Type
}

// SendResponse is the Graph API reply to a successful send.
type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// MessageID returns the provider id of the first accepted message.
func (r *SendResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}
