package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ItemError describes a webhook item that could not be decoded. Siblings of a
// bad item are still returned.
type ItemError struct {
	Entry  int
	Change int
	Item   string
	Index  int
	Err    error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("whatsapp: entry %d change %d %s[%d]: %v", e.Entry, e.Change, e.Item, e.Index, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// Normalize parses a webhook body into events in delivery order. Only an
// undecodable envelope is an error; per-item problems come back in the slice.
func Normalize(body []byte) ([]Event, []ItemError, error) {
	var envelope WebhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, nil, fmt.Errorf("whatsapp: decode webhook envelope: %w", err)
	}

	var (
		events   []Event
		problems []ItemError
	)
	for ei, rawEntry := range envelope.Entry {
		var entry WebhookEntry
		if err := json.Unmarshal(rawEntry, &entry); err != nil {
			problems = append(problems, ItemError{Entry: ei, Item: "entry", Index: ei, Err: err})
			continue
		}
		for ci, rawChange := range entry.Changes {
			var change WebhookChange
			if err := json.Unmarshal(rawChange, &change); err != nil {
				problems = append(problems, ItemError{Entry: ei, Change: ci, Item: "change", Index: ci, Err: err})
				continue
			}
			evs, errs := normalizeChange(ei, ci, change)
			events = append(events, evs...)
			problems = append(problems, errs...)
		}
	}
	return events, problems, nil
}

func normalizeChange(ei, ci int, change WebhookChange) ([]Event, []ItemError) {
	if change.Field != "messages" || len(change.Value) == 0 || string(change.Value) == "null" {
		return nil, nil
	}
	var value changeValue
	if err := json.Unmarshal(change.Value, &value); err != nil {
		return nil, []ItemError{{Entry: ei, Change: ci, Item: "value", Err: err}}
	}
	profiles := make(map[string]string, len(value.Contacts))
	for _, c := range value.Contacts {
		profiles[c.WaID] = c.Profile.Name
	}

	var (
		events   []Event
		problems []ItemError
	)
	for mi, raw := range value.Messages {
		msg, err := decodeMessage(raw)
		if err != nil {
			problems = append(problems, ItemError{Entry: ei, Change: ci, Item: "messages", Index: mi, Err: err})
			continue
		}
		msg.ProfileName = profiles[msg.From]
		msg.PhoneNumberID = value.Metadata.PhoneNumberID
		events = append(events, Event{Kind: EventInbound, Inbound: msg})
	}
	for si, raw := range value.Statuses {
		st, err := decodeStatus(raw)
		if err != nil {
			problems = append(problems, ItemError{Entry: ei, Change: ci, Item: "statuses", Index: si, Err: err})
			continue
		}
		events = append(events, Event{Kind: EventStatus, Status: st})
	}
	return events, problems
}

func decodeMessage(raw json.RawMessage) (*InboundMessage, error) {
	var m rawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if strings.TrimSpace(m.From) == "" {
		return nil, fmt.Errorf("missing sender")
	}
	text, ok := extractText(m)
	return &InboundMessage{
		From:        m.From,
		MessageID:   m.ID,
		Timestamp:   parseUnix(m.Timestamp),
		ContentType: m.Type,
		Text:        text,
		HasText:     ok,
	}, nil
}

func decodeStatus(raw json.RawMessage) (*StatusUpdate, error) {
	var s rawStatus
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if strings.TrimSpace(s.ID) == "" {
		return nil, fmt.Errorf("missing message id")
	}
	return &StatusUpdate{
		MessageID:   s.ID,
		Status:      s.Status,
		RecipientID: s.RecipientID,
		Timestamp:   parseUnix(s.Timestamp),
	}, nil
}

// extractText picks text body, then button reply id, then list reply id.
func extractText(m rawMessage) (string, bool) {
	if m.Text != nil && strings.TrimSpace(m.Text.Body) != "" {
		return m.Text.Body, true
	}
	if m.Interactive != nil {
		if r := m.Interactive.ButtonReply; r != nil && strings.TrimSpace(r.ID) != "" {
			return r.ID, true
		}
		if r := m.Interactive.ListReply; r != nil && strings.TrimSpace(r.ID) != "" {
			return r.ID, true
		}
	}
	return "", false
}

func parseUnix(v string) time.Time {
	secs, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

// VerifyChallenge checks a subscription handshake and returns the challenge to
// echo. The hub.* names are canonical; bare names are accepted as aliases.
func VerifyChallenge(query url.Values, verifyToken string) (string, bool) {
	mode := firstNonEmpty(query.Get("hub.mode"), query.Get("mode"))
	token := firstNonEmpty(query.Get("hub.verify_token"), query.Get("verify_token"))
	challenge := firstNonEmpty(query.Get("hub.challenge"), query.Get("challenge"))

	if verifyToken == "" || mode != "subscribe" {
		return "", false
	}
	if !hmac.Equal([]byte(token), []byte(verifyToken)) {
		return "", false
	}
	return challenge, true
}

// VerifySignature verifies the X-Hub-Signature-256 header.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" || signature == "" {
		return false
	}

	const prefix = "sha256="
	if !strings.HasPrefix(signature, prefix) || len(signature) == len(prefix) {
		return false
	}
	sigHex := signature[len(prefix):]

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(sigHex)))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
