// Package reply describes bot replies as plain values and turns them into
// validated WhatsApp payloads.
package reply

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/wolfman30/wa-navigator/internal/channels/whatsapp"
)

// Provider limits for interactive messages.
const (
	MaxButtons        = 3
	MaxListRows       = 10
	MaxButtonTitleLen = 20
	MaxRowTitleLen    = 24
	MaxBodyLen        = 4096
)

var (
	// ErrInvalidReply wraps every construction error.
	ErrInvalidReply = errors.New("reply: invalid reply")
	// ErrTooManyButtons is returned when a button reply exceeds MaxButtons.
	ErrTooManyButtons = fmt.Errorf("%w: too many buttons", ErrInvalidReply)
)

// Spec is a reply the conversation engine wants to send. Text, Buttons and List
// are the only implementations.
type Spec interface {
	Kind() string
	isSpec()
}

// Text is a plain text message.
type Text struct {
	Body string
}

// Buttons is a body with up to three quick-reply buttons.
type Buttons struct {
	Body    string
	Buttons []Button
}

// Button is one quick-reply option.
type Button struct {
	ID    string
	Title string
}

// List is a single-section menu.
type List struct {
	Body         string
	ButtonLabel  string
	SectionTitle string
	Rows         []Row
}

// Row is one menu entry.
type Row struct {
	ID          string
	Title       string
	Description string
}

func (Text) Kind() string    { return "text" }
func (Buttons) Kind() string { return "button" }
func (List) Kind() string    { return "list" }

func (Text) isSpec()    {}
func (Buttons) isSpec() {}
func (List) isSpec()    {}

// Validate checks a spec against the provider limits without building it.
func Validate(spec Spec) error {
	switch s := spec.(type) {
	case Text:
		return validateBody(s.Body)
	case Buttons:
		if err := validateBody(s.Body); err != nil {
			return err
		}
		if len(s.Buttons) == 0 {
			return fmt.Errorf("%w: at least one button is required", ErrInvalidReply)
		}
		if len(s.Buttons) > MaxButtons {
			return fmt.Errorf("%w: got %d, max %d", ErrTooManyButtons, len(s.Buttons), MaxButtons)
		}
		seen := make(map[string]struct{}, len(s.Buttons))
		for i, b := range s.Buttons {
			if err := validateOption("button", i, b.ID, b.Title, MaxButtonTitleLen, seen); err != nil {
				return err
			}
		}
		return nil
	case List:
		if err := validateBody(s.Body); err != nil {
			return err
		}
		if strings.TrimSpace(s.ButtonLabel) == "" {
			return fmt.Errorf("%w: list button label is required", ErrInvalidReply)
		}
		if len(s.Rows) == 0 {
			return fmt.Errorf("%w: list needs at least one row", ErrInvalidReply)
		}
		if len(s.Rows) > MaxListRows {
			return fmt.Errorf("%w: list has %d rows, max %d", ErrInvalidReply, len(s.Rows), MaxListRows)
		}
		seen := make(map[string]struct{}, len(s.Rows))
		for i, r := range s.Rows {
			if err := validateOption("row", i, r.ID, r.Title, MaxRowTitleLen, seen); err != nil {
				return err
			}
		}
		return nil
	case nil:
		return fmt.Errorf("%w: nil spec", ErrInvalidReply)
	default:
		return fmt.Errorf("%w: unsupported spec %T", ErrInvalidReply, spec)
	}
}

// Build validates spec and encodes it as an outbound payload for to.
func Build(to string, spec Spec) (whatsapp.OutboundMessage, error) {
	if strings.TrimSpace(to) == "" {
		return whatsapp.OutboundMessage{}, fmt.Errorf("%w: recipient is required", ErrInvalidReply)
	}
	if err := Validate(spec); err != nil {
		return whatsapp.OutboundMessage{}, err
	}

	msg := whatsapp.OutboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
	}
	switch s := spec.(type) {
	case Text:
		msg.Type = "text"
		msg.Text = &whatsapp.TextBody{Body: s.Body}
	case Buttons:
		buttons := make([]whatsapp.ActionButton, 0, len(s.Buttons))
		for _, b := range s.Buttons {
			buttons = append(buttons, whatsapp.ActionButton{
				Type:  "reply",
				Reply: whatsapp.ButtonReply{ID: b.ID, Title: b.Title},
			})
		}
		msg.Type = "interactive"
		msg.Interactive = &whatsapp.Interactive{
			Type:   "button",
			Body:   whatsapp.InteractiveBody{Text: s.Body},
			Action: whatsapp.Action{Buttons: buttons},
		}
	case List:
		rows := make([]whatsapp.Row, 0, len(s.Rows))
		for _, r := range s.Rows {
			rows = append(rows, whatsapp.Row{ID: r.ID, Title: r.Title, Description: r.Description})
		}
		msg.Type = "interactive"
		msg.Interactive = &whatsapp.Interactive{
			Type: "list",
			Body: whatsapp.InteractiveBody{Text: s.Body},
			Action: whatsapp.Action{
				Button:   s.ButtonLabel,
				Sections: []whatsapp.Section{{Title: s.SectionTitle, Rows: rows}},
			},
		}
	}
	return msg, nil
}

func validateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidReply)
	}
	if utf8.RuneCountInString(body) > MaxBodyLen {
		return fmt.Errorf("%w: body exceeds %d characters", ErrInvalidReply, MaxBodyLen)
	}
	return nil
}

func validateOption(kind string, idx int, id, title string, maxTitle int, seen map[string]struct{}) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %s %d has empty id", ErrInvalidReply, kind, idx)
	}
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: %s %d has empty title", ErrInvalidReply, kind, idx)
	}
	if utf8.RuneCountInString(title) > maxTitle {
		return fmt.Errorf("%w: %s %q title exceeds %d characters", ErrInvalidReply, kind, id, maxTitle)
	}
	if _, dup := seen[id]; dup {
		return fmt.Errorf("%w: duplicate %s id %q", ErrInvalidReply, kind, id)
	}
	seen[id] = struct{}{}
	return nil
}
