package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/wa-navigator/internal/channels/whatsapp"
	"github.com/wolfman30/wa-navigator/pkg/logging"
)

// DefaultBotNumber is recorded as the recipient of inbound messages when the
// webhook carries no phone number id.
const DefaultBotNumber = "chatbot"

const (
	defaultHistoryLimit = 100
	defaultPageSize     = 20
	maxPageSize         = 200
)

// Log records inbound and outbound messages and applies delivery callbacks.
type Log struct {
	store  Store
	logger *logging.Logger
	now    func() time.Time
}

// NewLog wraps a Store.
func NewLog(store Store, logger *logging.Logger) *Log {
	if store == nil {
		panic("messaging: log requires a store")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Log{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// RecordInbound stores one RECEIVED record for a user message.
func (l *Log) RecordInbound(ctx context.Context, msg whatsapp.InboundMessage) (Record, error) {
	to := msg.PhoneNumberID
	if to == "" {
		to = DefaultBotNumber
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}
	rec, err := l.store.Insert(ctx, Record{
		ProviderMessageID: msg.MessageID,
		FromNumber:        msg.From,
		ToNumber:          to,
		Body:              msg.Text,
		ContentType:       contentTypeOr(msg.ContentType, "text"),
		Direction:         DirectionInbound,
		Status:            StatusReceived,
		Timestamp:         ts,
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// RecordOutbound stores the result of one send attempt. Status must be SENT or
// FAILED.
func (l *Log) RecordOutbound(ctx context.Context, rec Record) (Record, error) {
	if rec.Status != StatusSent && rec.Status != StatusFailed {
		return Record{}, fmt.Errorf("messaging: outbound record status %q not allowed", rec.Status)
	}
	rec.Direction = DirectionOutbound
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now()
	}
	return l.store.Insert(ctx, rec)
}

// RecordStatus applies a delivery callback. Unknown ids, inbound records,
// untracked statuses and non-advancing transitions are ignored and report
// false.
func (l *Log) RecordStatus(ctx context.Context, update whatsapp.StatusUpdate) (bool, error) {
	next, ok := ParseStatus(update.Status)
	if !ok {
		l.logger.Debug("ignoring untracked message status", "message_id", update.MessageID, "status", update.Status)
		return false, nil
	}
	if strings.TrimSpace(update.MessageID) == "" {
		return false, nil
	}
	rec, err := l.store.FindByProviderID(ctx, update.MessageID)
	if errors.Is(err, ErrRecordNotFound) {
		l.logger.Debug("status for unknown message", "message_id", update.MessageID, "status", next)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if rec.Direction != DirectionOutbound || !CanAdvance(rec.Status, next) {
		return false, nil
	}
	changed, err := l.store.CompareAndSetStatus(ctx, rec.ID, rec.Status, next)
	if err != nil {
		return false, err
	}
	if changed {
		l.logger.Debug("message status updated", "message_id", update.MessageID, "from", rec.Status, "to", next)
	}
	return changed, nil
}

// History returns the latest records to or from phone, newest first.
func (l *Log) History(ctx context.Context, phone string) ([]Record, error) {
	return l.store.ListByPhone(ctx, phone, defaultHistoryLimit)
}

// Page is one page of the log.
type Page struct {
	Page     int      `json:"page"`
	Size     int      `json:"size"`
	Total    int64    `json:"total_elements"`
	Messages []Record `json:"content"`
}

// List returns a zero-based page of records, newest first.
func (l *Log) List(ctx context.Context, page, size int) (Page, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	recs, err := l.store.List(ctx, page*size, size)
	if err != nil {
		return Page{}, err
	}
	counts, err := l.store.Counts(ctx)
	if err != nil {
		return Page{}, err
	}
	if recs == nil {
		recs = []Record{}
	}
	return Page{Page: page, Size: size, Total: counts.Total, Messages: recs}, nil
}

// Counts summarizes the log.
func (l *Log) Counts(ctx context.Context) (Counts, error) {
	return l.store.Counts(ctx)
}

func contentTypeOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
