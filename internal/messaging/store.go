package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrRecordNotFound is returned when no message matches a lookup.
var ErrRecordNotFound = errors.New("messaging: message not found")

// Direction of a logged message.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// Status of a logged message.
type Status string

const (
	StatusReceived  Status = "RECEIVED"
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusRead      Status = "READ"
	StatusFailed    Status = "FAILED"
)

// ParseStatus maps provider status strings ("delivered", "read", ...) onto a
// Status. ok is false for values we do not track.
func ParseStatus(v string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	switch s {
	case StatusReceived, StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return s, true
	default:
		return "", false
	}
}

var outboundRank = map[Status]int{
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// CanAdvance reports whether an outbound record may move from one status to
// another. SENT < DELIVERED < READ; FAILED is reachable only from SENT and is
// terminal.
func CanAdvance(from, to Status) bool {
	if from == StatusFailed {
		return false
	}
	if to == StatusFailed {
		return from == StatusSent
	}
	fr, okFrom := outboundRank[from]
	tr, okTo := outboundRank[to]
	return okFrom && okTo && tr > fr
}

// Record is one inbound or outbound message.
type Record struct {
	ID                uuid.UUID `json:"id"`
	ProviderMessageID string    `json:"message_id,omitempty"`
	FromNumber        string    `json:"from_number"`
	ToNumber          string    `json:"to_number"`
	Body              string    `json:"message_text,omitempty"`
	ContentType       string    `json:"message_type"`
	Direction         Direction `json:"direction"`
	Status            Status    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	ConversationID    string    `json:"conversation_id,omitempty"`
	ErrorReason       string    `json:"error_reason,omitempty"`
}

// Store persists message records.
type Store interface {
	Insert(ctx context.Context, rec Record) (Record, error)
	FindByProviderID(ctx context.Context, providerMessageID string) (Record, error)
	// CompareAndSetStatus moves record id from one status to another and
	// reports whether a row changed.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)
	ListByPhone(ctx context.Context, phone string, limit int) ([]Record, error)
	List(ctx context.Context, offset, limit int) ([]Record, error)
	Counts(ctx context.Context) (Counts, error)
}

// Counts summarizes the log.
type Counts struct {
	Total    int64 `json:"total_messages"`
	Inbound  int64 `json:"inbound_messages"`
	Outbound int64 `json:"outbound_messages"`
}

// Querier is the subset of pgxpool.Pool used by PostgresStore.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const recordColumns = `id, message_id, from_number, to_number, message_text, message_type, direction, status, timestamp, conversation_id, error_reason`

// PostgresStore persists records in whatsapp_messages.
type PostgresStore struct {
	db Querier
}

func NewPostgresStore(db Querier) *PostgresStore {
	if db == nil {
		return nil
	}
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	query := `
		INSERT INTO whatsapp_messages (` + recordColumns + `)
		VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''))
	`
	_, err := s.db.Exec(ctx, query,
		rec.ID, rec.ProviderMessageID, rec.FromNumber, rec.ToNumber, rec.Body, rec.ContentType,
		string(rec.Direction), string(rec.Status), rec.Timestamp, rec.ConversationID, rec.ErrorReason)
	if err != nil {
		return Record{}, fmt.Errorf("messaging: insert message: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) FindByProviderID(ctx context.Context, providerMessageID string) (Record, error) {
	query := `SELECT ` + recordColumns + ` FROM whatsapp_messages WHERE message_id = $1 ORDER BY timestamp DESC LIMIT 1`
	rec, err := scanRecord(s.db.QueryRow(ctx, query, providerMessageID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("messaging: find by provider id: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE whatsapp_messages
		SET status = $3
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("messaging: update message status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListByPhone(ctx context.Context, phone string, limit int) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM whatsapp_messages
		WHERE from_number = $1 OR to_number = $1
		ORDER BY timestamp DESC
		LIMIT $2`
	return s.queryRecords(ctx, query, phone, limit)
}

func (s *PostgresStore) List(ctx context.Context, offset, limit int) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM whatsapp_messages ORDER BY timestamp DESC LIMIT $1 OFFSET $2`
	return s.queryRecords(ctx, query, limit, offset)
}

func (s *PostgresStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE direction = 'INBOUND'),
			COUNT(*) FILTER (WHERE direction = 'OUTBOUND')
		FROM whatsapp_messages
	`).Scan(&c.Total, &c.Inbound, &c.Outbound)
	if err != nil {
		return Counts{}, fmt.Errorf("messaging: count messages: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("messaging: list messages: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("messaging: scan message: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messaging: list messages: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec                              Record
		providerID, body, convID, reason *string
		direction, status                string
	)
	if err := row.Scan(&rec.ID, &providerID, &rec.FromNumber, &rec.ToNumber, &body, &rec.ContentType,
		&direction, &status, &rec.Timestamp, &convID, &reason); err != nil {
		return Record{}, err
	}
	rec.ProviderMessageID = deref(providerID)
	rec.Body = deref(body)
	rec.ConversationID = deref(convID)
	rec.ErrorReason = deref(reason)
	rec.Direction = Direction(direction)
	rec.Status = Status(status)
	return rec, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
