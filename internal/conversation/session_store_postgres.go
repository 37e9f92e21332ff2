package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool used by the Postgres stores.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const sessionColumns = `id, phone_number, current_state, navigation_path, user_preferences, session_active, created_at, updated_at`

// PostgresSessionStore persists sessions in the user_sessions table. A unique
// index on phone_number enforces one record per user.
type PostgresSessionStore struct {
	db Querier
}

// NewPostgresSessionStore wires the store to a pool.
func NewPostgresSessionStore(db Querier) *PostgresSessionStore {
	if db == nil {
		panic("conversation: postgres session store requires a db")
	}
	return &PostgresSessionStore{db: db}
}

func (s *PostgresSessionStore) GetActive(ctx context.Context, phone string) (Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM user_sessions WHERE phone_number = $1 AND session_active`
	sess, err := scanSession(s.db.QueryRow(ctx, query, phone))
	if err != nil {
		return Session{}, wrapNotFound("get active session", err)
	}
	return sess, nil
}

// GetOrCreate upserts on phone_number so concurrent first messages converge on
// one row. An ended session is reset to WELCOME and reactivated; preferences
// survive.
func (s *PostgresSessionStore) GetOrCreate(ctx context.Context, phone string) (Session, error) {
	query := `
		INSERT INTO user_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $3, '', true, now(), now())
		ON CONFLICT (phone_number) DO UPDATE SET
			current_state = CASE WHEN user_sessions.session_active THEN user_sessions.current_state ELSE EXCLUDED.current_state END,
			navigation_path = CASE WHEN user_sessions.session_active THEN user_sessions.navigation_path ELSE EXCLUDED.navigation_path END,
			session_active = true,
			updated_at = now()
		RETURNING ` + sessionColumns
	sess, err := scanSession(s.db.QueryRow(ctx, query, uuid.New(), phone, string(InitialState)))
	if err != nil {
		return Session{}, fmt.Errorf("conversation: get or create session: %w", err)
	}
	return sess, nil
}

func (s *PostgresSessionStore) Save(ctx context.Context, session Session) (Session, error) {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO user_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (phone_number) DO UPDATE SET
			current_state = EXCLUDED.current_state,
			navigation_path = EXCLUDED.navigation_path,
			user_preferences = EXCLUDED.user_preferences,
			session_active = EXCLUDED.session_active,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + sessionColumns
	saved, err := scanSession(s.db.QueryRow(ctx, query,
		session.ID, session.PhoneNumber, string(session.State), session.NavigationPath,
		session.Preferences, session.Active, session.UpdatedAt))
	if err != nil {
		return Session{}, fmt.Errorf("conversation: save session: %w", err)
	}
	return saved, nil
}

func (s *PostgresSessionStore) FindByPhoneNumber(ctx context.Context, phone string) (Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM user_sessions WHERE phone_number = $1`
	sess, err := scanSession(s.db.QueryRow(ctx, query, phone))
	if err != nil {
		return Session{}, wrapNotFound("find session", err)
	}
	return sess, nil
}

func (s *PostgresSessionStore) DeactivateOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE user_sessions
		SET session_active = false, updated_at = now()
		WHERE session_active AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("conversation: deactivate sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresSessionStore) ListActive(ctx context.Context) ([]Session, error) {
	rows, err := s.db.Query(ctx, `SELECT `+sessionColumns+` FROM user_sessions WHERE session_active ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("conversation: list active sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("conversation: scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: list active sessions: %w", err)
	}
	return out, nil
}

func (s *PostgresSessionStore) CountActive(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM user_sessions WHERE session_active`).Scan(&n); err != nil {
		return 0, fmt.Errorf("conversation: count active sessions: %w", err)
	}
	return n, nil
}

func (s *PostgresSessionStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM user_sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("conversation: count sessions: %w", err)
	}
	return n, nil
}

func scanSession(row pgx.Row) (Session, error) {
	var (
		sess  Session
		state string
	)
	if err := row.Scan(&sess.ID, &sess.PhoneNumber, &state, &sess.NavigationPath,
		&sess.Preferences, &sess.Active, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return Session{}, err
	}
	sess.State = ParseState(state)
	return sess, nil
}

func wrapNotFound(action string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSessionNotFound
	}
	return fmt.Errorf("conversation: %s: %w", action, err)
}
