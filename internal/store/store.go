// Package store provides the PostgreSQL-backed exchange store used by the
// web backend. One row is written per processed turn; the read path serves
// the per-session history views.
//
// All methods are safe for concurrent use; the store shares a single
// [pgxpool.Pool].
//
// Usage:
//
//	st, err := store.New(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
//	_ = st.Migrate(ctx)
//	_ = st.Append(ctx, exchange)
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Exchange is one persisted tutoring turn.
type Exchange struct {
	ID                int64     `json:"id"`
	SessionID         string    `json:"session_id"`
	UserMessage       string    `json:"user_message"`
	InputMethod       string    `json:"input_method"`
	CorrectedSentence string    `json:"corrected_sentence"`
	HasErrors         bool      `json:"has_errors"`
	Explanation       string    `json:"explanation"`
	AIResponse        string    `json:"ai_response"`
	Timestamp         time.Time `json:"timestamp"`
}

// ddlChatMessages creates the exchange table and its per-session read index.
const ddlChatMessages = `
CREATE TABLE IF NOT EXISTS chat_messages (
    id                 BIGSERIAL    PRIMARY KEY,
    session_id         TEXT         NOT NULL,
    user_message       TEXT         NOT NULL,
    input_method       TEXT         NOT NULL DEFAULT 'text',
    corrected_sentence TEXT         NOT NULL DEFAULT '',
    has_errors         BOOLEAN      NOT NULL DEFAULT false,
    explanation        TEXT         NOT NULL DEFAULT '',
    ai_response        TEXT         NOT NULL DEFAULT '',
    timestamp          TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_session_id
    ON chat_messages (session_id);

CREATE INDEX IF NOT EXISTS idx_chat_messages_session_timestamp
    ON chat_messages (session_id, timestamp);
`

// Store is the pgx-backed exchange repository.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL at dsn and returns a ready Store. The
// connection is verified with a ping before returning.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool. Used by tests and callers that manage
// the pool themselves.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping verifies database connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates or ensures the chat_messages table and indexes exist.
// It is idempotent and safe to call on every application start.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, ddlChatMessages); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append writes one exchange row. The database assigns the id and timestamp;
// both are written back into e.
func (s *Store) Append(ctx context.Context, e *Exchange) error {
	const q = `
		INSERT INTO chat_messages
		    (session_id, user_message, input_method, corrected_sentence, has_errors, explanation, ai_response)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, timestamp`

	err := s.pool.QueryRow(ctx, q,
		e.SessionID,
		e.UserMessage,
		e.InputMethod,
		e.CorrectedSentence,
		e.HasErrors,
		e.Explanation,
		e.AIResponse,
	).Scan(&e.ID, &e.Timestamp)
	if err != nil {
		return fmt.Errorf("store: append exchange: %w", err)
	}
	return nil
}

// ListBySession returns all exchanges for sessionID ordered by timestamp
// ascending. limit bounds the result when positive.
func (s *Store) ListBySession(ctx context.Context, sessionID string, limit int) ([]Exchange, error) {
	q := `
		SELECT id, session_id, user_message, input_method, corrected_sentence, has_errors, explanation, ai_response, timestamp
		FROM   chat_messages
		WHERE  session_id = $1
		ORDER  BY timestamp`
	args := []any{sessionID}
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list by session: %w", err)
	}
	return collectExchanges(rows)
}

// ListRecent returns up to limit of the most recent exchanges for sessionID,
// in chronological order. Used to assemble conversation context for the
// completion provider.
func (s *Store) ListRecent(ctx context.Context, sessionID string, limit int) ([]Exchange, error) {
	const q = `
		SELECT id, session_id, user_message, input_method, corrected_sentence, has_errors, explanation, ai_response, timestamp
		FROM   (
		    SELECT *
		    FROM   chat_messages
		    WHERE  session_id = $1
		    ORDER  BY timestamp DESC
		    LIMIT  $2
		) recent
		ORDER BY timestamp`

	rows, err := s.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list recent: %w", err)
	}
	return collectExchanges(rows)
}

// DeleteSession removes all exchanges for sessionID and reports how many
// rows were deleted.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chat_messages WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("store: delete session: %w", err)
	}
	return tag.RowsAffected(), nil
}

// collectExchanges scans pgx rows into a slice of Exchange values.
func collectExchanges(rows pgx.Rows) ([]Exchange, error) {
	exchanges, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Exchange, error) {
		var e Exchange
		err := row.Scan(
			&e.ID,
			&e.SessionID,
			&e.UserMessage,
			&e.InputMethod,
			&e.CorrectedSentence,
			&e.HasErrors,
			&e.Explanation,
			&e.AIResponse,
			&e.Timestamp,
		)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("store: scan rows: %w", err)
	}
	if exchanges == nil {
		exchanges = []Exchange{}
	}
	return exchanges, nil
}
