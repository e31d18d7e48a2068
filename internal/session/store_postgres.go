package session

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	id "sebenza/pkg/domain"
	"sebenza/pkg/platform/sentinel"
	txcontext "sebenza/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, session Session) error {
	query := `
		INSERT INTO sessions (
			id, candidate_id, state, response_count, locked, lock_reason,
			created_at, updated_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		session.ID.String(),
		session.CandidateID.String(),
		string(session.State),
		session.ResponseCount,
		session.Locked,
		session.LockReason,
		session.CreatedAt,
		session.UpdatedAt,
		session.CompletedAt,
	)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, sessionID id.SessionID) (Session, error) {
	query := `
		SELECT id, candidate_id, state, response_count, locked, lock_reason,
			   created_at, updated_at, completed_at
		FROM sessions
		WHERE id = $1
	`
	var (
		session     Session
		sid         string
		candidateID string
		state       string
		completedAt sql.NullTime
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, sessionID.String()).Scan(
		&sid,
		&candidateID,
		&state,
		&session.ResponseCount,
		&session.Locked,
		&session.LockReason,
		&session.CreatedAt,
		&session.UpdatedAt,
		&completedAt,
	)
	if err == sql.ErrNoRows {
		return Session{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("query session: %w", err)
	}
	session.ID = id.SessionID(sid)
	session.CandidateID = id.CandidateID(candidateID)
	session.State = State(state)
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		session.CompletedAt = &t
	}
	return session, nil
}

func (s *PostgresStore) Update(ctx context.Context, session Session) error {
	query := `
		UPDATE sessions
		SET state = $2, response_count = $3, locked = $4, lock_reason = $5,
			updated_at = $6, completed_at = $7
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		session.ID.String(),
		string(session.State),
		session.ResponseCount,
		session.Locked,
		session.LockReason,
		session.UpdatedAt,
		session.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
