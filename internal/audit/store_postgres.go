package audit

import (
	"context"
	"database/sql"
	"fmt"

	id "sebenza/pkg/domain"
	txcontext "sebenza/pkg/platform/tx"
)

// PostgresStore appends to the audit_log table. Rows are write-once: the only
// statements this store issues are INSERT and SELECT. The seq column gives a
// stable order for entries sharing a timestamp.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// execer returns the transaction from context when the caller runs the append
// inside one, so a state mutation and its audit entry commit together.
func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO audit_log (
			id, entity_type, entity_id, action, actor, actor_role,
			previous_state, new_state, reason_code, reason_description, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		entry.ID.String(),
		string(entry.EntityType),
		entry.EntityID,
		string(entry.Action),
		entry.Actor,
		entry.ActorRole,
		entry.PreviousState,
		entry.NewState,
		entry.ReasonCode,
		entry.ReasonDescription,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ByEntity(ctx context.Context, entityType EntityType, entityID string) ([]Entry, error) {
	query := `
		SELECT id, entity_type, entity_id, action, actor, actor_role,
			   previous_state, new_state, reason_code, reason_description, created_at
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC, seq ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			entry      Entry
			entryID    string
			entityType string
			action     string
		)
		err := rows.Scan(
			&entryID,
			&entityType,
			&entry.EntityID,
			&action,
			&entry.Actor,
			&entry.ActorRole,
			&entry.PreviousState,
			&entry.NewState,
			&entry.ReasonCode,
			&entry.ReasonDescription,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.ID = id.EntryID(entryID)
		entry.EntityType = EntityType(entityType)
		entry.Action = Action(action)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
