package checklist

import (
	"context"
	"database/sql"
	"fmt"

	id "sebenza/pkg/domain"
	"sebenza/pkg/platform/sentinel"
	txcontext "sebenza/pkg/platform/tx"
)

// PostgresStore persists checklist items. Rows are unique per
// (candidate_id, item_type).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) SaveAll(ctx context.Context, items []Item) error {
	query := `
		INSERT INTO checklist_items (
			id, candidate_id, item_type, completed, validation_status,
			completed_at, completed_by, validation_notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, item := range items {
		_, err := s.execer(ctx).ExecContext(ctx, query,
			item.ID.String(),
			item.CandidateID.String(),
			string(item.Type),
			item.Completed,
			string(item.ValidationStatus),
			item.CompletedAt,
			item.CompletedBy,
			item.ValidationNotes,
		)
		if err != nil {
			return fmt.Errorf("insert checklist item: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, candidateID id.CandidateID, itemType ItemType) (Item, error) {
	query := `
		SELECT id, candidate_id, item_type, completed, validation_status,
			   completed_at, completed_by, validation_notes
		FROM checklist_items
		WHERE candidate_id = $1 AND item_type = $2
	`
	row := s.execer(ctx).QueryRowContext(ctx, query, candidateID.String(), string(itemType))
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return Item{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("query checklist item: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) Update(ctx context.Context, item Item) error {
	query := `
		UPDATE checklist_items
		SET completed = $3, validation_status = $4, completed_at = $5,
			completed_by = $6, validation_notes = $7
		WHERE candidate_id = $1 AND item_type = $2
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		item.CandidateID.String(),
		string(item.Type),
		item.Completed,
		string(item.ValidationStatus),
		item.CompletedAt,
		item.CompletedBy,
		item.ValidationNotes,
	)
	if err != nil {
		return fmt.Errorf("update checklist item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update checklist item: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteByCandidate(ctx context.Context, candidateID id.CandidateID) error {
	query := `DELETE FROM checklist_items WHERE candidate_id = $1`
	if _, err := s.execer(ctx).ExecContext(ctx, query, candidateID.String()); err != nil {
		return fmt.Errorf("delete checklist items: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByCandidate(ctx context.Context, candidateID id.CandidateID) ([]Item, error) {
	query := `
		SELECT id, candidate_id, item_type, completed, validation_status,
			   completed_at, completed_by, validation_notes
		FROM checklist_items
		WHERE candidate_id = $1
		ORDER BY created_seq ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, candidateID.String())
	if err != nil {
		return nil, fmt.Errorf("query checklist items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checklist item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checklist items: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var (
		item        Item
		itemID      string
		candidateID string
		itemType    string
		status      string
		completedAt sql.NullTime
	)
	err := row.Scan(
		&itemID,
		&candidateID,
		&itemType,
		&item.Completed,
		&status,
		&completedAt,
		&item.CompletedBy,
		&item.ValidationNotes,
	)
	if err != nil {
		return Item{}, err
	}
	item.ID = id.ItemID(itemID)
	item.CandidateID = id.CandidateID(candidateID)
	item.Type = ItemType(itemType)
	item.ValidationStatus = ValidationStatus(status)
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		item.CompletedAt = &t
	}
	return item, nil
}
