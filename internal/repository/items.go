// Package repository provides persistence implementations for item storage
// using a PostgreSQL database.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/akorchagin/stash/internal/models"
	"github.com/lib/pq"
)

// PostgresItemRepository implements item persistence against a PostgreSQL
// database. Updates are whole-row and last-write-wins: there is no version
// column, matching the remote store's conflict policy.
type PostgresItemRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresItemRepository creates a new PostgresItemRepository using the
// provided *sql.DB. db must be a valid connection to a PostgreSQL instance.
func NewPostgresItemRepository(db *sql.DB) *PostgresItemRepository {
	return &PostgresItemRepository{DB: db}
}

const itemColumns = `id, kind, content, tags, image_data, extraction, pinned, completed, completed_at, created_at`

// ItemsByUser fetches all items for the specified user, newest first.
func (r *PostgresItemRepository) ItemsByUser(ctx context.Context, userID string) ([]models.Item, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM items WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("ItemsByUser: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ItemByID retrieves a single item by ID for the given user.
// Returns sql.ErrNoRows if the item does not exist or belongs to another user.
func (r *PostgresItemRepository) ItemByID(ctx context.Context, userID, id string) (*models.Item, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+itemColumns+` FROM items WHERE user_id = $1 AND id = $2
	`, userID, id)
	it, err := scanItem(row)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// InsertItem stores a single new item for the user. A conflicting ID is
// overwritten wholesale, so a retried create stays idempotent.
func (r *PostgresItemRepository) InsertItem(ctx context.Context, userID string, it models.Item) error {
	extraction, err := marshalExtraction(it.Extraction)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO items (id, user_id, kind, content, tags, image_data, extraction, pinned, completed, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			content = EXCLUDED.content,
			tags = EXCLUDED.tags,
			image_data = EXCLUDED.image_data,
			extraction = EXCLUDED.extraction,
			pinned = EXCLUDED.pinned,
			completed = EXCLUDED.completed,
			completed_at = EXCLUDED.completed_at
	`, it.ID, userID, it.Kind, it.Content, pq.Array(it.Tags), it.ImageData, extraction,
		it.Pinned, it.Completed, it.CompletedAt, it.CreatedAt)
	if err != nil {
		return fmt.Errorf("InsertItem: %w", err)
	}
	return nil
}

// InsertItems bulk-inserts items for a user within a single transaction.
// Used by the one-time local-to-remote migration.
func (r *PostgresItemRepository) InsertItems(ctx context.Context, userID string, items []models.Item) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, it := range items {
		extraction, err := marshalExtraction(it.Extraction)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO items (id, user_id, kind, content, tags, image_data, extraction, pinned, completed, completed_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO NOTHING
		`, it.ID, userID, it.Kind, it.Content, pq.Array(it.Tags), it.ImageData, extraction,
			it.Pinned, it.Completed, it.CompletedAt, it.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert item %s: %w", it.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpdateItem applies a partial update to an item. The row is read, patched
// and written back wholesale; the last writer wins.
func (r *PostgresItemRepository) UpdateItem(ctx context.Context, userID, id string, patch models.ItemPatch) (*models.Item, error) {
	it, err := r.ItemByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(it)

	extraction, err := marshalExtraction(it.Extraction)
	if err != nil {
		return nil, err
	}
	_, err = r.DB.ExecContext(ctx, `
		UPDATE items SET kind = $3, content = $4, tags = $5, image_data = $6, extraction = $7,
			pinned = $8, completed = $9, completed_at = $10
		WHERE user_id = $1 AND id = $2
	`, userID, id, it.Kind, it.Content, pq.Array(it.Tags), it.ImageData, extraction,
		it.Pinned, it.Completed, it.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("UpdateItem: %w", err)
	}
	return it, nil
}

// DeleteItem removes an item for the specified user.
func (r *PostgresItemRepository) DeleteItem(ctx context.Context, userID, id string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM items WHERE user_id = $1 AND id = $2`, userID, id)
	return err
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (models.Item, error) {
	var (
		it         models.Item
		extraction []byte
	)
	err := row.Scan(&it.ID, &it.Kind, &it.Content, pq.Array(&it.Tags), &it.ImageData,
		&extraction, &it.Pinned, &it.Completed, &it.CompletedAt, &it.CreatedAt)
	if err != nil {
		return models.Item{}, err
	}
	if len(extraction) > 0 {
		if err := json.Unmarshal(extraction, &it.Extraction); err != nil {
			return models.Item{}, fmt.Errorf("decode extraction: %w", err)
		}
	}
	return it, nil
}

func marshalExtraction(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode extraction: %w", err)
	}
	return b, nil
}
