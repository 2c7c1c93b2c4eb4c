package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const itemColumns = "id, title, account_id, runtime_sec, fetched, transcoded, created_at, updated_at"

// UpsertItem inserts or refreshes an item record.
func (s *Store) UpsertItem(ctx context.Context, item *Item) error {
	if item == nil || item.ID == "" {
		return errors.New("item id is required")
	}
	now := timestamp(time.Now())
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO items (id, title, account_id, runtime_sec, fetched, transcoded, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             title = excluded.title,
             account_id = excluded.account_id,
             runtime_sec = excluded.runtime_sec,
             updated_at = excluded.updated_at`,
		item.ID, item.Title, item.AccountID, item.RuntimeSec,
		boolToInt(item.Fetched), boolToInt(item.Transcoded), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}
	return nil
}

// GetItem fetches an item by identifier. Returns nil when absent.
func (s *Store) GetItem(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ListItems returns all items ordered by creation time.
func (s *Store) ListItems(ctx context.Context) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// RemoveItem deletes an item. Jobs, attachments, and chapters cascade.
func (s *Store) RemoveItem(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("remove item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// SetItemFetched records fetch completion for the item.
func (s *Store) SetItemFetched(ctx context.Context, id string, fetched bool) error {
	return s.setItemFlag(ctx, id, "fetched", fetched)
}

// SetItemTranscoded records transcode completion for the item.
func (s *Store) SetItemTranscoded(ctx context.Context, id string, transcoded bool) error {
	return s.setItemFlag(ctx, id, "transcoded", transcoded)
}

func (s *Store) setItemFlag(ctx context.Context, id, column string, value bool) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE items SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		boolToInt(value), timestamp(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("set item %s: %w", column, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set item %s for %q: %w", column, id, ErrNotFound)
	}
	return nil
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		item       Item
		fetched    int
		transcoded int
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&item.ID, &item.Title, &item.AccountID, &item.RuntimeSec,
		&fetched, &transcoded, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	item.Fetched = fetched != 0
	item.Transcoded = transcoded != 0
	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	return &item, nil
}
