package queue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AddAttachment registers a managed file for an item.
func (s *Store) AddAttachment(ctx context.Context, att *Attachment) error {
	if att == nil || att.ItemID == "" || att.Path == "" {
		return errors.New("attachment item id and path are required")
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO attachments (item_id, path, kind, size_bytes, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		att.ItemID, att.Path, string(att.Kind), att.SizeBytes, timestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("add attachment: %w", err)
	}
	att.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	return nil
}

// ListAttachments returns an item's attachments in registration order.
func (s *Store) ListAttachments(ctx context.Context, itemID string) ([]*Attachment, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, item_id, path, kind, size_bytes, created_at FROM attachments WHERE item_id = ? ORDER BY id`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var attachments []*Attachment
	for rows.Next() {
		var (
			att        Attachment
			kind       string
			createdRaw string
		)
		if err := rows.Scan(&att.ID, &att.ItemID, &att.Path, &kind, &att.SizeBytes, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		att.Kind = AttachmentKind(kind)
		if created, parseErr := parseTimeString(createdRaw); parseErr == nil {
			att.CreatedAt = created
		}
		attachments = append(attachments, &att)
	}
	return attachments, rows.Err()
}

// ReplaceChapters swaps an item's chapter list atomically.
func (s *Store) ReplaceChapters(ctx context.Context, itemID string, chapters []Chapter) error {
	if itemID == "" {
		return errors.New("item id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chapters tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chapters WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("clear chapters: %w", err)
	}
	for _, ch := range chapters {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO chapters (item_id, idx, title, start_ms, length_ms) VALUES (?, ?, ?, ?, ?)`,
			itemID, ch.Idx, ch.Title, ch.StartMS, ch.LengthMS,
		); err != nil {
			return fmt.Errorf("insert chapter %d: %w", ch.Idx, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chapters: %w", err)
	}
	return nil
}

// ListChapters returns an item's chapters in index order.
func (s *Store) ListChapters(ctx context.Context, itemID string) ([]Chapter, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, item_id, idx, title, start_ms, length_ms FROM chapters WHERE item_id = ? ORDER BY idx`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	var chapters []Chapter
	for rows.Next() {
		var ch Chapter
		if err := rows.Scan(&ch.ID, &ch.ItemID, &ch.Idx, &ch.Title, &ch.StartMS, &ch.LengthMS); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		chapters = append(chapters, ch)
	}
	return chapters, rows.Err()
}
