package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"spool/internal/outcome"
)

const jobColumns = "id, item_id, in_progress, done, fetch_progress, transcode_progress, downloaded_bytes, total_bytes, speed, try_after, result, error_message, created_at, updated_at"

// Enqueue inserts a new job for the item. It fails with ErrAlreadyQueued
// when a non-done job already exists; the partial unique index makes the
// check atomic under concurrent callers.
func (s *Store) Enqueue(ctx context.Context, itemID string) (*Job, error) {
	if itemID == "" {
		return nil, errors.New("item id is required")
	}
	if item, err := s.GetItem(ctx, itemID); err != nil {
		return nil, err
	} else if item == nil {
		return nil, fmt.Errorf("enqueue %q: %w", itemID, ErrNotFound)
	}

	now := timestamp(time.Now())
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (item_id, in_progress, done, fetch_progress, transcode_progress, created_at, updated_at)
         VALUES (?, 0, 0, 0, 0, ?, ?)`,
		itemID, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyQueued
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches a job by identifier. Returns nil when absent.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ActiveJobForItem returns the single non-done job for an item, if any.
func (s *Store) ActiveJobForItem(ctx context.Context, itemID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE item_id = ? AND done = 0`, itemID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active job for item: %w", err)
	}
	return job, nil
}

// NextEligible returns the oldest claimable job at the given instant.
// Claim order is FIFO by creation time with the job id as tie-break.
func (s *Store) NextEligible(ctx context.Context, now time.Time) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE done = 0 AND in_progress = 0 AND (try_after IS NULL OR try_after <= ?)
         ORDER BY created_at, id LIMIT 1`,
		timestamp(now),
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next eligible job: %w", err)
	}
	return job, nil
}

// MarkClaimed flips a job to in-progress and zeroes its progress fields.
// Only the claiming worker may call this.
func (s *Store) MarkClaimed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET in_progress = 1, fetch_progress = 0, transcode_progress = 0,
             downloaded_bytes = NULL, total_bytes = NULL, speed = NULL,
             try_after = NULL, error_message = NULL, updated_at = ?
         WHERE id = ?`,
		timestamp(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("mark claimed: %w", err)
	}
	return nil
}

// SetFetchProgress updates only fetch telemetry fields. Called by the
// fetch adapter while the claiming worker owns the rest of the record.
func (s *Store) SetFetchProgress(ctx context.Context, id int64, fraction float64, downloaded, total int64, speed float64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET fetch_progress = ?, downloaded_bytes = ?, total_bytes = ?, speed = ?, updated_at = ? WHERE id = ?`,
		fraction,
		nullableInt64(downloaded),
		nullableInt64(total),
		nullableFloat64(speed),
		timestamp(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("set fetch progress: %w", err)
	}
	return nil
}

// SetTranscodeProgress updates only the transcode progress fraction.
func (s *Store) SetTranscodeProgress(ctx context.Context, id int64, fraction float64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET transcode_progress = ?, updated_at = ? WHERE id = ?`,
		fraction, timestamp(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("set transcode progress: %w", err)
	}
	return nil
}

// MarkDone finalizes a job with its result kind.
func (s *Store) MarkDone(ctx context.Context, id int64, result outcome.Kind, errorMessage string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET done = 1, in_progress = 0, result = ?, error_message = ?, try_after = NULL, updated_at = ? WHERE id = ?`,
		string(result), nullableString(errorMessage), timestamp(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	return nil
}

// ScheduleRetry releases the claim, gates the job behind tryAfter, and
// zeroes all progress fields.
func (s *Store) ScheduleRetry(ctx context.Context, id int64, tryAfter time.Time, errorMessage string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET in_progress = 0, try_after = ?, fetch_progress = 0, transcode_progress = 0,
             downloaded_bytes = NULL, total_bytes = NULL, speed = NULL,
             error_message = ?, updated_at = ?
         WHERE id = ? AND done = 0`,
		timestamp(tryAfter), nullableString(errorMessage), timestamp(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	return nil
}

// Retry resets a done job back to eligible. Returns false when the job
// does not exist or is not done.
func (s *Store) Retry(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET done = 0, in_progress = 0, result = NULL, error_message = NULL, try_after = NULL,
             fetch_progress = 0, transcode_progress = 0,
             downloaded_bytes = NULL, total_bytes = NULL, speed = NULL, updated_at = ?
         WHERE id = ? AND done = 1`,
		timestamp(time.Now()), id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// A fresh job for the same item was enqueued in the meantime.
			return false, ErrAlreadyQueued
		}
		return false, fmt.Errorf("retry job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Dismiss deletes a job by identifier.
func (s *Store) Dismiss(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("dismiss job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ResetStuckInProgress releases claims left behind by a crashed process.
// Called once on daemon start before workers launch.
func (s *Store) ResetStuckInProgress(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET in_progress = 0, fetch_progress = 0, transcode_progress = 0,
             downloaded_bytes = NULL, total_bytes = NULL, speed = NULL, updated_at = ?
         WHERE in_progress = 1 AND done = 0`,
		timestamp(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// ListJobs returns all jobs ordered by creation time.
func (s *Store) ListJobs(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CountInProgress returns the number of claimed jobs.
func (s *Store) CountInProgress(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs WHERE in_progress = 1`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count in-progress: %w", err)
	}
	return count, nil
}

// Health aggregates job counts per lifecycle state.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	jobs, err := s.ListJobs(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	var health HealthSummary
	for _, job := range jobs {
		health.Total++
		switch job.StageKey() {
		case "running":
			health.Running++
		case "cooldown":
			health.Cooldown++
		case "planned":
			health.Planned++
		case "final":
			health.Done++
			if job.Result != outcome.KindSuccess {
				health.Failed++
			}
		}
	}
	return health, nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id          int64
		itemID      string
		inProgress  int
		done        int
		fetchProg   float64
		transProg   float64
		downloaded  sql.NullInt64
		total       sql.NullInt64
		speed       sql.NullFloat64
		tryAfterRaw sql.NullString
		result      sql.NullString
		errMessage  sql.NullString
		createdRaw  string
		updatedRaw  string
	)

	if err := scanner.Scan(
		&id, &itemID, &inProgress, &done, &fetchProg, &transProg,
		&downloaded, &total, &speed, &tryAfterRaw, &result, &errMessage,
		&createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:                id,
		ItemID:            itemID,
		InProgress:        inProgress != 0,
		Done:              done != 0,
		FetchProgress:     fetchProg,
		TranscodeProgress: transProg,
		DownloadedBytes:   downloaded.Int64,
		TotalBytes:        total.Int64,
		Speed:             speed.Float64,
		ErrorMessage:      errMessage.String,
	}
	if result.Valid {
		if kind, ok := outcome.ParseKind(result.String); ok {
			job.Result = kind
		} else {
			job.Result = outcome.KindUnknown
		}
	}
	if tryAfterRaw.Valid {
		if tryAfter, err := parseTimeString(tryAfterRaw.String); err == nil {
			job.TryAfter = &tryAfter
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}
