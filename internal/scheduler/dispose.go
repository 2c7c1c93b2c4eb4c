package scheduler

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"spool/internal/logging"
	"spool/internal/outcome"
	"spool/internal/queue"
)

// dispose applies the outcome table for one finished stage. It returns
// true when the pipeline should continue to the next stage.
func (s *Scheduler) dispose(ctx context.Context, job *queue.Job, item *queue.Item, stage string, kind outcome.Kind) bool {
	log := s.logger.With(
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldStage, stage))

	switch kind {
	case outcome.KindSuccess:
		return true

	case outcome.KindCanceled:
		s.markDone(ctx, job, item, kind, "canceled by user", log)
		return false

	case outcome.KindNotFound:
		s.markDone(ctx, job, item, kind, "item not found at source", log)
		s.cascadeDelete(ctx, item, log)
		return false

	case outcome.KindNoCredential:
		// The item can never be owned by this install; remove it.
		s.markDone(ctx, job, item, kind, "no credential for owning account", log)
		s.cascadeDelete(ctx, item, log)
		return false

	case outcome.KindNoCredentialYet:
		if !s.refreshCredential(ctx, item, log) {
			s.markDone(ctx, job, item, outcome.KindNoCredential, "credential permanently absent", log)
			s.cascadeDelete(ctx, item, log)
			return false
		}
		s.scheduleRetry(ctx, job, time.Duration(s.cfg.Workers.ShortCooldown)*time.Second, "awaiting credential authorization", log)
		return false

	case outcome.KindNetworkError, outcome.KindTimeout:
		s.scheduleRetry(ctx, job, time.Duration(s.cfg.Workers.LongCooldown)*time.Second, string(kind), log)
		return false

	default:
		s.markDone(ctx, job, item, kind, "", log)
		return false
	}
}

func (s *Scheduler) markDone(ctx context.Context, job *queue.Job, item *queue.Item, kind outcome.Kind, message string, log *slog.Logger) {
	if err := s.store.MarkDone(ctx, job.ID, kind, message); err != nil {
		log.Error("terminal disposition failed", logging.Error(err))
		return
	}
	log.Info("job finished", logging.String(logging.FieldResultKind, string(kind)))
	s.publishJobState(job.ID, "done", kind)
	if s.notifier != nil && kind != outcome.KindCanceled {
		s.notifier.JobFailed(ctx, item, job.ID, kind)
	}
}

// scheduleRetry gates the job behind a cooldown and arms a delayed
// RunOnce as a safety net in case nothing else triggers the pool sooner.
func (s *Scheduler) scheduleRetry(ctx context.Context, job *queue.Job, cooldown time.Duration, message string, log *slog.Logger) {
	tryAfter := s.now().Add(cooldown)
	if err := s.store.ScheduleRetry(ctx, job.ID, tryAfter, message); err != nil {
		log.Error("retry disposition failed", logging.Error(err))
		return
	}
	log.Info("job cooling down",
		logging.String("cooldown", cooldown.String()),
		logging.String("reason", message))
	s.publishJobState(job.ID, "cooldown", "")
	s.runAfter(cooldown+time.Second, func() { s.RunOnce(context.Background()) })
}

// cascadeDelete removes the owning item; the job record and its
// attachments go with it.
func (s *Scheduler) cascadeDelete(ctx context.Context, item *queue.Item, log *slog.Logger) {
	if _, err := s.store.RemoveItem(ctx, item.ID); err != nil {
		log.Error("cascade delete failed", logging.Error(err))
	}
}

// refreshCredential re-derives credential presence from the auth file on
// disk. Returns false when the account itself is gone.
func (s *Scheduler) refreshCredential(ctx context.Context, item *queue.Item, log *slog.Logger) bool {
	account, err := s.store.GetAccount(ctx, item.AccountID)
	if err != nil {
		log.Error("credential refresh lookup failed", logging.Error(err))
		return true
	}
	if account == nil {
		return false
	}
	_, statErr := os.Stat(filepath.Join(s.cfg.Paths.AuthDir, account.AuthFile))
	present := statErr == nil
	if present != account.CredentialPresent {
		if err := s.store.SetCredentialPresent(ctx, account.ID, present); err != nil {
			log.Error("credential refresh update failed", logging.Error(err))
		}
	}
	return true
}
