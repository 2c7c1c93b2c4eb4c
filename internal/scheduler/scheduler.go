package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"spool/internal/bus"
	"spool/internal/config"
	"spool/internal/logging"
	"spool/internal/outcome"
	"spool/internal/procrun"
	"spool/internal/queue"
)

// StageRunner executes one pipeline stage for a claimed job.
type StageRunner interface {
	Run(ctx context.Context, item *queue.Item, jobID int64, workDir string) outcome.Kind
	Cancel(itemID string) bool
}

// Notifier receives fire-and-forget completion signals.
type Notifier interface {
	JobCompleted(ctx context.Context, item *queue.Item, jobID int64)
	JobFailed(ctx context.Context, item *queue.Item, jobID int64, kind outcome.Kind)
	QueueCompleted(ctx context.Context, processed int, elapsed time.Duration)
}

// Scheduler runs up to K concurrent job pipelines.
type Scheduler struct {
	cfg       *config.Config
	store     *queue.Store
	bus       *bus.Bus
	registry  *procrun.Registry
	fetch     StageRunner
	transcode StageRunner
	notifier  Notifier
	logger    *slog.Logger

	// claimMu serializes find-eligible-and-mark-claimed across workers.
	claimMu sync.Mutex

	mu         sync.Mutex
	started    bool
	stopped    bool
	paused     bool
	busy       int
	processed  int
	batchStart time.Time

	wg sync.WaitGroup

	// Injectable clock and delayed-run primitive for cooldown tests.
	now      func() time.Time
	runAfter func(time.Duration, func()) *time.Timer
}

// New assembles a scheduler. The notifier may be nil.
func New(cfg *config.Config, store *queue.Store, eventBus *bus.Bus, registry *procrun.Registry, fetch, transcode StageRunner, notifier Notifier, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		cfg:       cfg,
		store:     store,
		bus:       eventBus,
		registry:  registry,
		fetch:     fetch,
		transcode: transcode,
		notifier:  notifier,
		logger:    logger.With(logging.String(logging.FieldComponent, "scheduler")),
		now:       time.Now,
		runAfter:  time.AfterFunc,
	}
}

// SetClockForTests overrides the clock and the delayed-run primitive.
func (s *Scheduler) SetClockForTests(now func() time.Time, runAfter func(time.Duration, func()) *time.Timer) {
	s.now = now
	s.runAfter = runAfter
}

// Start recovers claims stranded by a previous process and fills the
// worker slots.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.stopped = false
	s.mu.Unlock()

	reset, err := s.store.ResetStuckInProgress(ctx)
	if err != nil {
		return fmt.Errorf("recover stranded jobs: %w", err)
	}
	if reset > 0 {
		s.logger.Info("recovered stranded jobs", logging.Int64("count", reset))
	}
	s.RunOnce(ctx)
	return nil
}

// Stop halts future claiming. In-flight jobs finish on their own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.started = false
	s.mu.Unlock()
}

// Wait blocks until all worker loops have drained.
func (s *Scheduler) Wait() { s.wg.Wait() }

// Pause stops workers from claiming further jobs until Resume.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.logger.Info("queue paused")
}

// Resume clears the pause flag and refills idle worker slots.
func (s *Scheduler) Resume(ctx context.Context) {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.logger.Info("queue resumed")
	s.RunOnce(ctx)
}

// Paused reports the pause flag.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Cancel requests termination of the item's running stage, if any.
func (s *Scheduler) Cancel(itemID string) bool {
	return s.registry.Cancel(itemID)
}

// RunOnce tops the pool up to its concurrency bound. It is idempotent:
// with all slots occupied it does nothing.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.paused {
		return
	}
	for s.busy < s.cfg.Workers.Count {
		if s.busy == 0 {
			s.batchStart = s.now()
			s.processed = 0
		}
		s.busy++
		s.wg.Add(1)
		go s.workerLoop(ctx)
	}
}

func (s *Scheduler) workerLoop(ctx context.Context) {
	defer s.wg.Done()
	defer s.workerDone()

	for {
		job, item, ok := s.claim(ctx)
		if !ok {
			return
		}
		s.runJob(ctx, job, item)
		s.mu.Lock()
		s.processed++
		s.mu.Unlock()
	}
}

// claim is the race-free find-eligible-and-mark-claimed step.
func (s *Scheduler) claim(ctx context.Context) (*queue.Job, *queue.Item, bool) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	s.mu.Lock()
	halted := s.stopped || s.paused
	s.mu.Unlock()
	if halted || ctx.Err() != nil {
		return nil, nil, false
	}

	job, err := s.store.NextEligible(ctx, s.now())
	if err != nil {
		s.logger.Error("claim query failed", logging.Error(err))
		return nil, nil, false
	}
	if job == nil {
		return nil, nil, false
	}
	item, err := s.store.GetItem(ctx, job.ItemID)
	if err != nil || item == nil {
		s.logger.Error("claimed job has no item", logging.Int64(logging.FieldJobID, job.ID), logging.Error(err))
		_ = s.store.MarkDone(ctx, job.ID, outcome.KindUnknownState, "item record missing")
		return nil, nil, false
	}
	if err := s.store.MarkClaimed(ctx, job.ID); err != nil {
		s.logger.Error("claim update failed", logging.Error(err))
		return nil, nil, false
	}
	s.publishJobState(job.ID, "running", "")
	return job, item, true
}

// runJob executes both stages with panic containment: one job's crash
// must never take down its worker loop.
func (s *Scheduler) runJob(ctx context.Context, job *queue.Job, item *queue.Item) {
	log := s.logger.With(
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String(logging.FieldItemID, item.ID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", logging.String("panic", fmt.Sprint(r)))
			if err := s.store.MarkDone(ctx, job.ID, outcome.KindUnknown, fmt.Sprint(r)); err != nil {
				log.Error("panic disposition failed", logging.Error(err))
			}
			s.publishJobState(job.ID, "done", outcome.KindUnknown)
		}
	}()

	workDir := filepath.Join(s.cfg.Paths.StagingDir, "item-"+item.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		log.Error("work dir unavailable", logging.Error(err))
		_ = s.store.MarkDone(ctx, job.ID, outcome.KindUnknown, err.Error())
		return
	}

	if !item.Fetched {
		kind := s.fetch.Run(ctx, item, job.ID, workDir)
		log.Info("fetch stage finished", logging.String(logging.FieldResultKind, string(kind)))
		if !s.dispose(ctx, job, item, "fetch", kind) {
			return
		}
	}

	kind := s.transcode.Run(ctx, item, job.ID, workDir)
	log.Info("transcode stage finished", logging.String(logging.FieldResultKind, string(kind)))
	if !s.dispose(ctx, job, item, "transcode", kind) {
		return
	}

	if err := s.store.MarkDone(ctx, job.ID, outcome.KindSuccess, ""); err != nil {
		log.Error("success disposition failed", logging.Error(err))
		return
	}
	s.publishJobState(job.ID, "done", outcome.KindSuccess)
	if s.notifier != nil {
		s.notifier.JobCompleted(ctx, item, job.ID)
	}
}

// workerDone releases the slot and finalizes batch bookkeeping on the
// transition from busy to idle.
func (s *Scheduler) workerDone() {
	s.mu.Lock()
	s.busy--
	idle := s.busy == 0
	processed := s.processed
	elapsed := s.now().Sub(s.batchStart)
	s.mu.Unlock()

	if !idle || processed == 0 {
		return
	}
	s.logger.Info("queue drained",
		logging.Int64("processed", int64(processed)),
		logging.String("elapsed", elapsed.Round(time.Second).String()))
	s.bus.Publish(bus.ChannelQueue, bus.NewCorrelationID(), bus.EventQueueDrained, map[string]any{
		"processed": processed,
		"elapsed":   elapsed.Seconds(),
	})
	if s.notifier != nil {
		s.notifier.QueueCompleted(context.Background(), processed, elapsed)
	}
}

func (s *Scheduler) publishJobState(jobID int64, state string, result outcome.Kind) {
	payload := map[string]any{"jobId": jobID, "state": state}
	if result != "" {
		payload["result"] = string(result)
	}
	correlationID := bus.NewCorrelationID()
	s.bus.Publish(bus.JobChannel(jobID), correlationID, bus.EventJobState, payload)
	s.bus.Publish(bus.ChannelQueue, correlationID, bus.EventJobState, payload)
}
