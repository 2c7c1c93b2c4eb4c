package scheduler_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"spool/internal/bus"
	"spool/internal/config"
	"spool/internal/outcome"
	"spool/internal/procrun"
	"spool/internal/queue"
	"spool/internal/scheduler"
	"spool/internal/testsupport"
)

type stageFunc struct {
	mu  sync.Mutex
	fn  func(item *queue.Item, jobID int64) outcome.Kind
	ran int
}

func (s *stageFunc) Run(_ context.Context, item *queue.Item, jobID int64, _ string) outcome.Kind {
	s.mu.Lock()
	s.ran++
	fn := s.fn
	s.mu.Unlock()
	if fn == nil {
		return outcome.KindSuccess
	}
	return fn(item, jobID)
}

func (s *stageFunc) Cancel(string) bool { return false }

func (s *stageFunc) set(fn func(item *queue.Item, jobID int64) outcome.Kind) {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
}

func (s *stageFunc) runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ran
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed []int64
	failed    map[int64]outcome.Kind
	drained   int
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{failed: make(map[int64]outcome.Kind)}
}

func (n *recordingNotifier) JobCompleted(_ context.Context, _ *queue.Item, jobID int64) {
	n.mu.Lock()
	n.completed = append(n.completed, jobID)
	n.mu.Unlock()
}

func (n *recordingNotifier) JobFailed(_ context.Context, _ *queue.Item, jobID int64, kind outcome.Kind) {
	n.mu.Lock()
	n.failed[jobID] = kind
	n.mu.Unlock()
}

func (n *recordingNotifier) QueueCompleted(_ context.Context, processed int, _ time.Duration) {
	n.mu.Lock()
	n.drained = processed
	n.mu.Unlock()
}

type fixture struct {
	cfg       *config.Config
	store     *queue.Store
	bus       *bus.Bus
	fetch     *stageFunc
	transcode *stageFunc
	notifier  *recordingNotifier
	sched     *scheduler.Scheduler
}

func newFixture(t *testing.T, workers int) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workers.Count = workers
	store := testsupport.MustOpenStore(t, cfg)
	f := &fixture{
		cfg:       cfg,
		store:     store,
		bus:       bus.New(nil),
		fetch:     &stageFunc{},
		transcode: &stageFunc{},
		notifier:  newRecordingNotifier(),
	}
	f.sched = scheduler.New(cfg, store, f.bus, procrun.NewRegistry(), f.fetch, f.transcode, f.notifier, nil)
	return f
}

func (f *fixture) enqueue(t *testing.T, itemIDs ...string) map[string]int64 {
	t.Helper()
	ctx := context.Background()
	testsupport.SeedAccount(t, f.store, "acct1")
	jobs := make(map[string]int64, len(itemIDs))
	for _, id := range itemIDs {
		testsupport.SeedItem(t, f.store, "acct1", id)
		job, err := f.store.Enqueue(ctx, id)
		if err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
		jobs[id] = job.ID
	}
	return jobs
}

func TestPipelineSuccess(t *testing.T) {
	f := newFixture(t, 1)
	jobs := f.enqueue(t, "item1")
	ctx := context.Background()

	if err := f.sched.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.sched.Wait()

	job, err := f.store.GetJob(ctx, jobs["item1"])
	if err != nil || job == nil {
		t.Fatalf("get job: %+v %v", job, err)
	}
	if !job.Done || job.Result != outcome.KindSuccess {
		t.Fatalf("job = %+v, want done success", job)
	}
	if f.fetch.runs() != 1 || f.transcode.runs() != 1 {
		t.Fatalf("stage runs = %d/%d, want 1/1", f.fetch.runs(), f.transcode.runs())
	}

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	if len(f.notifier.completed) != 1 || f.notifier.completed[0] != jobs["item1"] {
		t.Fatalf("completed notifications = %v", f.notifier.completed)
	}
	if f.notifier.drained != 1 {
		t.Fatalf("queue drained notification processed = %d, want 1", f.notifier.drained)
	}
}

func TestConcurrencyBoundHolds(t *testing.T) {
	const workers = 2
	f := newFixture(t, workers)
	f.enqueue(t, "a", "b", "c", "d", "e")

	var current, peak int64
	stage := func(*queue.Item, int64) outcome.Kind {
		n := atomic.AddInt64(&current, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&current, -1)
		return outcome.KindSuccess
	}
	f.fetch.set(stage)
	f.transcode.set(stage)

	ctx := context.Background()
	if err := f.sched.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.sched.RunOnce(ctx) // idempotent with full slots
	f.sched.Wait()

	if got := atomic.LoadInt64(&peak); got > workers {
		t.Fatalf("peak concurrency = %d, want <= %d", got, workers)
	}
	health, err := f.store.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Done != 5 || health.Failed != 0 {
		t.Fatalf("health = %+v, want 5 done", health)
	}
}

func TestNetworkErrorRetriesAfterLongCooldown(t *testing.T) {
	f := newFixture(t, 1)
	jobs := f.enqueue(t, "item1")
	ctx := context.Background()

	base := time.Now()
	now := base
	var cooldowns []time.Duration
	var mu sync.Mutex
	f.sched.SetClockForTests(
		func() time.Time { mu.Lock(); defer mu.Unlock(); return now },
		func(d time.Duration, fn func()) *time.Timer {
			mu.Lock()
			cooldowns = append(cooldowns, d)
			mu.Unlock()
			return time.AfterFunc(24*time.Hour, func() {})
		},
	)

	f.fetch.set(func(*queue.Item, int64) outcome.Kind { return outcome.KindNetworkError })
	if err := f.sched.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.sched.Wait()

	job, err := f.store.GetJob(ctx, jobs["item1"])
	if err != nil || job == nil {
		t.Fatalf("get job: %+v %v", job, err)
	}
	if job.Done || job.InProgress || job.TryAfter == nil {
		t.Fatalf("job = %+v, want cooldown", job)
	}
	longCooldown := time.Duration(f.cfg.Workers.LongCooldown) * time.Second
	if got := job.TryAfter.Sub(base.UTC()); got < longCooldown-time.Second || got > longCooldown+time.Second {
		t.Fatalf("try_after offset = %s, want ~%s", got, longCooldown)
	}
	if job.FetchProgress != 0 || job.TranscodeProgress != 0 {
		t.Fatalf("progress not reset: %+v", job)
	}
	mu.Lock()
	if len(cooldowns) != 1 || cooldowns[0] < longCooldown {
		t.Fatalf("delayed run = %v, want >= %s", cooldowns, longCooldown)
	}
	mu.Unlock()

	// Not eligible before the gate, eligible and successful after it.
	f.fetch.set(nil)
	f.sched.RunOnce(ctx)
	f.sched.Wait()
	if job, _ := f.store.GetJob(ctx, jobs["item1"]); job.Done {
		t.Fatal("job ran before its cooldown expired")
	}

	mu.Lock()
	now = base.Add(longCooldown + 2*time.Second)
	mu.Unlock()
	f.sched.RunOnce(ctx)
	f.sched.Wait()
	job, _ = f.store.GetJob(ctx, jobs["item1"])
	if !job.Done || job.Result != outcome.KindSuccess {
		t.Fatalf("job = %+v, want done success after cooldown", job)
	}
}

func TestNoCredentialCascadeDeletesItem(t *testing.T) {
	f := newFixture(t, 1)
	jobs := f.enqueue(t, "item1")
	ctx := context.Background()

	// Remove the account so the refresh path cannot resurrect it.
	f.fetch.set(func(*queue.Item, int64) outcome.Kind { return outcome.KindNoCredential })
	if err := f.sched.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.sched.Wait()

	if job, err := f.store.GetJob(ctx, jobs["item1"]); err != nil || job != nil {
		t.Fatalf("job survived cascade: %+v %v", job, err)
	}
	if item, err := f.store.GetItem(ctx, "item1"); err != nil || item != nil {
		t.Fatalf("item survived cascade: %+v %v", item, err)
	}
}

func TestNoCredentialYetSchedulesShortCooldown(t *testing.T) {
	f := newFixture(t, 1)
	jobs := f.enqueue(t, "item1")
	ctx := context.Background()

	// The auth file exists on disk, so the refresh marks it present.
	if err := os.WriteFile(filepath.Join(f.cfg.Paths.AuthDir, "acct1.json"), []byte("{}"), 0o600); err != nil {
		t.Fatalf("write auth file: %v", err)
	}
	if err := f.store.SetCredentialPresent(ctx, "acct1", false); err != nil {
		t.Fatalf("clear credential: %v", err)
	}

	f.fetch.set(func(*queue.Item, int64) outcome.Kind { return outcome.KindNoCredentialYet })
	if err := f.sched.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.sched.Wait()

	job, err := f.store.GetJob(ctx, jobs["item1"])
	if err != nil || job == nil {
		t.Fatalf("get job: %+v %v", job, err)
	}
	if job.Done || job.TryAfter == nil {
		t.Fatalf("job = %+v, want short cooldown", job)
	}
	shortCooldown := time.Duration(f.cfg.Workers.ShortCooldown) * time.Second
	if got := time.Until(*job.TryAfter); got > shortCooldown+time.Minute {
		t.Fatalf("cooldown = %s, want ~%s", got, shortCooldown)
	}
	account, err := f.store.GetAccount(ctx, "acct1")
	if err != nil || account == nil || !account.CredentialPresent {
		t.Fatalf("credential refresh did not mark presence: %+v %v", account, err)
	}
}

func TestPanicContainment(t *testing.T) {
	f := newFixture(t, 1)
	jobs := f.enqueue(t, "bad", "good")
	ctx := context.Background()

	f.fetch.set(func(item *queue.Item, _ int64) outcome.Kind {
		if item.ID == "bad" {
			panic("adapter blew up")
		}
		return outcome.KindSuccess
	})
	if err := f.sched.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.sched.Wait()

	badJob, _ := f.store.GetJob(ctx, jobs["bad"])
	if badJob == nil || !badJob.Done || badJob.Result != outcome.KindUnknown {
		t.Fatalf("bad job = %+v, want done unknown", badJob)
	}
	goodJob, _ := f.store.GetJob(ctx, jobs["good"])
	if goodJob == nil || !goodJob.Done || goodJob.Result != outcome.KindSuccess {
		t.Fatalf("good job = %+v, want done success", goodJob)
	}
}

func TestPauseBlocksClaiming(t *testing.T) {
	f := newFixture(t, 1)
	jobs := f.enqueue(t, "item1")
	ctx := context.Background()

	f.sched.Pause()
	if err := f.sched.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.sched.Wait()

	job, _ := f.store.GetJob(ctx, jobs["item1"])
	if job.Done || job.InProgress {
		t.Fatalf("paused scheduler touched job: %+v", job)
	}
	if !f.sched.Paused() {
		t.Fatal("pause flag lost")
	}

	f.sched.Resume(ctx)
	f.sched.Wait()
	job, _ = f.store.GetJob(ctx, jobs["item1"])
	if !job.Done || job.Result != outcome.KindSuccess {
		t.Fatalf("job = %+v, want done success after resume", job)
	}
}

func TestCanceledIsTerminalWithoutFailureNotification(t *testing.T) {
	f := newFixture(t, 1)
	jobs := f.enqueue(t, "item1")
	ctx := context.Background()

	f.fetch.set(func(*queue.Item, int64) outcome.Kind { return outcome.KindCanceled })
	if err := f.sched.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.sched.Wait()

	job, _ := f.store.GetJob(ctx, jobs["item1"])
	if job == nil || !job.Done || job.Result != outcome.KindCanceled {
		t.Fatalf("job = %+v, want done canceled", job)
	}
	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	if len(f.notifier.failed) != 0 {
		t.Fatalf("cancellation produced failure notifications: %v", f.notifier.failed)
	}
}

func TestTranscodeSkipsFetchedItems(t *testing.T) {
	f := newFixture(t, 1)
	jobs := f.enqueue(t, "item1")
	ctx := context.Background()

	if err := f.store.SetItemFetched(ctx, "item1", true); err != nil {
		t.Fatalf("set fetched: %v", err)
	}
	if err := f.sched.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.sched.Wait()

	if f.fetch.runs() != 0 {
		t.Fatalf("fetch ran %d times for a fetched item", f.fetch.runs())
	}
	job, _ := f.store.GetJob(ctx, jobs["item1"])
	if !job.Done || job.Result != outcome.KindSuccess {
		t.Fatalf("job = %+v, want done success", job)
	}
}
