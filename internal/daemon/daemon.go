package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"spool/internal/authflow"
	"spool/internal/bus"
	"spool/internal/config"
	"spool/internal/deps"
	"spool/internal/fetcher"
	"spool/internal/httpapi"
	"spool/internal/logging"
	"spool/internal/notifications"
	"spool/internal/procrun"
	"spool/internal/queue"
	"spool/internal/scheduler"
	"spool/internal/transcoder"
)

// Daemon owns the background services and their shared resources.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *queue.Store
	bus      *bus.Bus
	registry *procrun.Registry
	sched    *scheduler.Scheduler
	auth     *authflow.Machine
	api      *httpapi.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	apiDone chan error
}

// New wires the full service graph from configuration. The caller owns
// Close.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare directories: %w", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	eventBus := bus.New(logger)
	registry := procrun.NewRegistry()
	fetch := fetcher.New(cfg, store, eventBus, registry, logger)
	transcode := transcoder.New(cfg, store, eventBus, registry, logger)
	notifier := notifications.NewBridge(notifications.NewService(cfg), logger)
	sched := scheduler.New(cfg, store, eventBus, registry, fetch, transcode, notifier, logger)
	auth := authflow.New(cfg, store, eventBus, logger)
	api := httpapi.New(cfg, store, eventBus, sched, auth, logger)

	lockPath := filepath.Join(cfg.Paths.LogDir, "spoold.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:    store,
		bus:      eventBus,
		registry: registry,
		sched:    sched,
		auth:     auth,
		api:      api,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, recovers interrupted jobs, and
// launches the scheduler and the API listener.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another spool daemon instance is already running")
	}

	for _, status := range deps.Missing(deps.Check(deps.FromConfig(d.cfg))) {
		d.logger.Warn("external tool unavailable",
			logging.String("tool", status.Name),
			logging.String("detail", status.Detail))
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.sched.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start scheduler: %w", err)
	}

	d.apiDone = make(chan error, 1)
	go func() { d.apiDone <- d.api.Start(d.ctx) }()

	d.running.Store(true)
	d.logger.Info("spool daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Wait blocks until the API listener exits, which happens when the
// start context ends or the listener fails.
func (d *Daemon) Wait() error {
	if d.apiDone == nil {
		return nil
	}
	return <-d.apiDone
}

// Stop halts background processing and releases the instance lock.
// In-flight jobs are allowed to finish.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.sched.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.auth.Cancel()
	d.sched.Wait()
	if d.apiDone != nil {
		<-d.apiDone
		d.apiDone = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("spool daemon stopped")
}

// Close stops the daemon and releases the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start has completed without a matching Stop.
func (d *Daemon) Running() bool { return d.running.Load() }

// Store exposes the queue store for maintenance commands.
func (d *Daemon) Store() *queue.Store { return d.store }

// Scheduler exposes the scheduler for control surfaces.
func (d *Daemon) Scheduler() *scheduler.Scheduler { return d.sched }
