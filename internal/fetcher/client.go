package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"spool/internal/bus"
	"spool/internal/config"
	"spool/internal/logging"
	"spool/internal/outcome"
	"spool/internal/procrun"
	"spool/internal/progress"
	"spool/internal/queue"
)

// Client runs the fetch stage for claimed jobs.
type Client struct {
	cfg      *config.Config
	store    *queue.Store
	bus      *bus.Bus
	registry *procrun.Registry
	logger   *slog.Logger
}

// New creates a fetch client sharing the scheduler's cancellation
// registry.
func New(cfg *config.Config, store *queue.Store, eventBus *bus.Bus, registry *procrun.Registry, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		cfg:      cfg,
		store:    store,
		bus:      eventBus,
		registry: registry,
		logger:   logger.With(logging.String(logging.FieldComponent, "fetcher")),
	}
}

// Run fetches the item into workDir and reports the stage outcome as a
// kind value. Expected failures never surface as errors.
func (c *Client) Run(ctx context.Context, item *queue.Item, jobID int64, workDir string) outcome.Kind {
	log := c.logger.With(
		logging.Int64(logging.FieldJobID, jobID),
		logging.String(logging.FieldItemID, item.ID))

	account, err := c.store.GetAccount(ctx, item.AccountID)
	if err != nil {
		log.Error("account lookup failed", logging.Error(err))
		return outcome.KindUnknown
	}
	if account == nil || !account.CredentialPresent {
		return outcome.KindNoCredential
	}

	entry := c.registry.Register(item.ID)
	defer c.registry.Remove(item.ID)

	correlationID := bus.NewCorrelationID()
	channel := bus.JobChannel(jobID)

	// Both output streams feed this consumer from separate goroutines.
	var progressMu sync.Mutex
	lastPercent := -1

	consume := func(line string) {
		if update, ok := progress.ParseFetchLine(line); ok {
			progressMu.Lock()
			defer progressMu.Unlock()
			if update.Percent == lastPercent {
				return
			}
			lastPercent = update.Percent
			if err := c.store.SetFetchProgress(ctx, jobID, update.Fraction, update.DownloadedBytes, update.TotalBytes, update.SpeedBytesPerSec); err != nil {
				log.Warn("progress update failed", logging.Error(err))
			}
			c.bus.Publish(channel, correlationID, bus.EventFetchProgress, map[string]any{
				"jobId":      jobID,
				"fraction":   update.Fraction,
				"percent":    update.Percent,
				"downloaded": update.DownloadedBytes,
				"total":      update.TotalBytes,
				"speed":      update.SpeedBytesPerSec,
			})
			return
		}
		if kind, terminal := classifyLine(line); terminal {
			log.Warn("terminal marker in fetch output",
				logging.String(logging.FieldResultKind, string(kind)),
				logging.String("line", line))
			entry.RecordFailure(kind)
		}
	}

	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if c.cfg.Fetcher.TimeoutSeconds > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.Fetcher.TimeoutSeconds)*time.Second)
	}
	defer cancel()

	handle, err := procrun.Start(runCtx, procrun.Spec{
		Binary:   c.cfg.Fetcher.Binary,
		Args:     c.buildArgs(account, item, workDir),
		Dir:      workDir,
		OnStdout: consume,
		OnStderr: consume,
	})
	if err != nil {
		log.Error("fetch tool failed to start", logging.Error(err))
		return outcome.KindUnknown
	}
	c.registry.Attach(item.ID, handle)

	if waitErr := handle.WaitContext(runCtx); waitErr != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			entry.RecordFailure(outcome.KindTimeout)
		}
		log.Debug("fetch tool exited with error", logging.Error(waitErr))
	}

	kind, found := c.registry.Resolve(item.ID)
	if !found {
		return outcome.KindUnknown
	}
	if kind != outcome.KindSuccess {
		return kind
	}

	if err := c.registerArtifacts(ctx, item, workDir); err != nil {
		log.Error("artifact registration failed", logging.Error(err))
		return outcome.KindUnknownState
	}
	if err := c.store.SetItemFetched(ctx, item.ID, true); err != nil {
		log.Error("item fetched flag update failed", logging.Error(err))
		return outcome.KindUnknown
	}
	log.Info("fetch complete", logging.String(logging.FieldAccountID, account.ID))
	return outcome.KindSuccess
}

// Cancel requests termination of the item's running fetch, if any.
func (c *Client) Cancel(itemID string) bool {
	return c.registry.Cancel(itemID)
}

func (c *Client) buildArgs(account *queue.Account, item *queue.Item, workDir string) []string {
	return []string{
		"--profile", account.ID,
		"download",
		"--asin", item.ID,
		"--output-dir", workDir,
		"--filename", SafeName(item.Title),
		"--cover", "--cover-size", strconv.Itoa(c.cfg.Fetcher.CoverSize),
		"--chapters",
		"--pdf",
		"--aax-fallback",
	}
}
