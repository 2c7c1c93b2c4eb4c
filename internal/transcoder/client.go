package transcoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"spool/internal/bus"
	"spool/internal/config"
	"spool/internal/fetcher"
	"spool/internal/logging"
	"spool/internal/outcome"
	"spool/internal/procrun"
	"spool/internal/progress"
	"spool/internal/queue"
)

var errorTokenRE = regexp.MustCompile(`\bERROR\b`)

var conversionMarkers = []string{
	"Invalid data found when processing input",
	"could not find codec parameters",
	"Conversion failed",
	"Decoder not found",
	"Unsupported codec",
}

// Client runs the transcode stage for claimed jobs.
type Client struct {
	cfg      *config.Config
	store    *queue.Store
	bus      *bus.Bus
	registry *procrun.Registry
	logger   *slog.Logger
}

// New creates a transcode client sharing the scheduler's cancellation
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
		logger:   logger.With(logging.String(logging.FieldComponent, "transcoder")),
	}
}

// Run converts the item's fetched audio and reports the stage outcome as
// a kind value.
func (c *Client) Run(ctx context.Context, item *queue.Item, jobID int64, workDir string) outcome.Kind {
	log := c.logger.With(
		logging.Int64(logging.FieldJobID, jobID),
		logging.String(logging.FieldItemID, item.ID))

	input, err := c.audioInput(ctx, item.ID)
	if err != nil {
		log.Error("no transcode input", logging.Error(err))
		return outcome.KindConversionError
	}
	output := filepath.Join(c.cfg.Paths.LibraryDir, fetcher.SafeName(item.Title)+".m4b")
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		log.Error("library directory unavailable", logging.Error(err))
		return outcome.KindUnknown
	}

	entry := c.registry.Register(item.ID)
	defer c.registry.Remove(item.ID)

	correlationID := bus.NewCorrelationID()
	channel := bus.JobChannel(jobID)
	runtime := time.Duration(item.RuntimeSec) * time.Second

	// Both output streams feed this consumer from separate goroutines.
	var progressMu sync.Mutex
	var lastFraction float64 = -1

	consume := func(line string) {
		if update, ok := progress.ParseTranscodeLine(line, runtime); ok {
			progressMu.Lock()
			defer progressMu.Unlock()
			if update.Fraction-lastFraction < 0.001 {
				return
			}
			lastFraction = update.Fraction
			if err := c.store.SetTranscodeProgress(ctx, jobID, update.Fraction); err != nil {
				log.Warn("progress update failed", logging.Error(err))
			}
			c.bus.Publish(channel, correlationID, bus.EventTranscodeProgress, map[string]any{
				"jobId":    jobID,
				"fraction": update.Fraction,
				"elapsed":  update.Elapsed.Seconds(),
			})
			return
		}
		if kind, terminal := classifyLine(line); terminal {
			log.Warn("terminal marker in transcode output",
				logging.String(logging.FieldResultKind, string(kind)),
				logging.String("line", line))
			entry.RecordFailure(kind)
		}
	}

	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if c.cfg.Transcoder.TimeoutSeconds > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.Transcoder.TimeoutSeconds)*time.Second)
	}
	defer cancel()

	handle, err := procrun.Start(runCtx, procrun.Spec{
		Binary:   c.cfg.Transcoder.Binary,
		Args:     c.buildArgs(input, output),
		Dir:      workDir,
		OnStdout: consume,
		OnStderr: consume,
	})
	if err != nil {
		log.Error("transcode tool failed to start", logging.Error(err))
		return outcome.KindUnknown
	}
	c.registry.Attach(item.ID, handle)

	if waitErr := handle.WaitContext(runCtx); waitErr != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			entry.RecordFailure(outcome.KindTimeout)
		}
		log.Debug("transcode tool exited with error", logging.Error(waitErr))
	}

	kind, found := c.registry.Resolve(item.ID)
	if !found {
		return outcome.KindUnknown
	}
	if kind != outcome.KindSuccess {
		return kind
	}

	if info, statErr := os.Stat(output); statErr != nil || info.Size() == 0 {
		log.Error("transcode produced no output", logging.String("path", output))
		return outcome.KindConversionError
	}
	if err := c.store.AddAttachment(ctx, &queue.Attachment{
		ItemID: item.ID,
		Path:   output,
		Kind:   queue.AttachmentAudio,
	}); err != nil {
		log.Error("output registration failed", logging.Error(err))
		return outcome.KindUnknown
	}
	if err := c.store.SetItemTranscoded(ctx, item.ID, true); err != nil {
		log.Error("item transcoded flag update failed", logging.Error(err))
		return outcome.KindUnknown
	}
	log.Info("transcode complete", logging.String("output", output))
	return outcome.KindSuccess
}

// Cancel requests termination of the item's running transcode, if any.
func (c *Client) Cancel(itemID string) bool {
	return c.registry.Cancel(itemID)
}

func (c *Client) audioInput(ctx context.Context, itemID string) (string, error) {
	attachments, err := c.store.ListAttachments(ctx, itemID)
	if err != nil {
		return "", err
	}
	for _, att := range attachments {
		if att.Kind == queue.AttachmentAudio {
			return att.Path, nil
		}
	}
	return "", fmt.Errorf("item %s has no registered audio attachment", itemID)
}

func (c *Client) buildArgs(input, output string) []string {
	return []string{
		"-hide_banner", "-nostdin",
		"-i", input,
		"-vn",
		"-c:a", "aac",
		"-b:a", c.cfg.Transcoder.AudioBitrate,
		"-movflags", "+faststart",
		"-y", output,
	}
}

func classifyLine(line string) (outcome.Kind, bool) {
	for _, marker := range conversionMarkers {
		if strings.Contains(line, marker) {
			return outcome.KindConversionError, true
		}
	}
	if errorTokenRE.MatchString(line) {
		return outcome.KindConversionError, true
	}
	return "", false
}
