package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"spool/internal/config"
	"spool/internal/outcome"
)

const userAgent = "Spool/0.1.0"

// Service defines the notification surface exposed to the scheduler and
// the CLI.
type Service interface {
	NotifyJobCompleted(ctx context.Context, title string) error
	NotifyJobFailed(ctx context.Context, title string, kind outcome.Kind) error
	NotifyQueueCompleted(ctx context.Context, processed int, duration time.Duration) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when a topic
// is configured, and a noop otherwise.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		cfg:      cfg,
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	cfg      *config.Config
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, title string) error {
	if !n.cfg.Notifications.JobCompleted {
		return nil
	}
	data := payload{
		title:   "Spool - Ready",
		message: fmt.Sprintf("Ready to listen: %s", strings.TrimSpace(title)),
		tags:    []string{"spool", "job", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, title string, kind outcome.Kind) error {
	if !n.cfg.Notifications.JobFailed {
		return nil
	}
	data := payload{
		title:    "Spool - Job Failed",
		message:  fmt.Sprintf("Failed: %s (%s)", strings.TrimSpace(title), kind),
		tags:     []string{"spool", "job", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueCompleted(ctx context.Context, processed int, duration time.Duration) error {
	if !n.cfg.Notifications.QueueCompleted {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	data := payload{
		title:   "Spool - Queue Complete",
		message: fmt.Sprintf("Queue drained: %d jobs processed in %s", processed, duration),
		tags:    []string{"spool", "queue", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Spool - Test",
		message:  "Notification system test",
		tags:     []string{"spool", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobCompleted(context.Context, string) error { return nil }
func (noopService) NotifyJobFailed(context.Context, string, outcome.Kind) error {
	return nil
}
func (noopService) NotifyQueueCompleted(context.Context, int, time.Duration) error { return nil }
func (noopService) TestNotification(context.Context) error                         { return nil }
