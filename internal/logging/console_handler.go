package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const consoleTimeFormat = "15:04:05"

// consoleHandler renders compact single-line output for interactive use.
// Identity fields (component, stage, job) lead the line; remaining attrs
// trail as key=value pairs.
type consoleHandler struct {
	mu    *sync.Mutex
	out   io.Writer
	level slog.Level
	color bool
	attrs []slog.Attr
}

func newConsoleHandler(out io.Writer, level slog.Level, color bool) *consoleHandler {
	return &consoleHandler{
		mu:    &sync.Mutex{},
		out:   out,
		level: level,
		color: color,
	}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	var sb strings.Builder

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	sb.WriteString(ts.Format(consoleTimeFormat))
	sb.WriteByte(' ')
	sb.WriteString(h.levelTag(record.Level))
	sb.WriteByte(' ')

	identity, rest := h.splitAttrs(record)
	if identity != "" {
		sb.WriteString(identity)
		sb.WriteByte(' ')
	}
	sb.WriteString(record.Message)
	for _, attr := range rest {
		sb.WriteByte(' ')
		sb.WriteString(attr.Key)
		sb.WriteByte('=')
		sb.WriteString(attrValue(attr.Value))
	}
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, sb.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	clone := *h
	clone.attrs = merged
	return &clone
}

func (h *consoleHandler) WithGroup(string) slog.Handler { return h }

func (h *consoleHandler) splitAttrs(record slog.Record) (string, []slog.Attr) {
	var component, stage string
	var jobID int64
	var rest []slog.Attr

	consume := func(attr slog.Attr) {
		switch attr.Key {
		case FieldComponent:
			component = attrValue(attr.Value)
		case FieldStage:
			stage = attrValue(attr.Value)
		case FieldJobID:
			jobID = attr.Value.Int64()
		default:
			rest = append(rest, attr)
		}
	}
	for _, attr := range h.attrs {
		consume(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		consume(attr)
		return true
	})

	parts := make([]string, 0, 3)
	if component != "" {
		parts = append(parts, component)
	}
	if stage != "" {
		parts = append(parts, stage)
	}
	if jobID != 0 {
		parts = append(parts, fmt.Sprintf("job:%d", jobID))
	}
	if len(parts) == 0 {
		return "", rest
	}
	return "[" + strings.Join(parts, " ") + "]", rest
}

func (h *consoleHandler) levelTag(level slog.Level) string {
	tag := strings.ToUpper(level.String())
	if !h.color {
		return tag
	}
	switch {
	case level >= slog.LevelError:
		return "\x1b[31m" + tag + "\x1b[0m"
	case level >= slog.LevelWarn:
		return "\x1b[33m" + tag + "\x1b[0m"
	case level <= slog.LevelDebug:
		return "\x1b[2m" + tag + "\x1b[0m"
	default:
		return "\x1b[36m" + tag + "\x1b[0m"
	}
}

func attrValue(v slog.Value) string {
	resolved := v.Resolve()
	text := resolved.String()
	if strings.ContainsAny(text, " \t") {
		return fmt.Sprintf("%q", text)
	}
	return text
}
