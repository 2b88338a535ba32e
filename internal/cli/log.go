package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates a new logger with timestamp formatting.
// The logger writes to w and filters messages at the specified level.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
// It is safe for sequential use by a single goroutine; concurrent calls to done will race.
type progress struct {
	logger *log.Logger
	start  time.Time
}

// newProgress creates a progress tracker that captures the current time as start.
func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time since progress was created.
// Example output: "Built demo_cu12-1.0-py3-none-any.whl (1.234s)"
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

// logHooks reports dispatcher, transaction and probe events at debug level.
type logHooks struct {
	logger *log.Logger
}

func (h *logHooks) OnHookStart(_ context.Context, hook string) {
	h.logger.Debug("hook start", "hook", hook)
}

func (h *logHooks) OnHookComplete(_ context.Context, hook string, d time.Duration, err error) {
	if err != nil {
		h.logger.Debug("hook failed", "hook", hook, "duration", d.Round(time.Millisecond), "err", err)
		return
	}
	h.logger.Debug("hook done", "hook", hook, "duration", d.Round(time.Millisecond))
}

func (h *logHooks) OnBackendCall(_ context.Context, backend, hook string, d time.Duration, err error) {
	h.logger.Debug("backend call", "backend", backend, "hook", hook, "duration", d.Round(time.Millisecond), "err", err)
}

func (h *logHooks) OnBackup(_ context.Context, path string) {
	h.logger.Debug("backed up", "path", path)
}

func (h *logHooks) OnRestore(_ context.Context, path string, err error) {
	if err != nil {
		h.logger.Warn("restore failed", "path", path, "err", err)
		return
	}
	h.logger.Debug("restored", "path", path)
}

func (h *logHooks) OnProbe(_ context.Context, tool string, d time.Duration, err error) {
	h.logger.Debug("probe", "tool", tool, "duration", d.Round(time.Millisecond), "err", err)
}
