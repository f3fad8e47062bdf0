package loop

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/vidpipe/vlog"
)

// nopHandler silently discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// loggerPtr stores the package logger. Accessed atomically for thread safety.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// slogger returns the current package logger.
func slogger() *slog.Logger { return loggerPtr.Load() }

// SetLogger updates the package-level logger used when a resource was
// created without a vlog.Logger. Pass nil to restore silent behavior.
// vidpipe.SetLogger calls this for every sub-package.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// resourceLogger picks the per-resource sink when one was supplied.
func resourceLogger(l *vlog.Logger, component string) *slog.Logger {
	if l == nil {
		return slogger().With("component", component)
	}
	return l.Slog().With("component", component)
}
