package vidpipe

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vidpipe/decode"
	"github.com/gogpu/vidpipe/gpu"
	"github.com/gogpu/vidpipe/loop"
	"github.com/gogpu/vidpipe/render"
	"github.com/gogpu/vidpipe/shadercache"
	"github.com/gogpu/vidpipe/ui"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// subLoggers receive every logger passed to SetLogger.
var subLoggers = []func(*slog.Logger){
	gpu.SetLogger,
	render.SetLogger,
	decode.SetLogger,
	ui.SetLogger,
	loop.SetLogger,
	shadercache.SetLogger,
	hal.SetLogger,
}

// SetLogger configures the library-wide logger for vidpipe, its
// sub-packages and the HAL. By default nothing is logged.
//
// The library-wide logger only receives records from code that runs
// without a resource logger (package helpers, resources created with a nil
// *vlog.Logger). Resources created from a vlog.Logger log through it.
//
// SetLogger is safe for concurrent use. Pass nil to restore the default
// silent behavior.
//
// Log levels used by vidpipe:
//   - [slog.LevelDebug]: pipeline detail (buffer uploads, state transitions)
//   - [slog.LevelInfo]: lifecycle events (adapter selected, swapchain configured)
//   - [slog.LevelWarn]: degradations (cold shader cache, software fallback)
//   - [slog.LevelError]: invalid requests from the caller
//
// Example:
//
//	vidpipe.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	for _, set := range subLoggers {
		set(l)
	}
}

// Logger returns the current library-wide logger.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
