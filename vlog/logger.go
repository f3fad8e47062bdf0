// Package vlog implements the pipeline's diagnostic sink.
//
// A Logger filters records by a minimum Level and hands (level, message)
// pairs to a caller-supplied Callback. Callbacks run on a single delivery
// goroutine owned by the Logger, in the order records were emitted, so they
// may be invoked from any goroutine's logging without synchronizing with it.
//
// The Logger is also a slog.Handler: components log through Slog() with
// ordinary slog calls, and hosts built on logr can use Logr().
package vlog

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-logr/logr"

	"github.com/gogpu/vidpipe/lifecycle"
)

// Callback receives delivered records.
type Callback func(level Level, msg string)

type record struct {
	level Level
	msg   string
}

// queueSize bounds the records buffered ahead of the callback.
const queueSize = 256

// Logger is a level-filtered callback sink.
type Logger struct {
	min Level
	cb  Callback

	mu     sync.RWMutex
	closed bool
	queue  chan record
	done   chan struct{}

	slog *slog.Logger
	node *lifecycle.Node
}

// Option configures a Logger.
type Option func(*options)

type options struct {
	graph *lifecycle.Graph
}

// WithGraph registers the logger in g instead of a fresh graph. Resources
// created from the logger join the same graph.
func WithGraph(g *lifecycle.Graph) Option {
	return func(o *options) { o.graph = g }
}

// New creates a logger delivering records at or above min to cb.
// A nil cb or LevelNone yields a logger that discards everything.
//
// The logger is the root of a resource graph: it must be closed after every
// resource created from it.
func New(min Level, cb Callback, opts ...Option) *Logger {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.graph == nil {
		o.graph = lifecycle.NewGraph()
	}
	node, err := o.graph.Add("logger")
	if err != nil {
		// Add only fails for released dependencies and a logger has none.
		panic(err)
	}

	l := &Logger{
		min:   ParseLevel(int(min)),
		cb:    cb,
		queue: make(chan record, queueSize),
		done:  make(chan struct{}),
		node:  node,
	}
	l.slog = slog.New(&handler{l: l})
	go l.deliver()
	return l
}

// Node returns the logger's lifecycle node.
func (l *Logger) Node() *lifecycle.Node {
	if l == nil {
		return nil
	}
	return l.node
}

func (l *Logger) deliver() {
	defer close(l.done)
	for r := range l.queue {
		l.cb(r.level, r.msg)
	}
}

// MinLevel returns the configured threshold.
func (l *Logger) MinLevel() Level { return l.min }

// Enabled reports whether records of level would be delivered.
func (l *Logger) Enabled(level Level) bool {
	if l == nil || l.cb == nil || l.min == LevelNone || level == LevelNone {
		return false
	}
	return level <= l.min
}

// Log emits msg at level.
func (l *Logger) Log(level Level, msg string) {
	if !l.Enabled(level) {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	l.queue <- record{level: level, msg: msg}
}

// Slog returns a slog.Logger writing into this sink.
func (l *Logger) Slog() *slog.Logger { return l.slog }

// Handler returns the slog.Handler backing Slog.
func (l *Logger) Handler() slog.Handler { return l.slog.Handler() }

// Logr returns a logr.Logger writing into this sink.
func (l *Logger) Logr() logr.Logger { return logr.FromSlogHandler(l.Handler()) }

// Close stops accepting records and waits until every queued record has
// reached the callback. Close is idempotent. Closing a logger that live
// resources still depend on panics with *lifecycle.OrderError.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.node.Release()
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()
	<-l.done
}

// handler adapts Logger to slog.Handler.
type handler struct {
	l      *Logger
	attrs  []slog.Attr
	groups []string
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return h.l.Enabled(FromSlog(level))
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	prefix := strings.Join(h.groups, ".")
	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, prefix, a)
		return true
	})
	h.l.Log(FromSlog(r.Level), b.String())
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	prefix := strings.Join(h.groups, ".")
	qualified := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	qualified = append(qualified, h.attrs...)
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		qualified = append(qualified, a)
	}
	return &handler{l: h.l, attrs: qualified, groups: h.groups}
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := append(append([]string(nil), h.groups...), name)
	return &handler{l: h.l, attrs: h.attrs, groups: groups}
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := a.Key
		if prefix != "" && p != "" {
			p = prefix + "." + p
		} else if p == "" {
			p = prefix
		}
		for _, ga := range a.Value.Group() {
			writeAttr(b, p, ga)
		}
		return
	}
	b.WriteByte(' ')
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteByte('.')
	}
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(a.Value.String())
}
