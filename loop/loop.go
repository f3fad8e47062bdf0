package loop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/vidpipe/decode"
	"github.com/gogpu/vidpipe/gpu"
	"github.com/gogpu/vidpipe/lifecycle"
	"github.com/gogpu/vidpipe/render"
	"github.com/gogpu/vidpipe/ui"
	"github.com/gogpu/vidpipe/vlog"
)

// Device reports device health. *gpu.Device implements it.
type Device interface {
	lifecycle.Resource
	Lost() bool
}

// Swapchain is the presentation target. *gpu.Swapchain implements it.
type Swapchain interface {
	lifecycle.Resource
	render.Target
	WaitToRender(ctx context.Context, width, height int) bool
	Size() (width, height int)
	State() gpu.SwapchainState
}

// Renderer draws frames. *render.Renderer implements it.
type Renderer interface {
	lifecycle.Resource
	RenderFrame(t render.Target, f *decode.Frame, width, height, transfer, rng int) bool
	RenderFrameWithOverlay(t render.Target, f *decode.Frame, o render.Overlay, width, height, transfer, rng int) bool
	RenderUIOnly(t render.Target, o render.Overlay, width, height int) bool
	SetQualityPreset(q render.Quality) bool
	SetAspect(a render.Aspect) bool
}

// Overlay is the UI layer. *ui.Overlay implements it.
type Overlay interface {
	lifecycle.Resource
	render.Overlay
	Update(s ui.State) bool
}

// FrameSource decodes packets. *decode.Source implements it.
type FrameSource interface {
	lifecycle.Resource
	DecodeNext(keyframe bool, limit int) *decode.Frame
}

// PacketSource feeds Pump. Next writes the next packet into the input
// buffer the FrameSource was initialized with and returns its length.
// io.EOF ends the stream.
type PacketSource interface {
	Next(ctx context.Context) (n int, keyframe bool, err error)
}

// PacketFunc adapts a function to PacketSource.
type PacketFunc func(ctx context.Context) (n int, keyframe bool, err error)

// Next calls f.
func (f PacketFunc) Next(ctx context.Context) (int, bool, error) { return f(ctx) }

// Config names the resources a Loop drives.
type Config struct {
	Device    Device
	Swapchain Swapchain
	Renderer  Renderer
	// Source and Overlay are optional.
	Source  FrameSource
	Overlay Overlay

	// Width and Height are the initial render size. Zero uses the
	// swapchain's current size.
	Width, Height int
	// HDR selects the PQ transfer for video frames.
	HDR bool
	// Range is the stream's color range code (render.RangeCode*).
	Range int
}

// Stats reports loop counters.
type Stats struct {
	// Decoded counts frames handed over by the decode goroutine.
	Decoded uint64
	// Presented counts video frames rendered and presented.
	Presented uint64
	// UIFrames counts overlay-only frames drawn before the first video frame.
	UIFrames uint64
	// Dropped counts frames replaced in the mailbox before rendering.
	Dropped uint64
	// Skipped counts frames taken for rendering but not presented.
	Skipped uint64
	// Commands counts applied commands.
	Commands uint64
}

type command struct {
	name  string
	apply func(*Loop)
}

// Loop is the frame render loop. It owns no GPU objects.
//
// Run is the render goroutine and Pump the decode goroutine; every other
// method may be called from any goroutine. Commands are queued and applied
// by Run between frames.
type Loop struct {
	node *lifecycle.Node
	log  *slog.Logger
	opts options

	dev Device
	sc  Swapchain
	r   Renderer
	src FrameSource
	ov  Overlay

	status atomic.Int32
	ui     atomic.Pointer[ui.State]
	box    *mailbox
	wake   chan struct{}
	eos    atomic.Bool

	running atomic.Bool
	pumping atomic.Bool
	fatal   sync.Once

	mu      sync.Mutex
	pending []command
	closed  bool

	// Owned by the render goroutine.
	width, height int
	hdr           bool
	rng           int
	overlay       bool
	shown         bool

	decoded   atomic.Uint64
	presented atomic.Uint64
	uiFrames  atomic.Uint64
	skipped   atomic.Uint64
	applied   atomic.Uint64
}

// New creates a loop over the resources in cfg. The loop holds them until
// Close: none of them can be destroyed while it is open.
func New(logger *vlog.Logger, cfg Config, opts ...Option) (*Loop, error) {
	if cfg.Device == nil || cfg.Swapchain == nil || cfg.Renderer == nil {
		return nil, ErrIncomplete
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	graph := lifecycle.GraphOf(cfg.Device)
	if graph == nil {
		return nil, fmt.Errorf("loop: create: %w", lifecycle.ErrDependencyDestroyed)
	}
	deps := []*lifecycle.Node{logger.Node(), cfg.Device.Node(), cfg.Swapchain.Node(), cfg.Renderer.Node()}
	if cfg.Source != nil {
		deps = append(deps, cfg.Source.Node())
	}
	if cfg.Overlay != nil {
		deps = append(deps, cfg.Overlay.Node())
	}
	node, err := graph.Add("loop", deps...)
	if err != nil {
		return nil, fmt.Errorf("loop: create: %w", err)
	}

	w, h := cfg.Width, cfg.Height
	if w == 0 && h == 0 {
		w, h = cfg.Swapchain.Size()
	}
	l := &Loop{
		node:    node,
		log:     resourceLogger(logger, "loop"),
		opts:    o,
		dev:     cfg.Device,
		sc:      cfg.Swapchain,
		r:       cfg.Renderer,
		src:     cfg.Source,
		ov:      cfg.Overlay,
		box:     newMailbox(),
		wake:    make(chan struct{}, 1),
		width:   w,
		height:  h,
		hdr:     cfg.HDR,
		rng:     cfg.Range,
		overlay: o.overlay,
	}
	if cfg.Device.Lost() {
		l.status.Store(int32(gpu.StatusLost))
	}
	// The first pass draws the overlay before any video arrives.
	l.signal()
	l.log.Debug("loop created", "width", w, "height", h, "hdr", cfg.HDR, "overlay", o.overlay)
	return l, nil
}

// Node returns the loop's lifecycle node.
func (l *Loop) Node() *lifecycle.Node {
	if l == nil {
		return nil
	}
	return l.node
}

// Status returns the device status as last seen by the loop.
func (l *Loop) Status() gpu.Status { return gpu.Status(l.status.Load()) }

// Stats returns the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Decoded:   l.decoded.Load(),
		Presented: l.presented.Load(),
		UIFrames:  l.uiFrames.Load(),
		Dropped:   l.box.drops(),
		Skipped:   l.skipped.Load(),
		Commands:  l.applied.Load(),
	}
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) enqueue(name string, fn func(*Loop)) {
	l.mu.Lock()
	l.pending = append(l.pending, command{name: name, apply: fn})
	l.mu.Unlock()
	l.signal()
}

func (l *Loop) applyCommands() {
	l.mu.Lock()
	cmds := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, c := range cmds {
		c.apply(l)
		l.applied.Add(1)
		l.log.Debug("command applied", "cmd", c.name)
	}
}

// RequestResize queues a new render size. Sizes outside 1..gpu.MaxExtent
// are rejected.
func (l *Loop) RequestResize(width, height int) bool {
	if width <= 0 || height <= 0 || width > gpu.MaxExtent || height > gpu.MaxExtent {
		l.log.Error("invalid resize request", "width", width, "height", height)
		return false
	}
	l.enqueue("resize", func(l *Loop) { l.width, l.height = width, height })
	return true
}

// SetHDR queues a switch between the SDR and PQ transfer for video frames.
func (l *Loop) SetHDR(on bool) {
	l.enqueue("hdr", func(l *Loop) { l.hdr = on })
}

// SetQualityPreset queues a quality change. Unknown presets are rejected.
func (l *Loop) SetQualityPreset(q render.Quality) bool {
	if !q.Valid() {
		l.log.Error("unknown quality preset", "value", int(q))
		return false
	}
	l.enqueue("quality", func(l *Loop) { l.r.SetQualityPreset(q) })
	return true
}

// SetAspect queues an aspect policy change. Unknown policies are rejected.
func (l *Loop) SetAspect(a render.Aspect) bool {
	if !a.Valid() {
		l.log.Error("unknown rendering format", "value", int(a))
		return false
	}
	l.enqueue("aspect", func(l *Loop) { l.r.SetAspect(a) })
	return true
}

// SetOverlayEnabled queues showing or hiding the overlay.
func (l *Loop) SetOverlayEnabled(on bool) {
	l.enqueue("overlay", func(l *Loop) { l.overlay = on })
}

// SetUIState publishes s as the overlay state for the next frame. Only the
// latest state is kept.
func (l *Loop) SetUIState(s ui.State) {
	l.ui.Store(&s)
	l.signal()
}

// UIState returns the last published state.
func (l *Loop) UIState() (ui.State, bool) {
	s := l.ui.Load()
	if s == nil {
		return ui.State{}, false
	}
	return *s, true
}

// Run drives the render goroutine until ctx is done, the device is lost or
// the packet stream ended and its last frame was drawn. It returns
// ErrDeviceLost after loss; nothing is drawn from then on.
func (l *Loop) Run(ctx context.Context) error {
	if l.isClosed() {
		return ErrClosed
	}
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)
	defer l.box.drain()

	for {
		l.applyCommands()
		if l.lost() {
			return l.stop()
		}
		if l.eos.Load() && !l.box.pending() {
			l.log.Debug("stream ended", "presented", l.presented.Load())
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.box.ready:
		case <-l.wake:
		}

		l.applyCommands()
		if l.lost() {
			return l.stop()
		}
		l.renderOnce(ctx, l.box.take())
	}
}

// renderOnce draws f, or the overlay alone while no video has been shown.
// It always releases f.
func (l *Loop) renderOnce(ctx context.Context, f *decode.Frame) {
	defer f.Release()
	if f == nil && l.shown {
		return
	}

	wctx, cancel := context.WithTimeout(ctx, l.opts.waitTimeout)
	ok := l.sc.WaitToRender(wctx, l.width, l.height)
	cancel()
	if !ok {
		if f != nil {
			l.skipped.Add(1)
		}
		l.log.Debug("frame skipped", "err", "no surface image", "width", l.width, "height", l.height)
		return
	}

	var ov Overlay
	if l.overlay && l.ov != nil {
		if s := l.ui.Load(); s != nil {
			l.ov.Update(*s)
		}
		ov = l.ov
	}

	transfer := render.TransferForHDR(l.hdr)
	switch {
	case f == nil:
		var o render.Overlay
		if ov != nil {
			o = ov
		}
		if l.r.RenderUIOnly(l.sc, o, l.width, l.height) {
			l.uiFrames.Add(1)
		}
		return
	case ov != nil:
		ok = l.r.RenderFrameWithOverlay(l.sc, f, ov, l.width, l.height, transfer, l.rng)
	default:
		ok = l.r.RenderFrame(l.sc, f, l.width, l.height, transfer, l.rng)
	}
	if !ok {
		l.skipped.Add(1)
		return
	}
	l.presented.Add(1)
	l.shown = true
}

func (l *Loop) lost() bool {
	if l.Status() == gpu.StatusLost {
		return true
	}
	if l.dev.Lost() || l.sc.State() == gpu.StateLost {
		l.status.Store(int32(gpu.StatusLost))
		return true
	}
	return false
}

func (l *Loop) stop() error {
	l.fatal.Do(func() {
		l.log.Log(context.Background(), vlog.SlogLevelFatal, "device lost, rendering stopped",
			"swapchain", l.sc.State().String(),
			"presented", l.presented.Load())
	})
	return ErrDeviceLost
}

// Pump drives the decode goroutine: it reads packets from src, decodes
// them and hands frames to Run. It returns nil at the end of the stream,
// ErrDeviceLost once the device is lost, or the first packet error.
func (l *Loop) Pump(ctx context.Context, src PacketSource) error {
	if l.src == nil {
		return ErrNoSource
	}
	if l.isClosed() {
		return ErrClosed
	}
	if !l.pumping.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.pumping.Store(false)
	l.eos.Store(false)

	for {
		if l.Status() == gpu.StatusLost || l.dev.Lost() {
			return ErrDeviceLost
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		n, key, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			l.log.Debug("end of stream", "decoded", l.decoded.Load())
			l.eos.Store(true)
			l.signal()
			return nil
		}
		if err != nil {
			return fmt.Errorf("loop: next packet: %w", err)
		}
		if f := l.src.DecodeNext(key, n); f != nil {
			l.decoded.Add(1)
			l.box.put(f)
		}
	}
}

// RunPipeline runs Pump and Run together and returns when both are done.
// The first error stops the other goroutine.
func (l *Loop) RunPipeline(ctx context.Context, src PacketSource) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.Pump(ctx, src) })
	g.Go(func() error { return l.Run(ctx) })
	return g.Wait()
}

func (l *Loop) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close releases a pending frame and the loop's hold on its resources.
// It must not be called while Run or Pump is active. Close is idempotent.
func (l *Loop) Close() {
	if l == nil {
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.pending = nil
	l.mu.Unlock()

	l.box.drain()
	l.node.Release()
	l.log.Debug("loop closed", "presented", l.presented.Load())
}
