package loop

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vidpipe/decode"
	"github.com/gogpu/vidpipe/gpu"
	"github.com/gogpu/vidpipe/lifecycle"
	"github.com/gogpu/vidpipe/render"
	"github.com/gogpu/vidpipe/ui"
	"github.com/gogpu/vidpipe/vlog"
)

type fakeDevice struct {
	node *lifecycle.Node
	lost atomic.Bool
}

func (d *fakeDevice) Node() *lifecycle.Node { return d.node }
func (d *fakeDevice) Lost() bool            { return d.lost.Load() }

type fakeSwapchain struct {
	node *lifecycle.Node

	mu       sync.Mutex
	w, h     int
	state    gpu.SwapchainState
	acquired bool
	noImage  bool
	waits    [][2]int
	presents int
}

func (s *fakeSwapchain) Node() *lifecycle.Node { return s.node }

func (s *fakeSwapchain) WaitToRender(_ context.Context, w, h int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, [2]int{w, h})
	if s.state == gpu.StateLost || s.noImage {
		return false
	}
	s.w, s.h = w, h
	s.acquired = true
	return true
}

func (s *fakeSwapchain) Target() (hal.TextureView, int, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return nil, s.w, s.h, s.acquired
}

func (s *fakeSwapchain) Format() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }

func (s *fakeSwapchain) Present() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquired = false
	s.presents++
	return nil
}

func (s *fakeSwapchain) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w, s.h
}

func (s *fakeSwapchain) State() gpu.SwapchainState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *fakeSwapchain) lastWait() [2]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waits[len(s.waits)-1]
}

type call struct {
	kind     string
	seq      uint64
	w, h     int
	transfer int
	rng      int
}

type fakeRenderer struct {
	node *lifecycle.Node

	mu      sync.Mutex
	calls   []call
	fail    bool
	quality render.Quality
	aspect  render.Aspect
	// after runs once per call, after the call is recorded.
	after func()
}

func (r *fakeRenderer) Node() *lifecycle.Node { return r.node }

func (r *fakeRenderer) record(t render.Target, c call) bool {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	fail, after := r.fail, r.after
	r.mu.Unlock()
	if after != nil {
		after()
	}
	if fail {
		return false
	}
	return t.Present() == nil
}

func (r *fakeRenderer) RenderFrame(t render.Target, f *decode.Frame, w, h, transfer, rng int) bool {
	return r.record(t, call{kind: "frame", seq: f.Seq, w: w, h: h, transfer: transfer, rng: rng})
}

func (r *fakeRenderer) RenderFrameWithOverlay(t render.Target, f *decode.Frame, o render.Overlay, w, h, transfer, rng int) bool {
	o.DrawList(w, h)
	return r.record(t, call{kind: "overlay", seq: f.Seq, w: w, h: h, transfer: transfer, rng: rng})
}

func (r *fakeRenderer) RenderUIOnly(t render.Target, o render.Overlay, w, h int) bool {
	kind := "clear"
	if o != nil {
		o.DrawList(w, h)
		kind = "ui"
	}
	return r.record(t, call{kind: kind, w: w, h: h})
}

func (r *fakeRenderer) SetQualityPreset(q render.Quality) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quality = q
	return true
}

func (r *fakeRenderer) SetAspect(a render.Aspect) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aspect = a
	return true
}

func (r *fakeRenderer) snapshot() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

// fakeSource turns every packet into a frame and counts releases.
type fakeSource struct {
	node     *lifecycle.Node
	seq      atomic.Uint64
	released atomic.Int64
}

func (s *fakeSource) Node() *lifecycle.Node { return s.node }

func (s *fakeSource) DecodeNext(_ bool, _ int) *decode.Frame {
	f := decode.NewFrame(decode.FormatNV12, 64, 36, func() { s.released.Add(1) })
	f.Seq = s.seq.Add(1)
	return f
}

func (s *fakeSource) frame() *decode.Frame { return s.DecodeNext(true, 0) }

type fakeOverlay struct {
	node *lifecycle.Node

	mu      sync.Mutex
	state   ui.State
	updates int
	draws   int
}

func (o *fakeOverlay) Node() *lifecycle.Node { return o.node }

func (o *fakeOverlay) Update(s ui.State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.updates++
	changed := !s.Equal(o.state)
	o.state = s
	return changed
}

func (o *fakeOverlay) DrawList(int, int) []ui.DrawItem {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.draws++
	return nil
}

func (o *fakeOverlay) current() ui.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// recorder captures delivered log records.
type recorder struct {
	mu     sync.Mutex
	levels []vlog.Level
	msgs   []string
}

func (r *recorder) cb(level vlog.Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = append(r.levels, level)
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) count(level vlog.Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, l := range r.levels {
		if l == level {
			n++
		}
	}
	return n
}

type fixture struct {
	logger *vlog.Logger
	rec    *recorder
	dev    *fakeDevice
	sc     *fakeSwapchain
	r      *fakeRenderer
	src    *fakeSource
	ov     *fakeOverlay

	closeOnce sync.Once
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rec := &recorder{}
	logger := vlog.New(vlog.LevelInfo, rec.cb)
	g := logger.Node().Graph()
	add := func(kind string, deps ...*lifecycle.Node) *lifecycle.Node {
		n, err := g.Add(kind, deps...)
		if err != nil {
			t.Fatal(err)
		}
		return n
	}

	dev := &fakeDevice{node: add("device", logger.Node())}
	fx := &fixture{
		logger: logger,
		rec:    rec,
		dev:    dev,
		sc:     &fakeSwapchain{node: add("swapchain", dev.node), w: 1920, h: 1080, state: gpu.StateReady},
		r:      &fakeRenderer{node: add("renderer", dev.node)},
		src:    &fakeSource{node: add("decoder", logger.Node())},
		ov:     &fakeOverlay{node: add("overlay", dev.node)},
	}
	t.Cleanup(fx.close)
	return fx
}

// close tears the fake graph down and flushes the logger. Loops must be
// closed first.
func (fx *fixture) close() {
	fx.closeOnce.Do(func() {
		fx.ov.node.Release()
		fx.src.node.Release()
		fx.r.node.Release()
		fx.sc.node.Release()
		fx.dev.node.Release()
		fx.logger.Close()
	})
}

func (fx *fixture) config() Config {
	return Config{
		Device:    fx.dev,
		Swapchain: fx.sc,
		Renderer:  fx.r,
		Source:    fx.src,
		Overlay:   fx.ov,
		Range:     render.RangeCodeLimited,
	}
}

func (fx *fixture) loop(t *testing.T, cfg Config, opts ...Option) *Loop {
	t.Helper()
	l, err := New(fx.logger, cfg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(l.Close)
	return l
}

// packets yields n packets, a keyframe every 10, then io.EOF.
func packets(n int) PacketFunc {
	var i int
	return func(ctx context.Context) (int, bool, error) {
		if err := ctx.Err(); err != nil {
			return 0, false, err
		}
		if i == n {
			return 0, false, io.EOF
		}
		i++
		return 1, i%10 == 1, nil
	}
}
