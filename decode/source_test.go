package decode_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/vidpipe/decode"
	"github.com/gogpu/vidpipe/decode/synthetic"
	"github.com/gogpu/vidpipe/lifecycle"
	"github.com/gogpu/vidpipe/vlog"
)

type hwContext struct {
	node *lifecycle.Node
}

func (h *hwContext) Node() *lifecycle.Node  { return h.node }
func (h *hwContext) HALDevice() hal.Device { return &noop.Device{} }
func (h *hwContext) HALQueue() hal.Queue   { return &noop.Queue{} }

type counter struct {
	first atomic.Int32
	idr   atomic.Int32
}

func (c *counter) OnFirstFrameDecoded() { c.first.Add(1) }
func (c *counter) OnIDRFrameNeeded()    { c.idr.Add(1) }

type fixture struct {
	logger *vlog.Logger
	reg    *decode.Registry
	src    *decode.Source
	buf    []byte
	events *counter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		logger: vlog.New(vlog.LevelWarn, nil),
		reg:    decode.NewRegistry(),
		buf:    make([]byte, 64),
		events: &counter{},
	}
	synthetic.Register(fx.reg)
	src, err := decode.NewSource(fx.logger, decode.WithRegistry(fx.reg))
	if err != nil {
		t.Fatal(err)
	}
	fx.src = src
	return fx
}

func (fx *fixture) config() decode.Config {
	return decode.Config{
		Input:    fx.buf,
		Listener: fx.events,
		Codec:    decode.CodecHEVC,
		Width:    64,
		Height:   36,
		CPUCount: 4,
	}
}

func (fx *fixture) frame(seq uint32, key bool) *decode.Frame {
	return fx.src.DecodeNext(key, synthetic.Encode(fx.buf, seq))
}

func (fx *fixture) close(t *testing.T) {
	t.Helper()
	g := fx.logger.Node().Graph()
	fx.src.Destroy()
	fx.src.Destroy()
	fx.logger.Close()
	if g.Live() != 0 {
		t.Errorf("Live() = %d", g.Live())
	}
}

func TestDecodeBeforeInitializePanics(t *testing.T) {
	fx := newFixture(t)
	defer fx.close(t)
	defer func() {
		if r := recover(); r != decode.ErrNotInitialized {
			t.Errorf("recover() = %v, want ErrNotInitialized", r)
		}
	}()
	fx.src.DecodeNext(true, 0)
}

func TestDecodeAfterDisposePanics(t *testing.T) {
	fx := newFixture(t)
	defer fx.close(t)
	if !fx.src.Initialize(fx.config()) {
		t.Fatal("Initialize() = false")
	}
	fx.src.Dispose()
	fx.src.Dispose()
	if fx.src.State() != decode.StateDisposed {
		t.Fatalf("State() = %v", fx.src.State())
	}
	defer func() {
		if r := recover(); r != decode.ErrNotInitialized {
			t.Errorf("recover() = %v", r)
		}
	}()
	fx.frame(1, true)
}

func TestFirstFrameOncePerCycle(t *testing.T) {
	fx := newFixture(t)
	defer fx.close(t)

	for cycle := 1; cycle <= 3; cycle++ {
		if !fx.src.Initialize(fx.config()) {
			t.Fatal("Initialize() = false")
		}
		if fx.src.State() != decode.StateInitialized {
			t.Errorf("State() = %v", fx.src.State())
		}
		for i := range 5 {
			f := fx.frame(uint32(i), i == 0)
			if f == nil {
				t.Fatalf("cycle %d frame %d: nil", cycle, i)
			}
			f.Release()
		}
		fx.src.FlushEvents()
		if got := fx.events.first.Load(); got != int32(cycle) {
			t.Errorf("after cycle %d first-frame events = %d", cycle, got)
		}
	}
}

func TestNoOutputBeforeKeyframe(t *testing.T) {
	fx := newFixture(t)
	defer fx.close(t)
	cfg := fx.config()
	cfg.IDRThreshold = 10
	fx.src.Initialize(cfg)

	if f := fx.frame(1, false); f != nil {
		t.Error("frame decoded without a keyframe")
	}
	f := fx.frame(2, true)
	if f == nil {
		t.Fatal("keyframe produced no frame")
	}
	if !f.Keyframe || f.Width != 64 || f.Height != 36 || f.Hardware() {
		t.Errorf("frame = %+v", f)
	}
	if err := f.Validate(); err != nil {
		t.Error(err)
	}
	f.Release()
}

func TestIDRRecovery(t *testing.T) {
	fx := newFixture(t)
	defer fx.close(t)
	fx.src.Initialize(fx.config())

	f := fx.frame(0, true)
	if f == nil {
		t.Fatal("no first frame")
	}
	f.Release()
	for i := uint32(1); i < 4; i++ {
		if f := fx.frame(i, false); f == nil {
			t.Fatalf("frame %d: nil", i)
		} else {
			f.Release()
		}
	}

	// Lose sync: the corrupt packet and the two after it produce nothing.
	fx.src.DecodeNext(false, synthetic.Corrupt(fx.buf))
	fx.frame(5, false)
	if fx.src.State() != decode.StateDecoding {
		t.Fatalf("State() = %v before threshold", fx.src.State())
	}
	fx.frame(6, false)
	if fx.src.State() != decode.StateNeedsKeyframe {
		t.Fatalf("State() = %v, want needs-keyframe", fx.src.State())
	}
	fx.src.FlushEvents()
	if fx.events.idr.Load() != 1 {
		t.Fatalf("IDR events = %d", fx.events.idr.Load())
	}

	for i := uint32(7); i < 12; i++ {
		if f := fx.frame(i, false); f != nil {
			t.Fatal("non-keyframe decoded while waiting for a keyframe")
		}
	}
	fx.src.FlushEvents()
	if fx.events.idr.Load() != 1 {
		t.Errorf("IDR fired again while waiting: %d", fx.events.idr.Load())
	}

	f = fx.frame(12, true)
	if f == nil {
		t.Fatal("keyframe after IDR request produced no frame")
	}
	f.Release()
	if fx.src.State() != decode.StateDecoding {
		t.Errorf("State() = %v, want decoding", fx.src.State())
	}
	if f := fx.frame(13, false); f == nil {
		t.Error("decoding did not resume")
	} else {
		f.Release()
	}
	fx.src.FlushEvents()
	if fx.events.first.Load() != 1 {
		t.Errorf("first-frame events = %d", fx.events.first.Load())
	}
}

func TestIDRThresholdToleratesMidStreamStall(t *testing.T) {
	fx := newFixture(t)
	defer fx.close(t)
	cfg := fx.config()
	cfg.IDRThreshold = 5
	fx.src.Initialize(cfg)
	if f := fx.frame(0, true); f == nil {
		t.Fatal("no first frame")
	} else {
		f.Release()
	}

	fx.src.DecodeNext(false, synthetic.Corrupt(fx.buf))
	for i := uint32(1); i < 4; i++ {
		fx.frame(i, false)
	}
	if fx.src.State() != decode.StateDecoding {
		t.Fatalf("State() = %v after 4 empty packets, want decoding", fx.src.State())
	}
	fx.frame(4, false)
	if fx.src.State() != decode.StateNeedsKeyframe {
		t.Fatalf("State() = %v at threshold, want needs-keyframe", fx.src.State())
	}
	fx.src.FlushEvents()
	if n := fx.events.idr.Load(); n != 1 {
		t.Errorf("IDR events = %d", n)
	}
}

func TestKeyframeMissDoesNotCount(t *testing.T) {
	fx := newFixture(t)
	defer fx.close(t)
	cfg := fx.config()
	cfg.IDRThreshold = 1
	fx.src.Initialize(cfg)
	fx.src.DecodeNext(true, synthetic.Corrupt(fx.buf))
	if fx.src.State() == decode.StateNeedsKeyframe {
		t.Error("failed keyframe counted toward the IDR threshold")
	}
}

func TestReinitializeWithoutLeaks(t *testing.T) {
	fx := newFixture(t)
	defer fx.close(t)
	g := fx.logger.Node().Graph()
	live := g.Live()

	var held []*decode.Frame
	for cycle := range 25 {
		if !fx.src.Initialize(fx.config()) {
			t.Fatalf("cycle %d: Initialize() = false", cycle)
		}
		for i := range 4 {
			f := fx.frame(uint32(i), i == 0)
			if f == nil {
				t.Fatalf("cycle %d: nil frame", cycle)
			}
			if i == 3 {
				// Frames outlive the session that produced them.
				held = append(held, f)
				continue
			}
			f.Release()
		}
		if g.Live() != live {
			t.Fatalf("cycle %d: Live() = %d, want %d", cycle, g.Live(), live)
		}
	}
	if fx.src.Outstanding() != len(held) {
		t.Errorf("Outstanding() = %d, want %d", fx.src.Outstanding(), len(held))
	}
	for _, f := range held {
		if err := f.Validate(); err != nil {
			t.Fatal(err)
		}
		f.Release()
	}
	if fx.src.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d after release", fx.src.Outstanding())
	}
}

func TestInvalidConfig(t *testing.T) {
	fx := newFixture(t)
	defer fx.close(t)
	bad := []decode.Config{
		{Codec: decode.Codec(7), Width: 10, Height: 10},
		{Codec: decode.CodecH264, Width: 0, Height: 10},
		{Codec: decode.CodecH264, Width: 10, Height: -1},
	}
	for i, cfg := range bad {
		if fx.src.Initialize(cfg) {
			t.Errorf("config %d accepted", i)
		}
	}
	if fx.src.State() != decode.StateUninitialized {
		t.Errorf("State() = %v", fx.src.State())
	}
}

func TestLimitOutOfRange(t *testing.T) {
	fx := newFixture(t)
	defer fx.close(t)
	fx.src.Initialize(fx.config())
	if f := fx.src.DecodeNext(true, len(fx.buf)+1); f != nil {
		t.Error("oversized limit decoded")
	}
	if f := fx.src.DecodeNext(true, -1); f != nil {
		t.Error("negative limit decoded")
	}
}

func TestHardwareDecode(t *testing.T) {
	fx := newFixture(t)
	defer fx.close(t)
	g := fx.logger.Node().Graph()
	devNode, err := g.Add("device", fx.logger.Node())
	if err != nil {
		t.Fatal(err)
	}
	cfg := fx.config()
	cfg.Surface = &hwContext{node: devNode}
	cfg.PoolSize = 2
	if !fx.src.Initialize(cfg) {
		t.Fatal("Initialize() = false")
	}
	if !fx.src.Hardware() || fx.src.BackendName() != synthetic.HardwareName {
		t.Fatalf("backend = %s hardware=%t", fx.src.BackendName(), fx.src.Hardware())
	}

	f := fx.frame(0, true)
	if f == nil || !f.Hardware() || len(f.Views) != 2 {
		t.Fatalf("hardware frame = %+v", f)
	}
	g2 := fx.frame(1, false)
	if g2 == nil {
		t.Fatal("second frame nil")
	}
	if fx.frame(2, false) != nil {
		t.Error("decoded past the frame pool size")
	}
	f.Release()
	g2.Release()

	func() {
		defer func() {
			if _, ok := recover().(*lifecycle.OrderError); !ok {
				t.Error("device released under an active hardware decoder")
			}
		}()
		devNode.Release()
	}()
	fx.src.Dispose()
	if !devNode.Release() {
		t.Error("device release after dispose failed")
	}
}

func TestHardwareFrameOutlivesDecoder(t *testing.T) {
	fx := newFixture(t)
	defer fx.close(t)
	devNode, err := fx.logger.Node().Graph().Add("device", fx.logger.Node())
	if err != nil {
		t.Fatal(err)
	}
	cfg := fx.config()
	cfg.Surface = &hwContext{node: devNode}
	if !fx.src.Initialize(cfg) {
		t.Fatal("Initialize() = false")
	}
	f := fx.frame(0, true)
	if f == nil || !f.Hardware() {
		t.Fatalf("hardware frame = %+v", f)
	}
	fx.src.Destroy()

	func() {
		defer func() {
			oe, ok := recover().(*lifecycle.OrderError)
			if !ok {
				t.Error("device released under a live hardware frame")
				return
			}
			if len(oe.Dependents) != 1 {
				t.Errorf("dependents = %v", oe.Dependents)
			}
		}()
		devNode.Release()
	}()
	if err := f.Validate(); err != nil {
		t.Errorf("frame invalid after decoder destroy: %v", err)
	}
	f.Release()
	if !devNode.Release() {
		t.Error("device release after frame release failed")
	}
}

func TestHardwareFallback(t *testing.T) {
	for _, fallback := range []bool{true, false} {
		fx := newFixture(t)
		fx.reg.Register("vaapi", func() decode.Backend { return synthetic.Hardware(errors.New("no va driver")) })
		devNode, _ := fx.logger.Node().Graph().Add("device", fx.logger.Node())

		cfg := fx.config()
		cfg.Surface = &hwContext{node: devNode}
		cfg.EnableFallback = fallback
		ok := fx.src.Initialize(cfg)
		if ok != fallback {
			t.Errorf("fallback=%t: Initialize() = %t", fallback, ok)
		}
		if ok && (fx.src.Hardware() || fx.src.BackendName() != decode.SoftwareName) {
			t.Errorf("fallback session on %s", fx.src.BackendName())
		}
		if ok {
			if f := fx.frame(0, true); f == nil || f.Hardware() {
				t.Error("software fallback frame")
			} else {
				f.Release()
			}
		}
		fx.src.Destroy()
		devNode.Release()
		fx.close(t)
	}
}

func TestUseSoftwareIgnoresSurface(t *testing.T) {
	fx := newFixture(t)
	defer fx.close(t)
	devNode, _ := fx.logger.Node().Graph().Add("device", fx.logger.Node())
	cfg := fx.config()
	cfg.Surface = &hwContext{node: devNode}
	cfg.UseSoftware = true
	if !fx.src.Initialize(cfg) || fx.src.Hardware() {
		t.Fatal("software session expected")
	}
	if !devNode.Release() {
		t.Error("software session depends on the device")
	}
}

func TestListenerRunsOffCaller(t *testing.T) {
	fx := newFixture(t)
	defer fx.close(t)

	block := make(chan struct{})
	fired := make(chan struct{})
	cfg := fx.config()
	cfg.Listener = decode.ListenerFuncs{FirstFrameDecoded: func() {
		close(fired)
		<-block
	}}
	fx.src.Initialize(cfg)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 3 {
			if f := fx.frame(uint32(i), i == 0); f != nil {
				f.Release()
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("DecodeNext blocked on a listener")
	}
	<-fired
	close(block)
}
