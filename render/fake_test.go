package render

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/vidpipe/decode"
	"github.com/gogpu/vidpipe/lifecycle"
	"github.com/gogpu/vidpipe/vlog"
)

type view struct{ id int }

func (v *view) Destroy()              {}
func (v *view) NativeHandle() uintptr { return uintptr(v.id) }

// countingDevice counts the objects the renderer creates per frame.
type countingDevice struct {
	*noop.Device
	mu         sync.Mutex
	textures   int
	pipelines  int
	groups     int
	freedGroup int
	idle       int
}

func (d *countingDevice) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	d.mu.Lock()
	d.textures++
	d.mu.Unlock()
	return d.Device.CreateTexture(desc)
}

func (d *countingDevice) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	d.mu.Lock()
	d.pipelines++
	d.mu.Unlock()
	return d.Device.CreateRenderPipeline(desc)
}

func (d *countingDevice) CreateBindGroup(desc *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	d.mu.Lock()
	d.groups++
	d.mu.Unlock()
	return d.Device.CreateBindGroup(desc)
}

func (d *countingDevice) DestroyBindGroup(g hal.BindGroup) {
	d.mu.Lock()
	d.freedGroup++
	d.mu.Unlock()
}

func (d *countingDevice) WaitIdle() error {
	d.mu.Lock()
	d.idle++
	d.mu.Unlock()
	return nil
}

func (d *countingDevice) counts() (textures, pipelines, groups, freed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.textures, d.pipelines, d.groups, d.freedGroup
}

// faultyQueue fails Submit with submitErr when set.
type faultyQueue struct {
	*noop.Queue
	submitErr error
	writes    atomic.Int32
}

func (q *faultyQueue) Submit(cmds []hal.CommandBuffer) (uint64, error) {
	if q.submitErr != nil {
		return 0, q.submitErr
	}
	return q.Queue.Submit(cmds)
}

func (q *faultyQueue) WriteTexture(dst *hal.ImageCopyTexture, data []byte, layout *hal.ImageDataLayout, size *hal.Extent3D) error {
	q.writes.Add(1)
	return q.Queue.WriteTexture(dst, data, layout, size)
}

type testDevice struct {
	node  *lifecycle.Node
	hd    *countingDevice
	queue *faultyQueue
	lost  atomic.Bool
}

func (d *testDevice) Node() *lifecycle.Node { return d.node }
func (d *testDevice) HALDevice() hal.Device { return d.hd }
func (d *testDevice) HALQueue() hal.Queue   { return d.queue }
func (d *testDevice) Lost() bool            { return d.lost.Load() }

func (d *testDevice) CheckLost(err error) bool {
	if errors.Is(err, hal.ErrDeviceLost) {
		d.lost.Store(true)
		return true
	}
	return false
}

type testTarget struct {
	w, h       int
	format     gputypes.TextureFormat
	acquired   bool
	presentErr error
	presents   int
}

func newTarget(w, h int) *testTarget {
	return &testTarget{w: w, h: h, format: gputypes.TextureFormatBGRA8Unorm, acquired: true}
}

func (t *testTarget) Target() (hal.TextureView, int, int, bool) {
	if !t.acquired {
		return nil, 0, 0, false
	}
	return &view{id: 1}, t.w, t.h, true
}

func (t *testTarget) Format() gputypes.TextureFormat { return t.format }

func (t *testTarget) Present() error {
	t.presents++
	return t.presentErr
}

type fixture struct {
	logger *vlog.Logger
	dev    *testDevice
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := vlog.New(vlog.LevelWarn, nil)
	node, err := logger.Node().Graph().Add("device", logger.Node())
	if err != nil {
		t.Fatal(err)
	}
	fx := &fixture{
		logger: logger,
		dev: &testDevice{
			node:  node,
			hd:    &countingDevice{Device: &noop.Device{}},
			queue: &faultyQueue{Queue: &noop.Queue{}},
		},
	}
	t.Cleanup(func() {
		node.Release()
		logger.Close()
		if n := logger.Node().Graph().Live(); n != 0 {
			t.Errorf("Live() = %d after teardown", n)
		}
	})
	return fx
}

func (fx *fixture) renderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(fx.dev, fx.logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Destroy)
	return r
}

// nv12Frame returns a mid-grey software frame.
func nv12Frame(w, h int) *decode.Frame {
	f := decode.NewFrame(decode.FormatNV12, w, h, nil)
	cw, ch := decode.FormatNV12.PlaneSize(1, w, h)
	y := make([]byte, w*h)
	uv := make([]byte, cw*2*ch)
	for i := range y {
		y[i] = 126
	}
	for i := range uv {
		uv[i] = 128
	}
	f.Planes = []decode.Plane{{Data: y, Stride: w}, {Data: uv, Stride: cw * 2}}
	return f
}
