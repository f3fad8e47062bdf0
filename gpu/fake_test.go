package gpu

import (
	"image"
	"sync"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/vidpipe/vlog"
)

// fakeBackend hands out a scripted instance.
type fakeBackend struct {
	inst *fakeInstance
	err  error
}

func (b *fakeBackend) Variant() gputypes.Backend { return gputypes.BackendEmpty }

func (b *fakeBackend) CreateInstance(*hal.InstanceDescriptor) (hal.Instance, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.inst, nil
}

type fakeInstance struct {
	adapters []hal.ExposedAdapter
	surface  *scriptedSurface
}

func (i *fakeInstance) CreateSurface(_, _ uintptr) (hal.Surface, error) {
	if i.surface == nil {
		i.surface = &scriptedSurface{Surface: &noop.Surface{}}
	}
	return i.surface, nil
}

func (i *fakeInstance) EnumerateAdapters(hal.Surface) []hal.ExposedAdapter { return i.adapters }

func (i *fakeInstance) Destroy() {}

// fakeAdapter narrows the noop adapter's capabilities.
type fakeAdapter struct {
	*noop.Adapter
	noHDR          bool
	notPresentable bool
	formats        []gputypes.TextureFormat
	queue          *fakeQueue
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{Adapter: &noop.Adapter{}, queue: &fakeQueue{Queue: &noop.Queue{}}}
}

func (a *fakeAdapter) Open(f gputypes.Features, l gputypes.Limits) (hal.OpenDevice, error) {
	open, err := a.Adapter.Open(f, l)
	if err != nil {
		return open, err
	}
	open.Queue = a.queue
	return open, nil
}

func (a *fakeAdapter) TextureFormatCapabilities(f gputypes.TextureFormat) hal.TextureFormatCapabilities {
	if a.noHDR && (f == gputypes.TextureFormatRGBA16Float || f == gputypes.TextureFormatRGB10A2Unorm) {
		return hal.TextureFormatCapabilities{}
	}
	return a.Adapter.TextureFormatCapabilities(f)
}

func (a *fakeAdapter) SurfaceCapabilities(s hal.Surface) *hal.SurfaceCapabilities {
	if a.notPresentable {
		return nil
	}
	caps := a.Adapter.SurfaceCapabilities(s)
	if a.formats != nil {
		caps.Formats = a.formats
	}
	return caps
}

type fakeQueue struct {
	hal.Queue
	mu         sync.Mutex
	presentErr error
	presents   int
}

func (q *fakeQueue) Present(s hal.Surface, t hal.SurfaceTexture, damage []image.Rectangle) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.presents++
	if q.presentErr != nil {
		return q.presentErr
	}
	return q.Queue.Present(s, t, damage)
}

// scriptedSurface fails AcquireTexture and Configure on demand.
type scriptedSurface struct {
	hal.Surface
	mu           sync.Mutex
	acquireErrs  []error
	sticky       error
	configureErr error
	acquires     int
	discards     int
}

func (s *scriptedSurface) script(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquireErrs = append(s.acquireErrs, errs...)
}

func (s *scriptedSurface) Configure(d hal.Device, c *hal.SurfaceConfiguration) error {
	s.mu.Lock()
	err := s.configureErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Surface.Configure(d, c)
}

func (s *scriptedSurface) AcquireTexture(f hal.Fence) (*hal.AcquiredSurfaceTexture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquires++
	if len(s.acquireErrs) > 0 {
		err := s.acquireErrs[0]
		s.acquireErrs = s.acquireErrs[1:]
		if err != nil {
			return nil, err
		}
	} else if s.sticky != nil {
		return nil, s.sticky
	}
	return s.Surface.AcquireTexture(f)
}

func (s *scriptedSurface) DiscardTexture(t hal.SurfaceTexture) {
	s.mu.Lock()
	s.discards++
	s.mu.Unlock()
	s.Surface.DiscardTexture(t)
}

func exposed(name string, t gputypes.DeviceType, a *fakeAdapter) hal.ExposedAdapter {
	return hal.ExposedAdapter{
		Adapter:      a,
		Info:         gputypes.AdapterInfo{Name: name, DeviceType: t, Backend: gputypes.BackendEmpty},
		Capabilities: hal.Capabilities{Limits: gputypes.DefaultLimits()},
	}
}

// stack is a logger, instance, surface and device over a fake backend.
type stack struct {
	logger  *vlog.Logger
	inst    *Instance
	surface *Surface
	dev     *Device
	backend *fakeBackend
	adapter *fakeAdapter
}

func newStack(t *testing.T) *stack {
	t.Helper()
	a := newFakeAdapter()
	b := &fakeBackend{inst: &fakeInstance{
		adapters: []hal.ExposedAdapter{exposed("Fake GPU", gputypes.DeviceTypeDiscreteGPU, a)},
	}}
	st := &stack{logger: vlog.New(vlog.LevelWarn, nil), backend: b, adapter: a}

	var err error
	st.inst, err = NewInstance(st.logger, WindowingDefault, WithBackend(b))
	if err != nil {
		t.Fatal(err)
	}
	st.surface, err = st.inst.CreateSurface(0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	st.dev, err = NewDevice(st.inst, st.logger, st.surface, DecoderRequirements{}, false)
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func (st *stack) halSurface() *scriptedSurface { return st.backend.inst.surface }

// teardown destroys everything in reverse creation order.
func (st *stack) teardown(t *testing.T, extra ...interface{ Destroy() }) {
	t.Helper()
	for _, r := range extra {
		r.Destroy()
	}
	st.dev.Destroy()
	st.surface.Destroy()
	st.inst.Destroy()
	g := st.logger.Node().Graph()
	st.logger.Close()
	if live := g.Live(); live != 0 {
		t.Errorf("Live() after teardown = %d, kinds %v", live, g.LiveKinds())
	}
}
