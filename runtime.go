package vidpipe

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vidpipe/decode"
	"github.com/gogpu/vidpipe/gpu"
	"github.com/gogpu/vidpipe/lifecycle"
)

// backendPriority orders HAL backends, most preferred first.
var backendPriority = []string{
	gputypes.BackendVulkan.String(),
	gputypes.BackendMetal.String(),
	gputypes.BackendDX12.String(),
	gputypes.BackendGL.String(),
	gputypes.BackendEmpty.String(),
}

// Runtime is the process-level context sessions are created in: the HAL
// backends and decoders available to them and the resource graph every
// resource joins.
type Runtime struct {
	backends *gpucontext.Registry[hal.Backend]
	decoders *decode.Registry
	graph    *lifecycle.Graph
}

// RuntimeOption configures NewRuntime.
type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	pinned   bool
	backends []hal.Backend
	decoders *decode.Registry
}

// WithBackends replaces HAL registry discovery with the given backends.
func WithBackends(backends ...hal.Backend) RuntimeOption {
	return func(o *runtimeOptions) {
		o.pinned = true
		o.backends = backends
	}
}

// WithDecoders selects decoders from r instead of decode.DefaultRegistry.
func WithDecoders(r *decode.Registry) RuntimeOption {
	return func(o *runtimeOptions) { o.decoders = r }
}

// NewRuntime creates a runtime. Without WithBackends it picks up every
// backend registered with the HAL at the time of the call, so blank-import
// the backend packages (for example hal/allbackends) first.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	var o runtimeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !o.pinned {
		for _, v := range hal.AvailableBackends() {
			if b, ok := hal.GetBackend(v); ok {
				o.backends = append(o.backends, b)
			}
		}
	}
	if o.decoders == nil {
		o.decoders = decode.DefaultRegistry()
	}

	rt := &Runtime{
		backends: gpucontext.NewRegistry[hal.Backend](gpucontext.WithPriority(backendPriority...)),
		decoders: o.decoders,
		graph:    lifecycle.NewGraph(),
	}
	for _, b := range o.backends {
		rt.RegisterBackend(b)
	}
	Logger().Debug("runtime created", "backends", rt.Backends())
	return rt
}

// RegisterBackend adds or replaces the backend for b's variant.
func (rt *Runtime) RegisterBackend(b hal.Backend) {
	rt.backends.Register(b.Variant().String(), func() hal.Backend { return b })
}

// Backend returns the most preferred registered backend.
func (rt *Runtime) Backend() (hal.Backend, error) {
	name := rt.backends.BestName()
	if name == "" {
		return nil, fmt.Errorf("%w: none registered", gpu.ErrNoBackend)
	}
	return rt.backends.Get(name), nil
}

// Backends returns the registered backend names, sorted.
func (rt *Runtime) Backends() []string {
	names := rt.backends.Available()
	slices.Sort(names)
	return names
}

// Decoders returns the decoder registry.
func (rt *Runtime) Decoders() *decode.Registry { return rt.decoders }

// Graph returns the resource graph shared by the runtime's sessions.
func (rt *Runtime) Graph() *lifecycle.Graph { return rt.graph }

var (
	defaultMu      sync.Mutex
	defaultRuntime *Runtime
)

// Default returns the process-wide runtime, creating it on first use.
func Default() *Runtime {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRuntime == nil {
		defaultRuntime = NewRuntime()
	}
	return defaultRuntime
}

// Reset drops the process-wide runtime so the next Default call rebuilds
// it. Sessions created from the old runtime keep working. Intended for
// tests.
func Reset() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRuntime = nil
}
