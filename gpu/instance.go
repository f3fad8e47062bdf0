package gpu

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vidpipe/lifecycle"
	"github.com/gogpu/vidpipe/vlog"
)

// InstanceOption configures NewInstance.
type InstanceOption func(*instanceOptions)

type instanceOptions struct {
	backend hal.Backend
	debug   bool
	getenv  func(string) string
}

// WithBackend pins the HAL backend instead of picking the best registered one.
func WithBackend(b hal.Backend) InstanceOption {
	return func(o *instanceOptions) { o.backend = b }
}

// WithDebug enables backend debug and validation layers.
func WithDebug(enabled bool) InstanceOption {
	return func(o *instanceOptions) { o.debug = enabled }
}

// WithEnv replaces os.Getenv for windowing detection.
func WithEnv(getenv func(string) string) InstanceOption {
	return func(o *instanceOptions) { o.getenv = getenv }
}

// Instance is the graphics API instance. It depends on the Logger it was
// created with and must be destroyed before it.
type Instance struct {
	node      *lifecycle.Node
	logger    *vlog.Logger
	log       *slog.Logger
	backend   hal.Backend
	hal       hal.Instance
	windowing string

	mu        sync.Mutex
	destroyed bool
}

// NewInstance creates a graphics instance on the best registered HAL
// backend. A nil logger creates the instance in a private graph and logs
// through the package logger.
func NewInstance(logger *vlog.Logger, hint WindowingHint, opts ...InstanceOption) (*Instance, error) {
	var o instanceOptions
	for _, opt := range opts {
		opt(&o)
	}

	backend := o.backend
	if backend == nil {
		b, err := hal.SelectBestBackend()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInstanceCreation, ErrNoBackend)
		}
		backend = b
	}

	graph := lifecycle.GraphOf(logger)
	if graph == nil {
		graph = lifecycle.NewGraph()
	}
	node, err := graph.Add("instance", logger.Node())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInstanceCreation, err)
	}

	flags := gputypes.InstanceFlagsNone
	if o.debug {
		flags = gputypes.InstanceFlagsDebug | gputypes.InstanceFlagsValidation
	}
	raw, err := backend.CreateInstance(&hal.InstanceDescriptor{
		Backends: gputypes.BackendsAll,
		Flags:    flags,
	})
	if err != nil {
		node.Release()
		return nil, fmt.Errorf("%w: %s: %w", ErrInstanceCreation, backend.Variant(), err)
	}

	inst := &Instance{
		node:      node,
		logger:    logger,
		log:       resourceLogger(logger, "instance"),
		backend:   backend,
		hal:       raw,
		windowing: hint.resolve(o.getenv),
	}
	inst.log.Info("instance created",
		"backend", backend.Variant().String(),
		"windowing", inst.windowing,
		"debug", o.debug)
	return inst, nil
}

// Node returns the instance's lifecycle node.
func (i *Instance) Node() *lifecycle.Node {
	if i == nil {
		return nil
	}
	return i.node
}

// Backend returns the HAL backend variant.
func (i *Instance) Backend() gputypes.Backend { return i.backend.Variant() }

// Windowing returns the resolved windowing system name.
func (i *Instance) Windowing() string { return i.windowing }

// HAL returns the underlying HAL instance.
func (i *Instance) HAL() hal.Instance { return i.hal }

// Adapters enumerates the adapters visible to this instance. A non-nil
// surface restricts the hint to adapters able to present on it.
func (i *Instance) Adapters(surface *Surface) ([]hal.ExposedAdapter, error) {
	if !i.node.Alive() {
		return nil, ErrDestroyed
	}
	var hint hal.Surface
	if surface != nil {
		hint = surface.hal
	}
	return i.hal.EnumerateAdapters(hint), nil
}

// Destroy releases the instance. Destroy is idempotent. Destroying an
// instance with live devices or surfaces panics with *lifecycle.OrderError.
func (i *Instance) Destroy() {
	if i == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.destroyed {
		return
	}
	i.node.Release()
	i.destroyed = true
	i.hal.Destroy()
	i.log.Debug("instance destroyed")
}
