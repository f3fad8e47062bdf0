package decode

import (
	"fmt"
	"slices"

	"github.com/gogpu/gpucontext"
)

// SoftwareName is the registry name of the CPU decoder.
const SoftwareName = "software"

// HardwarePriority orders hardware backends, most preferred first.
var HardwarePriority = []string{"d3d11va", "vaapi", "videotoolbox", "mediacodec", "vulkan"}

// Registry maps backend names to factories.
type Registry struct {
	backends *gpucontext.Registry[Backend]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: gpucontext.NewRegistry[Backend](gpucontext.WithPriority(HardwarePriority...))}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry sources use unless
// given WithRegistry.
func DefaultRegistry() *Registry { return defaultRegistry }

// Register adds a backend factory to the default registry.
func Register(name string, factory func() Backend) { defaultRegistry.Register(name, factory) }

// Register adds or replaces a backend factory.
func (r *Registry) Register(name string, factory func() Backend) {
	r.backends.Register(name, factory)
}

// Unregister removes a backend.
func (r *Registry) Unregister(name string) { r.backends.Unregister(name) }

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	names := r.backends.Available()
	slices.Sort(names)
	return names
}

// Software returns the CPU backend.
func (r *Registry) Software() (Backend, error) {
	if !r.backends.Has(SoftwareName) {
		return nil, fmt.Errorf("%w: %q not registered", ErrNoBackend, SoftwareName)
	}
	return r.backends.Get(SoftwareName), nil
}

// Hardware returns the preferred hardware backend: the first of
// HardwarePriority that is registered, else the alphabetically first other
// registered backend that reports Hardware.
func (r *Registry) Hardware() (Backend, error) {
	for _, name := range HardwarePriority {
		if r.backends.Has(name) {
			return r.backends.Get(name), nil
		}
	}
	for _, name := range r.Names() {
		if name == SoftwareName {
			continue
		}
		if b := r.backends.Get(name); b != nil && b.Hardware() {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: no hardware backend among %v", ErrNoBackend, r.Names())
}
