package gpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vidpipe/lifecycle"
)

// Surface is a platform presentation target created from native handles.
// A Surface carries at most one Swapchain.
type Surface struct {
	node   *lifecycle.Node
	inst   *Instance
	hal    hal.Surface
	window gpucontext.WindowProvider

	mu        sync.Mutex
	swapchain *Swapchain
	destroyed bool
}

// CreateSurface wraps the native display and window handles. window, if
// non-nil, reports the current drawable size.
func (i *Instance) CreateSurface(display, window uintptr, wp gpucontext.WindowProvider) (*Surface, error) {
	node, err := i.node.Graph().Add("surface", i.node)
	if err != nil {
		return nil, fmt.Errorf("gpu: create surface: %w", err)
	}
	raw, err := i.hal.CreateSurface(display, window)
	if err != nil {
		node.Release()
		return nil, fmt.Errorf("gpu: create surface: %w", err)
	}
	if wp == nil {
		wp = gpucontext.NullWindowProvider{}
	}
	return &Surface{node: node, inst: i, hal: raw, window: wp}, nil
}

// Node returns the surface's lifecycle node.
func (s *Surface) Node() *lifecycle.Node {
	if s == nil {
		return nil
	}
	return s.node
}

// HAL returns the underlying HAL surface.
func (s *Surface) HAL() hal.Surface { return s.hal }

// Size returns the drawable size reported by the window provider.
func (s *Surface) Size() (width, height int) { return s.window.Size() }

// claim binds sc as the surface's only swapchain.
func (s *Surface) claim(sc *Swapchain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	if s.swapchain != nil {
		return ErrSurfaceInUse
	}
	s.swapchain = sc
	return nil
}

func (s *Surface) unclaim(sc *Swapchain) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.swapchain == sc {
		s.swapchain = nil
	}
}

// Destroy releases the surface. Destroy is idempotent; a surface with a
// live swapchain panics with *lifecycle.OrderError.
func (s *Surface) Destroy() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.node.Release()
	s.destroyed = true
	s.hal.Destroy()
}
