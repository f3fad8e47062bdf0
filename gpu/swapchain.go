package gpu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vidpipe/lifecycle"
	"github.com/gogpu/vidpipe/vlog"
)

// MaxExtent is the largest width or height a swapchain accepts.
const MaxExtent = 16384

// Default acquire timing, used when WaitToRender's context has no deadline.
const (
	DefaultAcquireTimeout = time.Second
	acquireRetryInterval  = 2 * time.Millisecond
)

// SwapchainState is the swapchain's position in its state machine:
//
//	Unbound -> Bound -> Ready <-> Resizing -> Ready -> Lost
type SwapchainState int32

const (
	StateUnbound SwapchainState = iota
	StateBound
	StateReady
	StateResizing
	StateLost
)

// String returns the state name.
func (s SwapchainState) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateReady:
		return "ready"
	case StateResizing:
		return "resizing"
	case StateLost:
		return "lost"
	default:
		return "unknown"
	}
}

// SwapchainConfig configures NewSwapchain.
type SwapchainConfig struct {
	// Mode is the requested present mode. PresentModeBest picks by VSync.
	Mode  PresentMode
	VSync bool

	// Width and Height are the initial size. Zero uses the surface's window size.
	Width, Height int

	// AcquireTimeout bounds WaitToRender when its context has no deadline.
	AcquireTimeout time.Duration
}

// Swapchain presents rendered images to a Surface.
//
// Resize, WaitToRender, Present and Discard belong to the render goroutine.
// State and Size may be read from any goroutine.
type Swapchain struct {
	node    *lifecycle.Node
	dev     *Device
	surface *Surface
	log     *slog.Logger
	format  gputypes.TextureFormat
	mode    gputypes.PresentMode
	timeout time.Duration

	state atomic.Int32
	size  atomic.Uint64

	mu           sync.Mutex
	fence        hal.Fence
	acquired     *hal.AcquiredSurfaceTexture
	view         hal.TextureView
	outdated     bool
	reconfigures int
	destroyed    bool
}

// NewSwapchain binds a swapchain to surface and configures it at the initial
// size. It fails with ErrSurfaceInUse if surface already has one.
func NewSwapchain(dev *Device, surface *Surface, cfg SwapchainConfig) (*Swapchain, error) {
	if dev.Lost() {
		return nil, fmt.Errorf("gpu: create swapchain: %w", ErrSwapchainLost)
	}
	node, err := dev.node.Graph().Add("swapchain", dev.node, surface.node)
	if err != nil {
		return nil, fmt.Errorf("gpu: create swapchain: %w", err)
	}

	sc := &Swapchain{
		node:    node,
		dev:     dev,
		surface: surface,
		log:     dev.log.With("component", "swapchain"),
		timeout: cfg.AcquireTimeout,
	}
	if sc.timeout <= 0 {
		sc.timeout = DefaultAcquireTimeout
	}
	if err := surface.claim(sc); err != nil {
		node.Release()
		return nil, fmt.Errorf("gpu: create swapchain: %w", err)
	}

	caps := dev.adapter.Adapter.SurfaceCapabilities(surface.hal)
	if caps == nil {
		surface.unclaim(sc)
		node.Release()
		return nil, fmt.Errorf("gpu: create swapchain: %w: %q cannot present to surface",
			ErrNoSuitableDevice, dev.adapter.Info.Name)
	}
	sc.format = chooseSurfaceFormat(caps.Formats, dev.hdr)
	sc.mode = resolvePresentMode(cfg.Mode, cfg.VSync, caps.PresentModes)

	fence, err := dev.open.Device.CreateFence()
	if err != nil {
		surface.unclaim(sc)
		node.Release()
		return nil, fmt.Errorf("gpu: create swapchain fence: %w", err)
	}
	sc.fence = fence
	sc.setState(StateBound)

	w, h := cfg.Width, cfg.Height
	if w == 0 && h == 0 {
		w, h = surface.Size()
	}
	if validExtent(w, h) && !sc.Resize(w, h) {
		sc.Destroy()
		return nil, fmt.Errorf("gpu: create swapchain %dx%d: %w", w, h, ErrSwapchainLost)
	}
	return sc, nil
}

// Node returns the swapchain's lifecycle node.
func (s *Swapchain) Node() *lifecycle.Node {
	if s == nil {
		return nil
	}
	return s.node
}

// State returns the current state.
func (s *Swapchain) State() SwapchainState { return SwapchainState(s.state.Load()) }

func (s *Swapchain) setState(st SwapchainState) { s.state.Store(int32(st)) }

// Size returns the configured size, 0x0 before the first configure.
func (s *Swapchain) Size() (width, height int) {
	v := s.size.Load()
	return int(v >> 32), int(uint32(v))
}

// Format returns the presentation format.
func (s *Swapchain) Format() gputypes.TextureFormat { return s.format }

// PresentMode returns the resolved present mode.
func (s *Swapchain) PresentMode() gputypes.PresentMode { return s.mode }

// HDR reports whether the presentation format can carry HDR values.
func (s *Swapchain) HDR() bool {
	return s.format == gputypes.TextureFormatRGBA16Float || s.format == gputypes.TextureFormatRGB10A2Unorm
}

// Device returns the device the swapchain presents with.
func (s *Swapchain) Device() *Device { return s.dev }

// Reconfigures returns how many times the surface has been configured.
func (s *Swapchain) Reconfigures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconfigures
}

func validExtent(w, h int) bool {
	return w > 0 && h > 0 && w <= MaxExtent && h <= MaxExtent
}

// Resize reconfigures the swapchain for a new size. Sizes outside
// 1..MaxExtent are rejected without a state change. A failed reconfigure
// moves the swapchain to StateLost. Resizing to the current size is a no-op.
func (s *Swapchain) Resize(width, height int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resizeLocked(width, height)
}

func (s *Swapchain) resizeLocked(width, height int) bool {
	if s.destroyed || s.State() == StateLost {
		return false
	}
	if !validExtent(width, height) {
		s.log.Error("invalid swapchain size", "width", width, "height", height, "max", MaxExtent)
		return false
	}
	if cw, ch := s.Size(); s.State() == StateReady && !s.outdated && cw == width && ch == height {
		return true
	}
	return s.configureLocked(width, height)
}

func (s *Swapchain) configureLocked(width, height int) bool {
	s.discardLocked()
	s.setState(StateResizing)
	err := s.surface.hal.Configure(s.dev.open.Device, &hal.SurfaceConfiguration{
		Width:       uint32(width),
		Height:      uint32(height),
		Format:      s.format,
		Usage:       gputypes.TextureUsageRenderAttachment,
		PresentMode: s.mode,
		AlphaMode:   gputypes.CompositeAlphaModeOpaque,
	})
	if err != nil {
		s.loseLocked(err)
		return false
	}
	s.size.Store(uint64(width)<<32 | uint64(uint32(height)))
	s.outdated = false
	s.reconfigures++
	s.setState(StateReady)
	s.log.Info("swapchain configured",
		"width", width,
		"height", height,
		"format", formatName(s.format),
		"present_mode", s.mode.String())
	return true
}

func (s *Swapchain) loseLocked(cause error) {
	s.discardLocked()
	s.setState(StateLost)
	if errors.Is(cause, hal.ErrDeviceLost) {
		s.dev.MarkLost(cause)
	}
	s.log.Error("swapchain lost", "err", cause)
}

// WaitToRender blocks until a surface image is acquired for a frame of the
// given size. It resizes first when the size differs, retries transient
// acquire failures until ctx is done (or the acquire timeout elapses when ctx
// has no deadline), and reconfigures once on an outdated surface. Surface or
// device loss moves the swapchain to StateLost. It returns false when no
// image is available; in StateLost it always returns false.
func (s *Swapchain) WaitToRender(ctx context.Context, width, height int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed || s.State() == StateLost || s.dev.Lost() {
		return false
	}
	if !s.resizeLocked(width, height) {
		return false
	}
	if s.acquired != nil {
		return true
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	reconfigured := false
	for {
		acq, err := s.surface.hal.AcquireTexture(s.fence)
		switch {
		case err == nil:
			return s.bindLocked(acq)
		case errors.Is(err, hal.ErrTimeout), errors.Is(err, hal.ErrNotReady):
			s.log.Log(ctx, vlog.SlogLevelTrace, "acquire retry", "err", err)
		case errors.Is(err, hal.ErrSurfaceOutdated):
			if reconfigured {
				s.log.Warn("surface outdated after reconfigure", "err", err)
				return false
			}
			reconfigured = true
			w, h := s.Size()
			if !s.configureLocked(w, h) {
				return false
			}
			continue
		case errors.Is(err, hal.ErrSurfaceLost), errors.Is(err, hal.ErrDeviceLost):
			s.loseLocked(err)
			return false
		default:
			s.log.Warn("acquire failed", "err", err)
			return false
		}

		t := time.NewTimer(acquireRetryInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			s.log.Debug("acquire timed out", "err", ctx.Err())
			return false
		case <-t.C:
		}
	}
}

func (s *Swapchain) bindLocked(acq *hal.AcquiredSurfaceTexture) bool {
	view, err := s.dev.open.Device.CreateTextureView(acq.Texture, &hal.TextureViewDescriptor{
		Label:           "swapchain",
		Format:          s.format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		s.surface.hal.DiscardTexture(acq.Texture)
		s.log.Warn("surface view", "err", err)
		return false
	}
	if acq.Suboptimal {
		s.outdated = true
		s.log.Debug("surface suboptimal, reconfigure on next frame")
	}
	s.acquired = acq
	s.view = view
	return true
}

// Target returns the acquired image's view and size. ok is false when
// WaitToRender has not acquired an image.
func (s *Swapchain) Target() (view hal.TextureView, width, height int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquired == nil {
		return nil, 0, 0, false
	}
	w, h := s.Size()
	return s.view, w, h, true
}

// Present queues the acquired image for display. Surface or device loss
// moves the swapchain to StateLost and returns an error wrapping
// ErrSwapchainLost.
func (s *Swapchain) Present() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.acquired == nil {
		return ErrNoImage
	}
	tex := s.acquired.Texture
	s.dropViewLocked()
	s.acquired = nil

	err := s.dev.open.Queue.Present(s.surface.hal, tex, nil)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hal.ErrSurfaceOutdated):
		s.outdated = true
		return fmt.Errorf("gpu: present: %w", err)
	case errors.Is(err, hal.ErrSurfaceLost), errors.Is(err, hal.ErrDeviceLost):
		s.loseLocked(err)
		return fmt.Errorf("gpu: present: %w: %w", ErrSwapchainLost, err)
	default:
		return fmt.Errorf("gpu: present: %w", err)
	}
}

// Discard returns the acquired image without presenting it.
func (s *Swapchain) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discardLocked()
}

func (s *Swapchain) discardLocked() {
	if s.acquired == nil {
		return
	}
	s.dropViewLocked()
	s.surface.hal.DiscardTexture(s.acquired.Texture)
	s.acquired = nil
}

func (s *Swapchain) dropViewLocked() {
	if s.view != nil {
		s.dev.open.Device.DestroyTextureView(s.view)
		s.view = nil
	}
}

// Destroy unconfigures the surface and releases the swapchain. Destroy is
// idempotent. The surface may receive a new swapchain afterwards.
func (s *Swapchain) Destroy() {
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
	s.discardLocked()
	s.surface.hal.Unconfigure(s.dev.open.Device)
	if s.fence != nil {
		s.dev.open.Device.DestroyFence(s.fence)
		s.fence = nil
	}
	s.surface.unclaim(s)
	s.log.Debug("swapchain destroyed")
}
