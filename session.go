package vidpipe

import (
	"context"
	"fmt"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/vidpipe/decode"
	"github.com/gogpu/vidpipe/gpu"
	"github.com/gogpu/vidpipe/internal/arena"
	"github.com/gogpu/vidpipe/render"
	"github.com/gogpu/vidpipe/shadercache"
	"github.com/gogpu/vidpipe/ui"
	"github.com/gogpu/vidpipe/vlog"
)

// Handle identifies a resource owned by a Session: the slot generation in
// the high 32 bits and the slot index plus one in the low 32 bits.
type Handle uint64

// Null is the zero handle. It never refers to a resource.
const Null Handle = 0

type kind uint8

const (
	kindLogger kind = iota + 1
	kindInstance
	kindSurface
	kindDevice
	kindCache
	kindSwapchain
	kindRenderer
	kindDecoder
	kindOverlay
	kindFrame
)

func (k kind) String() string {
	switch k {
	case kindLogger:
		return "logger"
	case kindInstance:
		return "instance"
	case kindSurface:
		return "surface"
	case kindDevice:
		return "device"
	case kindCache:
		return "cache"
	case kindSwapchain:
		return "swapchain"
	case kindRenderer:
		return "renderer"
	case kindDecoder:
		return "decoder"
	case kindOverlay:
		return "ui"
	case kindFrame:
		return "frame"
	default:
		return "unknown"
	}
}

// closeOrder tears dependents down before what they depend on.
var closeOrder = []kind{
	kindFrame,
	kindRenderer,
	kindOverlay,
	kindSwapchain,
	kindDecoder,
	kindCache,
	kindDevice,
	kindSurface,
	kindInstance,
	kindLogger,
}

type entry struct {
	kind  kind
	value any
}

// Session is the integer-handle view of the pipeline: every resource it
// creates is addressed by a Handle, and destroying a handle destroys the
// resource. Destroy on a null or stale handle does nothing.
//
// Resources keep their own ordering rules: destroying a resource that
// others still depend on panics with *lifecycle.OrderError and leaves the
// handle valid.
//
// Session is safe for concurrent use as far as the underlying resources
// are.
type Session struct {
	rt      *Runtime
	handles *arena.Arena[entry]
}

// NewSession creates a session in rt, or in Default when rt is nil.
func NewSession(rt *Runtime) *Session {
	if rt == nil {
		rt = Default()
	}
	return &Session{rt: rt, handles: arena.New[entry]()}
}

// Runtime returns the runtime the session was created in.
func (s *Session) Runtime() *Runtime { return s.rt }

// Live returns the number of live handles.
func (s *Session) Live() int { return s.handles.Len() }

func (s *Session) insert(k kind, v any) Handle {
	return Handle(s.handles.Insert(entry{kind: k, value: v}))
}

func get[T any](s *Session, h Handle, k kind) (T, error) {
	var zero T
	e, ok := s.handles.Get(arena.Handle(h))
	if !ok || e.kind != k {
		return zero, fmt.Errorf("%w: %s %#x", ErrInvalidHandle, k, uint64(h))
	}
	return e.value.(T), nil
}

// optional resolves h, allowing Null.
func optional[T any](s *Session, h Handle, k kind) (T, error) {
	if h == Null {
		var zero T
		return zero, nil
	}
	return get[T](s, h, k)
}

// destroy runs fn on the resource and then frees h. A panicking fn leaves
// h valid.
func destroy[T any](s *Session, h Handle, k kind, fn func(T)) {
	v, err := get[T](s, h, k)
	if err != nil {
		return
	}
	fn(v)
	s.handles.Remove(arena.Handle(h))
}

// CreateLogger creates a logger delivering records at or above level to
// cb. Level values outside NONE..TRACE are clamped.
func (s *Session) CreateLogger(level int, cb vlog.Callback) Handle {
	l := vlog.New(vlog.ParseLevel(level), cb, vlog.WithGraph(s.rt.Graph()))
	return s.insert(kindLogger, l)
}

// DestroyLogger flushes and closes the logger.
func (s *Session) DestroyLogger(h Handle) {
	destroy(s, h, kindLogger, (*vlog.Logger).Close)
}

// CreateInstance creates a graphics instance on the runtime's preferred
// backend.
func (s *Session) CreateInstance(logger Handle, hint gpu.WindowingHint) (Handle, error) {
	l, err := get[*vlog.Logger](s, logger, kindLogger)
	if err != nil {
		return Null, err
	}
	b, err := s.rt.Backend()
	if err != nil {
		return Null, fmt.Errorf("%w: %w", gpu.ErrInstanceCreation, err)
	}
	inst, err := gpu.NewInstance(l, hint, gpu.WithBackend(b))
	if err != nil {
		return Null, err
	}
	return s.insert(kindInstance, inst), nil
}

// DestroyInstance destroys the instance.
func (s *Session) DestroyInstance(h Handle) {
	destroy(s, h, kindInstance, (*gpu.Instance).Destroy)
}

// CreateSurface wraps native display and window handles.
func (s *Session) CreateSurface(instance Handle, display, window uintptr) (Handle, error) {
	inst, err := get[*gpu.Instance](s, instance, kindInstance)
	if err != nil {
		return Null, err
	}
	surf, err := inst.CreateSurface(display, window, nil)
	if err != nil {
		return Null, err
	}
	return s.insert(kindSurface, surf), nil
}

// DestroySurface destroys the surface.
func (s *Session) DestroySurface(h Handle) {
	destroy(s, h, kindSurface, (*gpu.Surface).Destroy)
}

// CreateDevice selects an adapter and opens a device. surface may be Null
// for a headless device.
func (s *Session) CreateDevice(instance, logger, surface Handle, req gpu.DecoderRequirements, hdr bool) (Handle, error) {
	inst, err := get[*gpu.Instance](s, instance, kindInstance)
	if err != nil {
		return Null, err
	}
	l, err := get[*vlog.Logger](s, logger, kindLogger)
	if err != nil {
		return Null, err
	}
	surf, err := optional[*gpu.Surface](s, surface, kindSurface)
	if err != nil {
		return Null, err
	}
	dev, err := gpu.NewDevice(inst, l, surf, req, hdr)
	if err != nil {
		return Null, err
	}
	return s.insert(kindDevice, dev), nil
}

// DestroyDevice destroys the device.
func (s *Session) DestroyDevice(h Handle) {
	destroy(s, h, kindDevice, (*gpu.Device).Destroy)
}

// CreateCache creates a shader cache holding at most maxSize bytes.
func (s *Session) CreateCache(logger Handle, maxSize int64) (Handle, error) {
	l, err := get[*vlog.Logger](s, logger, kindLogger)
	if err != nil {
		return Null, err
	}
	c, err := shadercache.New(l, maxSize)
	if err != nil {
		return Null, err
	}
	return s.insert(kindCache, c), nil
}

// DestroyCache destroys the cache.
func (s *Session) DestroyCache(h Handle) {
	destroy(s, h, kindCache, (*shadercache.Cache).Destroy)
}

// AttachCache makes the cache a dependent of the device.
func (s *Session) AttachCache(cache, device Handle) error {
	c, err := get[*shadercache.Cache](s, cache, kindCache)
	if err != nil {
		return err
	}
	dev, err := get[*gpu.Device](s, device, kindDevice)
	if err != nil {
		return err
	}
	return c.Attach(dev)
}

// LoadCacheFile loads entries from path and returns how many were loaded.
// A missing or corrupt file leaves the cache cold and is not an error.
func (s *Session) LoadCacheFile(cache Handle, path string) (int, error) {
	c, err := get[*shadercache.Cache](s, cache, kindCache)
	if err != nil {
		return 0, err
	}
	return c.Load(path), nil
}

// SaveCacheFile writes the cache to path atomically.
func (s *Session) SaveCacheFile(cache Handle, path string) error {
	c, err := get[*shadercache.Cache](s, cache, kindCache)
	if err != nil {
		return err
	}
	return c.Save(path)
}

// CreateSwapchain binds a swapchain to the surface. The swapchain is
// configured by the first Resize or WaitToRender.
func (s *Session) CreateSwapchain(device, surface Handle, mode gpu.PresentMode, vsync bool) (Handle, error) {
	dev, err := get[*gpu.Device](s, device, kindDevice)
	if err != nil {
		return Null, err
	}
	surf, err := get[*gpu.Surface](s, surface, kindSurface)
	if err != nil {
		return Null, err
	}
	sc, err := gpu.NewSwapchain(dev, surf, gpu.SwapchainConfig{Mode: mode, VSync: vsync})
	if err != nil {
		return Null, err
	}
	return s.insert(kindSwapchain, sc), nil
}

// DestroySwapchain destroys the swapchain.
func (s *Session) DestroySwapchain(h Handle) {
	destroy(s, h, kindSwapchain, (*gpu.Swapchain).Destroy)
}

// Resize reconfigures the swapchain. The handle stays the same.
func (s *Session) Resize(swapchain Handle, width, height int) (bool, error) {
	sc, err := get[*gpu.Swapchain](s, swapchain, kindSwapchain)
	if err != nil {
		return false, err
	}
	return sc.Resize(width, height), nil
}

// WaitToRender blocks until the swapchain has an image to draw into.
func (s *Session) WaitToRender(ctx context.Context, swapchain Handle, width, height int) (bool, error) {
	sc, err := get[*gpu.Swapchain](s, swapchain, kindSwapchain)
	if err != nil {
		return false, err
	}
	return sc.WaitToRender(ctx, width, height), nil
}

// CreateRenderer creates a renderer on the device. cache may be Null.
func (s *Session) CreateRenderer(device, logger, cache Handle) (Handle, error) {
	dev, err := get[*gpu.Device](s, device, kindDevice)
	if err != nil {
		return Null, err
	}
	l, err := get[*vlog.Logger](s, logger, kindLogger)
	if err != nil {
		return Null, err
	}
	c, err := optional[*shadercache.Cache](s, cache, kindCache)
	if err != nil {
		return Null, err
	}
	r, err := render.NewRenderer(dev, l, c)
	if err != nil {
		return Null, err
	}
	return s.insert(kindRenderer, r), nil
}

// DestroyRenderer destroys the renderer.
func (s *Session) DestroyRenderer(h Handle) {
	destroy(s, h, kindRenderer, (*render.Renderer).Destroy)
}

// SetQualityPreset sets the renderer's quality. An unknown value is logged
// and ignored.
func (s *Session) SetQualityPreset(renderer Handle, quality int) error {
	r, err := get[*render.Renderer](s, renderer, kindRenderer)
	if err != nil {
		return err
	}
	r.SetQualityPreset(render.Quality(quality))
	return nil
}

// SetRenderingFormat sets the renderer's aspect policy. An unknown value
// is logged and ignored.
func (s *Session) SetRenderingFormat(renderer Handle, aspect int) error {
	r, err := get[*render.Renderer](s, renderer, kindRenderer)
	if err != nil {
		return err
	}
	r.SetAspect(render.Aspect(aspect))
	return nil
}

// takeFrame removes the frame handle; the caller releases the frame.
func (s *Session) takeFrame(h Handle) (*decode.Frame, error) {
	f, err := get[*decode.Frame](s, h, kindFrame)
	if err != nil {
		return nil, err
	}
	s.handles.Remove(arena.Handle(h))
	return f, nil
}

// RenderFrame draws the frame into the swapchain's acquired image and
// presents it. The frame handle is consumed.
func (s *Session) RenderFrame(renderer, swapchain, frame Handle, width, height, transfer, rng int) (bool, error) {
	r, sc, err := s.renderTarget(renderer, swapchain)
	if err != nil {
		return false, err
	}
	f, err := s.takeFrame(frame)
	if err != nil {
		return false, err
	}
	defer f.Release()
	return r.RenderFrame(sc, f, width, height, transfer, rng), nil
}

// RenderFrameWithOverlay draws the frame and the overlay on top. The
// transfer follows the swapchain's HDR mode and the range is limited. The
// frame handle is consumed.
func (s *Session) RenderFrameWithOverlay(renderer, swapchain, frame, overlay Handle, width, height int) (bool, error) {
	r, sc, err := s.renderTarget(renderer, swapchain)
	if err != nil {
		return false, err
	}
	o, err := get[*ui.Overlay](s, overlay, kindOverlay)
	if err != nil {
		return false, err
	}
	f, err := s.takeFrame(frame)
	if err != nil {
		return false, err
	}
	defer f.Release()
	return r.RenderFrameWithOverlay(sc, f, o, width, height,
		render.TransferForHDR(sc.HDR()), render.RangeCodeLimited), nil
}

// RenderUIOnly clears the image and draws only the overlay.
func (s *Session) RenderUIOnly(renderer, swapchain, overlay Handle, width, height int) (bool, error) {
	r, sc, err := s.renderTarget(renderer, swapchain)
	if err != nil {
		return false, err
	}
	o, err := get[*ui.Overlay](s, overlay, kindOverlay)
	if err != nil {
		return false, err
	}
	return r.RenderUIOnly(sc, o, width, height), nil
}

func (s *Session) renderTarget(renderer, swapchain Handle) (*render.Renderer, *gpu.Swapchain, error) {
	r, err := get[*render.Renderer](s, renderer, kindRenderer)
	if err != nil {
		return nil, nil, err
	}
	sc, err := get[*gpu.Swapchain](s, swapchain, kindSwapchain)
	if err != nil {
		return nil, nil, err
	}
	return r, sc, nil
}

// ReleaseFrame releases a frame without rendering it.
func (s *Session) ReleaseFrame(h Handle) {
	destroy(s, h, kindFrame, (*decode.Frame).Release)
}

// CreateDecoder creates an uninitialized decoder using the runtime's
// decoder registry.
func (s *Session) CreateDecoder(logger Handle) (Handle, error) {
	l, err := get[*vlog.Logger](s, logger, kindLogger)
	if err != nil {
		return Null, err
	}
	src, err := decode.NewSource(l, decode.WithRegistry(s.rt.Decoders()))
	if err != nil {
		return Null, err
	}
	return s.insert(kindDecoder, src), nil
}

// DecoderConfig is decode.Config with handles in place of resources.
type DecoderConfig struct {
	// Device enables hardware decoding into its memory. Null selects
	// software.
	Device   Handle
	Input    []byte
	Listener decode.Listener
	Codec    decode.Codec
	Width    int
	Height   int

	UseSoftware    bool
	EnableFallback bool

	// Logger overrides the decoder's logger for this session when not Null.
	Logger   Handle
	CPUCount int
}

// InitializeDecoder opens a decoding session, disposing any active one.
func (s *Session) InitializeDecoder(decoder Handle, cfg DecoderConfig) (bool, error) {
	src, err := get[*decode.Source](s, decoder, kindDecoder)
	if err != nil {
		return false, err
	}
	dev, err := optional[*gpu.Device](s, cfg.Device, kindDevice)
	if err != nil {
		return false, err
	}
	l, err := optional[*vlog.Logger](s, cfg.Logger, kindLogger)
	if err != nil {
		return false, err
	}
	dc := decode.Config{
		Input:          cfg.Input,
		Listener:       cfg.Listener,
		Codec:          cfg.Codec,
		Width:          cfg.Width,
		Height:         cfg.Height,
		UseSoftware:    cfg.UseSoftware,
		EnableFallback: cfg.EnableFallback,
		Log:            l,
		CPUCount:       cfg.CPUCount,
	}
	if dev != nil {
		dc.Surface = dev
	}
	return src.Initialize(dc), nil
}

// DecodeNextFrame sends Input[:limit] and returns a handle to the decoded
// frame, or Null when none is ready. It panics with
// decode.ErrNotInitialized before InitializeDecoder.
func (s *Session) DecodeNextFrame(decoder Handle, keyframe bool, limit int) (Handle, error) {
	src, err := get[*decode.Source](s, decoder, kindDecoder)
	if err != nil {
		return Null, err
	}
	f := src.DecodeNext(keyframe, limit)
	if f == nil {
		return Null, nil
	}
	return s.insert(kindFrame, f), nil
}

// DecoderState returns the decoder's state.
func (s *Session) DecoderState(decoder Handle) (decode.State, error) {
	src, err := get[*decode.Source](s, decoder, kindDecoder)
	if err != nil {
		return decode.StateUninitialized, err
	}
	return src.State(), nil
}

// ReleaseDecoder disposes and destroys the decoder. Frames decoded
// earlier stay valid until released.
func (s *Session) ReleaseDecoder(h Handle) {
	destroy(s, h, kindDecoder, (*decode.Source).Destroy)
}

// CreateUI creates an overlay on the device with labels for locale.
func (s *Session) CreateUI(device, logger Handle, locale string) (Handle, error) {
	dev, err := get[*gpu.Device](s, device, kindDevice)
	if err != nil {
		return Null, err
	}
	l, err := get[*vlog.Logger](s, logger, kindLogger)
	if err != nil {
		return Null, err
	}
	o, err := ui.NewOverlay(dev, l, locale)
	if err != nil {
		return Null, err
	}
	return s.insert(kindOverlay, o), nil
}

// DestroyUI destroys the overlay and its stored image views.
func (s *Session) DestroyUI(h Handle) {
	destroy(s, h, kindOverlay, (*ui.Overlay).Destroy)
}

// UpdateUIState applies state to the overlay and reports whether the
// displayed state changed. Updating the Null handle panics with
// ui.ErrNilOverlay.
func (s *Session) UpdateUIState(overlay Handle, state ui.State) (bool, error) {
	if overlay == Null {
		var o *ui.Overlay
		return o.Update(state), nil
	}
	o, err := get[*ui.Overlay](s, overlay, kindOverlay)
	if err != nil {
		return false, err
	}
	return o.Update(state), nil
}

// StoreImageView hands view to the overlay for button. The overlay owns it
// from then on.
func (s *Session) StoreImageView(overlay Handle, view gpucontext.TextureView, b ui.Button) error {
	o, err := get[*ui.Overlay](s, overlay, kindOverlay)
	if err != nil {
		return err
	}
	return o.StoreImageView(view, b)
}

// DestroyStoredImageViews drops every view stored in the overlay.
func (s *Session) DestroyStoredImageViews(overlay Handle) error {
	o, err := get[*ui.Overlay](s, overlay, kindOverlay)
	if err != nil {
		return err
	}
	o.DestroyStoredImageViews()
	return nil
}

// Close destroys every live handle, dependents first.
func (s *Session) Close() {
	for _, k := range closeOrder {
		var hs []Handle
		s.handles.Each(func(h arena.Handle, e entry) {
			if e.kind == k {
				hs = append(hs, Handle(h))
			}
		})
		for i := len(hs) - 1; i >= 0; i-- {
			s.destroyAny(hs[i], k)
		}
	}
}

func (s *Session) destroyAny(h Handle, k kind) {
	switch k {
	case kindFrame:
		s.ReleaseFrame(h)
	case kindRenderer:
		s.DestroyRenderer(h)
	case kindOverlay:
		s.DestroyUI(h)
	case kindSwapchain:
		s.DestroySwapchain(h)
	case kindDecoder:
		s.ReleaseDecoder(h)
	case kindCache:
		s.DestroyCache(h)
	case kindDevice:
		s.DestroyDevice(h)
	case kindSurface:
		s.DestroySurface(h)
	case kindInstance:
		s.DestroyInstance(h)
	case kindLogger:
		s.DestroyLogger(h)
	}
}
