package render

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vidpipe/decode"
	"github.com/gogpu/vidpipe/lifecycle"
	"github.com/gogpu/vidpipe/shadercache"
	"github.com/gogpu/vidpipe/ui"
	"github.com/gogpu/vidpipe/vlog"
)

// Device is the GPU device a renderer draws with. *gpu.Device implements it.
type Device interface {
	lifecycle.Resource
	HALDevice() hal.Device
	HALQueue() hal.Queue
	// CheckLost marks the device lost when err reports device loss.
	CheckLost(err error) bool
	Lost() bool
}

// Target is the image a frame is drawn into. *gpu.Swapchain implements it:
// Target reports the image acquired by WaitToRender and Present consumes it.
type Target interface {
	Target() (view hal.TextureView, width, height int, ok bool)
	Format() gputypes.TextureFormat
	Present() error
}

// Overlay supplies the UI quads drawn over the video plane. *ui.Overlay
// implements it.
type Overlay interface {
	DrawList(width, height int) []ui.DrawItem
}

// Stats reports renderer counters.
type Stats struct {
	Frames   uint64
	Failures uint64
	// Pipelines is the number of target formats with built pipelines.
	Pipelines int
	// SPIRVModules counts shader modules built from cached SPIR-V.
	SPIRVModules int
}

// submission is one frame's command buffer and the bind groups it uses.
type submission struct {
	index  uint64
	cmd    hal.CommandBuffer
	groups []hal.BindGroup
}

// Renderer draws decoded frames and the overlay onto a target.
//
// Color transfer and range are per call; quality and aspect are renderer
// state set between frames. A Renderer is used from one render goroutine;
// its setters may be called from any goroutine.
type Renderer struct {
	node  *lifecycle.Node
	dev   Device
	hd    hal.Device
	queue hal.Queue
	log   *slog.Logger

	mu       sync.Mutex
	quality  Quality
	aspect   Aspect
	last     ColorSpace
	viewport image.Rectangle
	params   videoParams

	pipes    *pipelines
	planes   *planeSet
	video    hal.Buffer
	quads    hal.Buffer
	inflight []submission

	frames    uint64
	failures  uint64
	destroyed bool
}

// NewRenderer creates a renderer for dev. cache is optional; when given,
// shaders are compiled through it.
func NewRenderer(dev Device, logger *vlog.Logger, cache *shadercache.Cache) (*Renderer, error) {
	graph := lifecycle.GraphOf(dev)
	if graph == nil {
		return nil, fmt.Errorf("render: create renderer: %w", lifecycle.ErrDependencyDestroyed)
	}
	node, err := graph.Add("renderer", dev.Node(), logger.Node())
	if err != nil {
		return nil, fmt.Errorf("render: create renderer: %w", err)
	}
	r := &Renderer{
		node:    node,
		dev:     dev,
		hd:      dev.HALDevice(),
		queue:   dev.HALQueue(),
		log:     resourceLogger(logger, "renderer"),
		quality: QualityDefault,
		aspect:  AspectNormal,
	}
	if err := r.init(cache); err != nil {
		r.release()
		node.Release()
		return nil, err
	}
	r.log.Debug("renderer created", "cache", cache != nil)
	return r, nil
}

func (r *Renderer) init(cache *shadercache.Cache) error {
	var err error
	if r.pipes, err = newPipelines(r.hd, cache, r.log); err != nil {
		return err
	}
	r.video, err = r.hd.CreateBuffer(&hal.BufferDescriptor{
		Label: "video_params",
		Size:  videoParamsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("render: create video params: %w", err)
	}
	r.quads, err = r.hd.CreateBuffer(&hal.BufferDescriptor{
		Label: "overlay_quads",
		Size:  quadStride * maxOverlayQuads,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("render: create overlay params: %w", err)
	}
	return nil
}

// Node returns the renderer's lifecycle node.
func (r *Renderer) Node() *lifecycle.Node {
	if r == nil {
		return nil
	}
	return r.node
}

// SetQualityPreset selects the sampling preset. Unknown values are logged
// as caller errors and leave the preset unchanged.
func (r *Renderer) SetQualityPreset(q Quality) bool {
	if !q.Valid() {
		r.log.Error("unknown quality preset ignored", "value", int(q))
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.quality != q {
		r.log.Debug("quality preset", "from", r.quality.String(), "to", q.String())
		r.quality = q
	}
	return true
}

// Quality returns the current preset.
func (r *Renderer) Quality() Quality {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.quality
}

// SetAspect selects the aspect policy. Unknown values are logged as caller
// errors and leave the policy unchanged.
func (r *Renderer) SetAspect(a Aspect) bool {
	if !a.Valid() {
		r.log.Error("unknown rendering format ignored", "value", int(a))
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.aspect != a {
		r.log.Debug("rendering format", "from", r.aspect.String(), "to", a.String())
		r.aspect = a
	}
	return true
}

// Aspect returns the current aspect policy.
func (r *Renderer) Aspect() Aspect {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aspect
}

// LastColorSpace returns the color space of the last rendered video frame.
func (r *Renderer) LastColorSpace() ColorSpace {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// LastViewport returns the destination rectangle of the last video frame.
func (r *Renderer) LastViewport() image.Rectangle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewport
}

// Stats returns the renderer counters.
func (r *Renderer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{Frames: r.frames, Failures: r.failures}
	if r.pipes != nil {
		s.Pipelines = len(r.pipes.byFormat)
		s.SPIRVModules = r.pipes.spirv
	}
	return s
}

// RenderFrame draws frame into the target image acquired for a width x
// height frame and presents it. transfer and rng are boundary codes (see
// ColorSpaceFor) applied to this call only.
//
// It returns false on transient failures (no acquired image, size mismatch,
// invalid or released frame, failed submit) and, after marking the device
// lost, on device loss. The frame stays owned by the caller.
func (r *Renderer) RenderFrame(t Target, frame *decode.Frame, width, height, transfer, rng int) bool {
	if frame == nil {
		r.log.Debug("render skipped", "err", "nil frame")
		return false
	}
	return r.render(t, frame, nil, width, height, ColorSpaceFor(transfer, rng))
}

// RenderFrameWithOverlay is RenderFrame followed by the overlay's quads in
// draw-list order.
func (r *Renderer) RenderFrameWithOverlay(t Target, frame *decode.Frame, o Overlay, width, height, transfer, rng int) bool {
	if frame == nil {
		r.log.Debug("render skipped", "err", "nil frame")
		return false
	}
	return r.render(t, frame, o, width, height, ColorSpaceFor(transfer, rng))
}

// RenderUIOnly clears the target to black and draws only the overlay.
func (r *Renderer) RenderUIOnly(t Target, o Overlay, width, height int) bool {
	return r.render(t, nil, o, width, height, ColorSpace{})
}

func (r *Renderer) render(t Target, frame *decode.Frame, o Overlay, width, height int, cs ColorSpace) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		panic(ErrDestroyed)
	}
	if r.dev.Lost() {
		return false
	}
	if frame != nil {
		if err := frame.Validate(); err != nil {
			r.failures++
			r.log.Debug("frame rejected", "err", err)
			return false
		}
	}
	view, tw, th, ok := t.Target()
	if !ok {
		r.log.Debug("render skipped", "err", ErrNoTarget)
		return false
	}
	if tw != width || th != height {
		r.log.Debug("render skipped", "err", ErrTargetSize, "want", fmt.Sprintf("%dx%d", width, height), "have", fmt.Sprintf("%dx%d", tw, th))
		return false
	}

	r.reclaimLocked(false)
	if err := r.drawLocked(t, view, frame, o, width, height, cs); err != nil {
		return r.failLocked(err)
	}
	if err := t.Present(); err != nil {
		return r.failLocked(err)
	}
	r.frames++
	return true
}

func (r *Renderer) failLocked(err error) bool {
	r.failures++
	if r.dev.CheckLost(err) {
		return false
	}
	r.log.Warn("render failed", "err", err)
	return false
}

func (r *Renderer) drawLocked(t Target, view hal.TextureView, frame *decode.Frame, o Overlay, width, height int, cs ColorSpace) error {
	format := t.Format()
	tp, err := r.pipes.forTarget(format)
	if err != nil {
		return err
	}
	linear := linearFormat(format)

	var groups []hal.BindGroup
	defer func() {
		// Groups not handed to a submission are dropped here.
		for _, g := range groups {
			r.hd.DestroyBindGroup(g)
		}
	}()

	var videoGroup hal.BindGroup
	var dst image.Rectangle
	if frame != nil {
		views, err := r.planeViewsLocked(frame)
		if err != nil {
			return err
		}
		var crop Crop
		dst, crop = Viewport(frame.Width, frame.Height, width, height, r.aspect)
		semi := frame.Format != decode.FormatI420
		params := newVideoParams(cs, crop, r.quality, frame.Width, frame.Height, bitDepth(frame.Format), semi, linear)
		if err := r.queue.WriteBuffer(r.video, 0, params.bytes()); err != nil {
			return fmt.Errorf("render: write video params: %w", err)
		}
		bound := bindViews(views)
		videoGroup, err = r.hd.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  "video",
			Layout: r.pipes.videoLayout,
			Entries: []gputypes.BindGroupEntry{
				{Binding: 0, Resource: gputypes.BufferBinding{Buffer: r.video.NativeHandle(), Size: videoParamsSize}},
				{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: r.pipes.samplerFor(r.quality).NativeHandle()}},
				{Binding: 2, Resource: gputypes.TextureViewBinding{TextureView: bound[0].NativeHandle()}},
				{Binding: 3, Resource: gputypes.TextureViewBinding{TextureView: bound[1].NativeHandle()}},
				{Binding: 4, Resource: gputypes.TextureViewBinding{TextureView: bound[2].NativeHandle()}},
			},
		})
		if err != nil {
			return fmt.Errorf("render: create video bind group: %w", err)
		}
		groups = append(groups, videoGroup)
		r.params = params
	}

	var items []ui.DrawItem
	if o != nil {
		items = o.DrawList(width, height)
		if len(items) > maxOverlayQuads {
			r.log.Debug("overlay truncated", "items", len(items), "max", maxOverlayQuads)
			items = items[:maxOverlayQuads]
		}
	}
	quadGroups := make([]hal.BindGroup, 0, len(items))
	if len(items) > 0 {
		data := make([]byte, quadStride*len(items))
		for i, it := range items {
			copy(data[i*quadStride:], quadParams(it.Rect, width, height, linear))
		}
		if err := r.queue.WriteBuffer(r.quads, 0, data); err != nil {
			return fmt.Errorf("render: write overlay params: %w", err)
		}
		for i, it := range items {
			g, err := r.hd.CreateBindGroup(&hal.BindGroupDescriptor{
				Label:  "overlay_quad",
				Layout: r.pipes.overlayLayout,
				Entries: []gputypes.BindGroupEntry{
					{Binding: 0, Resource: gputypes.BufferBinding{Buffer: r.quads.NativeHandle(), Offset: uint64(i * quadStride), Size: quadParamsSize}},
					{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: r.pipes.linear.NativeHandle()}},
					{Binding: 2, Resource: gputypes.TextureViewBinding{TextureView: it.View.NativeHandle()}},
				},
			})
			if err != nil {
				return fmt.Errorf("render: create overlay bind group: %w", err)
			}
			groups = append(groups, g)
			quadGroups = append(quadGroups, g)
		}
	}

	encoder, err := r.hd.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "frame_encoder"})
	if err != nil {
		return fmt.Errorf("render: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("frame"); err != nil {
		return fmt.Errorf("render: begin encoding: %w", err)
	}
	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "frame_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	})
	if videoGroup != nil && !dst.Empty() {
		rp.SetViewport(float32(dst.Min.X), float32(dst.Min.Y), float32(dst.Dx()), float32(dst.Dy()), 0, 1)
		rp.SetPipeline(tp.video)
		rp.SetBindGroup(0, videoGroup, nil)
		rp.Draw(6, 1, 0, 0)
	}
	if len(quadGroups) > 0 {
		rp.SetViewport(0, 0, float32(width), float32(height), 0, 1)
		rp.SetPipeline(tp.overlay)
		for _, g := range quadGroups {
			rp.SetBindGroup(0, g, nil)
			rp.Draw(6, 1, 0, 0)
		}
	}
	rp.End()

	cmd, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("render: end encoding: %w", err)
	}
	index, err := r.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		r.hd.FreeCommandBuffer(cmd)
		return fmt.Errorf("render: submit: %w", err)
	}
	r.inflight = append(r.inflight, submission{index: index, cmd: cmd, groups: groups})
	groups = nil

	if frame != nil {
		r.last = cs
		r.viewport = dst
	}
	return nil
}

// planeViewsLocked returns the views to sample frame from, uploading
// software planes first.
func (r *Renderer) planeViewsLocked(frame *decode.Frame) ([]hal.TextureView, error) {
	if frame.Hardware() {
		return frame.Views, nil
	}
	if !r.planes.matches(frame) {
		if r.planes != nil {
			// The old planes may still be sampled by queued work.
			if err := r.hd.WaitIdle(); err != nil {
				return nil, fmt.Errorf("render: wait idle: %w", err)
			}
			r.reclaimLocked(true)
			r.planes.destroy(r.hd)
			r.planes = nil
		}
		ps, err := newPlaneSet(r.hd, frame)
		if err != nil {
			return nil, err
		}
		r.planes = ps
		r.log.Debug("plane textures", "format", frame.Format.String(), "width", frame.Width, "height", frame.Height)
	}
	if err := r.planes.upload(r.queue, frame); err != nil {
		return nil, err
	}
	return r.planes.views, nil
}

// reclaimLocked frees submissions the GPU has finished, or all of them.
func (r *Renderer) reclaimLocked(all bool) {
	done := r.queue.PollCompleted()
	kept := r.inflight[:0]
	for _, s := range r.inflight {
		if !all && s.index > done {
			kept = append(kept, s)
			continue
		}
		for _, g := range s.groups {
			r.hd.DestroyBindGroup(g)
		}
		r.hd.FreeCommandBuffer(s.cmd)
	}
	clear(r.inflight[len(kept):])
	r.inflight = kept
}

// InFlight returns the number of submissions not yet reclaimed.
func (r *Renderer) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

// Destroy waits for queued work and releases the renderer. Destroy is
// idempotent.
func (r *Renderer) Destroy() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}
	r.node.Release()
	r.destroyed = true
	if !r.dev.Lost() {
		if err := r.hd.WaitIdle(); err != nil && !errors.Is(err, hal.ErrDeviceLost) {
			r.log.Warn("wait idle before destroy", "err", err)
		}
	}
	r.release()
	r.log.Debug("renderer destroyed", "frames", r.frames)
}

func (r *Renderer) release() {
	r.reclaimLocked(true)
	r.planes.destroy(r.hd)
	r.planes = nil
	if r.quads != nil {
		r.hd.DestroyBuffer(r.quads)
		r.quads = nil
	}
	if r.video != nil {
		r.hd.DestroyBuffer(r.video)
		r.video = nil
	}
	if r.pipes != nil {
		r.pipes.destroy()
		r.pipes = nil
	}
}
