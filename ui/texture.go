package ui

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Texture is an RGBA8 overlay texture. It implements gpucontext.Texture and
// gpucontext.TextureUpdater.
type Texture struct {
	dev   hal.Device
	queue hal.Queue
	w, h  int

	mu        sync.Mutex
	tex       hal.Texture
	view      hal.TextureView
	destroyed bool
}

var (
	_ gpucontext.Texture        = (*Texture)(nil)
	_ gpucontext.TextureUpdater = (*Texture)(nil)
)

// NewTexture creates a w x h RGBA8 texture sampled by the overlay pass.
func NewTexture(dev hal.Device, queue hal.Queue, w, h int) (*Texture, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("ui: invalid texture size %dx%d", w, h)
	}
	tex, err := dev.CreateTexture(&hal.TextureDescriptor{
		Label:         "overlay",
		Size:          hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("ui: create texture: %w", err)
	}
	view, err := dev.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           "overlay",
		Format:          gputypes.TextureFormatRGBA8Unorm,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		dev.DestroyTexture(tex)
		return nil, fmt.Errorf("ui: create texture view: %w", err)
	}
	return &Texture{dev: dev, queue: queue, w: w, h: h, tex: tex, view: view}, nil
}

func (t *Texture) Width() int  { return t.w }
func (t *Texture) Height() int { return t.h }

// View returns the sampled view, nil once destroyed.
func (t *Texture) View() hal.TextureView {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view
}

// UpdateData uploads width*height*4 bytes of RGBA pixels.
func (t *Texture) UpdateData(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return ErrDestroyed
	}
	if len(data) != t.w*t.h*4 {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrDataSize, len(data), t.w*t.h*4)
	}
	return t.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.tex, Aspect: gputypes.TextureAspectAll},
		data,
		&hal.ImageDataLayout{BytesPerRow: uint32(t.w * 4), RowsPerImage: uint32(t.h)},
		&hal.Extent3D{Width: uint32(t.w), Height: uint32(t.h), DepthOrArrayLayers: 1})
}

// Destroy releases the GPU objects. Destroy is idempotent.
func (t *Texture) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return
	}
	t.destroyed = true
	t.dev.DestroyTextureView(t.view)
	t.dev.DestroyTexture(t.tex)
	t.view, t.tex = nil, nil
}

// ImageView wraps a HAL view as the opaque handle StoreImageView takes.
func ImageView(v hal.TextureView) gpucontext.TextureView {
	if v == nil {
		return gpucontext.TextureView{}
	}
	return gpucontext.NewTextureView(unsafe.Pointer(&v))
}

// HALView unwraps a handle made by ImageView.
func HALView(tv gpucontext.TextureView) hal.TextureView {
	if tv.IsNil() {
		return nil
	}
	return *(*hal.TextureView)(tv.Pointer())
}
