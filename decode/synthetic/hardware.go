package synthetic

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vidpipe/decode"
)

// gpuFrame uploads the pattern into one texture per plane, reserving a slot
// in the frames context until the frame is released.
func (d *decoder) gpuFrame(seq uint32) (*decode.Frame, error) {
	free, err := d.cfg.Frames.Acquire()
	if err != nil {
		return nil, err
	}
	dev, queue := d.cfg.HW.HALDevice(), d.cfg.HW.HALQueue()
	w, h := d.cfg.Width, d.cfg.Height
	y, uv := Pattern(w, h, seq)

	planes := []struct {
		format        gputypes.TextureFormat
		width, height int
		bpp           int
		data          []byte
	}{
		{gputypes.TextureFormatR8Unorm, w, h, 1, y},
		{gputypes.TextureFormatRG8Unorm, (w + 1) / 2, (h + 1) / 2, 2, uv},
	}

	var textures []hal.Texture
	var views []hal.TextureView
	cleanup := func() {
		for _, v := range views {
			dev.DestroyTextureView(v)
		}
		for _, t := range textures {
			dev.DestroyTexture(t)
		}
		free()
	}

	for i, p := range planes {
		size := hal.Extent3D{Width: uint32(p.width), Height: uint32(p.height), DepthOrArrayLayers: 1}
		tex, err := dev.CreateTexture(&hal.TextureDescriptor{
			Label:         fmt.Sprintf("synthetic plane %d", i),
			Size:          size,
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        p.format,
			Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
		})
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("synthetic: plane %d texture: %w", i, err)
		}
		textures = append(textures, tex)

		err = queue.WriteTexture(
			&hal.ImageCopyTexture{Texture: tex, Aspect: gputypes.TextureAspectAll},
			p.data,
			&hal.ImageDataLayout{BytesPerRow: uint32(p.width * p.bpp), RowsPerImage: uint32(p.height)},
			&size)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("synthetic: plane %d upload: %w", i, err)
		}

		view, err := dev.CreateTextureView(tex, &hal.TextureViewDescriptor{
			Format:          p.format,
			Dimension:       gputypes.TextureViewDimension2D,
			Aspect:          gputypes.TextureAspectAll,
			MipLevelCount:   1,
			ArrayLayerCount: 1,
		})
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("synthetic: plane %d view: %w", i, err)
		}
		views = append(views, view)
	}

	f := decode.NewFrame(decode.FormatNV12, w, h, cleanup)
	f.Views = views
	return f, nil
}
