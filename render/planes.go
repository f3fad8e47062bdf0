package render

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vidpipe/decode"
)

// planeFormats returns the texture format of each plane of f.
func planeFormats(f decode.PixelFormat) ([]gputypes.TextureFormat, error) {
	switch f {
	case decode.FormatNV12:
		return []gputypes.TextureFormat{gputypes.TextureFormatR8Unorm, gputypes.TextureFormatRG8Unorm}, nil
	case decode.FormatP010:
		return []gputypes.TextureFormat{gputypes.TextureFormatR16Unorm, gputypes.TextureFormatRG16Unorm}, nil
	case decode.FormatI420:
		return []gputypes.TextureFormat{gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR8Unorm}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
}

// bitDepth returns the significant bits per sample of f.
func bitDepth(f decode.PixelFormat) int {
	if f == decode.FormatP010 {
		return 10
	}
	return 8
}

// planeSet is the upload destination of software frames of one format and
// size. It is recreated when either changes.
type planeSet struct {
	format decode.PixelFormat
	width  int
	height int
	tex    []hal.Texture
	views  []hal.TextureView
}

func (ps *planeSet) matches(f *decode.Frame) bool {
	return ps != nil && ps.format == f.Format && ps.width == f.Width && ps.height == f.Height
}

func newPlaneSet(device hal.Device, f *decode.Frame) (*planeSet, error) {
	formats, err := planeFormats(f.Format)
	if err != nil {
		return nil, err
	}
	ps := &planeSet{format: f.Format, width: f.Width, height: f.Height}
	for i, tf := range formats {
		w, h := f.Format.PlaneSize(i, f.Width, f.Height)
		tex, err := device.CreateTexture(&hal.TextureDescriptor{
			Label:         fmt.Sprintf("plane%d", i),
			Size:          hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        tf,
			Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
		})
		if err != nil {
			ps.destroy(device)
			return nil, fmt.Errorf("render: create plane %d: %w", i, err)
		}
		ps.tex = append(ps.tex, tex)
		view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
			Label:           fmt.Sprintf("plane%d", i),
			Format:          tf,
			Dimension:       gputypes.TextureViewDimension2D,
			Aspect:          gputypes.TextureAspectAll,
			MipLevelCount:   1,
			ArrayLayerCount: 1,
		})
		if err != nil {
			ps.destroy(device)
			return nil, fmt.Errorf("render: create plane %d view: %w", i, err)
		}
		ps.views = append(ps.views, view)
	}
	return ps, nil
}

// upload writes every plane of f.
func (ps *planeSet) upload(queue hal.Queue, f *decode.Frame) error {
	for i, p := range f.Planes {
		w, h := f.Format.PlaneSize(i, f.Width, f.Height)
		err := queue.WriteTexture(
			&hal.ImageCopyTexture{Texture: ps.tex[i], Aspect: gputypes.TextureAspectAll},
			p.Data,
			&hal.ImageDataLayout{BytesPerRow: uint32(p.Stride), RowsPerImage: uint32(h)},
			&hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1})
		if err != nil {
			return fmt.Errorf("render: upload plane %d: %w", i, err)
		}
	}
	return nil
}

func (ps *planeSet) destroy(device hal.Device) {
	if ps == nil {
		return
	}
	for _, v := range ps.views {
		device.DestroyTextureView(v)
	}
	for _, t := range ps.tex {
		device.DestroyTexture(t)
	}
	ps.views, ps.tex = nil, nil
}

// bindViews expands plane views to the Y, U, V bindings of the video shader.
func bindViews(views []hal.TextureView) [3]hal.TextureView {
	if len(views) == 2 {
		return [3]hal.TextureView{views[0], views[1], views[1]}
	}
	return [3]hal.TextureView{views[0], views[1], views[2]}
}
