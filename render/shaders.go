package render

import (
	_ "embed"
	"encoding/binary"
	"image"
	"math"

	"github.com/gogpu/gputypes"
)

//go:embed shaders/video.wgsl
var videoShaderSource string

//go:embed shaders/overlay.wgsl
var overlayShaderSource string

// Uniform block sizes. Must match VideoParams and QuadParams.
const (
	videoParamsSize = 7 * 16
	quadParamsSize  = 2 * 16

	// quadStride is the offset between per-quad uniform slots; bind group
	// buffer offsets must be 256-aligned.
	quadStride = 256

	// maxOverlayQuads bounds the overlay draw list of one frame.
	maxOverlayQuads = 16
)

// videoParams mirrors VideoParams in video.wgsl.
type videoParams struct {
	Crop   [4]float32
	Offset [4]float32
	Rows   [3][4]float32
	Mode   [4]float32
	Texel  [4]float32
}

// coefficients returns Kr and Kb of m.
func coefficients(m Matrix) (kr, kb float64) {
	if m == MatrixBT2020NC {
		return 0.2627, 0.0593
	}
	return 0.2126, 0.0722
}

// newVideoParams derives the shader constants for one frame. bitDepth is
// the significant bits per sample of the source (8 or 10).
func newVideoParams(cs ColorSpace, crop Crop, quality Quality, srcW, srcH, bitDepth int, semiPlanar, linearTarget bool) videoParams {
	kr, kb := coefficients(cs.Matrix())
	kg := 1 - kr - kb

	peak := math.Exp2(float64(bitDepth)) - 1
	step := math.Exp2(float64(bitDepth - 8))
	ys, cscale := 1.0, 1.0
	yo := 0.0
	co := 128 * step / peak
	if cs.Range == RangeLimited {
		ys = peak / (219 * step)
		cscale = peak / (224 * step)
		yo = 16 * step / peak
	}

	var p videoParams
	p.Crop = [4]float32{crop.X0, crop.Y0, crop.X1, crop.Y1}
	p.Offset = [4]float32{float32(yo), float32(co), float32(co), 0}
	p.Rows[0] = [4]float32{float32(ys), 0, float32(cscale * 2 * (1 - kr)), 0}
	p.Rows[1] = [4]float32{
		float32(ys),
		float32(-cscale * 2 * kb * (1 - kb) / kg),
		float32(-cscale * 2 * kr * (1 - kr) / kg),
		0,
	}
	p.Rows[2] = [4]float32{float32(ys), float32(cscale * 2 * (1 - kb)), 0, 0}
	p.Mode = [4]float32{
		flag(cs.Transfer == TransferPQ),
		flag(linearTarget),
		quality.sharpen(),
		flag(semiPlanar),
	}
	p.Texel = [4]float32{1 / float32(srcW), 1 / float32(srcH), 0, 0}
	return p
}

func (p *videoParams) bytes() []byte {
	b := make([]byte, 0, videoParamsSize)
	b = appendVec(b, p.Crop)
	b = appendVec(b, p.Offset)
	for _, r := range p.Rows {
		b = appendVec(b, r)
	}
	b = appendVec(b, p.Mode)
	return appendVec(b, p.Texel)
}

// quadParams returns QuadParams for r on a w x h target.
func quadParams(r image.Rectangle, w, h int, linearTarget bool) []byte {
	fw, fh := float32(w), float32(h)
	b := make([]byte, 0, quadParamsSize)
	b = appendVec(b, [4]float32{
		float32(r.Min.X)/fw*2 - 1,
		1 - float32(r.Min.Y)/fh*2,
		float32(r.Max.X)/fw*2 - 1,
		1 - float32(r.Max.Y)/fh*2,
	})
	return appendVec(b, [4]float32{flag(linearTarget), 0, 0, 0})
}

func appendVec(b []byte, v [4]float32) []byte {
	for _, f := range v {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	return b
}

func flag(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

// linearFormat reports whether writes to f are interpreted as linear light.
func linearFormat(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatRGBA16Float,
		gputypes.TextureFormatBGRA8UnormSrgb,
		gputypes.TextureFormatRGBA8UnormSrgb:
		return true
	}
	return false
}
