package gpu

import (
	"sort"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vidpipe/decode"
)

// DecoderRequirements describes the video decode the device must serve.
type DecoderRequirements struct {
	Codec    decode.Codec
	Hardware bool
}

// DecodeCaps is an adapter's hardware video decode support.
type DecodeCaps struct {
	Codecs []decode.Codec
	Queues int
}

// Supports reports whether codec can be decoded in hardware.
func (c DecodeCaps) Supports(codec decode.Codec) bool {
	if c.Queues <= 0 {
		return false
	}
	for _, have := range c.Codecs {
		if have == codec {
			return true
		}
	}
	return false
}

// DecodeProber reports the hardware decode capabilities of an adapter.
type DecodeProber func(info gputypes.AdapterInfo) DecodeCaps

// DefaultDecodeProber assumes every GPU decodes H.264 and HEVC on one queue
// and that CPU and unidentified adapters decode nothing.
func DefaultDecodeProber(info gputypes.AdapterInfo) DecodeCaps {
	switch info.DeviceType {
	case gputypes.DeviceTypeCPU, gputypes.DeviceTypeOther:
		return DecodeCaps{}
	default:
		return DecodeCaps{Codecs: []decode.Codec{decode.CodecH264, decode.CodecHEVC}, Queues: 1}
	}
}

// hdrFormats are the render formats accepted as HDR-capable, in preference order.
var hdrFormats = []gputypes.TextureFormat{
	gputypes.TextureFormatRGBA16Float,
	gputypes.TextureFormatRGB10A2Unorm,
}

// sdrFormats are the preferred SDR presentation formats.
var sdrFormats = []gputypes.TextureFormat{
	gputypes.TextureFormatBGRA8Unorm,
	gputypes.TextureFormatRGBA8Unorm,
}

func supportsHDR(a hal.Adapter) bool {
	for _, f := range hdrFormats {
		if a.TextureFormatCapabilities(f).Flags&hal.TextureFormatCapabilityRenderAttachment != 0 {
			return true
		}
	}
	return false
}

// typeRank orders device types: discrete first, then integrated, then the rest.
func typeRank(t gputypes.DeviceType) int {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return 0
	case gputypes.DeviceTypeIntegratedGPU:
		return 1
	default:
		return 2
	}
}

type candidate struct {
	index   int
	adapter hal.ExposedAdapter
	caps    DecodeCaps
	surface *hal.SurfaceCapabilities
}

// selectAdapter filters adapters and applies the tie-break: device type,
// then decode queue count, then enumeration order.
func selectAdapter(adapters []hal.ExposedAdapter, surface hal.Surface, req DecoderRequirements, hdr bool, probe DecodeProber) (candidate, bool) {
	log := slogger()
	var pool []candidate
	for i, a := range adapters {
		c := candidate{index: i, adapter: a, caps: probe(a.Info)}
		if surface != nil {
			c.surface = a.Adapter.SurfaceCapabilities(surface)
			if c.surface == nil {
				log.Debug("adapter rejected", "adapter", a.Info.Name, "reason", "not presentable")
				continue
			}
		}
		if hdr && !supportsHDR(a.Adapter) {
			log.Debug("adapter rejected", "adapter", a.Info.Name, "reason", "no HDR render format")
			continue
		}
		if req.Hardware && !c.caps.Supports(req.Codec) {
			log.Debug("adapter rejected", "adapter", a.Info.Name, "reason", "no hardware decode", "codec", req.Codec.String())
			continue
		}
		pool = append(pool, c)
	}
	if len(pool) == 0 {
		return candidate{}, false
	}
	sort.SliceStable(pool, func(i, j int) bool {
		ri, rj := typeRank(pool[i].adapter.Info.DeviceType), typeRank(pool[j].adapter.Info.DeviceType)
		if ri != rj {
			return ri < rj
		}
		return pool[i].caps.Queues > pool[j].caps.Queues
	})
	return pool[0], true
}

// chooseSurfaceFormat picks the presentation format from what the surface
// reports. HDR prefers RGBA16Float then RGB10A2Unorm, SDR prefers BGRA8Unorm
// then RGBA8Unorm, otherwise the first reported format wins.
func chooseSurfaceFormat(available []gputypes.TextureFormat, hdr bool) gputypes.TextureFormat {
	prefs := sdrFormats
	if hdr {
		prefs = append(append([]gputypes.TextureFormat(nil), hdrFormats...), sdrFormats...)
	}
	for _, want := range prefs {
		for _, f := range available {
			if f == want {
				return f
			}
		}
	}
	if len(available) > 0 {
		return available[0]
	}
	if hdr {
		return gputypes.TextureFormatRGBA16Float
	}
	return gputypes.TextureFormatBGRA8Unorm
}

// formatName names the formats the pipeline selects between.
func formatName(f gputypes.TextureFormat) string {
	switch f {
	case gputypes.TextureFormatRGBA16Float:
		return "rgba16float"
	case gputypes.TextureFormatRGB10A2Unorm:
		return "rgb10a2unorm"
	case gputypes.TextureFormatBGRA8Unorm:
		return "bgra8unorm"
	case gputypes.TextureFormatRGBA8Unorm:
		return "rgba8unorm"
	default:
		return "other"
	}
}
