package render

import "fmt"

// Boundary codes for color transfer and range. They follow the
// MediaFormat constants hosts already receive from their decoders.
const (
	TransferCodeSDR    = 3
	TransferCodeST2084 = 6

	RangeCodeUnspecified = 0
	RangeCodeFull        = 1
	RangeCodeLimited     = 2
)

// Transfer is the electro-optical transfer function of the source.
type Transfer int

const (
	TransferGamma22 Transfer = iota
	TransferPQ
)

func (t Transfer) String() string {
	switch t {
	case TransferGamma22:
		return "gamma2.2"
	case TransferPQ:
		return "pq"
	default:
		return fmt.Sprintf("Transfer(%d)", int(t))
	}
}

// Primaries are the color primaries of the source.
type Primaries int

const (
	PrimariesBT709 Primaries = iota
	PrimariesBT2020
)

func (p Primaries) String() string {
	if p == PrimariesBT2020 {
		return "bt2020"
	}
	return "bt709"
}

// Matrix is the YCbCr to RGB matrix of the source.
type Matrix int

const (
	MatrixBT709 Matrix = iota
	MatrixBT2020NC
)

func (m Matrix) String() string {
	if m == MatrixBT2020NC {
		return "bt2020nc"
	}
	return "bt709"
}

// Range is the quantization range of the source. Limited is the default.
type Range int

const (
	RangeLimited Range = iota
	RangeFull
)

func (r Range) String() string {
	if r == RangeFull {
		return "full"
	}
	return "limited"
}

// TransferFromCode maps a boundary transfer code. ST2084 selects PQ,
// anything else gamma 2.2.
func TransferFromCode(code int) Transfer {
	if code == TransferCodeST2084 {
		return TransferPQ
	}
	return TransferGamma22
}

// RangeFromCode maps a boundary range code. Only RangeCodeFull selects the
// full range; RangeCodeUnspecified and unknown codes fall back to limited,
// the range nearly all broadcast and streamed video uses. Hosts that treated
// every code other than RangeCodeLimited as full must pass RangeCodeFull
// explicitly.
func RangeFromCode(code int) Range {
	if code == RangeCodeFull {
		return RangeFull
	}
	return RangeLimited
}

// TransferForHDR returns the transfer code a host passes for its HDR toggle.
func TransferForHDR(hdr bool) int {
	if hdr {
		return TransferCodeST2084
	}
	return TransferCodeSDR
}

// ColorSpace is the color interpretation of one rendered frame. Primaries
// and matrix follow the transfer: PQ content is BT.2020, SDR content BT.709.
type ColorSpace struct {
	Transfer Transfer
	Range    Range
}

// ColorSpaceFor maps boundary codes. Codes are per call and never persist.
func ColorSpaceFor(transferCode, rangeCode int) ColorSpace {
	return ColorSpace{Transfer: TransferFromCode(transferCode), Range: RangeFromCode(rangeCode)}
}

// Primaries returns the source primaries.
func (c ColorSpace) Primaries() Primaries {
	if c.Transfer == TransferPQ {
		return PrimariesBT2020
	}
	return PrimariesBT709
}

// Matrix returns the source YCbCr matrix.
func (c ColorSpace) Matrix() Matrix {
	if c.Transfer == TransferPQ {
		return MatrixBT2020NC
	}
	return MatrixBT709
}

func (c ColorSpace) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", c.Transfer, c.Primaries(), c.Matrix(), c.Range)
}

// Quality is a rendering quality preset.
type Quality int

const (
	QualityFast Quality = iota
	QualityDefault
	QualityHigh
)

// Valid reports whether q is a known preset.
func (q Quality) Valid() bool { return q >= QualityFast && q <= QualityHigh }

func (q Quality) String() string {
	switch q {
	case QualityFast:
		return "fast"
	case QualityDefault:
		return "default"
	case QualityHigh:
		return "high"
	default:
		return fmt.Sprintf("Quality(%d)", int(q))
	}
}

// sharpen is the sharpening strength of the preset.
func (q Quality) sharpen() float32 {
	if q == QualityHigh {
		return 0.35
	}
	return 0
}

// Aspect controls how a frame is mapped onto the target.
type Aspect int

const (
	// AspectNormal keeps the frame's aspect with letterbox or pillarbox bars.
	AspectNormal Aspect = iota
	// AspectStretched fills the target ignoring aspect.
	AspectStretched
	// AspectZoomed fills the target keeping aspect, cropping the overflow.
	AspectZoomed
)

// Valid reports whether a is a known policy.
func (a Aspect) Valid() bool { return a >= AspectNormal && a <= AspectZoomed }

func (a Aspect) String() string {
	switch a {
	case AspectNormal:
		return "normal"
	case AspectStretched:
		return "stretched"
	case AspectZoomed:
		return "zoomed"
	default:
		return fmt.Sprintf("Aspect(%d)", int(a))
	}
}
