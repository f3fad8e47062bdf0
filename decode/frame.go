package decode

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"
)

// PixelFormat is the memory layout of a decoded frame.
type PixelFormat int

const (
	// FormatNV12 is 8-bit 4:2:0, a Y plane and an interleaved UV plane.
	FormatNV12 PixelFormat = iota
	// FormatI420 is 8-bit 4:2:0 with separate U and V planes.
	FormatI420
	// FormatP010 is 10-bit 4:2:0 in 16-bit little-endian words, NV12 layout.
	FormatP010
)

// String returns the format name.
func (f PixelFormat) String() string {
	switch f {
	case FormatNV12:
		return "nv12"
	case FormatI420:
		return "i420"
	case FormatP010:
		return "p010"
	default:
		return "unknown"
	}
}

// Planes returns the number of planes of the format.
func (f PixelFormat) Planes() int {
	if f == FormatI420 {
		return 3
	}
	return 2
}

// BytesPerSample returns the storage size of one luma sample.
func (f PixelFormat) BytesPerSample() int {
	if f == FormatP010 {
		return 2
	}
	return 1
}

// PlaneSize returns the width and height in samples of plane i for a frame
// of the given size. Chroma planes are subsampled by two, rounding up; NV12
// and P010 chroma samples are UV pairs.
func (f PixelFormat) PlaneSize(i, width, height int) (w, h int) {
	if i == 0 {
		return width, height
	}
	return (width + 1) / 2, (height + 1) / 2
}

// Plane is one CPU-resident plane of a software frame.
type Plane struct {
	Data   []byte
	Stride int
}

// Frame is a decoded picture. A frame is owned by exactly one consumer at a
// time and must be released once; Release is idempotent.
//
// Software frames carry Planes. Hardware frames carry Views, one per plane,
// owned by the decoder's frame pool.
type Frame struct {
	Format   PixelFormat
	Width    int
	Height   int
	Keyframe bool
	Seq      uint64

	Planes []Plane
	Views  []hal.TextureView

	release  func()
	released atomic.Bool
}

// NewFrame creates a frame whose release runs fn once.
func NewFrame(format PixelFormat, width, height int, fn func()) *Frame {
	return &Frame{Format: format, Width: width, Height: height, release: fn}
}

// Hardware reports whether the frame lives in GPU memory.
func (f *Frame) Hardware() bool { return len(f.Views) > 0 }

// Release returns the frame to its producer. Calling Release more than once,
// or on a nil frame, does nothing.
func (f *Frame) Release() {
	if f == nil || !f.released.CompareAndSwap(false, true) {
		return
	}
	if f.release != nil {
		f.release()
	}
}

// Released reports whether Release has been called.
func (f *Frame) Released() bool { return f.released.Load() }

// Validate checks that the frame can be rendered.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("decode: nil frame")
	}
	if f.Released() {
		return ErrFrameReleased
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("decode: frame size %dx%d", f.Width, f.Height)
	}
	n := f.Format.Planes()
	if f.Hardware() {
		if len(f.Views) != n {
			return fmt.Errorf("decode: %s frame has %d views, want %d", f.Format, len(f.Views), n)
		}
		return nil
	}
	if len(f.Planes) != n {
		return fmt.Errorf("decode: %s frame has %d planes, want %d", f.Format, len(f.Planes), n)
	}
	for i, p := range f.Planes {
		_, h := f.Format.PlaneSize(i, f.Width, f.Height)
		row := f.RowBytes(i)
		if p.Stride < row || len(p.Data) < p.Stride*(h-1)+row {
			return fmt.Errorf("decode: plane %d too small (%d bytes, stride %d)", i, len(p.Data), p.Stride)
		}
	}
	return nil
}

// RowBytes returns the packed row length in bytes of plane i.
func (f *Frame) RowBytes(i int) int {
	w, _ := f.Format.PlaneSize(i, f.Width, f.Height)
	row := w * f.Format.BytesPerSample()
	if i > 0 && f.Format != FormatI420 {
		row *= 2
	}
	return row
}
