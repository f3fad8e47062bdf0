// Package synthetic provides decode backends that turn packets into NV12
// test-pattern frames. They stand in for real codecs in tests and the demo.
//
// Every accepted packet yields one frame. A decoder produces nothing until
// it has seen a keyframe, and a packet written by Corrupt makes it lose sync
// until the next keyframe, like a real decoder after a stream discontinuity.
package synthetic

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/vidpipe/decode"
)

// HardwareName is the registry name of the GPU-backed variant.
const HardwareName = "synthetic-hw"

// PacketSize is the number of bytes Encode and Corrupt write.
const PacketSize = 5

const (
	markerFrame   = 'P'
	markerCorrupt = 0xFF
)

// ErrEmptyPacket is returned by Send for a zero-length packet.
var ErrEmptyPacket = errors.New("synthetic: empty packet")

// Encode writes a packet carrying seq into buf and returns its length.
func Encode(buf []byte, seq uint32) int {
	buf[0] = markerFrame
	binary.LittleEndian.PutUint32(buf[1:], seq)
	return PacketSize
}

// Corrupt writes a packet that breaks decoder sync and returns its length.
func Corrupt(buf []byte) int {
	buf[0] = markerCorrupt
	binary.LittleEndian.PutUint32(buf[1:], 0)
	return PacketSize
}

// Register adds the software backend (as decode.SoftwareName) and the
// hardware backend (as HardwareName) to r.
func Register(r *decode.Registry) {
	r.Register(decode.SoftwareName, func() decode.Backend { return Software() })
	r.Register(HardwareName, func() decode.Backend { return Hardware(nil) })
}

// Backend is a synthetic decode.Backend.
type Backend struct {
	hardware bool
	failOpen error
}

// Software returns the CPU variant.
func Software() *Backend { return &Backend{} }

// Hardware returns the GPU variant. A non-nil failOpen makes Open fail with
// it, for exercising fallback.
func Hardware(failOpen error) *Backend { return &Backend{hardware: true, failOpen: failOpen} }

func (b *Backend) Name() string {
	if b.hardware {
		return HardwareName
	}
	return decode.SoftwareName
}

func (b *Backend) Hardware() bool { return b.hardware }

func (b *Backend) Open(cfg decode.OpenConfig) (decode.Decoder, error) {
	if b.failOpen != nil {
		return nil, b.failOpen
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("synthetic: invalid size %dx%d", cfg.Width, cfg.Height)
	}
	if b.hardware && (cfg.HW == nil || cfg.Frames == nil) {
		return nil, errors.New("synthetic: hardware decoder needs a device and frames context")
	}
	return &decoder{cfg: cfg, hardware: b.hardware}, nil
}

type decoder struct {
	cfg      decode.OpenConfig
	hardware bool

	mu      sync.Mutex
	synced  bool
	pending *decode.Frame
	closed  bool
}

func (d *decoder) Send(p decode.Packet) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return decode.ErrClosed
	}
	if d.pending != nil {
		return decode.ErrAgain
	}
	if len(p.Data) == 0 {
		return ErrEmptyPacket
	}
	if p.Data[0] == markerCorrupt {
		d.synced = false
		return nil
	}
	if p.Keyframe {
		d.synced = true
	}
	if !d.synced {
		return nil
	}

	var seq uint32
	if len(p.Data) >= PacketSize {
		seq = binary.LittleEndian.Uint32(p.Data[1:])
	}
	var f *decode.Frame
	var err error
	if d.hardware {
		f, err = d.gpuFrame(seq)
	} else {
		f = cpuFrame(d.cfg.Width, d.cfg.Height, seq)
	}
	if err != nil {
		return err
	}
	f.Keyframe = p.Keyframe
	d.pending = f
	return nil
}

func (d *decoder) Receive() (*decode.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, decode.ErrClosed
	}
	if d.pending == nil {
		return nil, decode.ErrAgain
	}
	f := d.pending
	d.pending = nil
	return f, nil
}

func (d *decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.pending.Release()
	d.pending = nil
	return nil
}

// Pattern returns the NV12 planes of the test pattern for seq: a diagonal
// luma ramp shifted by seq and flat chroma derived from seq.
func Pattern(width, height int, seq uint32) (y, uv []byte) {
	y = make([]byte, width*height)
	for row := range height {
		for col := range width {
			y[row*width+col] = byte(col + 2*row + int(seq))
		}
	}
	cw, ch := (width+1)/2, (height+1)/2
	uv = make([]byte, cw*2*ch)
	for i := 0; i < len(uv); i += 2 {
		uv[i] = byte(64 + seq)
		uv[i+1] = byte(192 - seq)
	}
	return y, uv
}

func cpuFrame(width, height int, seq uint32) *decode.Frame {
	y, uv := Pattern(width, height, seq)
	f := decode.NewFrame(decode.FormatNV12, width, height, nil)
	f.Planes = []decode.Plane{
		{Data: y, Stride: width},
		{Data: uv, Stride: (width + 1) / 2 * 2},
	}
	return f
}
