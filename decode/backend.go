package decode

import (
	"log/slog"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vidpipe/lifecycle"
)

// Packet is one compressed access unit.
type Packet struct {
	Data     []byte
	Keyframe bool
}

// Decoder is an open decoding session, modeled on the send/receive API of
// common codec libraries. Send and Receive are called from one goroutine.
type Decoder interface {
	// Send queues a packet. It returns ErrAgain when pending output must be
	// received before more input is accepted.
	Send(p Packet) error
	// Receive returns the next decoded frame, or ErrAgain when the decoder
	// needs more input.
	Receive() (*Frame, error)
	// Close releases the session. Frames already returned stay valid.
	Close() error
}

// HWContext is the GPU device hardware decoders output into.
type HWContext interface {
	lifecycle.Resource
	HALDevice() hal.Device
	HALQueue() hal.Queue
}

// OpenConfig is what a Backend needs to open a Decoder.
type OpenConfig struct {
	Codec   Codec
	Width   int
	Height  int
	Threads int

	// HW and Frames are set for hardware decoders only.
	HW     HWContext
	Frames *FramesContext

	Log *slog.Logger
}

// Backend opens decoders of one implementation.
type Backend interface {
	Name() string
	Hardware() bool
	Open(cfg OpenConfig) (Decoder, error)
}
