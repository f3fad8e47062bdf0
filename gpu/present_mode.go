package gpu

import "github.com/gogpu/gputypes"

// PresentMode is the requested presentation mode. The non-negative values
// are part of the integer boundary; PresentModeBest picks by vsync.
type PresentMode int

const (
	PresentModeBest        PresentMode = -1
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

func (m PresentMode) hal() (gputypes.PresentMode, bool) {
	switch m {
	case PresentModeImmediate:
		return gputypes.PresentModeImmediate, true
	case PresentModeMailbox:
		return gputypes.PresentModeMailbox, true
	case PresentModeFifo:
		return gputypes.PresentModeFifo, true
	case PresentModeFifoRelaxed:
		return gputypes.PresentModeFifoRelaxed, true
	default:
		return 0, false
	}
}

// ChoosePresentMode applies the "best" policy to the modes a surface
// supports. With vsync it prefers Mailbox, else Fifo. Without vsync it
// prefers Immediate, then Mailbox, then Fifo. Fifo is always the answer of
// last resort.
func ChoosePresentMode(available []gputypes.PresentMode, vsync bool) gputypes.PresentMode {
	prefs := []gputypes.PresentMode{gputypes.PresentModeImmediate, gputypes.PresentModeMailbox}
	if vsync {
		prefs = []gputypes.PresentMode{gputypes.PresentModeMailbox}
	}
	for _, want := range prefs {
		if hasMode(available, want) {
			return want
		}
	}
	return gputypes.PresentModeFifo
}

// resolvePresentMode maps a requested mode onto a supported one. Explicit
// modes the surface lacks fall back to Fifo. An empty available list means
// the surface did not report modes and any request is passed through.
func resolvePresentMode(req PresentMode, vsync bool, available []gputypes.PresentMode) gputypes.PresentMode {
	want, ok := req.hal()
	if !ok {
		return ChoosePresentMode(available, vsync)
	}
	if len(available) == 0 || hasMode(available, want) {
		return want
	}
	return gputypes.PresentModeFifo
}

func hasMode(modes []gputypes.PresentMode, m gputypes.PresentMode) bool {
	for _, have := range modes {
		if have == m {
			return true
		}
	}
	return false
}
