package loop

import (
	"sync"

	"github.com/gogpu/vidpipe/decode"
)

// mailbox hands frames from the decode goroutine to the render goroutine.
// It holds at most one frame; a newer frame replaces and releases an older
// one that was never taken.
type mailbox struct {
	mu      sync.Mutex
	frame   *decode.Frame
	dropped uint64
	ready   chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

func (m *mailbox) put(f *decode.Frame) {
	m.mu.Lock()
	old := m.frame
	m.frame = f
	if old != nil {
		m.dropped++
	}
	m.mu.Unlock()

	old.Release()
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// take returns the pending frame, transferring ownership, or nil.
func (m *mailbox) take() *decode.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.frame
	m.frame = nil
	return f
}

func (m *mailbox) pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frame != nil
}

func (m *mailbox) drops() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// drain releases the pending frame.
func (m *mailbox) drain() {
	m.take().Release()
}
