package decode

import "sync"

// Listener receives decoder lifecycle events. Methods run on the source's
// event goroutine, never on the goroutine calling DecodeNext.
type Listener interface {
	OnFirstFrameDecoded()
	OnIDRFrameNeeded()
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	FirstFrameDecoded func()
	IDRFrameNeeded    func()
}

func (l ListenerFuncs) OnFirstFrameDecoded() {
	if l.FirstFrameDecoded != nil {
		l.FirstFrameDecoded()
	}
}

func (l ListenerFuncs) OnIDRFrameNeeded() {
	if l.IDRFrameNeeded != nil {
		l.IDRFrameNeeded()
	}
}

// events runs callbacks in order on one goroutine. The queue is unbounded
// so post never blocks: it is called with the source lock held, and a
// listener may call back into the source.
type events struct {
	mu      sync.Mutex
	closed  bool
	pending []func()
	wake    chan struct{}
	done    chan struct{}
}

func newEvents() *events {
	e := &events{wake: make(chan struct{}, 1), done: make(chan struct{})}
	go e.run()
	return e
}

func (e *events) run() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.pending) == 0 && !e.closed {
			e.mu.Unlock()
			<-e.wake
			e.mu.Lock()
		}
		batch, closed := e.pending, e.closed
		e.pending = nil
		e.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
		if closed && len(batch) == 0 {
			return
		}
	}
}

func (e *events) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// post schedules fn. Posts after close are dropped.
func (e *events) post(fn func()) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.pending = append(e.pending, fn)
	e.mu.Unlock()
	e.signal()
}

// flush waits until everything posted so far has run.
func (e *events) flush() {
	ch := make(chan struct{})
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.pending = append(e.pending, func() { close(ch) })
	e.mu.Unlock()
	e.signal()
	<-ch
}

// close runs what is already queued, then stops the goroutine.
func (e *events) close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	e.mu.Unlock()
	e.signal()
	<-e.done
}
