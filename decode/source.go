// Package decode adapts video decoders to the render pipeline.
//
// A Source owns one decoding session at a time. It picks a hardware or
// software Backend from a Registry, feeds it packets from a caller-owned
// input buffer and hands out Frames. Listener events (first frame decoded,
// keyframe needed) are delivered on a goroutine owned by the Source.
package decode

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/vidpipe/lifecycle"
	"github.com/gogpu/vidpipe/vlog"
)

// DefaultIDRThreshold is the number of consecutive non-keyframe packets
// without output after which a keyframe is requested.
//
// Detection stays armed after the first frame, so a stream that loses sync
// mid-playback recovers through OnIDRFrameNeeded. Any decoded frame resets
// the count. Decoders whose reorder delay can withhold output for this many
// packets mid-stream need a larger Config.IDRThreshold, or they are sent to
// NeedsKeyframe and drop packets until the next keyframe.
const DefaultIDRThreshold = 3

// State is the source's position in its state machine:
//
//	Uninitialized -> Initialized -> Decoding <-> NeedsKeyframe -> Decoding -> Disposed
type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateDecoding
	StateNeedsKeyframe
	StateDisposed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateDecoding:
		return "decoding"
	case StateNeedsKeyframe:
		return "needs-keyframe"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Config describes one decoding session.
type Config struct {
	// Surface is the GPU output of hardware decoding. Nil selects software.
	Surface HWContext
	// Input is the packet buffer; DecodeNext sends Input[:limit].
	Input    []byte
	Listener Listener
	Codec    Codec
	Width    int
	Height   int

	UseSoftware    bool
	EnableFallback bool

	// Log receives this session's records instead of the source's logger.
	Log *vlog.Logger
	// CPUCount is the software decoder thread count (minimum 1).
	CPUCount int
	// IDRThreshold defaults to DefaultIDRThreshold.
	IDRThreshold int
	// PoolSize is the hardware frame pool size, DefaultPoolSize when <= 0.
	PoolSize int
}

// SourceOption configures NewSource.
type SourceOption func(*sourceOptions)

type sourceOptions struct {
	registry *Registry
}

// WithRegistry selects backends from r instead of DefaultRegistry.
func WithRegistry(r *Registry) SourceOption {
	return func(o *sourceOptions) { o.registry = r }
}

// Source is the decoder adapter.
type Source struct {
	node     *lifecycle.Node
	registry *Registry
	baseLog  *slog.Logger
	events   *events

	state       atomic.Int32
	outstanding atomic.Int64

	mu         sync.Mutex
	log        *slog.Logger
	cfg        Config
	dec        Decoder
	backend    Backend
	frames     *FramesContext
	device     *lifecycle.Node
	firstFired bool
	failCount  int
	seq        uint64
	destroyed  bool
}

// NewSource creates an uninitialized source.
func NewSource(logger *vlog.Logger, opts ...SourceOption) (*Source, error) {
	o := sourceOptions{registry: defaultRegistry}
	for _, opt := range opts {
		opt(&o)
	}
	graph := lifecycle.GraphOf(logger)
	if graph == nil {
		graph = lifecycle.NewGraph()
	}
	node, err := graph.Add("decoder", logger.Node())
	if err != nil {
		return nil, fmt.Errorf("decode: create source: %w", err)
	}
	log := resourceLogger(logger, "decoder")
	return &Source{
		node:     node,
		registry: o.registry,
		baseLog:  log,
		log:      log,
		events:   newEvents(),
	}, nil
}

// Node returns the source's lifecycle node.
func (s *Source) Node() *lifecycle.Node {
	if s == nil {
		return nil
	}
	return s.node
}

// State returns the current state.
func (s *Source) State() State { return State(s.state.Load()) }

func (s *Source) setState(st State) { s.state.Store(int32(st)) }

// Outstanding returns the number of frames handed out and not yet released.
func (s *Source) Outstanding() int { return int(s.outstanding.Load()) }

// Hardware reports whether the current session decodes in hardware.
func (s *Source) Hardware() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend != nil && s.frames != nil
}

// BackendName returns the current session's backend, or "".
func (s *Source) BackendName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend == nil {
		return ""
	}
	return s.backend.Name()
}

// FlushEvents waits until every listener event raised so far has been
// delivered. It must not be called from a listener.
func (s *Source) FlushEvents() { s.events.flush() }

// Initialize opens a decoding session. An active session is disposed first.
//
// Hardware decoding is used when !cfg.UseSoftware and cfg.Surface is set.
// If the hardware decoder cannot be opened the source falls back to
// software when cfg.EnableFallback, and fails otherwise.
func (s *Source) Initialize(cfg Config) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return false
	}
	switch s.State() {
	case StateInitialized, StateDecoding, StateNeedsKeyframe:
		s.log.Info("reinitializing decoder, disposing active session")
		s.disposeLocked()
	}

	s.log = s.baseLog
	if cfg.Log != nil {
		s.log = cfg.Log.Slog().With("component", "decoder")
	}
	if !cfg.Codec.Valid() {
		s.log.Error("unsupported codec", "codec", int(cfg.Codec))
		return false
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		s.log.Error("invalid stream size", "width", cfg.Width, "height", cfg.Height)
		return false
	}
	if cfg.IDRThreshold <= 0 {
		cfg.IDRThreshold = DefaultIDRThreshold
	}
	cfg.CPUCount = max(cfg.CPUCount, 1)

	dec, backend, frames, err := s.open(cfg)
	if err != nil {
		s.log.Error("decoder initialization failed", "codec", cfg.Codec.String(), "err", err)
		return false
	}
	if frames != nil {
		if err := s.node.Attach(cfg.Surface.Node()); err != nil {
			dec.Close()
			s.log.Error("decoder initialization failed", "err", err)
			return false
		}
		s.device = cfg.Surface.Node()
	}

	s.cfg = cfg
	s.dec = dec
	s.backend = backend
	s.frames = frames
	s.firstFired = false
	s.failCount = 0
	s.setState(StateInitialized)

	threads := cfg.CPUCount
	if frames != nil {
		threads = 1
	}
	s.log.Info("decoder initialized",
		"codec", cfg.Codec.String(),
		"backend", backend.Name(),
		"hardware", frames != nil,
		"threads", threads,
		"width", cfg.Width,
		"height", cfg.Height)
	return true
}

func (s *Source) open(cfg Config) (Decoder, Backend, *FramesContext, error) {
	if !cfg.UseSoftware && cfg.Surface != nil {
		dec, b, frames, err := s.openHardware(cfg)
		if err == nil {
			return dec, b, frames, nil
		}
		if !cfg.EnableFallback {
			return nil, nil, nil, err
		}
		s.log.Warn("hardware decoder unavailable, falling back to software", "err", err)
	}

	b, err := s.registry.Software()
	if err != nil {
		return nil, nil, nil, err
	}
	dec, err := b.Open(OpenConfig{
		Codec:   cfg.Codec,
		Width:   cfg.Width,
		Height:  cfg.Height,
		Threads: cfg.CPUCount,
		Log:     s.log,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open %s: %w", b.Name(), err)
	}
	return dec, b, nil, nil
}

func (s *Source) openHardware(cfg Config) (Decoder, Backend, *FramesContext, error) {
	b, err := s.registry.Hardware()
	if err != nil {
		return nil, nil, nil, err
	}
	frames, err := NewFramesContext(FormatNV12, cfg.Width, cfg.Height, cfg.PoolSize)
	if err != nil {
		return nil, nil, nil, err
	}
	frames.Bind(cfg.Surface.Node())
	dec, err := b.Open(OpenConfig{
		Codec:   cfg.Codec,
		Width:   cfg.Width,
		Height:  cfg.Height,
		Threads: 1,
		HW:      cfg.Surface,
		Frames:  frames,
		Log:     s.log,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open %s: %w", b.Name(), err)
	}
	return dec, b, frames, nil
}

// DecodeNext sends Input[:limit] as one packet and returns the next decoded
// frame, or nil when none is ready. The caller owns the returned frame and
// must Release it.
//
// DecodeNext panics with ErrNotInitialized when no session is open.
func (s *Source) DecodeNext(keyframe bool, limit int) *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case StateUninitialized, StateDisposed:
		panic(ErrNotInitialized)
	case StateNeedsKeyframe:
		if !keyframe {
			s.log.Debug("dropping packet until keyframe", "bytes", limit)
			return nil
		}
	}
	if limit < 0 || limit > len(s.cfg.Input) {
		s.log.Error("packet limit out of range", "limit", limit, "buffer", len(s.cfg.Input))
		return nil
	}

	pkt := Packet{Data: s.cfg.Input[:limit], Keyframe: keyframe}
	if err := s.send(pkt); err != nil {
		s.log.Warn("send packet failed", "err", err)
		return nil
	}

	f, err := s.dec.Receive()
	if err != nil {
		if errors.Is(err, ErrAgain) && !keyframe {
			s.noOutputLocked()
		} else if !errors.Is(err, ErrAgain) {
			s.log.Warn("receive frame failed", "err", err)
		}
		return nil
	}

	s.failCount = 0
	if s.State() != StateDecoding {
		s.log.Debug("decoding", "from", s.State().String())
		s.setState(StateDecoding)
	}
	if !s.firstFired {
		s.firstFired = true
		s.notify(Listener.OnFirstFrameDecoded)
	}
	return s.track(f)
}

// send pushes pkt, draining and dropping pending output when the decoder
// reports it is full.
func (s *Source) send(pkt Packet) error {
	err := s.dec.Send(pkt)
	for errors.Is(err, ErrAgain) {
		f, rerr := s.dec.Receive()
		if rerr != nil {
			return err
		}
		f.Release()
		s.log.Debug("dropped pending frame to accept input")
		err = s.dec.Send(pkt)
	}
	return err
}

func (s *Source) noOutputLocked() {
	s.failCount++
	if s.State() == StateNeedsKeyframe || s.failCount < s.cfg.IDRThreshold {
		return
	}
	s.failCount = 0
	s.setState(StateNeedsKeyframe)
	s.log.Warn("stream needs a keyframe", "threshold", s.cfg.IDRThreshold)
	s.notify(Listener.OnIDRFrameNeeded)
}

func (s *Source) notify(event func(Listener)) {
	l := s.cfg.Listener
	if l == nil {
		return
	}
	s.events.post(func() { event(l) })
}

func (s *Source) track(f *Frame) *Frame {
	s.seq++
	f.Seq = s.seq
	s.outstanding.Add(1)
	inner := f.release
	f.release = func() {
		if inner != nil {
			inner()
		}
		s.outstanding.Add(-1)
	}
	return f
}

// Dispose closes the active session. Frames handed out earlier remain valid
// until released. Dispose is idempotent and a no-op before Initialize.
func (s *Source) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposeLocked()
}

func (s *Source) disposeLocked() {
	switch s.State() {
	case StateUninitialized, StateDisposed:
		return
	}
	if err := s.dec.Close(); err != nil {
		s.log.Warn("close decoder", "err", err)
	}
	if s.device != nil {
		s.node.Detach(s.device)
		s.device = nil
	}
	s.dec = nil
	s.backend = nil
	s.frames = nil
	s.cfg = Config{}
	s.setState(StateDisposed)
	s.log.Debug("decoder disposed")
}

// Destroy disposes the session, stops event delivery and releases the
// source. Destroy is idempotent.
func (s *Source) Destroy() {
	if s == nil {
		return
	}
	if s.release() {
		s.events.close()
	}
}

func (s *Source) release() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return false
	}
	s.node.Release()
	s.disposeLocked()
	s.destroyed = true
	return true
}
