package synthetic

import (
	"context"
	"io"
	"time"
)

// DefaultGOP is the keyframe interval of a Stream.
const DefaultGOP = 30

// Stream writes synthetic packets into a decoder input buffer. It
// satisfies loop.PacketSource.
type Stream struct {
	// Buf is the buffer the decode.Source was initialized with. It must hold
	// at least PacketSize bytes.
	Buf []byte
	// Count ends the stream after that many packets; 0 never ends.
	Count int
	// GOP is the keyframe interval, DefaultGOP when <= 0.
	GOP int
	// Interval paces packets; 0 sends as fast as they are read.
	Interval time.Duration
	// CorruptEvery replaces every n-th non-keyframe packet with a corrupt
	// one; 0 disables.
	CorruptEvery int

	sent uint32
	next time.Time
}

// Next writes the next packet into s.Buf.
func (s *Stream) Next(ctx context.Context) (n int, keyframe bool, err error) {
	if s.Count > 0 && int(s.sent) >= s.Count {
		return 0, false, io.EOF
	}
	if s.Interval > 0 {
		now := time.Now()
		if s.next.IsZero() {
			s.next = now
		}
		if wait := s.next.Sub(now); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return 0, false, ctx.Err()
			case <-t.C:
			}
		}
		s.next = s.next.Add(s.Interval)
	}
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	gop := s.GOP
	if gop <= 0 {
		gop = DefaultGOP
	}
	seq := s.sent
	s.sent++
	keyframe = seq%uint32(gop) == 0
	if !keyframe && s.CorruptEvery > 0 && seq%uint32(s.CorruptEvery) == 0 {
		return Corrupt(s.Buf), false, nil
	}
	return Encode(s.Buf, seq), keyframe, nil
}

// Sent returns the number of packets written.
func (s *Stream) Sent() int { return int(s.sent) }
