package decode

import "errors"

var (
	// ErrNotInitialized is the panic value of DecodeNext on a source that was
	// never initialized or has been disposed.
	ErrNotInitialized = errors.New("decode: decoder not initialized")

	// ErrAgain is returned by Decoder.Send when output must be drained first
	// and by Decoder.Receive when more input is needed.
	ErrAgain = errors.New("decode: try again")

	// ErrFrameReleased is returned when a released frame is used.
	ErrFrameReleased = errors.New("decode: frame already released")

	// ErrInvalidFramesContext is returned for a frames context without a size.
	ErrInvalidFramesContext = errors.New("decode: invalid frames context")

	// ErrPoolExhausted is returned when every pooled hardware frame is in use.
	ErrPoolExhausted = errors.New("decode: frame pool exhausted")

	// ErrNoBackend is returned when the registry has no usable backend.
	ErrNoBackend = errors.New("decode: no backend")

	// ErrClosed is returned by a closed decoder.
	ErrClosed = errors.New("decode: decoder closed")
)
