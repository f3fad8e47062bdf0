package ui

import "errors"

var (
	// ErrNilOverlay is the panic value for updating a nil overlay.
	ErrNilOverlay = errors.New("ui: update on nil overlay")

	// ErrDestroyed is returned when a destroyed overlay or texture is used.
	ErrDestroyed = errors.New("ui: resource destroyed")

	// ErrInvalidButton is returned for a Button outside the known set.
	ErrInvalidButton = errors.New("ui: invalid button")

	// ErrNilView is returned when storing a zero TextureView.
	ErrNilView = errors.New("ui: nil image view")

	// ErrDataSize is returned when texture data does not match its size.
	ErrDataSize = errors.New("ui: texture data size mismatch")
)
