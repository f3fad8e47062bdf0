package render

import "errors"

var (
	// ErrDestroyed is returned when a destroyed renderer is used.
	ErrDestroyed = errors.New("render: renderer destroyed")

	// ErrNoTarget is returned when the target has no acquired image.
	ErrNoTarget = errors.New("render: no acquired target image")

	// ErrTargetSize is returned when the requested size does not match the
	// acquired image.
	ErrTargetSize = errors.New("render: target size mismatch")

	// ErrUnsupportedFormat is returned for frame formats the renderer cannot sample.
	ErrUnsupportedFormat = errors.New("render: unsupported frame format")
)
