package loop

import "errors"

var (
	// ErrDeviceLost is returned by Run and Pump once the device or surface
	// is lost. The resource graph must be torn down and rebuilt.
	ErrDeviceLost = errors.New("loop: device lost")

	// ErrClosed is returned when a closed loop is run.
	ErrClosed = errors.New("loop: closed")

	// ErrRunning is returned when Run or Pump is entered twice.
	ErrRunning = errors.New("loop: already running")
)

var (
	// ErrIncomplete is returned by New without a device, swapchain or renderer.
	ErrIncomplete = errors.New("loop: device, swapchain and renderer are required")

	// ErrNoSource is returned by Pump on a loop created without a FrameSource.
	ErrNoSource = errors.New("loop: no frame source")
)
