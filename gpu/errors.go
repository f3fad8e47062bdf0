package gpu

import "errors"

var (
	// ErrInstanceCreation is returned when no graphics instance could be created.
	ErrInstanceCreation = errors.New("gpu: instance creation failed")

	// ErrNoSuitableDevice is returned when no adapter passes the device filters.
	ErrNoSuitableDevice = errors.New("gpu: no suitable device")

	// ErrNoBackend is returned when no HAL backend is registered.
	ErrNoBackend = errors.New("gpu: no backend registered")

	// ErrDestroyed is returned when a destroyed resource is used.
	ErrDestroyed = errors.New("gpu: resource destroyed")

	// ErrInvalidExtent is returned for swapchain sizes outside 1..MaxExtent.
	ErrInvalidExtent = errors.New("gpu: invalid extent")

	// ErrSwapchainLost is returned by swapchain operations after the surface
	// or device was lost.
	ErrSwapchainLost = errors.New("gpu: swapchain lost")

	// ErrSurfaceInUse is returned when a second swapchain is created on a surface.
	ErrSurfaceInUse = errors.New("gpu: surface already has a swapchain")

	// ErrNoImage is returned by Present when no surface texture is acquired.
	ErrNoImage = errors.New("gpu: no acquired image")
)
