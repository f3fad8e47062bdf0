// Package vidpipe is the core of a hardware-accelerated video presentation
// pipeline: decoded frames in, color-correct pixels on a swapchain out,
// with a UI overlay composited on top.
//
// # Overview
//
// The pipeline is split into packages that each own one resource kind:
//
//   - vlog: level-filtered diagnostic sink bridged to slog and logr
//   - gpu: graphics instance, adapter selection, device, surface and swapchain
//   - shadercache: persistent WGSL to SPIR-V cache
//   - render: YUV to RGB conversion, tone transfer, aspect handling, presentation
//   - decode: decoder adapter (FrameSource) with hardware and software backends
//   - ui: overlay state, layout and label textures
//   - loop: the decode and render goroutines tying everything together
//
// Every resource is a node in a lifecycle graph and must be destroyed after
// the resources that depend on it: overlays, renderers and swapchains before
// their device, the device before its instance, the instance before its
// logger.
//
// # Handles
//
// Hosts that address resources by integer (language bindings, plugin
// hosts) use a Session. It wraps the same constructors behind generation
// checked handles; a stale or mistyped handle is reported as
// ErrInvalidHandle instead of reaching a freed resource.
//
//	rt := vidpipe.NewRuntime()
//	s := vidpipe.NewSession(rt)
//	defer s.Close()
//
//	logger := s.CreateLogger(int(vlog.LevelInfo), func(l vlog.Level, msg string) { ... })
//	inst, err := s.CreateInstance(logger, gpu.WindowingDefault)
//
// # Runtime
//
// A Runtime holds what was process-wide state in older designs: the HAL
// backends (most preferred first: Vulkan, Metal, DX12, GL, then the noop
// backend), the decoder registry and the resource graph. Default returns a
// lazily created process-wide Runtime; Reset drops it for tests.
//
// # Logging
//
// Resources log through the vlog.Logger they were created with. SetLogger
// configures the library-wide slog logger used by code that has no
// resource logger, and forwards it to every sub-package and the HAL.
package vidpipe
