package gpu

import (
	"os"
	"strings"
)

// WindowingHint selects the Linux windowing system an Instance targets.
// The numeric values are part of the integer boundary.
type WindowingHint int

const (
	// WindowingDefault resolves the windowing system from the environment.
	WindowingDefault WindowingHint = iota
	// WindowingXCB targets X11 through XCB.
	WindowingXCB
	// WindowingWayland targets Wayland.
	WindowingWayland
)

// String returns the windowing system name.
func (h WindowingHint) String() string {
	switch h {
	case WindowingDefault:
		return "default"
	case WindowingXCB:
		return "x11"
	case WindowingWayland:
		return "wayland"
	default:
		return "unknown"
	}
}

// DetectWindowingSystem resolves the session's windowing system name from
// XDG_SESSION_TYPE, then WAYLAND_DISPLAY, then DISPLAY. getenv defaults to
// os.Getenv. The result is "wayland", "x11" or "unknown".
func DetectWindowingSystem(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	switch strings.ToLower(getenv("XDG_SESSION_TYPE")) {
	case "wayland":
		return "wayland"
	case "x11":
		return "x11"
	}
	if getenv("WAYLAND_DISPLAY") != "" {
		return "wayland"
	}
	if getenv("DISPLAY") != "" {
		return "x11"
	}
	return "unknown"
}

// resolve turns the hint into a concrete windowing system name.
func (h WindowingHint) resolve(getenv func(string) string) string {
	switch h {
	case WindowingXCB, WindowingWayland:
		return h.String()
	default:
		return DetectWindowingSystem(getenv)
	}
}
