package loop

import "time"

// DefaultWaitTimeout bounds one WaitToRender call.
const DefaultWaitTimeout = 100 * time.Millisecond

// Option configures New.
type Option func(*options)

type options struct {
	waitTimeout time.Duration
	overlay     bool
}

func defaultOptions() options {
	return options{waitTimeout: DefaultWaitTimeout, overlay: true}
}

// WithWaitTimeout sets how long the render goroutine waits for a surface
// image before skipping the frame. Non-positive values keep the default.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.waitTimeout = d
		}
	}
}

// WithOverlayEnabled sets whether the overlay is composited initially.
func WithOverlayEnabled(on bool) Option {
	return func(o *options) { o.overlay = on }
}
