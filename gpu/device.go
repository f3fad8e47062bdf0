package gpu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vidpipe/lifecycle"
	"github.com/gogpu/vidpipe/vlog"
)

// Status is the health of a Device. The loop reads it from both goroutines.
type Status int32

const (
	StatusReady Status = iota
	StatusLost
)

// String returns the status name.
func (s Status) String() string {
	if s == StatusLost {
		return "lost"
	}
	return "ready"
}

// DeviceOption configures NewDevice.
type DeviceOption func(*deviceOptions)

type deviceOptions struct {
	prober DecodeProber
}

// WithDecodeProber replaces DefaultDecodeProber.
func WithDecodeProber(p DecodeProber) DeviceOption {
	return func(o *deviceOptions) { o.prober = p }
}

// Device is an opened logical device plus its queue.
//
// Device implements gpucontext.DeviceProvider so collaborators can share it
// without importing this package.
type Device struct {
	node    *lifecycle.Node
	inst    *Instance
	log     *slog.Logger
	adapter hal.ExposedAdapter
	open    hal.OpenDevice
	caps    DecodeCaps
	hdr     bool
	format  gputypes.TextureFormat
	modes   []gputypes.PresentMode
	formats []gputypes.TextureFormat

	status atomic.Int32

	mu        sync.Mutex
	destroyed bool
}

var _ gpucontext.DeviceProvider = (*Device)(nil)

// NewDevice selects an adapter and opens a device on it.
//
// Adapters are filtered by presentability on surface (when non-nil), HDR
// render format support (when hdr), and hardware decode of req.Codec (when
// req.Hardware). Survivors are ranked discrete, integrated, other; then by
// decode queue count; then by enumeration order. When nothing survives the
// error wraps ErrNoSuitableDevice.
//
// The device does not depend on surface: it may outlive it.
func NewDevice(inst *Instance, logger *vlog.Logger, surface *Surface, req DecoderRequirements, hdr bool, opts ...DeviceOption) (*Device, error) {
	o := deviceOptions{prober: DefaultDecodeProber}
	for _, opt := range opts {
		opt(&o)
	}
	if o.prober == nil {
		o.prober = DefaultDecodeProber
	}

	adapters, err := inst.Adapters(surface)
	if err != nil {
		return nil, err
	}
	var halSurface hal.Surface
	if surface != nil {
		halSurface = surface.hal
	}
	c, ok := selectAdapter(adapters, halSurface, req, hdr, o.prober)
	if !ok {
		return nil, fmt.Errorf("%w: %d adapters, codec=%s hardware=%t hdr=%t",
			ErrNoSuitableDevice, len(adapters), req.Codec, req.Hardware, hdr)
	}

	node, err := inst.node.Graph().Add("device", inst.node, logger.Node())
	if err != nil {
		return nil, fmt.Errorf("gpu: create device: %w", err)
	}
	open, err := c.adapter.Adapter.Open(0, c.adapter.Capabilities.Limits)
	if err != nil {
		node.Release()
		return nil, fmt.Errorf("%w: open %q: %w", ErrNoSuitableDevice, c.adapter.Info.Name, err)
	}

	d := &Device{
		node:    node,
		inst:    inst,
		log:     inst.log,
		adapter: c.adapter,
		open:    open,
		caps:    c.caps,
		hdr:     hdr,
	}
	if logger != nil {
		d.log = resourceLogger(logger, "device")
	}
	if c.surface != nil {
		d.formats = c.surface.Formats
		d.modes = c.surface.PresentModes
	}
	d.format = chooseSurfaceFormat(d.formats, hdr)

	d.log.Info("device selected",
		"adapter", c.adapter.Info.Name,
		"type", c.adapter.Info.DeviceType.String(),
		"backend", c.adapter.Info.Backend.String(),
		"index", c.index,
		"decode_queues", c.caps.Queues,
		"format", formatName(d.format),
		"hdr", hdr)
	return d, nil
}

// Node returns the device's lifecycle node.
func (d *Device) Node() *lifecycle.Node {
	if d == nil {
		return nil
	}
	return d.node
}

// Device returns the hal.Device as a gpucontext token.
func (d *Device) Device() gpucontext.Device { return d.open.Device }

// Queue returns the hal.Queue as a gpucontext token.
func (d *Device) Queue() gpucontext.Queue { return d.open.Queue }

// Adapter returns the hal.Adapter as a gpucontext token.
func (d *Device) Adapter() gpucontext.Adapter { return d.adapter.Adapter }

// SurfaceFormat returns the presentation format chosen for this device.
func (d *Device) SurfaceFormat() gputypes.TextureFormat { return d.format }

// AdapterInfo returns the adapter identity in gpucontext terms.
func (d *Device) AdapterInfo() gpucontext.AdapterInfo {
	t := gpucontext.AdapterTypeUnknown
	switch d.adapter.Info.DeviceType {
	case gputypes.DeviceTypeDiscreteGPU:
		t = gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		t = gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		t = gpucontext.AdapterTypeSoftware
	}
	return gpucontext.AdapterInfo{Name: d.adapter.Info.Name, Type: t}
}

// HALDevice returns the underlying hal.Device.
func (d *Device) HALDevice() hal.Device { return d.open.Device }

// HALQueue returns the underlying hal.Queue.
func (d *Device) HALQueue() hal.Queue { return d.open.Queue }

// Info returns the selected adapter's description.
func (d *Device) Info() gputypes.AdapterInfo { return d.adapter.Info }

// Limits returns the adapter limits the device was opened with.
func (d *Device) Limits() gputypes.Limits { return d.adapter.Capabilities.Limits }

// DecodeCaps returns the hardware decode capabilities of the adapter.
func (d *Device) DecodeCaps() DecodeCaps { return d.caps }

// HDR reports whether the device was created for HDR output.
func (d *Device) HDR() bool { return d.hdr }

// Status returns the device health.
func (d *Device) Status() Status { return Status(d.status.Load()) }

// Lost reports whether the device has been lost.
func (d *Device) Lost() bool { return d.Status() == StatusLost }

// MarkLost moves the device to StatusLost. It returns true for the call that
// made the transition, which logs it.
func (d *Device) MarkLost(cause error) bool {
	if !d.status.CompareAndSwap(int32(StatusReady), int32(StatusLost)) {
		return false
	}
	d.log.Log(context.Background(), vlog.SlogLevelFatal, "device lost", "adapter", d.adapter.Info.Name, "err", cause)
	return true
}

// CheckLost marks the device lost when err reports device loss and returns
// whether it did.
func (d *Device) CheckLost(err error) bool {
	if errors.Is(err, hal.ErrDeviceLost) {
		d.MarkLost(err)
		return true
	}
	return false
}

// Destroy waits for the GPU to go idle and releases the device. Destroy is
// idempotent. Swapchains, renderers, overlays, decoders and attached shader
// caches must be destroyed first or Destroy panics with *lifecycle.OrderError.
func (d *Device) Destroy() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return
	}
	d.node.Release()
	d.destroyed = true
	if !d.Lost() {
		if err := d.open.Device.WaitIdle(); err != nil {
			d.log.Warn("wait idle before destroy", "err", err)
		}
	}
	d.open.Device.Destroy()
	d.log.Debug("device destroyed")
}
