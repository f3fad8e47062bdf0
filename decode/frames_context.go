package decode

import (
	"fmt"
	"sync"

	"github.com/gogpu/vidpipe/lifecycle"
)

// DefaultPoolSize is the hardware frame pool size used when none is given.
const DefaultPoolSize = 20

// FramesContext bounds the hardware frames a decoder may have outstanding.
//
// When bound to a device node, every reserved slot is a lifecycle node
// depending on that device: the device cannot be destroyed while a frame
// allocated in its memory is still held, even after the decoder is gone.
type FramesContext struct {
	Format   PixelFormat
	Width    int
	Height   int
	PoolSize int

	mu     sync.Mutex
	inUse  int
	device *lifecycle.Node
}

// NewFramesContext validates the pool geometry. A pool size <= 0 selects
// DefaultPoolSize.
func NewFramesContext(format PixelFormat, width, height, poolSize int) (*FramesContext, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidFramesContext, width, height)
	}
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	return &FramesContext{Format: format, Width: width, Height: height, PoolSize: poolSize}, nil
}

// Bind makes every slot reserved from now on depend on device.
func (fc *FramesContext) Bind(device *lifecycle.Node) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.device = device
}

// Acquire reserves a pool slot. The returned func frees it and is safe to
// call more than once. Acquire fails with lifecycle.ErrDependencyDestroyed
// when the bound device has been released.
func (fc *FramesContext) Acquire() (func(), error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.inUse >= fc.PoolSize {
		return nil, fmt.Errorf("%w: %d in use", ErrPoolExhausted, fc.inUse)
	}
	var slot *lifecycle.Node
	if fc.device != nil {
		n, err := fc.device.Graph().Add("frame", fc.device)
		if err != nil {
			return nil, fmt.Errorf("decode: reserve frame: %w", err)
		}
		slot = n
	}
	fc.inUse++
	var once sync.Once
	return func() {
		once.Do(func() {
			fc.mu.Lock()
			fc.inUse--
			fc.mu.Unlock()
			slot.Release()
		})
	}, nil
}

// InUse returns the number of reserved slots.
func (fc *FramesContext) InUse() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.inUse
}
