package gpu

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

func newSwapchain(t *testing.T, st *stack, w, h int) *Swapchain {
	t.Helper()
	sc, err := NewSwapchain(st.dev, st.surface, SwapchainConfig{Mode: PresentModeBest, VSync: true, Width: w, Height: h})
	if err != nil {
		t.Fatal(err)
	}
	return sc
}

func TestSwapchainInitialState(t *testing.T) {
	st := newStack(t)
	sc := newSwapchain(t, st, 1280, 720)
	if sc.State() != StateReady {
		t.Errorf("State() = %v, want ready", sc.State())
	}
	if w, h := sc.Size(); w != 1280 || h != 720 {
		t.Errorf("Size() = %dx%d", w, h)
	}
	if sc.PresentMode() != gputypes.PresentModeMailbox {
		t.Errorf("PresentMode() = %v, want Mailbox", sc.PresentMode())
	}
	if sc.Format() != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("Format() = %d", sc.Format())
	}
	st.teardown(t, sc)
}

func TestSwapchainUnsizedStaysBound(t *testing.T) {
	st := newStack(t)
	sc := newSwapchain(t, st, 0, 0)
	if sc.State() != StateBound {
		t.Fatalf("State() = %v, want bound", sc.State())
	}
	if !sc.WaitToRender(context.Background(), 640, 480) {
		t.Fatal("WaitToRender() = false")
	}
	if sc.State() != StateReady {
		t.Errorf("State() = %v, want ready", sc.State())
	}
	sc.Discard()
	st.teardown(t, sc)
}

func TestSwapchainResizeRange(t *testing.T) {
	st := newStack(t)
	sc := newSwapchain(t, st, 16, 16)

	sizes := [][2]int{{16, 16}, {17, 16}, {640, 480}, {1920, 1080}, {3840, 2160}, {16384, 16}, {16, 16384}, {16384, 16384}}
	for _, s := range sizes {
		if !sc.Resize(s[0], s[1]) {
			t.Fatalf("Resize(%d, %d) = false", s[0], s[1])
		}
		if sc.State() != StateReady {
			t.Errorf("after Resize(%d, %d) state = %v", s[0], s[1], sc.State())
		}
		if w, h := sc.Size(); w != s[0] || h != s[1] {
			t.Errorf("Size() = %dx%d, want %dx%d", w, h, s[0], s[1])
		}
		if !sc.WaitToRender(context.Background(), s[0], s[1]) {
			t.Errorf("WaitToRender(%d, %d) = false", s[0], s[1])
		}
		if err := sc.Present(); err != nil {
			t.Errorf("Present() = %v", err)
		}
	}
	st.teardown(t, sc)
}

func TestSwapchainInvalidResize(t *testing.T) {
	st := newStack(t)
	sc := newSwapchain(t, st, 800, 600)
	before := sc.Reconfigures()

	for _, s := range [][2]int{{0, 600}, {800, 0}, {-1, 600}, {800, -5}, {MaxExtent + 1, 600}, {800, MaxExtent + 1}} {
		if sc.Resize(s[0], s[1]) {
			t.Errorf("Resize(%d, %d) = true", s[0], s[1])
		}
		if sc.State() != StateReady {
			t.Errorf("Resize(%d, %d) changed state to %v", s[0], s[1], sc.State())
		}
		if sc.WaitToRender(context.Background(), s[0], s[1]) {
			t.Errorf("WaitToRender(%d, %d) = true", s[0], s[1])
		}
	}
	if w, h := sc.Size(); w != 800 || h != 600 {
		t.Errorf("Size() = %dx%d", w, h)
	}
	if sc.Reconfigures() != before {
		t.Errorf("invalid sizes reconfigured the surface")
	}
	st.teardown(t, sc)
}

func TestSwapchainSameSizeIsNoop(t *testing.T) {
	st := newStack(t)
	sc := newSwapchain(t, st, 800, 600)
	n := sc.Reconfigures()
	if !sc.Resize(800, 600) || sc.Reconfigures() != n {
		t.Error("same-size resize reconfigured")
	}
	st.teardown(t, sc)
}

func TestSwapchainFailedReconfigureLoses(t *testing.T) {
	st := newStack(t)
	sc := newSwapchain(t, st, 800, 600)
	st.halSurface().configureErr = errors.New("configure failed")

	if sc.Resize(1024, 768) {
		t.Fatal("Resize() = true")
	}
	if sc.State() != StateLost {
		t.Errorf("State() = %v, want lost", sc.State())
	}
	if sc.WaitToRender(context.Background(), 1024, 768) {
		t.Error("WaitToRender() in lost state = true")
	}
	st.teardown(t, sc)
}

func TestSwapchainOnePerSurface(t *testing.T) {
	st := newStack(t)
	sc := newSwapchain(t, st, 800, 600)

	if _, err := NewSwapchain(st.dev, st.surface, SwapchainConfig{}); !errors.Is(err, ErrSurfaceInUse) {
		t.Fatalf("second swapchain err = %v, want ErrSurfaceInUse", err)
	}
	sc.Destroy()
	sc.Destroy()

	again := newSwapchain(t, st, 800, 600)
	st.teardown(t, again)
}

func TestWaitToRenderRetriesTransient(t *testing.T) {
	st := newStack(t)
	sc := newSwapchain(t, st, 800, 600)
	st.halSurface().script(hal.ErrTimeout, hal.ErrNotReady, hal.ErrTimeout)

	if !sc.WaitToRender(context.Background(), 800, 600) {
		t.Fatal("WaitToRender() = false")
	}
	if _, w, h, ok := sc.Target(); !ok || w != 800 || h != 600 {
		t.Errorf("Target() = %d, %d, %t", w, h, ok)
	}
	if got := st.halSurface().acquires; got != 4 {
		t.Errorf("acquires = %d, want 4", got)
	}
	if err := sc.Present(); err != nil {
		t.Fatal(err)
	}
	if err := sc.Present(); !errors.Is(err, ErrNoImage) {
		t.Errorf("second Present() = %v, want ErrNoImage", err)
	}
	st.teardown(t, sc)
}

func TestWaitToRenderTimeout(t *testing.T) {
	st := newStack(t)
	sc := newSwapchain(t, st, 800, 600)
	st.halSurface().sticky = hal.ErrTimeout

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if sc.WaitToRender(ctx, 800, 600) {
		t.Fatal("WaitToRender() = true with a stuck surface")
	}
	if sc.State() != StateReady {
		t.Errorf("timeout changed state to %v", sc.State())
	}
	st.halSurface().sticky = nil
	if !sc.WaitToRender(context.Background(), 800, 600) {
		t.Error("WaitToRender() after recovery = false")
	}
	st.teardown(t, sc)
}

func TestWaitToRenderOutdated(t *testing.T) {
	st := newStack(t)
	sc := newSwapchain(t, st, 800, 600)
	n := sc.Reconfigures()

	st.halSurface().script(hal.ErrSurfaceOutdated)
	if !sc.WaitToRender(context.Background(), 800, 600) {
		t.Fatal("WaitToRender() after one outdated = false")
	}
	if sc.Reconfigures() != n+1 {
		t.Errorf("Reconfigures() = %d, want %d", sc.Reconfigures(), n+1)
	}
	sc.Discard()

	st.halSurface().script(hal.ErrSurfaceOutdated, hal.ErrSurfaceOutdated)
	if sc.WaitToRender(context.Background(), 800, 600) {
		t.Error("WaitToRender() after repeated outdated = true")
	}
	if sc.State() != StateReady {
		t.Errorf("State() = %v", sc.State())
	}
	st.teardown(t, sc)
}

func TestWaitToRenderLoss(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		deviceLost bool
	}{
		{"surface lost", hal.ErrSurfaceLost, false},
		{"device lost", hal.ErrDeviceLost, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStack(t)
			sc := newSwapchain(t, st, 800, 600)
			st.halSurface().script(tt.err)

			if sc.WaitToRender(context.Background(), 800, 600) {
				t.Fatal("WaitToRender() = true")
			}
			if sc.State() != StateLost {
				t.Errorf("State() = %v, want lost", sc.State())
			}
			if st.dev.Lost() != tt.deviceLost {
				t.Errorf("device Lost() = %t, want %t", st.dev.Lost(), tt.deviceLost)
			}
			if sc.WaitToRender(context.Background(), 800, 600) {
				t.Error("WaitToRender() after loss = true")
			}
			if sc.Resize(640, 480) {
				t.Error("Resize() after loss = true")
			}
			st.teardown(t, sc)
		})
	}
}

func TestPresentLoss(t *testing.T) {
	st := newStack(t)
	sc := newSwapchain(t, st, 800, 600)
	if !sc.WaitToRender(context.Background(), 800, 600) {
		t.Fatal("WaitToRender() = false")
	}
	st.adapter.queue.presentErr = hal.ErrSurfaceLost

	if err := sc.Present(); !errors.Is(err, ErrSwapchainLost) {
		t.Fatalf("Present() = %v, want ErrSwapchainLost", err)
	}
	if sc.State() != StateLost {
		t.Errorf("State() = %v", sc.State())
	}
	st.teardown(t, sc)
}

func TestSwapchainImplicitResize(t *testing.T) {
	st := newStack(t)
	sc := newSwapchain(t, st, 800, 600)
	if !sc.WaitToRender(context.Background(), 1024, 768) {
		t.Fatal("WaitToRender() = false")
	}
	if w, h := sc.Size(); w != 1024 || h != 768 {
		t.Errorf("Size() = %dx%d", w, h)
	}
	// Resizing with an image in flight drops it.
	if !sc.Resize(640, 480) {
		t.Fatal("Resize() = false")
	}
	if _, _, _, ok := sc.Target(); ok {
		t.Error("image survived resize")
	}
	if st.halSurface().discards != 1 {
		t.Errorf("discards = %d", st.halSurface().discards)
	}
	st.teardown(t, sc)
}
