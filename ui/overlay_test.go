package ui

import (
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/google/go-cmp/cmp"

	"github.com/gogpu/vidpipe/lifecycle"
	"github.com/gogpu/vidpipe/vlog"
)

type view struct{ id int }

func (v *view) Destroy()             {}
func (v *view) NativeHandle() uintptr { return uintptr(v.id) }

type recordingDevice struct {
	*noop.Device
	mu        sync.Mutex
	destroyed []hal.TextureView
}

func (d *recordingDevice) DestroyTextureView(v hal.TextureView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed = append(d.destroyed, v)
}

type device struct {
	node *lifecycle.Node
	dev  *recordingDevice
}

func (d *device) Node() *lifecycle.Node  { return d.node }
func (d *device) HALDevice() hal.Device { return d.dev }
func (d *device) HALQueue() hal.Queue   { return &noop.Queue{} }

func newOverlay(t *testing.T, locale string) (*Overlay, *device) {
	t.Helper()
	logger := vlog.New(vlog.LevelWarn, nil)
	node, err := logger.Node().Graph().Add("device", logger.Node())
	if err != nil {
		t.Fatal(err)
	}
	dev := &device{node: node, dev: &recordingDevice{Device: &noop.Device{}}}
	o, err := NewOverlay(dev, logger, locale)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		o.Destroy()
		node.Release()
		logger.Close()
		if n := logger.Node().Graph().Live(); n != 0 {
			t.Errorf("Live() = %d", n)
		}
	})
	return o, dev
}

func TestOverlayUpdateDiff(t *testing.T) {
	o, _ := newOverlay(t, "en")
	s := popupState()

	if !o.Update(s) {
		t.Fatal("first update reported no change")
	}
	pulse := s
	pulse.TouchpadPressed = true
	pulse.PanelPressed = true
	if o.Update(pulse) {
		t.Error("press pulse reported a change")
	}
	if fb := o.Feedback(); !fb.TouchpadPressed || !fb.PanelPressed {
		t.Errorf("Feedback() = %+v, pulse not reported", fb)
	}
	if o.Update(s) {
		t.Error("identical update reported a change")
	}
	if fb := o.Feedback(); fb.TouchpadPressed {
		t.Error("pulse outlived its update")
	}

	s.Popup.LeftFocused = true
	if !o.Update(s) {
		t.Error("focus change not detected")
	}
	if o.Generation() != 2 {
		t.Errorf("Generation() = %d, want 2", o.Generation())
	}
	got, ok := o.State()
	if !ok || !got.Equal(s) {
		t.Error("retained snapshot differs")
	}
}

func TestOverlayCopiesState(t *testing.T) {
	o, _ := newOverlay(t, "en")
	s := popupState()
	o.Update(s)
	s.Popup.Title = "changed by caller"
	got, _ := o.State()
	if got.Popup.Title != "Disconnect" {
		t.Errorf("retained title = %q", got.Popup.Title)
	}
}

func TestOverlayDrawList(t *testing.T) {
	o, _ := newOverlay(t, "en")
	if items := o.DrawList(1280, 720); items != nil {
		t.Errorf("DrawList before Update = %v", items)
	}

	s := popupState()
	s.ShowPanel = true
	o.Update(s)

	first := o.DrawList(1280, 720)
	want := buttons(Layout(1280, 720, s, o.Locale().Direction))
	got := make([]Button, len(first))
	for i, it := range first {
		got[i] = it.Button
		if it.View == nil {
			t.Errorf("%s has no view", it.Button)
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("draw order (-want +got):\n%s", diff)
	}

	pulse := s
	pulse.TouchpadPressed = true
	o.Update(pulse)
	o.DrawList(1280, 720)
	if o.Rebuilds() != 1 {
		t.Errorf("Rebuilds() = %d after an equal update, want 1", o.Rebuilds())
	}

	o.DrawList(1920, 1080)
	if o.Rebuilds() != 2 {
		t.Errorf("Rebuilds() = %d after resize, want 2", o.Rebuilds())
	}

	s.ShowPopup = false
	o.Update(s)
	if items := o.DrawList(1920, 1080); len(items) != 6 {
		t.Errorf("panel only: %d items", len(items))
	}
	if len(o.textures) != 6 {
		t.Errorf("%d textures kept after hiding the dialog", len(o.textures))
	}
}

func TestStoreImageView(t *testing.T) {
	o, dev := newOverlay(t, "en")
	s := DefaultState()
	s.ShowPanel = true
	o.Update(s)

	mic1, mic2 := &view{1}, &view{2}
	if err := o.StoreImageView(ImageView(mic1), ButtonMic); err != nil {
		t.Fatal(err)
	}
	if err := o.StoreImageView(ImageView(mic2), ButtonMic); err != nil {
		t.Fatal(err)
	}
	if len(dev.dev.destroyed) != 1 || dev.dev.destroyed[0] != mic1 {
		t.Errorf("replaced view not destroyed: %v", dev.dev.destroyed)
	}

	items := o.DrawList(1280, 720)
	if items[0].Button != ButtonMic || items[0].View != hal.TextureView(mic2) {
		t.Errorf("stored view not drawn: %+v", items[0])
	}

	if err := o.StoreImageView(ImageView(&view{3}), ButtonDialog); !errors.Is(err, ErrInvalidButton) {
		t.Errorf("non-interactive button: %v", err)
	}
	if err := o.StoreImageView(gpucontext.TextureView{}, ButtonShare); !errors.Is(err, ErrNilView) {
		t.Errorf("nil view: %v", err)
	}

	o.StoreImageView(ImageView(&view{4}), ButtonClose)
	if o.StoredImageViews() != 2 {
		t.Fatalf("StoredImageViews() = %d", o.StoredImageViews())
	}
	o.DestroyStoredImageViews()
	o.DestroyStoredImageViews()
	if o.StoredImageViews() != 0 || len(dev.dev.destroyed) != 3 {
		t.Errorf("stored=%d destroyed=%d", o.StoredImageViews(), len(dev.dev.destroyed))
	}
}

func TestDeviceOutlivesOverlay(t *testing.T) {
	o, dev := newOverlay(t, "en")
	o.StoreImageView(ImageView(&view{1}), ButtonPS)

	func() {
		defer func() {
			if _, ok := recover().(*lifecycle.OrderError); !ok {
				t.Error("device released under a live overlay")
			}
		}()
		dev.node.Release()
	}()

	o.Destroy()
	o.Destroy()
	if len(dev.dev.destroyed) != 1 {
		t.Errorf("stored views destroyed = %d", len(dev.dev.destroyed))
	}
	if err := o.StoreImageView(ImageView(&view{2}), ButtonPS); !errors.Is(err, ErrDestroyed) {
		t.Errorf("StoreImageView after Destroy = %v", err)
	}
	if o.Update(DefaultState()) {
		t.Error("Update after Destroy reported a change")
	}
	if !dev.node.Release() {
		t.Error("device release failed")
	}
}

func TestNilOverlayUpdatePanics(t *testing.T) {
	defer func() {
		if r := recover(); r != ErrNilOverlay {
			t.Errorf("recover() = %v", r)
		}
	}()
	var o *Overlay
	o.Update(DefaultState())
}

func TestRasterizeLabel(t *testing.T) {
	r, err := newRasterizer(MenuFontSize, ParseLocale("en").Direction)
	if err != nil {
		t.Fatal(err)
	}
	defer r.close()

	img := r.draw(Element{Button: ButtonShare, Rect: image.Rect(0, 0, MenuButtonWidth, MenuButtonHeight), Label: "Share"})
	if img.Rect.Dx() != MenuButtonWidth || img.Rect.Dy() != MenuButtonHeight {
		t.Fatalf("size = %v", img.Rect)
	}
	if len(img.Pix) != MenuButtonWidth*MenuButtonHeight*4 {
		t.Fatalf("len(Pix) = %d", len(img.Pix))
	}
	bg := img.NRGBAAt(0, 0)
	if bg != colorButton {
		t.Errorf("background = %v", bg)
	}
	text := 0
	for y := range img.Rect.Dy() {
		for x := range img.Rect.Dx() {
			if c := img.NRGBAAt(x, y); c != bg && c.R < 128 {
				text++
			}
		}
	}
	if text == 0 {
		t.Error("label drew no glyph pixels")
	}

	blank := r.draw(Element{Button: ButtonTouchpad, Rect: image.Rect(0, 0, 10, 10)})
	if blank.NRGBAAt(0, 0) != colorTouchpadBorder || blank.NRGBAAt(5, 5) != colorTouchpadFill {
		t.Error("touchpad colors")
	}
}

func TestTextureUpdate(t *testing.T) {
	tex, err := NewTexture(&noop.Device{}, &noop.Queue{}, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	var _ gpucontext.TextureUpdater = tex
	if tex.Width() != 4 || tex.Height() != 2 {
		t.Errorf("size %dx%d", tex.Width(), tex.Height())
	}
	if err := tex.UpdateData(make([]byte, 32)); err != nil {
		t.Error(err)
	}
	if err := tex.UpdateData(make([]byte, 31)); !errors.Is(err, ErrDataSize) {
		t.Errorf("short data: %v", err)
	}
	tex.Destroy()
	tex.Destroy()
	if err := tex.UpdateData(make([]byte, 32)); !errors.Is(err, ErrDestroyed) {
		t.Errorf("after Destroy: %v", err)
	}
	if _, err := NewTexture(&noop.Device{}, &noop.Queue{}, 0, 2); err == nil {
		t.Error("zero width texture created")
	}
}
