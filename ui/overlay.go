// Package ui implements the UI overlay composited over the video plane.
//
// The application pushes full State snapshots with Overlay.Update. The
// overlay diffs each snapshot against the one it retains and only rebuilds
// its textures when the displayed state changed; transient press flags are
// reported through Feedback on every update. Textures are rebuilt lazily on
// the render goroutine by DrawList.
package ui

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/go-text/typesetting/di"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vidpipe/lifecycle"
	"github.com/gogpu/vidpipe/vlog"
)

// Device is the GPU device an overlay draws with.
type Device interface {
	lifecycle.Resource
	HALDevice() hal.Device
	HALQueue() hal.Queue
}

// DrawItem is one textured quad of the overlay, in target pixels.
type DrawItem struct {
	Button Button
	Rect   image.Rectangle
	View   hal.TextureView
}

// Overlay owns the overlay textures of one device.
type Overlay struct {
	node   *lifecycle.Node
	dev    Device
	log    *slog.Logger
	locale Locale
	raster *rasterizer

	mu         sync.Mutex
	state      State
	has        bool
	generation uint64
	feedback   Feedback

	built    uint64
	size     image.Point
	elems    []Element
	textures map[Button]*Texture
	stored   map[Button]gpucontext.TextureView
	rebuilds int

	destroyed bool
}

// NewOverlay creates an overlay for dev. The locale selects label language
// and layout direction; see ParseLocale.
func NewOverlay(dev Device, logger *vlog.Logger, locale string) (*Overlay, error) {
	graph := lifecycle.GraphOf(dev)
	if graph == nil {
		return nil, fmt.Errorf("ui: create overlay: %w", lifecycle.ErrDependencyDestroyed)
	}
	node, err := graph.Add("overlay", dev.Node(), logger.Node())
	if err != nil {
		return nil, fmt.Errorf("ui: create overlay: %w", err)
	}
	loc := ParseLocale(locale)
	raster, err := newRasterizer(MenuFontSize, loc.Direction)
	if err != nil {
		node.Release()
		return nil, err
	}
	o := &Overlay{
		node:     node,
		dev:      dev,
		log:      resourceLogger(logger, "overlay"),
		locale:   loc,
		raster:   raster,
		textures: make(map[Button]*Texture),
		stored:   make(map[Button]gpucontext.TextureView),
	}
	o.log.Debug("overlay created",
		"locale", loc.Requested.String(),
		"labels", loc.Matched.String(),
		"rtl", loc.Direction == di.DirectionRTL)
	return o, nil
}

// Node returns the overlay's lifecycle node.
func (o *Overlay) Node() *lifecycle.Node {
	if o == nil {
		return nil
	}
	return o.node
}

// Locale returns the resolved locale.
func (o *Overlay) Locale() Locale { return o.locale }

// Update replaces the retained snapshot with s and reports whether the
// displayed state changed. Update panics with ErrNilOverlay on a nil
// overlay.
func (o *Overlay) Update(s State) bool {
	if o == nil {
		panic(ErrNilOverlay)
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.destroyed {
		o.log.Error("update on destroyed overlay")
		return false
	}
	changed := !o.has || !s.Equal(o.state)
	o.state = s
	o.has = true
	o.feedback = feedbackOf(s)
	if changed {
		o.generation++
		o.log.Debug("ui state changed", "generation", o.generation)
	}
	return changed
}

// State returns the retained snapshot.
func (o *Overlay) State() (State, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state, o.has
}

// Feedback returns the transient input state of the latest Update.
func (o *Overlay) Feedback() Feedback {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.feedback
}

// Generation counts the updates that changed the displayed state.
func (o *Overlay) Generation() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation
}

// Rebuilds counts texture rebuilds.
func (o *Overlay) Rebuilds() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rebuilds
}

// DrawList returns the quads to draw on a w x h target, in draw order.
// Textures are rebuilt first when the state or target size changed since
// the last call. It must be called from the render goroutine.
func (o *Overlay) DrawList(w, h int) []DrawItem {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.destroyed || !o.has {
		return nil
	}
	if o.built != o.generation || o.size != image.Pt(w, h) {
		o.rebuildLocked(w, h)
	}

	items := make([]DrawItem, 0, len(o.elems))
	for _, e := range o.elems {
		var view hal.TextureView
		if tv, ok := o.stored[e.Button]; ok {
			view = HALView(tv)
		} else if t := o.textures[e.Button]; t != nil {
			view = t.View()
		}
		if view == nil {
			continue
		}
		items = append(items, DrawItem{Button: e.Button, Rect: e.Rect, View: view})
	}
	return items
}

func (o *Overlay) rebuildLocked(w, h int) {
	elems := Layout(w, h, o.state, o.locale.Direction)
	live := make(map[Button]bool, len(elems))
	for i := range elems {
		e := &elems[i]
		if e.Label == "" {
			e.Label = o.locale.Label(e.Button)
		}
		live[e.Button] = true

		img := o.raster.draw(*e)
		tw, th := img.Rect.Dx(), img.Rect.Dy()
		t := o.textures[e.Button]
		if t != nil && (t.Width() != tw || t.Height() != th) {
			t.Destroy()
			t = nil
		}
		if t == nil {
			var err error
			t, err = NewTexture(o.dev.HALDevice(), o.dev.HALQueue(), tw, th)
			if err != nil {
				o.log.Warn("overlay texture", "button", e.Button.String(), "err", err)
				delete(o.textures, e.Button)
				continue
			}
			o.textures[e.Button] = t
		}
		if err := t.UpdateData(img.Pix); err != nil {
			o.log.Warn("overlay upload", "button", e.Button.String(), "err", err)
		}
	}
	for b, t := range o.textures {
		if !live[b] {
			t.Destroy()
			delete(o.textures, b)
		}
	}

	o.elems = elems
	o.size = image.Pt(w, h)
	o.built = o.generation
	o.rebuilds++
	o.log.Debug("overlay rebuilt", "elements", len(elems), "width", w, "height", h)
}

// StoreImageView makes view the image of button b, replacing and destroying
// any view stored before. The overlay owns stored views from then on.
func (o *Overlay) StoreImageView(view gpucontext.TextureView, b Button) error {
	if !b.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidButton, int(b))
	}
	if view.IsNil() {
		return ErrNilView
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed {
		return ErrDestroyed
	}
	if old, ok := o.stored[b]; ok && old != view {
		o.dev.HALDevice().DestroyTextureView(HALView(old))
	}
	o.stored[b] = view
	return nil
}

// StoredImageViews returns the number of stored views.
func (o *Overlay) StoredImageViews() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.stored)
}

// DestroyStoredImageViews destroys every stored view.
func (o *Overlay) DestroyStoredImageViews() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.destroyStoredLocked()
}

func (o *Overlay) destroyStoredLocked() {
	for b, tv := range o.stored {
		o.dev.HALDevice().DestroyTextureView(HALView(tv))
		delete(o.stored, b)
	}
}

// Destroy releases every texture and stored view. Destroy is idempotent.
func (o *Overlay) Destroy() {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed {
		return
	}
	o.node.Release()
	o.destroyed = true
	o.destroyStoredLocked()
	for b, t := range o.textures {
		t.Destroy()
		delete(o.textures, b)
	}
	o.elems = nil
	o.raster.close()
	o.log.Debug("overlay destroyed")
}
