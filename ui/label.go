package ui

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	"github.com/go-text/typesetting/di"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Palette.
var (
	colorTouchpadBorder = color.NRGBA{255, 255, 255, 190}
	colorTouchpadFill   = color.NRGBA{255, 255, 255, 63}
	colorButton         = color.NRGBA{255, 255, 255, 163}
	colorButtonPressed  = color.NRGBA{240, 240, 240, 173}
	colorButtonActive   = color.NRGBA{255, 255, 255, 255}
	colorText           = color.NRGBA{0, 0, 0, 255}
	colorTextLight      = color.NRGBA{255, 255, 255, 255}
	colorDialog         = color.NRGBA{35, 35, 35, 255}
	colorDialogButton   = color.NRGBA{88, 88, 95, 255}
	colorDialogPressed  = color.NRGBA{77, 77, 84, 255}
	colorDialogBlue     = color.NRGBA{0, 132, 241, 255}
	colorBanner         = color.NRGBA{17, 17, 17, 220}
)

var (
	fontOnce sync.Once
	fontData *opentype.Font
	fontErr  error
)

func goRegular() (*opentype.Font, error) {
	fontOnce.Do(func() {
		fontData, fontErr = opentype.Parse(goregular.TTF)
	})
	return fontData, fontErr
}

// rasterizer draws element images. A font.Face is not safe for concurrent
// use, so each overlay owns one rasterizer and serializes access.
type rasterizer struct {
	mu   sync.Mutex
	face font.Face
	dir  di.Direction
}

func newRasterizer(size float64, dir di.Direction) (*rasterizer, error) {
	f, err := goRegular()
	if err != nil {
		return nil, fmt.Errorf("ui: parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("ui: create face: %w", err)
	}
	return &rasterizer{face: face, dir: dir}, nil
}

func (r *rasterizer) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.face != nil {
		_ = r.face.Close()
		r.face = nil
	}
}

// draw renders e at its rect size. Straight (non-premultiplied) RGBA is
// what the overlay pipeline blends.
func (r *rasterizer) draw(e Element) *image.NRGBA {
	w, h := max(e.Rect.Dx(), 1), max(e.Rect.Dy(), 1)
	img := image.NewNRGBA(image.Rect(0, 0, w, h))

	r.mu.Lock()
	defer r.mu.Unlock()

	switch e.Button {
	case ButtonTouchpad:
		fill(img, colorTouchpadFill)
		border(img, colorTouchpadBorder, 2)
	case ButtonDialog:
		fill(img, colorDialog)
		r.text(img, e.Label, colorTextLight, DialogHeaderHeight+DialogPaddingRight)
		if e.Detail != "" {
			lines := strings.Split(e.Detail, "\n")
			y := DialogTextTop
			for _, line := range lines {
				r.text(img, line, colorTextLight, y)
				y += DialogHeaderHeight
			}
		}
	case ButtonDialogLeft, ButtonDialogRight:
		bg := colorDialogButton
		switch {
		case e.Pressed:
			bg = colorDialogPressed
		case e.Focused:
			bg = colorDialogBlue
		}
		fill(img, bg)
		r.centered(img, e.Label, colorTextLight)
	case ButtonDialogCheckbox:
		box := image.Rect(0, 0, h, h)
		if r.dir == di.DirectionRTL {
			box = image.Rect(w-h, 0, w, h)
		}
		draw.Draw(img, box, image.NewUniform(colorDialogButton), image.Point{}, draw.Src)
		if e.Active {
			draw.Draw(img, box.Inset(h/5), image.NewUniform(colorDialogBlue), image.Point{}, draw.Src)
		}
		if e.Focused {
			border(img.SubImage(box).(*image.NRGBA), colorDialogBlue, 2)
		}
		r.text(img, e.Label, colorTextLight, h)
	case ButtonBanner:
		fill(img, colorBanner)
		r.centered(img, e.Label, colorTextLight)
	default:
		bg := colorButton
		switch {
		case e.Pressed:
			bg = colorButtonPressed
		case e.Active:
			bg = colorButtonActive
		}
		fill(img, bg)
		r.centered(img, e.Label, colorText)
	}
	return img
}

// centered draws s centered in img.
func (r *rasterizer) centered(img *image.NRGBA, s string, c color.Color) {
	if s == "" || r.face == nil {
		return
	}
	b := img.Bounds()
	m := r.face.Metrics()
	adv := font.MeasureString(r.face, s)
	x := fixed.I(b.Min.X) + (fixed.I(b.Dx())-adv)/2
	y := fixed.I(b.Min.Y) + (fixed.I(b.Dy())+m.Ascent-m.Descent)/2
	d := font.Drawer{Dst: img, Src: image.NewUniform(c), Face: r.face, Dot: fixed.Point26_6{X: x, Y: y}}
	d.DrawString(s)
}

// text draws one line with its baseline at y, aligned to the start edge of
// the line's own direction.
func (r *rasterizer) text(img *image.NRGBA, s string, c color.Color, y int) {
	if s == "" || r.face == nil {
		return
	}
	b := img.Bounds()
	adv := font.MeasureString(r.face, s)
	x := fixed.I(b.Min.X + DialogPaddingRight)
	if textDirection(s, r.dir) == di.DirectionRTL {
		x = fixed.I(b.Max.X-DialogPaddingRight) - adv
	}
	d := font.Drawer{Dst: img, Src: image.NewUniform(c), Face: r.face, Dot: fixed.Point26_6{X: x, Y: fixed.I(b.Min.Y + y)}}
	d.DrawString(s)
}

func fill(img *image.NRGBA, c color.NRGBA) {
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

func border(img *image.NRGBA, c color.NRGBA, width int) {
	b := img.Bounds()
	u := image.NewUniform(c)
	for _, r := range []image.Rectangle{
		image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+width),
		image.Rect(b.Min.X, b.Max.Y-width, b.Max.X, b.Max.Y),
		image.Rect(b.Min.X, b.Min.Y, b.Min.X+width, b.Max.Y),
		image.Rect(b.Max.X-width, b.Min.Y, b.Max.X, b.Max.Y),
	} {
		draw.Draw(img, r.Intersect(b), u, image.Point{}, draw.Src)
	}
}
