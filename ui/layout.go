package ui

import (
	"image"

	"github.com/go-text/typesetting/di"
)

// Button identifies an overlay control. The first ten values are part of the
// integer boundary (image views are stored against them) and must not change.
type Button int

const (
	ButtonMic Button = iota
	ButtonShare
	ButtonPS
	ButtonOptions
	ButtonFullscreen
	ButtonClose
	ButtonTouchpad
	ButtonDialogLeft
	ButtonDialogRight
	ButtonDialogCheckbox

	// Non-interactive elements. They take part in layout and drawing but
	// cannot carry stored image views.
	ButtonDialog
	ButtonBanner
)

var buttonNames = [...]string{
	"mic", "share", "ps", "options", "fullscreen", "close",
	"touchpad", "dialog-left", "dialog-right", "dialog-checkbox",
	"dialog", "banner",
}

func (b Button) String() string {
	if b < 0 || int(b) >= len(buttonNames) {
		return "unknown"
	}
	return buttonNames[b]
}

// Valid reports whether b is one of the interactive buttons.
func (b Button) Valid() bool { return b >= ButtonMic && b <= ButtonDialogCheckbox }

// Layout metrics in pixels.
const (
	ButtonSize         = 48
	MenuButtonHeight   = ButtonSize - 10
	MenuButtonWidth    = 2 * ButtonSize
	MenuFontSize       = 14 + 4
	BottomPadding      = 12
	EdgePadding        = 40
	TouchpadPadding    = 12
	DialogPaddingRight = 36
	DialogHeaderHeight = 24 + 2
	DialogTextTop      = 122
	DialogButtonHeight = 52 + 2
	DialogButtonWidth  = 200
)

// Element is one laid-out control.
type Element struct {
	Button Button
	Rect   image.Rectangle
	Label  string
	// Detail is secondary text (the dialog message).
	Detail string

	Pressed bool
	Focused bool
	Active  bool
}

// Layout places the visible controls of s on a w x h target. Elements come
// in a fixed order (banner, touchpad, panel, dialog) that does not depend
// on dir, so drawing them in slice order is stable frame to frame. In RTL
// layouts the dialog buttons and checkbox are mirrored.
func Layout(w, h int, s State, dir di.Direction) []Element {
	if w <= 0 || h <= 0 {
		return nil
	}
	var out []Element

	if s.ShowBanner {
		out = append(out, Element{
			Button: ButtonBanner,
			Rect:   image.Rect(EdgePadding, BottomPadding, w-EdgePadding, BottomPadding+ButtonSize),
			Label:  s.BannerText,
		})
	}

	if s.ShowTouchpad {
		out = append(out, Element{
			Button:  ButtonTouchpad,
			Rect:    image.Rect(w/4, TouchpadPadding, w-w/4, h/2),
			Pressed: s.TouchpadPressed,
		})
	}

	if s.ShowPanel {
		out = append(out, panel(w, h, s.Panel)...)
	}

	if s.ShowPopup {
		out = append(out, dialog(w, h, s.Popup, dir)...)
	}
	return out
}

func panel(w, h int, p PanelState) []Element {
	var row []Element
	if p.ShowMic {
		row = append(row, Element{Button: ButtonMic, Pressed: p.MicPressed, Active: p.MicActive})
	}
	row = append(row,
		Element{Button: ButtonShare, Pressed: p.SharePressed},
		Element{Button: ButtonPS, Pressed: p.PSPressed},
		Element{Button: ButtonOptions, Pressed: p.OptionsPressed},
	)
	if p.ShowFullscreen {
		row = append(row, Element{Button: ButtonFullscreen, Pressed: p.FullscreenPressed, Active: p.FullscreenActive})
	}

	total := len(row)*MenuButtonWidth + (len(row)-1)*BottomPadding
	x := (w - total) / 2
	y := h - BottomPadding - MenuButtonHeight
	for i := range row {
		row[i].Rect = image.Rect(x, y, x+MenuButtonWidth, y+MenuButtonHeight)
		x += MenuButtonWidth + BottomPadding
	}

	row = append(row, Element{
		Button:  ButtonClose,
		Rect:    image.Rect(w-EdgePadding-ButtonSize, EdgePadding, w-EdgePadding, EdgePadding+ButtonSize),
		Pressed: p.ClosePressed,
	})
	return row
}

func dialog(w, h int, p PopupState, dir di.Direction) []Element {
	dw := min(2*DialogButtonWidth+3*DialogPaddingRight, w-2*EdgePadding)
	dh := DialogTextTop + 2*DialogHeaderHeight + DialogButtonHeight + DialogPaddingRight
	if p.ShowCheckbox {
		dh += DialogHeaderHeight + BottomPadding
	}
	dh = min(dh, h)
	dx, dy := (w-dw)/2, (h-dh)/2
	box := image.Rect(dx, dy, dx+dw, dy+dh)

	bw := max(min(DialogButtonWidth, (dw-3*DialogPaddingRight)/2), 0)
	by := box.Max.Y - DialogPaddingRight - DialogButtonHeight
	leftX := box.Min.X + DialogPaddingRight
	rightX := box.Max.X - DialogPaddingRight - bw
	rtl := dir == di.DirectionRTL
	if rtl {
		leftX, rightX = rightX, leftX
	}

	out := []Element{{Button: ButtonDialog, Rect: box, Label: p.Title, Detail: p.Message}}
	if p.ShowCheckbox {
		cy := by - BottomPadding - DialogHeaderHeight
		cx := box.Min.X + DialogPaddingRight
		if rtl {
			cx = box.Max.X - DialogPaddingRight - DialogButtonWidth
		}
		out = append(out, Element{
			Button:  ButtonDialogCheckbox,
			Rect:    image.Rect(cx, cy, cx+DialogButtonWidth, cy+DialogHeaderHeight),
			Label:   p.CheckboxLabel,
			Pressed: p.CheckboxPressed,
			Focused: p.CheckboxFocused,
			Active:  p.Checked,
		})
	}
	out = append(out,
		Element{
			Button:  ButtonDialogLeft,
			Rect:    image.Rect(leftX, by, leftX+bw, by+DialogButtonHeight),
			Label:   p.LeftLabel,
			Pressed: p.LeftPressed,
			Focused: p.LeftFocused,
		},
		Element{
			Button:  ButtonDialogRight,
			Rect:    image.Rect(rightX, by, rightX+bw, by+DialogButtonHeight),
			Label:   p.RightLabel,
			Pressed: p.RightPressed,
			Focused: p.RightFocused,
		},
	)
	return out
}
