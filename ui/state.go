package ui

import "hash/maphash"

// State is a snapshot of what the overlay should show. It is a plain value:
// the overlay keeps its own copy and never mutates the caller's.
//
// TouchpadPressed and PanelPressed are input edges, not display state. They
// are ignored by Equal and Hash so a press pulse never invalidates textures.
type State struct {
	ShowTouchpad bool
	ShowPanel    bool
	ShowPopup    bool

	TouchpadPressed bool
	PanelPressed    bool

	Panel PanelState
	Popup PopupState

	// ShowBanner displays BannerText across the top (content that cannot
	// be streamed, for example).
	ShowBanner bool
	BannerText string
}

// PanelState is the bottom control panel.
type PanelState struct {
	ShowMic        bool
	ShowFullscreen bool

	MicPressed bool
	MicActive  bool

	SharePressed      bool
	PSPressed         bool
	OptionsPressed    bool
	FullscreenPressed bool
	FullscreenActive  bool
	ClosePressed      bool
}

// PopupState is the modal dialog.
type PopupState struct {
	Title   string
	Message string

	LeftLabel  string
	RightLabel string

	ShowCheckbox    bool
	CheckboxLabel   string
	Checked         bool
	CheckboxFocused bool
	CheckboxPressed bool

	LeftFocused  bool
	LeftPressed  bool
	RightFocused bool
	RightPressed bool
}

// DefaultState returns the initial state: nothing visible, mic and
// fullscreen buttons enabled for when the panel is shown.
func DefaultState() State {
	return State{Panel: PanelState{ShowMic: true, ShowFullscreen: true}}
}

// steady returns s without its transient flags.
func (s State) steady() State {
	s.TouchpadPressed = false
	s.PanelPressed = false
	return s
}

// Equal reports whether s and o display the same thing.
func (s State) Equal(o State) bool {
	return s.steady() == o.steady()
}

var stateSeed = maphash.MakeSeed()

// Hash returns a hash consistent with Equal within one process.
func (s State) Hash() uint64 {
	return maphash.Comparable(stateSeed, s.steady())
}

// Feedback is the transient input state of the latest update.
type Feedback struct {
	TouchpadPressed bool
	PanelPressed    bool
	// Pressed and Focused list the visible buttons in draw order.
	Pressed []Button
	Focused []Button
}

func feedbackOf(s State) Feedback {
	fb := Feedback{TouchpadPressed: s.TouchpadPressed, PanelPressed: s.PanelPressed}
	mark := func(b Button, pressed, focused bool) {
		if pressed {
			fb.Pressed = append(fb.Pressed, b)
		}
		if focused {
			fb.Focused = append(fb.Focused, b)
		}
	}
	if s.ShowTouchpad {
		mark(ButtonTouchpad, s.TouchpadPressed, false)
	}
	if s.ShowPanel {
		p := s.Panel
		if p.ShowMic {
			mark(ButtonMic, p.MicPressed, false)
		}
		mark(ButtonShare, p.SharePressed, false)
		mark(ButtonPS, p.PSPressed, false)
		mark(ButtonOptions, p.OptionsPressed, false)
		if p.ShowFullscreen {
			mark(ButtonFullscreen, p.FullscreenPressed, false)
		}
		mark(ButtonClose, p.ClosePressed, false)
	}
	if s.ShowPopup {
		p := s.Popup
		if p.ShowCheckbox {
			mark(ButtonDialogCheckbox, p.CheckboxPressed, p.CheckboxFocused)
		}
		mark(ButtonDialogLeft, p.LeftPressed, p.LeftFocused)
		mark(ButtonDialogRight, p.RightPressed, p.RightFocused)
	}
	return fb
}
