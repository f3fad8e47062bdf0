package ui

import (
	"testing"

	"github.com/go-text/typesetting/di"
	"golang.org/x/text/language"
)

func TestParseLocale(t *testing.T) {
	tests := []struct {
		in      string
		matched language.Tag
		dir     di.Direction
		share   string
	}{
		{"en-US", language.English, di.DirectionLTR, "Share"},
		{"de-CH", language.German, di.DirectionLTR, "Teilen"},
		{"fr", language.French, di.DirectionLTR, "Partager"},
		{"ar-EG", language.Arabic, di.DirectionRTL, "مشاركة"},
		{"he", language.Hebrew, di.DirectionRTL, "שיתוף"},
		{"fa-IR", language.English, di.DirectionRTL, "Share"},
		{"ur-PK", language.English, di.DirectionRTL, "Share"},
		{"ja", language.English, di.DirectionLTR, "Share"},
		{"", language.English, di.DirectionLTR, "Share"},
		{"not a locale", language.English, di.DirectionLTR, "Share"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			l := ParseLocale(tt.in)
			if l.Matched != tt.matched {
				t.Errorf("Matched = %v, want %v", l.Matched, tt.matched)
			}
			if l.Direction != tt.dir {
				t.Errorf("Direction = %v, want %v", l.Direction, tt.dir)
			}
			if got := l.Label(ButtonShare); got != tt.share {
				t.Errorf("Label(share) = %q, want %q", got, tt.share)
			}
		})
	}
}

func TestDefaultLabels(t *testing.T) {
	l := ParseLocale("en")
	for b, want := range map[Button]string{
		ButtonDialogLeft:  "Cancel",
		ButtonDialogRight: "OK",
		ButtonTouchpad:    "",
		ButtonDialog:      "",
	} {
		if got := l.Label(b); got != want {
			t.Errorf("Label(%s) = %q, want %q", b, got, want)
		}
	}
	if got := (Locale{}).Label(ButtonOptions); got != "Options" {
		t.Errorf("zero Locale label = %q", got)
	}
}

func TestTextDirection(t *testing.T) {
	tests := []struct {
		s    string
		def  di.Direction
		want di.Direction
	}{
		{"Hello", di.DirectionRTL, di.DirectionLTR},
		{"مرحبا", di.DirectionLTR, di.DirectionRTL},
		{"  שלום", di.DirectionLTR, di.DirectionRTL},
		{"123 !", di.DirectionRTL, di.DirectionRTL},
		{"", di.DirectionLTR, di.DirectionLTR},
	}
	for _, tt := range tests {
		if got := textDirection(tt.s, tt.def); got != tt.want {
			t.Errorf("textDirection(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
}
