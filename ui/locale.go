package ui

import (
	"github.com/go-text/typesetting/di"
	tslang "github.com/go-text/typesetting/language"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Label catalog keys.
const (
	keyMic        = "Mic"
	keyShare      = "Share"
	keyPS         = "PS"
	keyOptions    = "Options"
	keyFullscreen = "Fullscreen"
	keyClose      = "Close"
	keyOK         = "OK"
	keyCancel     = "Cancel"
)

var translations = map[language.Tag]map[string]string{
	language.English: {
		keyMic: "Mic", keyShare: "Share", keyPS: "PS", keyOptions: "Options",
		keyFullscreen: "Fullscreen", keyClose: "X", keyOK: "OK", keyCancel: "Cancel",
	},
	language.German: {
		keyMic: "Mikro", keyShare: "Teilen", keyPS: "PS", keyOptions: "Optionen",
		keyFullscreen: "Vollbild", keyClose: "X", keyOK: "OK", keyCancel: "Abbrechen",
	},
	language.French: {
		keyMic: "Micro", keyShare: "Partager", keyPS: "PS", keyOptions: "Options",
		keyFullscreen: "Plein écran", keyClose: "X", keyOK: "OK", keyCancel: "Annuler",
	},
	language.Arabic: {
		keyMic: "ميكروفون", keyShare: "مشاركة", keyPS: "PS", keyOptions: "خيارات",
		keyFullscreen: "ملء الشاشة", keyClose: "X", keyOK: "موافق", keyCancel: "إلغاء",
	},
	language.Hebrew: {
		keyMic: "מיקרופון", keyShare: "שיתוף", keyPS: "PS", keyOptions: "אפשרויות",
		keyFullscreen: "מסך מלא", keyClose: "X", keyOK: "אישור", keyCancel: "ביטול",
	},
}

// supported lists the catalog languages; the first is the fallback.
var supported = []language.Tag{
	language.English,
	language.German,
	language.French,
	language.Arabic,
	language.Hebrew,
}

var (
	labels  *catalog.Builder
	matcher language.Matcher
)

func init() {
	labels = catalog.NewBuilder(catalog.Fallback(language.English))
	for _, tag := range supported {
		for k, v := range translations[tag] {
			if err := labels.SetString(tag, k, v); err != nil {
				panic(err)
			}
		}
	}
	matcher = language.NewMatcher(supported)
}

var rtlScripts = map[tslang.Script]bool{
	tslang.Arabic:            true,
	tslang.Hebrew:            true,
	tslang.Syriac:            true,
	tslang.Thaana:            true,
	tslang.Nko:               true,
	tslang.Adlam:             true,
	tslang.Mandaic:           true,
	tslang.Samaritan:         true,
	tslang.Old_South_Arabian: true,
}

// Locale is the resolved display language of an overlay.
type Locale struct {
	// Requested is the parsed caller locale, Matched the catalog language
	// labels are taken from.
	Requested language.Tag
	Matched   language.Tag
	Direction di.Direction

	printer *message.Printer
}

// ParseLocale resolves a BCP 47 locale string. Unparseable input, and
// locales no catalog language matches with any confidence, yield English.
// Direction follows the locale's script, so "ar" and "he-IL" are
// right-to-left even though labels may fall back to another language.
func ParseLocale(s string) Locale {
	tag, err := language.Parse(s)
	if err != nil {
		tag = language.English
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		idx = 0
	}
	l := Locale{
		Requested: tag,
		Matched:   supported[idx],
		Direction: di.DirectionLTR,
	}
	if script, conf := tag.Script(); conf != language.No {
		if ts, err := tslang.ParseScript(script.String()); err == nil && rtlScripts[ts] {
			l.Direction = di.DirectionRTL
		}
	}
	l.printer = message.NewPrinter(l.Matched, message.Catalog(labels))
	return l
}

// Label returns the localized default label of b, or "" when b has none.
func (l Locale) Label(b Button) string {
	key := ""
	switch b {
	case ButtonMic:
		key = keyMic
	case ButtonShare:
		key = keyShare
	case ButtonPS:
		key = keyPS
	case ButtonOptions:
		key = keyOptions
	case ButtonFullscreen:
		key = keyFullscreen
	case ButtonClose:
		key = keyClose
	case ButtonDialogLeft:
		key = keyCancel
	case ButtonDialogRight:
		key = keyOK
	default:
		return ""
	}
	if l.printer == nil {
		return translations[language.English][key]
	}
	return l.printer.Sprintf(key)
}

// textDirection reports the direction of s from its first strongly typed
// rune, defaulting to def.
func textDirection(s string, def di.Direction) di.Direction {
	for _, r := range s {
		script := tslang.LookupScript(r)
		if !script.Strong() || script == tslang.Unknown {
			continue
		}
		if rtlScripts[script] {
			return di.DirectionRTL
		}
		return di.DirectionLTR
	}
	return def
}
