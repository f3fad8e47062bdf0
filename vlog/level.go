package vlog

import "log/slog"

// Level is a pipeline log level. Lower values are more severe; a logger
// created with min level L delivers every record whose level is <= L.
type Level int

// Log levels in increasing verbosity. The numeric values are part of the
// integer boundary and must not change.
const (
	LevelNone Level = iota
	LevelFatal
	LevelErr
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace

	LevelAll = LevelTrace
)

// slog levels for the two pipeline levels slog has no name for.
const (
	SlogLevelFatal = slog.LevelError + 4
	SlogLevelTrace = slog.LevelDebug - 4
)

// ParseLevel clamps a raw boundary value into the valid range.
func ParseLevel(v int) Level {
	switch {
	case v <= int(LevelNone):
		return LevelNone
	case v >= int(LevelTrace):
		return LevelTrace
	default:
		return Level(v)
	}
}

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelNone:
		return "NONE"
	case LevelFatal:
		return "FATAL"
	case LevelErr:
		return "ERR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	case LevelTrace:
		return "TRACE"
	default:
		return "UNKNOWN"
	}
}

// Slog returns the slog level records of this level are emitted at.
func (l Level) Slog() slog.Level {
	switch l {
	case LevelFatal:
		return SlogLevelFatal
	case LevelErr:
		return slog.LevelError
	case LevelWarn:
		return slog.LevelWarn
	case LevelInfo:
		return slog.LevelInfo
	case LevelDebug:
		return slog.LevelDebug
	default:
		return SlogLevelTrace
	}
}

// FromSlog maps an arbitrary slog level onto the nearest pipeline level.
func FromSlog(l slog.Level) Level {
	switch {
	case l >= SlogLevelFatal:
		return LevelFatal
	case l >= slog.LevelError:
		return LevelErr
	case l >= slog.LevelWarn:
		return LevelWarn
	case l >= slog.LevelInfo:
		return LevelInfo
	case l >= slog.LevelDebug:
		return LevelDebug
	default:
		return LevelTrace
	}
}
