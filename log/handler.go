package log

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

type discardHandler struct{}

// DiscardHandler returns a handler that drops every record.
func DiscardHandler() slog.Handler {
	return discardHandler{}
}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

// replaceLevel renders the custom trace/crit levels by name instead of "DEBUG-4".
func replaceLevel(upper bool) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, attr slog.Attr) slog.Attr {
		if attr.Key != slog.LevelKey {
			return attr
		}
		lvl, ok := attr.Value.Any().(slog.Level)
		if !ok {
			return attr
		}
		name := LevelString(lvl)
		if upper {
			name = strings.TrimSpace(LevelAlignedString(lvl))
		}
		return slog.String(slog.LevelKey, name)
	}
}

// NewTerminalHandlerWithLevel returns a text handler for interactive use.
func NewTerminalHandlerWithLevel(w io.Writer, lvl slog.Level, addSource bool) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		AddSource:   addSource,
		Level:       lvl,
		ReplaceAttr: replaceLevel(true),
	})
}

// NewJSONHandler returns a handler emitting one JSON object per record, with
// timestamp/severity/message keys for log shippers.
func NewJSONHandler(w io.Writer, lvl slog.Level) slog.Handler {
	levelAttr := replaceLevel(true)
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				attr = levelAttr(groups, attr)
				return slog.Attr{Key: "severity", Value: attr.Value}
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})
}
