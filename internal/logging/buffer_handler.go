package logging

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// bufferHandler mirrors records into the package ring buffer. The
// buffer is resolved per record, so handlers built before Initialize
// start writing once the buffer exists.
type bufferHandler struct {
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

func newBufferHandler(level slog.Leveler) *bufferHandler {
	return &bufferHandler{level: level}
}

func (h *bufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *bufferHandler) Handle(_ context.Context, r slog.Record) error {
	buffer := GetBuffer()
	if buffer == nil {
		return nil
	}

	entry := LogEntry{
		Timestamp:  r.Time,
		Level:      levelName(r.Level),
		Module:     "app",
		Message:    r.Message,
		Attributes: make(map[string]any),
	}

	collect := func(a slog.Attr) {
		if a.Key == "module" && len(h.groups) == 0 {
			entry.Module = a.Value.String()
			return
		}
		flatten(entry.Attributes, h.groups, a)
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(a)
		return true
	})

	buffer.Write(entry)
	return nil
}

func (h *bufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &bufferHandler{
		level:  h.level,
		attrs:  slices.Concat(h.attrs, attrs),
		groups: h.groups,
	}
}

func (h *bufferHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &bufferHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: append(slices.Clip(h.groups), name),
	}
}

// flatten stores an attribute under a dot-joined key; groups nest.
func flatten(into map[string]any, groups []string, a slog.Attr) {
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}

	switch a.Value.Kind() {
	case slog.KindGroup:
		nested := append(slices.Clone(groups), a.Key)
		for _, ga := range a.Value.Group() {
			flatten(into, nested, ga)
		}
	case slog.KindTime:
		into[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		into[key] = a.Value.Duration().String()
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			into[key] = err.Error()
		} else {
			into[key] = a.Value.Any()
		}
	default:
		into[key] = a.Value.Any()
	}
}

// levelName renders a level as the lowercase string the API serves.
func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
