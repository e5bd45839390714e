package logging

import (
	"context"
	"errors"
	"log/slog"
)

// tee fans every record out to all child handlers.
type tee struct {
	children []slog.Handler
}

func newTee(children ...slog.Handler) slog.Handler {
	return &tee{children: children}
}

// Enabled reports whether any child accepts records at this level.
func (t *tee) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.children {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers the record to every child that accepts its level.
func (t *tee) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t.children {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	children := make([]slog.Handler, len(t.children))
	for i, h := range t.children {
		children[i] = h.WithAttrs(attrs)
	}
	return &tee{children: children}
}

func (t *tee) WithGroup(name string) slog.Handler {
	children := make([]slog.Handler, len(t.children))
	for i, h := range t.children {
		children[i] = h.WithGroup(name)
	}
	return &tee{children: children}
}
