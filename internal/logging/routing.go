package logging

import (
	"context"
	"log/slog"
)

// sink pairs a concrete handler with its routing rule.
type sink struct {
	handler slog.Handler
	min     slog.Level
	// category, when non-empty, restricts the sink to records carrying
	// that category attribute.
	category string
}

// routingHandler fans each record out to every sink whose level and
// category rule matches. Sink failures are swallowed: logging must never
// affect request handling.
type routingHandler struct {
	sinks []sink
}

func (h *routingHandler) Enabled(_ context.Context, level slog.Level) bool {
	for _, s := range h.sinks {
		if level >= s.min {
			return true
		}
	}
	return false
}

func (h *routingHandler) Handle(ctx context.Context, rec slog.Record) error {
	cat := recordCategory(rec)
	for _, s := range h.sinks {
		if rec.Level < s.min {
			continue
		}
		if s.category != "" && s.category != cat {
			continue
		}
		_ = s.handler.Handle(ctx, rec)
	}
	return nil
}

func (h *routingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &routingHandler{sinks: make([]sink, len(h.sinks))}
	for i, s := range h.sinks {
		next.sinks[i] = sink{handler: s.handler.WithAttrs(attrs), min: s.min, category: s.category}
	}
	return next
}

func (h *routingHandler) WithGroup(name string) slog.Handler {
	next := &routingHandler{sinks: make([]sink, len(h.sinks))}
	for i, s := range h.sinks {
		next.sinks[i] = sink{handler: s.handler.WithGroup(name), min: s.min, category: s.category}
	}
	return next
}

// recordCategory returns the record's category attribute, if present.
// Only top-level attrs are inspected; categories are always attached at
// the call site, never via WithAttrs.
func recordCategory(rec slog.Record) string {
	var cat string
	rec.Attrs(func(a slog.Attr) bool {
		if a.Key == categoryKey {
			cat = a.Value.String()
			return false
		}
		return true
	})
	return cat
}
