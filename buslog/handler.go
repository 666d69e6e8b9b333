package buslog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sat8bit/kizuna/bus"
	"github.com/sat8bit/kizuna/message"
)

// BusHandler is a slog.Handler that forwards warning-and-above records to a bus.Bus
// so renderers can show them, while every record still goes to the wrapped handler.
type BusHandler struct {
	bus   bus.Bus
	next  slog.Handler
	level slog.Leveler
	attrs []slog.Attr
}

// NewBusHandler creates a new BusHandler wrapping next.
// Records at or above level are also broadcast as message.KindLog.
func NewBusHandler(b bus.Bus, next slog.Handler, level slog.Leveler) *BusHandler {
	if level == nil {
		level = slog.LevelWarn
	}
	return &BusHandler{bus: b, next: next, level: level}
}

// Enabled reports whether either destination wants the record.
func (h *BusHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level() || h.next.Enabled(ctx, level)
}

// Handle writes the record to the wrapped handler and, when it is severe enough, to the bus.
// A closed bus is not an error for the caller.
func (h *BusHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.next.Enabled(ctx, r.Level) {
		err = h.next.Handle(ctx, r)
	}
	if r.Level < h.level.Level() {
		return err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", r.Level, r.Message)
	chaId := ""
	write := func(a slog.Attr) bool {
		if a.Key == "cha" {
			chaId = a.Value.String()
		}
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(write)

	_ = h.bus.Broadcast(&message.Message{
		ChaId: chaId,
		Text:  sb.String(),
		At:    r.Time,
		Kind:  message.KindLog,
	})
	return err
}

// WithAttrs returns a new BusHandler carrying attrs on both destinations.
func (h *BusHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &BusHandler{bus: h.bus, next: h.next.WithAttrs(attrs), level: h.level, attrs: merged}
}

// WithGroup returns a new BusHandler with the given group name on the wrapped handler.
func (h *BusHandler) WithGroup(name string) slog.Handler {
	return &BusHandler{bus: h.bus, next: h.next.WithGroup(name), level: h.level, attrs: h.attrs}
}
