package signaling

import (
	"context"
	"log/slog"
)

// Handler decodes frames from a relay connection and routes them.
type Handler struct {
	in <-chan *Message

	// OnEvent receives session setup events (everything but Fallback).
	OnEvent func(Event)

	// OnFallback receives application messages routed through the relay.
	OnFallback func(Fallback)

	// OnMalformed is told about frames that failed to decode. Optional.
	OnMalformed func(error)

	// OnClosed is called when the relay connection ends. It is not called
	// when ctx is cancelled first. Optional.
	OnClosed func()
}

// NewHandler creates a handler reading from in.
func NewHandler(in <-chan *Message) *Handler {
	return &Handler{in: in}
}

// Run routes frames until in is closed or ctx is done.
func (h *Handler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-h.in:
			if !ok {
				if h.OnClosed != nil && ctx.Err() == nil {
					h.OnClosed()
				}
				return
			}
			h.route(msg)
		}
	}
}

func (h *Handler) route(msg *Message) {
	ev, err := Decode(msg)
	if err != nil {
		slog.Warn("dropping signaling frame", "type", msg.Type, "from", msg.From, "error", err)
		if h.OnMalformed != nil {
			h.OnMalformed(err)
		}
		return
	}

	if fb, ok := ev.(Fallback); ok {
		if h.OnFallback != nil {
			h.OnFallback(fb)
		}
		return
	}
	if h.OnEvent != nil {
		h.OnEvent(ev)
	}
}
