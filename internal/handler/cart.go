package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
)

func (h *Handler) writeCart(w http.ResponseWriter, status int, lines []cart.Line) {
	var e jx.Encoder
	e.ObjStart()
	encodeCart(&e, lines)
	e.ObjEnd()
	writeJSON(w, status, e.Bytes())
}

// GetCart returns the session cart with its count and total.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.writeCart(w, http.StatusOK, sessionFrom(r.Context()).Cart.Lines())
}

// AddItem merges a product into the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	line, err := decodeLine(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c := sessionFrom(r.Context()).Cart
	c.Add(r.Context(), line)
	h.writeCart(w, http.StatusOK, c.Lines())
}

// UpdateItem sets the quantity of a line. Zero or less removes it.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var qty int
	seen := false
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		seen = true
		return integer(d, &qty)
	})
	if err == nil && !seen {
		err = badRequest("quantity is required")
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c := sessionFrom(r.Context()).Cart
	c.UpdateQuantity(r.Context(), chi.URLParam(r, "id"), qty)
	h.writeCart(w, http.StatusOK, c.Lines())
}

// RemoveItem drops a line from the cart.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c := sessionFrom(r.Context()).Cart
	c.Remove(r.Context(), chi.URLParam(r, "id"))
	h.writeCart(w, http.StatusOK, c.Lines())
}

// ClearCart empties the cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	c := sessionFrom(r.Context()).Cart
	c.Clear(r.Context())
	h.writeCart(w, http.StatusOK, c.Lines())
}

// CartEvents streams cart changes as server-sent events. The current state
// is sent first as an "updated" event. Slow readers skip intermediate
// events; every event carries the full cart so the latest one is enough.
func (h *Handler) CartEvents(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	rc := http.NewResponseController(w)
	lg := zctx.From(r.Context())

	events := make(chan cart.Event, 8)
	unsubscribe := s.Cart.Subscribe(func(ev cart.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()
	defer s.Attach()()

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(ev cart.Event) bool {
		if _, err := w.Write(encodeEvent(ev)); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	lines := s.Cart.Lines()
	if !send(cart.Event{Kind: cart.EventUpdated, Lines: lines, Count: cart.Count(lines), Total: cart.Total(lines)}) {
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			if !send(ev) {
				lg.Debug("Cart event stream closed")
				return
			}
		case <-ticker.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				lg.Debug("Cart event stream flush failed", zap.Error(err))
				return
			}
		}
	}
}

func encodeEvent(ev cart.Event) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("kind")
	e.Str(string(ev.Kind))
	encodeCart(&e, ev.Lines)
	e.ObjEnd()

	out := make([]byte, 0, len(e.Bytes())+32)
	out = append(out, "event: "...)
	out = append(out, ev.Kind...)
	out = append(out, "\ndata: "...)
	out = append(out, e.Bytes()...)
	return append(out, "\n\n"...)
}
