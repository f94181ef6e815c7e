package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/checkout"
)

// Submit places the order and starts the payment hand-off. The response
// carries the order id and the gateway URL the shopper is redirected to.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s := sessionFrom(r.Context())
	res, err := h.checkout.Submit(r.Context(), f, s.Cart, h.sessions.Tokens(s.ID))
	if err != nil {
		h.failUpstream(w, r, err)
		return
	}
	writeResult(w, res)
}

// RetryPayment repeats the payment hand-off for an order that was created
// but could not be handed to the gateway.
func (h *Handler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s := sessionFrom(r.Context())
	res, err := h.checkout.RetryPayment(r.Context(), f, h.sessions.Tokens(s.ID))
	if err != nil {
		h.failUpstream(w, r, err)
		return
	}
	writeResult(w, res)
}

// PaymentStatus reports the gateway status of a payment.
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s := sessionFrom(r.Context())
	status, err := h.checkout.PaymentStatus(r.Context(), h.sessions.Tokens(s.ID), id)
	if err != nil {
		h.failUpstream(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("paymentId")
	e.Str(id)
	e.FieldStart("status")
	e.Str(string(status))
	e.FieldStart("completed")
	e.Bool(status == checkout.PaymentCompleted)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}

func writeResult(w http.ResponseWriter, res *checkout.Result) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(res.OrderID)
	if res.Payment != nil {
		e.FieldStart("paymentId")
		e.Str(res.Payment.PaymentID)
		e.FieldStart("paymentUrl")
		e.Str(res.Payment.RedirectURL)
	}
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}
