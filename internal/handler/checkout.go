package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/checkout"
)

// ListCities returns the supported delivery cities with their charge.
func (h *Handler) ListCities(w http.ResponseWriter, _ *http.Request) {
	var e jx.Encoder
	e.ArrStart()
	for _, c := range checkout.Cities() {
		e.ObjStart()
		e.FieldStart("name")
		e.Str(c.Name)
		e.FieldStart("metro")
		e.Bool(c.Metro)
		money(&e, "deliveryCharge", checkout.DeliveryCharge(c.Name))
		e.ObjEnd()
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}

// flow returns the active checkout of the request session.
func (h *Handler) flow(r *http.Request) (*checkout.Flow, error) {
	f := sessionFrom(r.Context()).Flow()
	if f == nil {
		return nil, errNoCheckout
	}
	return f, nil
}

func (h *Handler) writeState(w http.ResponseWriter, status int, f *checkout.Flow) {
	writeJSON(w, status, encodeState(f.State()))
}

// BeginCheckout snapshots the cart and starts a new checkout, replacing any
// unfinished one.
func (h *Handler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	f, err := h.checkout.Begin(r.Context(), s.Cart)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s.SetFlow(f)
	h.writeState(w, http.StatusCreated, f)
}

// BuyNow starts a checkout for a single product without touching the cart.
func (h *Handler) BuyNow(w http.ResponseWriter, r *http.Request) {
	line, err := decodeLine(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := h.checkout.BeginBuyNow(r.Context(), line)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sessionFrom(r.Context()).SetFlow(f)
	h.writeState(w, http.StatusCreated, f)
}

// GetCheckout returns the active checkout with a fresh quote.
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeState(w, http.StatusOK, f)
}

// CancelCheckout abandons the active checkout. The cart is untouched.
func (h *Handler) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r.Context()).SetFlow(nil)
	w.WriteHeader(http.StatusNoContent)
}

// SetAddress replaces the shipping address.
func (h *Handler) SetAddress(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	a, err := decodeAddress(r)
	if err == nil {
		err = f.SetAddress(a)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeState(w, http.StatusOK, f)
}

// SelectCity changes the delivery city and reprices the order.
func (h *Handler) SelectCity(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var city string
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		if key == checkout.FieldCity {
			return str(d, &city)
		}
		return d.Skip()
	})
	if err == nil {
		err = f.SelectCity(city)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeState(w, http.StatusOK, f)
}

// Next validates the address and moves to the payment step.
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, (*checkout.Flow).Next)
}

// Back returns to the address step.
func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, (*checkout.Flow).Back)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, move func(*checkout.Flow) error) {
	f, err := h.flow(r)
	if err == nil {
		err = move(f)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeState(w, http.StatusOK, f)
}

// SelectPayment records the payment method and option.
func (h *Handler) SelectPayment(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var method, option string
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "method", checkout.FieldMethod:
			return str(d, &method)
		case "option", checkout.FieldOption:
			return str(d, &option)
		default:
			return d.Skip()
		}
	})
	if err == nil {
		err = f.SelectPayment(checkout.PaymentSelection{
			Method: checkout.PaymentMethod(method),
			Option: checkout.PaymentOption(option),
		})
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeState(w, http.StatusOK, f)
}

// ApplyCoupon validates a coupon code with the commerce API and attaches
// its discount.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var code string
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		if key == "code" {
			return str(d, &code)
		}
		return d.Skip()
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s := sessionFrom(r.Context())
	if _, err := h.checkout.ApplyCoupon(r.Context(), f, h.sessions.Tokens(s.ID), code); err != nil {
		h.failUpstream(w, r, err)
		return
	}
	h.writeState(w, http.StatusOK, f)
}

// RemoveCoupon detaches the coupon discount.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err == nil {
		err = h.checkout.RemoveCoupon(f)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeState(w, http.StatusOK, f)
}
