package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/session"
)

var errNoCheckout = errors.New("no checkout in progress")

// apiError is the JSON error envelope of every failed request.
type apiError struct {
	Status  int
	Message string
	Fields  map[string]string
	OrderID string
}

func (e *apiError) Error() string { return e.Message }

func badRequest(msg string) *apiError {
	return &apiError{Status: http.StatusBadRequest, Message: msg}
}

// toAPIError maps domain errors to HTTP responses.
func toAPIError(err error) *apiError {
	var (
		api      *apiError
		invalid  *checkout.ValidationError
		step     *checkout.StepError
		payment  *checkout.PaymentInitiationError
		rejected *checkout.RejectedError
		coupErr  *coupon.RejectedError
	)
	switch {
	case errors.As(err, &api):
		return api
	case errors.As(err, &invalid):
		return &apiError{Status: http.StatusUnprocessableEntity, Message: "invalid input", Fields: invalid.Fields}
	case errors.Is(err, session.ErrInvalidID):
		return badRequest("missing or invalid " + SessionHeader + " header")
	case errors.Is(err, checkout.ErrEmptyCart):
		return &apiError{Status: http.StatusConflict, Message: err.Error()}
	case errors.Is(err, errNoCheckout):
		return &apiError{Status: http.StatusConflict, Message: err.Error()}
	case errors.As(err, &step):
		return &apiError{Status: http.StatusConflict, Message: step.Error()}
	case errors.Is(err, checkout.ErrNotAuthenticated):
		return &apiError{Status: http.StatusUnauthorized, Message: "sign in to place the order"}
	case errors.As(err, &coupErr):
		msg := coupErr.Reason
		if msg == "" {
			msg = "invalid coupon code"
		}
		return &apiError{Status: http.StatusUnprocessableEntity, Message: msg, Fields: map[string]string{"code": msg}}
	case errors.Is(err, coupon.ErrEmptyCode), errors.Is(err, coupon.ErrInvalidCoupon):
		return &apiError{Status: http.StatusUnprocessableEntity, Message: err.Error(), Fields: map[string]string{"code": err.Error()}}
	case errors.As(err, &payment):
		out := toAPIError(payment.Err)
		if out == nil {
			out = &apiError{Status: http.StatusBadGateway, Message: "payment gateway unavailable"}
		}
		out.Message = "order placed, payment could not be started: " + out.Message
		out.OrderID = payment.OrderID
		return out
	case errors.Is(err, checkout.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return &apiError{Status: http.StatusGatewayTimeout, Message: "commerce service timed out, please retry"}
	case errors.As(err, &rejected):
		if rejected.StatusCode == http.StatusUnauthorized || rejected.StatusCode == http.StatusForbidden {
			return &apiError{Status: http.StatusUnauthorized, Message: "session expired, sign in again"}
		}
		msg := rejected.Message
		if msg == "" {
			msg = "commerce service rejected the request"
		}
		return &apiError{Status: http.StatusBadGateway, Message: msg}
	default:
		return nil
	}
}

// fail writes err as a JSON error. Unknown errors are 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.failWith(w, r, err, http.StatusInternalServerError)
}

// failUpstream is fail for operations calling the commerce API, where an
// unclassified error is a transport failure.
func (h *Handler) failUpstream(w http.ResponseWriter, r *http.Request, err error) {
	h.failWith(w, r, err, http.StatusBadGateway)
}

func (h *Handler) failWith(w http.ResponseWriter, r *http.Request, err error, fallback int) {
	e := toAPIError(err)
	if e == nil {
		e = &apiError{Status: fallback, Message: http.StatusText(fallback)}
	}
	if e.Status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Int("status", e.Status), zap.Error(err))
	}
	writeError(w, e)
}

func writeError(w http.ResponseWriter, e *apiError) {
	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("code")
	enc.Int(e.Status)
	enc.FieldStart("message")
	enc.Str(e.Message)
	if len(e.Fields) > 0 {
		enc.FieldStart("fields")
		enc.ObjStart()
		for _, k := range sortedKeys(e.Fields) {
			enc.FieldStart(k)
			enc.Str(e.Fields[k])
		}
		enc.ObjEnd()
	}
	if e.OrderID != "" {
		enc.FieldStart("orderId")
		enc.Str(e.OrderID)
	}
	enc.ObjEnd()
	writeJSON(w, e.Status, enc.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
