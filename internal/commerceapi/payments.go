package commerceapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/checkout"
)

var _ checkout.PaymentAPI = (*Client)(nil)

// InitiatePayment asks the backend to start a gateway payment. The returned
// redirect URL is guaranteed to be an absolute http(s) URL.
func (c *Client) InitiatePayment(ctx context.Context, token string, req checkout.PaymentRequest) (*checkout.PaymentSession, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(req.OrderID)
	e.FieldStart("amount")
	money(&e, req.Amount)
	e.FieldStart("payment_method")
	e.Str(string(req.Method))
	e.FieldStart("customer_name")
	e.Str(req.CustomerName)
	e.FieldStart("customer_phone")
	e.Str(req.CustomerPhone)
	e.FieldStart("customer_email")
	e.Str(req.CustomerEmail)
	e.ObjEnd()

	data, err := c.do(ctx, request{
		method:         http.MethodPost,
		path:           "/api/payment/initiate",
		token:          token,
		idempotencyKey: "payment-" + req.OrderID,
		body:           e.Bytes(),
	})
	if err != nil {
		return nil, err
	}

	var s checkout.PaymentSession
	err = decodeObject("payment", data, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "payment_id":
			s.PaymentID, err = scalarString(d)
		case "payment_url":
			s.RedirectURL, err = scalarString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(s.RedirectURL)
	if s.RedirectURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &MalformedResponseError{Op: "payment", Reason: "payment_url is not an absolute http(s) url"}
	}
	return &s, nil
}

// PaymentStatus returns the gateway status of a payment.
func (c *Client) PaymentStatus(ctx context.Context, token, paymentID string) (checkout.PaymentStatus, error) {
	data, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/payment/status/" + url.PathEscape(paymentID),
		token:  token,
	})
	if err != nil {
		return "", err
	}

	var status string
	err = decodeObject("payment status", data, func(d *jx.Decoder, key string) error {
		switch key {
		case "payment":
			if d.Next() != jx.Object {
				return d.Skip()
			}
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "status" {
					return d.Skip()
				}
				v, err := scalarString(d)
				status = v
				return err
			})
		case "status":
			if status != "" {
				return d.Skip()
			}
			v, err := scalarString(d)
			status = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return "", err
	}
	if status == "" {
		return "", &MalformedResponseError{Op: "payment status", Reason: "missing status"}
	}
	return checkout.PaymentStatus(status), nil
}
