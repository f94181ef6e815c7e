package commerceapi

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
)

// Coupons adapts the client to coupon.Validator.
type Coupons struct {
	client *Client
}

var _ coupon.Validator = (*Coupons)(nil)

// Coupons returns a coupon validator backed by c.
func (c *Client) Coupons() *Coupons {
	return &Coupons{client: c}
}

// Validate checks code against subtotal. A 4xx answer other than 401 and 403
// is a rejection of the code and fails with *coupon.RejectedError.
func (v *Coupons) Validate(ctx context.Context, token, code string, subtotal decimal.Decimal) (*coupon.Discount, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Str(code)
	e.FieldStart("order_amount")
	money(&e, subtotal)
	e.ObjEnd()

	data, err := v.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/coupons/validate",
		token:  token,
		body:   e.Bytes(),
	})
	if err != nil {
		var rejected *checkout.RejectedError
		if errors.As(err, &rejected) && isCouponRejection(rejected.StatusCode) {
			return nil, &coupon.RejectedError{Code: code, Reason: rejected.Message}
		}
		return nil, err
	}

	var (
		d         = coupon.Discount{Code: code}
		hasAmount bool
	)
	err = decodeObject("coupon", data, func(dec *jx.Decoder, key string) error {
		switch key {
		case "discount_amount":
			s, err := scalarString(dec)
			if err != nil {
				return err
			}
			amount, err := decimal.NewFromString(s)
			if err != nil {
				return errors.Wrap(err, "discount_amount")
			}
			d.Amount, hasAmount = amount, true
			return nil
		case "message":
			s, err := scalarString(dec)
			d.Description = s
			return err
		case "code":
			s, err := scalarString(dec)
			if s != "" {
				d.Code = coupon.NormalizeCode(s)
			}
			return err
		default:
			return dec.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	if !hasAmount {
		return nil, &MalformedResponseError{Op: "coupon", Reason: "missing discount_amount"}
	}
	return &d, nil
}

func isCouponRejection(code int) bool {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return false
	}
	return code >= 400 && code < 500
}
