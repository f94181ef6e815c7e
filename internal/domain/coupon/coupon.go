// Package coupon applies promotional discounts to a checkout. Coupon rules
// live in the commerce backend; this package normalizes codes, caps the
// granted amount and defines the validator contract.
package coupon

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidCoupon is returned when a coupon code is unknown or the order
	// does not qualify for it.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrEmptyCode is returned when no code was entered.
	ErrEmptyCode = errors.New("coupon code required")
)

// RejectedError carries the backend's reason for refusing a code. It matches
// ErrInvalidCoupon with errors.Is.
type RejectedError struct {
	Code   string
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("coupon %s rejected", e.Code)
	}
	return fmt.Sprintf("coupon %s rejected: %s", e.Code, e.Reason)
}

// Is reports ErrInvalidCoupon as the sentinel for every rejection.
func (e *RejectedError) Is(target error) bool {
	return target == ErrInvalidCoupon
}

// Discount is the amount granted by a validated coupon.
type Discount struct {
	Code        string
	Amount      decimal.Decimal
	Description string
}

// Validator checks a coupon code against an order subtotal on behalf of the
// shopper holding token and returns the discount it grants.
type Validator interface {
	Validate(ctx context.Context, token, code string, subtotal decimal.Decimal) (*Discount, error)
}

// NormalizeCode trims and upper-cases a shopper-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Cap returns the discount amount clamped to [0, subtotal] and rounded to 2
// decimal places.
func (d Discount) Cap(subtotal decimal.Decimal) decimal.Decimal {
	amount := decimal.Min(d.Amount, subtotal)
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount.Round(2)
}

// Validate normalizes code and delegates to v. An empty code fails with
// ErrEmptyCode without calling v.
func Validate(ctx context.Context, v Validator, token, code string, subtotal decimal.Decimal) (*Discount, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrEmptyCode
	}
	d, err := v.Validate(ctx, token, code, subtotal)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, err
		}
		return nil, errors.Wrap(err, "validate coupon")
	}
	if d.Code == "" {
		d.Code = code
	}
	d.Amount = d.Cap(subtotal)
	return d, nil
}
