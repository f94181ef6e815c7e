package checkout

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentMethod is a supported mobile-wallet provider.
type PaymentMethod string

const (
	MethodBkash PaymentMethod = "bkash"
	MethodNagad PaymentMethod = "nagad"
	MethodUpay  PaymentMethod = "upay"
)

// PaymentMethods lists the supported providers.
func PaymentMethods() []PaymentMethod {
	return []PaymentMethod{MethodBkash, MethodNagad, MethodUpay}
}

// ParsePaymentMethod maps user input to a supported provider.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range PaymentMethods() {
		if m == known {
			return m, true
		}
	}
	return "", false
}

// PaymentOption decides how much is charged now.
type PaymentOption string

const (
	// OptionAdvance charges a deposit now and the rest on delivery.
	OptionAdvance PaymentOption = "advance"
	// OptionFull charges the whole order total now.
	OptionFull PaymentOption = "full"
)

// ParsePaymentOption maps user input to a payment option.
func ParsePaymentOption(s string) (PaymentOption, bool) {
	switch o := PaymentOption(strings.ToLower(strings.TrimSpace(s))); o {
	case OptionAdvance, OptionFull:
		return o, true
	default:
		return "", false
	}
}

// PaymentSelection is the shopper's payment choice.
type PaymentSelection struct {
	Method PaymentMethod
	Option PaymentOption
}

// Validate reports missing or unknown method and option.
func (p PaymentSelection) Validate() *ValidationError {
	errs := make(map[string]string)
	if _, ok := ParsePaymentMethod(string(p.Method)); !ok {
		errs[FieldMethod] = "choose bkash, nagad or upay"
	}
	if _, ok := ParsePaymentOption(string(p.Option)); !ok {
		errs[FieldOption] = "choose advance or full payment"
	}
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Fields: errs}
}

// Advance payment policy.
var (
	AdvanceRate  = decimal.RequireFromString("0.20")
	AdvanceFloor = decimal.NewFromInt(200)
)

// AdvanceAmount returns the deposit for subtotal: 20% rounded down to a whole
// unit, never less than AdvanceFloor.
func AdvanceAmount(subtotal decimal.Decimal) decimal.Decimal {
	return decimal.Max(AdvanceFloor, subtotal.Mul(AdvanceRate).Floor())
}

// Quote is the price breakdown of a checkout.
type Quote struct {
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	DeliveryCharge decimal.Decimal
	Total          decimal.Decimal
	PaymentAmount  decimal.Decimal
	DueOnDelivery  decimal.Decimal
}

// ComputeQuote prices an order. Total is subtotal minus discount plus
// delivery. The advance deposit is computed on the discounted subtotal and
// capped at Total, so DueOnDelivery is never negative.
func ComputeQuote(subtotal, discount, delivery decimal.Decimal, option PaymentOption) Quote {
	discount = decimal.Min(decimal.Max(discount, decimal.Zero), subtotal)
	net := subtotal.Sub(discount)
	total := net.Add(delivery)

	pay := total
	if option == OptionAdvance {
		pay = decimal.Min(AdvanceAmount(net), total)
	}

	return Quote{
		Subtotal:       subtotal,
		Discount:       discount,
		DeliveryCharge: delivery,
		Total:          total,
		PaymentAmount:  pay,
		DueOnDelivery:  total.Sub(pay),
	}
}
