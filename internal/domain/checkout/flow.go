package checkout

import (
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
)

// Step is a checkout wizard state.
type Step string

const (
	StepAddress   Step = "address"
	StepPayment   Step = "payment"
	StepCompleted Step = "completed"
)

// Flow is one shopper's checkout wizard. It works on a snapshot of the cart
// taken when checkout began; later cart changes do not affect it.
type Flow struct {
	mu sync.Mutex

	key      string
	buyNow   bool
	snapshot []cart.Line
	subtotal decimal.Decimal

	step     Step
	address  ShippingAddress
	delivery decimal.Decimal
	payment  PaymentSelection
	discount *coupon.Discount

	orderID   string
	submitted *Order
	session   *PaymentSession
}

func newFlow(key string, lines []cart.Line, buyNow bool) *Flow {
	return &Flow{
		key:      key,
		buyNow:   buyNow,
		snapshot: lines,
		subtotal: cart.Total(lines),
		step:     StepAddress,
		payment:  PaymentSelection{Option: OptionAdvance},
	}
}

// State is a read-only view of a flow.
type State struct {
	IdempotencyKey string
	BuyNow         bool
	Step           Step
	Items          []cart.Line
	Address        ShippingAddress
	Payment        PaymentSelection
	Coupon         *coupon.Discount
	Quote          Quote
	OrderID        string
	PaymentSession *PaymentSession
}

// IdempotencyKey identifies this checkout across submission retries.
func (f *Flow) IdempotencyKey() string { return f.key }

// State returns the current wizard state with a fresh quote.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := State{
		IdempotencyKey: f.key,
		BuyNow:         f.buyNow,
		Step:           f.step,
		Items:          slices.Clone(f.snapshot),
		Address:        f.address,
		Payment:        f.payment,
		Quote:          f.quote(),
		OrderID:        f.orderID,
	}
	if f.discount != nil {
		d := *f.discount
		s.Coupon = &d
	}
	if f.session != nil {
		p := *f.session
		s.PaymentSession = &p
	}
	return s
}

// Step returns the current wizard step.
func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// Quote prices the flow with its current city, coupon and payment option.
func (f *Flow) Quote() Quote {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quote()
}

func (f *Flow) quote() Quote {
	discount := decimal.Zero
	if f.discount != nil {
		discount = f.discount.Amount
	}
	return ComputeQuote(f.subtotal, discount, f.delivery, f.payment.Option)
}

// SetAddress replaces the shipping address and recomputes the delivery
// charge from its city. The address is not validated until Next.
func (f *Flow) SetAddress(a ShippingAddress) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step != StepAddress {
		return &StepError{Op: "edit address", Step: f.step}
	}
	f.address = a
	f.delivery = DeliveryCharge(a.City)
	return nil
}

// SelectCity changes only the city and recomputes the delivery charge.
func (f *Flow) SelectCity(city string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step != StepAddress {
		return &StepError{Op: "select city", Step: f.step}
	}
	f.address.City = city
	f.delivery = DeliveryCharge(city)
	return nil
}

// Next validates the address and moves to the payment step. All field
// problems are returned together in a *ValidationError.
func (f *Flow) Next() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step != StepAddress {
		return &StepError{Op: "continue to payment", Step: f.step}
	}
	if verr := ValidateAddress(f.address); verr != nil {
		return verr
	}
	f.step = StepPayment
	return nil
}

// Back returns from the payment step to the address step, keeping the
// entered address.
func (f *Flow) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.step {
	case StepAddress:
		return nil
	case StepPayment:
		f.step = StepAddress
		return nil
	default:
		return &StepError{Op: "go back", Step: f.step}
	}
}

// SelectPayment records the payment method and option.
func (f *Flow) SelectPayment(p PaymentSelection) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step != StepPayment {
		return &StepError{Op: "select payment", Step: f.step}
	}
	if verr := p.Validate(); verr != nil {
		return verr
	}
	p.Method, _ = ParsePaymentMethod(string(p.Method))
	p.Option, _ = ParsePaymentOption(string(p.Option))
	f.payment = p
	return nil
}

func (f *Flow) setDiscount(d *coupon.Discount) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step == StepCompleted {
		return &StepError{Op: "change coupon", Step: f.step}
	}
	f.discount = d
	return nil
}

func (f *Flow) subtotalAmount() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subtotal
}

// order builds the submission from the current state. The flow must be in
// the payment step with a complete address and payment selection.
func (f *Flow) order() (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step != StepPayment {
		return nil, &StepError{Op: "submit", Step: f.step}
	}
	if verr := ValidateAddress(f.address); verr != nil {
		return nil, verr
	}
	if verr := f.payment.Validate(); verr != nil {
		return nil, verr
	}

	q := f.quote()
	o := &Order{
		IdempotencyKey:  f.key,
		Items:           slices.Clone(f.snapshot),
		ShippingAddress: f.address,
		DeliveryCharge:  q.DeliveryCharge,
		PaymentMethod:   f.payment.Method,
		PaymentOption:   f.payment.Option,
		PaymentAmount:   q.PaymentAmount,
		Subtotal:        q.Subtotal,
		Discount:        q.Discount,
		TotalAmount:     q.Total,
		Note:            f.address.Note,
	}
	if f.discount != nil {
		o.CouponCode = f.discount.Code
	}
	if o.Note == "" {
		o.Note = "Cart Order"
		if f.buyNow {
			o.Note = "Buy Now Order"
		}
	}
	return o, nil
}

func (f *Flow) complete(orderID string, o *Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.step = StepCompleted
	f.orderID = orderID
	f.submitted = o
}

func (f *Flow) setPaymentSession(s *PaymentSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = s
}

// completed returns the order id and submitted order of a completed flow.
func (f *Flow) completed() (string, *Order, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orderID, f.submitted, f.step == StepCompleted
}

func (f *Flow) paymentSession() *PaymentSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil
	}
	p := *f.session
	return &p
}
