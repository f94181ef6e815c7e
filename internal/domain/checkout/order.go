package checkout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
)

// Order is the order-creation request sent to the commerce API. It is built
// once per submission and never changed afterwards.
type Order struct {
	IdempotencyKey  string
	Items           []cart.Line
	ShippingAddress ShippingAddress
	DeliveryCharge  decimal.Decimal
	PaymentMethod   PaymentMethod
	PaymentOption   PaymentOption
	PaymentAmount   decimal.Decimal
	Subtotal        decimal.Decimal
	CouponCode      string
	Discount        decimal.Decimal
	TotalAmount     decimal.Decimal
	Note            string
}

// PaymentRequest asks the payment collaborator for a gateway redirect.
type PaymentRequest struct {
	OrderID       string
	Amount        decimal.Decimal
	Method        PaymentMethod
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
}

// PaymentSession is a started gateway payment.
type PaymentSession struct {
	PaymentID   string
	RedirectURL string
}

// PaymentStatus is the gateway-reported state of a payment, e.g.
// "initiated", "completed" or "failed".
type PaymentStatus string

// PaymentCompleted is the status of a captured payment.
const PaymentCompleted PaymentStatus = "completed"

// OrderAPI creates orders in the commerce backend.
type OrderAPI interface {
	CreateOrder(ctx context.Context, token string, o *Order) (orderID string, err error)
}

// PaymentAPI starts and tracks gateway payments.
type PaymentAPI interface {
	InitiatePayment(ctx context.Context, token string, req PaymentRequest) (*PaymentSession, error)
	PaymentStatus(ctx context.Context, token, paymentID string) (PaymentStatus, error)
}

// Cart is the part of the cart store checkout depends on.
type Cart interface {
	Lines() []cart.Line
	Clear(ctx context.Context)
}

// TokenSource yields the shopper's bearer token. Absent tokens are reported
// as an empty string or cart.ErrNotFound.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// AttemptStatus is the outcome of one submission attempt.
type AttemptStatus string

const (
	AttemptConfirmed AttemptStatus = "confirmed"
	AttemptFailed    AttemptStatus = "failed"
)

// Attempt records one order submission.
type Attempt struct {
	IdempotencyKey string
	Status         AttemptStatus
	OrderID        string
	Subtotal       decimal.Decimal
	Total          decimal.Decimal
	PaymentAmount  decimal.Decimal
	PaymentMethod  PaymentMethod
	PaymentOption  PaymentOption
	Error          string
	At             time.Time
}

// Ledger keeps a record of submissions keyed by idempotency key so that a
// retry after a lost response can reuse the order that was already created.
type Ledger interface {
	ConfirmedOrder(ctx context.Context, idempotencyKey string) (orderID string, ok bool, err error)
	Record(ctx context.Context, a Attempt) error
}
