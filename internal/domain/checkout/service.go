package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
)

// DefaultTimeout bounds a single call to the commerce API.
const DefaultTimeout = 15 * time.Second

// Submission outcomes reported on the submissions counter.
const (
	outcomeConfirmed     = "confirmed"
	outcomeReplayed      = "replayed"
	outcomeRejected      = "rejected"
	outcomeTimeout       = "timeout"
	outcomeFailed        = "failed"
	outcomePaymentFailed = "payment_failed"
)

// Result is a successful submission.
type Result struct {
	OrderID string
	Payment *PaymentSession
}

// Service drives checkout flows against the commerce backend.
type Service struct {
	orders   OrderAPI
	payments PaymentAPI
	coupons  coupon.Validator
	ledger   Ledger

	timeout time.Duration
	newKey  func() string
	now     func() time.Time

	inflight    singleflight.Group
	submissions metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithLedger records submissions so that a retried submission reuses an
// order that was already confirmed.
func WithLedger(l Ledger) Option {
	return func(s *Service) { s.ledger = l }
}

// WithTimeout bounds every commerce API call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithMeterProvider sets the provider for checkout metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.submissions = newSubmissionsCounter(mp) }
}

func withKeyFunc(fn func() string) Option {
	return func(s *Service) { s.newKey = fn }
}

// NewService creates a checkout Service.
func NewService(orders OrderAPI, payments PaymentAPI, coupons coupon.Validator, opts ...Option) *Service {
	s := &Service{
		orders:   orders,
		payments: payments,
		coupons:  coupons,
		timeout:  DefaultTimeout,
		newKey:   func() string { return uuid.New().String() },
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.submissions == nil {
		s.submissions = newSubmissionsCounter(otel.GetMeterProvider())
	}
	return s
}

func newSubmissionsCounter(mp metric.MeterProvider) metric.Int64Counter {
	c, err := mp.Meter("storefront/checkout").Int64Counter("storefront.checkout.submissions",
		metric.WithDescription("Checkout submissions by outcome"),
	)
	if err != nil {
		c, _ = noop.NewMeterProvider().Meter("").Int64Counter("")
	}
	return c
}

// Begin starts a checkout over a snapshot of c. An empty cart fails with
// ErrEmptyCart.
func (s *Service) Begin(_ context.Context, c Cart) (*Flow, error) {
	lines := c.Lines()
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	return newFlow(s.newKey(), lines, false), nil
}

// BeginBuyNow starts a checkout for a single line without touching the cart.
func (s *Service) BeginBuyNow(_ context.Context, line cart.Line) (*Flow, error) {
	if line.ID == "" {
		return nil, ErrEmptyCart
	}
	if line.Quantity <= 0 {
		line.Quantity = 1
	}
	if line.UnitPrice.IsNegative() {
		line.UnitPrice = decimal.Zero
	}
	return newFlow(s.newKey(), []cart.Line{line}, true), nil
}

// ApplyCoupon validates code against the flow subtotal and attaches the
// granted discount. Without a token it fails with ErrNotAuthenticated and
// the commerce API is not called.
func (s *Service) ApplyCoupon(ctx context.Context, f *Flow, tokens TokenSource, code string) (*coupon.Discount, error) {
	if _, _, done := f.completed(); done {
		return nil, &StepError{Op: "change coupon", Step: StepCompleted}
	}
	token, err := bearer(ctx, tokens)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	d, err := coupon.Validate(ctx, s.coupons, token, code, f.subtotalAmount())
	if err != nil {
		return nil, classify(err)
	}
	if err := f.setDiscount(d); err != nil {
		return nil, err
	}
	return d, nil
}

// RemoveCoupon detaches any discount from the flow.
func (s *Service) RemoveCoupon(f *Flow) error {
	return f.setDiscount(nil)
}

// Submit places the order for f.
//
// The cart is cleared only once the order is confirmed, and never for a
// buy-now flow. Concurrent submits of one flow share a single request. When
// the order is created but the payment hand-off fails, the flow is completed
// and a *PaymentInitiationError is returned; use RetryPayment to try again.
func (s *Service) Submit(ctx context.Context, f *Flow, c Cart, tokens TokenSource) (*Result, error) {
	if orderID, _, done := f.completed(); done {
		if p := f.paymentSession(); p != nil {
			return &Result{OrderID: orderID, Payment: p}, nil
		}
		return s.RetryPayment(ctx, f, tokens)
	}

	o, err := f.order()
	if err != nil {
		return nil, err
	}
	token, err := bearer(ctx, tokens)
	if err != nil {
		return nil, err
	}

	v, err, _ := s.inflight.Do(f.key, func() (any, error) {
		return s.submit(ctx, f, c, token, o)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (s *Service) submit(ctx context.Context, f *Flow, c Cart, token string, o *Order) (*Result, error) {
	lg := zctx.From(ctx).With(zap.String("idempotency_key", o.IdempotencyKey))

	orderID, replayed := s.confirmedOrder(ctx, o.IdempotencyKey)
	if !replayed {
		var err error
		orderID, err = s.createOrder(ctx, token, o)
		if err != nil {
			err = classify(err)
			s.record(ctx, o, AttemptFailed, "", err)
			s.count(ctx, outcomeOf(err))
			lg.Warn("Order submission failed", zap.Error(err))
			return nil, err
		}
		s.record(ctx, o, AttemptConfirmed, orderID, nil)
	}

	f.complete(orderID, o)
	if !f.buyNow && c != nil {
		c.Clear(context.WithoutCancel(ctx))
	}
	lg.Info("Order confirmed", zap.String("order_id", orderID), zap.Bool("replayed", replayed))

	p, err := s.initiatePayment(ctx, token, orderID, o)
	if err != nil {
		s.count(ctx, outcomePaymentFailed)
		lg.Warn("Payment initiation failed", zap.String("order_id", orderID), zap.Error(err))
		return nil, &PaymentInitiationError{OrderID: orderID, Err: err}
	}
	f.setPaymentSession(p)

	if replayed {
		s.count(ctx, outcomeReplayed)
	} else {
		s.count(ctx, outcomeConfirmed)
	}
	return &Result{OrderID: orderID, Payment: p}, nil
}

// RetryPayment repeats the payment hand-off for a completed flow.
func (s *Service) RetryPayment(ctx context.Context, f *Flow, tokens TokenSource) (*Result, error) {
	orderID, o, done := f.completed()
	if !done {
		return nil, &StepError{Op: "retry payment", Step: f.Step()}
	}
	token, err := bearer(ctx, tokens)
	if err != nil {
		return nil, err
	}
	p, err := s.initiatePayment(ctx, token, orderID, o)
	if err != nil {
		return nil, &PaymentInitiationError{OrderID: orderID, Err: err}
	}
	f.setPaymentSession(p)
	return &Result{OrderID: orderID, Payment: p}, nil
}

// PaymentStatus reports the gateway status of a payment.
func (s *Service) PaymentStatus(ctx context.Context, tokens TokenSource, paymentID string) (PaymentStatus, error) {
	token, err := bearer(ctx, tokens)
	if err != nil {
		return "", err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	status, err := s.payments.PaymentStatus(ctx, token, paymentID)
	if err != nil {
		return "", classify(err)
	}
	return status, nil
}

func (s *Service) createOrder(ctx context.Context, token string, o *Order) (string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.orders.CreateOrder(ctx, token, o)
}

func (s *Service) initiatePayment(ctx context.Context, token, orderID string, o *Order) (*PaymentSession, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	p, err := s.payments.InitiatePayment(ctx, token, PaymentRequest{
		OrderID:       orderID,
		Amount:        o.PaymentAmount,
		Method:        o.PaymentMethod,
		CustomerName:  o.ShippingAddress.FullName,
		CustomerPhone: o.ShippingAddress.Mobile,
		CustomerEmail: o.ShippingAddress.Email,
	})
	if err != nil {
		return nil, classify(err)
	}
	return p, nil
}

func (s *Service) confirmedOrder(ctx context.Context, key string) (string, bool) {
	if s.ledger == nil {
		return "", false
	}
	id, ok, err := s.ledger.ConfirmedOrder(ctx, key)
	if err != nil {
		zctx.From(ctx).Warn("Checkout ledger lookup failed", zap.String("idempotency_key", key), zap.Error(err))
		return "", false
	}
	return id, ok
}

func (s *Service) record(ctx context.Context, o *Order, status AttemptStatus, orderID string, cause error) {
	if s.ledger == nil {
		return
	}
	a := Attempt{
		IdempotencyKey: o.IdempotencyKey,
		Status:         status,
		OrderID:        orderID,
		Subtotal:       o.Subtotal,
		Total:          o.TotalAmount,
		PaymentAmount:  o.PaymentAmount,
		PaymentMethod:  o.PaymentMethod,
		PaymentOption:  o.PaymentOption,
		At:             s.now(),
	}
	if cause != nil {
		a.Error = cause.Error()
	}
	if err := s.ledger.Record(context.WithoutCancel(ctx), a); err != nil {
		zctx.From(ctx).Warn("Checkout ledger write failed", zap.String("idempotency_key", o.IdempotencyKey), zap.Error(err))
	}
}

func (s *Service) count(ctx context.Context, outcome string) {
	s.submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func bearer(ctx context.Context, tokens TokenSource) (string, error) {
	if tokens == nil {
		return "", ErrNotAuthenticated
	}
	token, err := tokens.Token(ctx)
	switch {
	case errors.Is(err, cart.ErrNotFound):
		return "", ErrNotAuthenticated
	case err != nil:
		return "", errors.Wrap(err, "read token")
	case token == "":
		return "", ErrNotAuthenticated
	}
	return token, nil
}

// classify maps context deadline errors to ErrTimeout.
func classify(err error) error {
	if errors.Is(err, ErrTimeout) || !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &timeoutError{err: err}
}

type timeoutError struct{ err error }

func (e *timeoutError) Error() string        { return ErrTimeout.Error() + ": " + e.err.Error() }
func (e *timeoutError) Unwrap() error        { return e.err }
func (e *timeoutError) Is(target error) bool { return target == ErrTimeout }

func outcomeOf(err error) string {
	var rejected *RejectedError
	switch {
	case errors.Is(err, ErrTimeout):
		return outcomeTimeout
	case errors.As(err, &rejected):
		return outcomeRejected
	default:
		return outcomeFailed
	}
}
