package checkout

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/go-faster/errors"
)

// Sentinel errors for the checkout flow.
var (
	// ErrEmptyCart is returned when checkout starts without any cart lines.
	ErrEmptyCart = errors.New("nothing to check out")
	// ErrNotAuthenticated is returned when no bearer token is stored for the
	// shopper at submission time.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrTimeout is returned when the commerce API did not answer in time.
	ErrTimeout = errors.New("commerce api timed out")
)

// ValidationError lists field-scoped input problems. Fields maps a field
// name to a human-readable message.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// StepError is returned when an operation is attempted in the wrong wizard
// step.
type StepError struct {
	Op   string
	Step Step
}

func (e *StepError) Error() string {
	return fmt.Sprintf("cannot %s during %s step", e.Op, e.Step)
}

// RejectedError indicates the commerce API answered with a non-success
// status.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("commerce api rejected request: status %d", e.StatusCode)
	}
	return fmt.Sprintf("commerce api rejected request: status %d: %s", e.StatusCode, e.Message)
}

// PaymentInitiationError is returned by Submit when the order was created
// but the payment gateway hand-off failed. The order stands; the hand-off can
// be retried with Service.RetryPayment.
type PaymentInitiationError struct {
	OrderID string
	Err     error
}

func (e *PaymentInitiationError) Error() string {
	return fmt.Sprintf("order %s created, payment initiation failed: %v", e.OrderID, e.Err)
}

func (e *PaymentInitiationError) Unwrap() error {
	return e.Err
}
