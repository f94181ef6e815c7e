package coupon

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockValidator struct {
	discount *Discount
	err      error
	lastCode  string
	lastToken string
	calls     int
}

func (m *mockValidator) Validate(_ context.Context, token, code string, _ decimal.Decimal) (*Discount, error) {
	m.calls++
	m.lastCode = code
	m.lastToken = token
	return m.discount, m.err
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		v          *mockValidator
		code       string
		subtotal   decimal.Decimal
		wantAmount decimal.Decimal
		wantCode   string
		wantErr    error
	}{
		{
			name:       "valid code returns discount",
			v:          &mockValidator{discount: &Discount{Amount: d("150"), Description: "Eid offer"}},
			code:       " eid150 ",
			subtotal:   d("3000"),
			wantAmount: d("150"),
			wantCode:   "EID150",
		},
		{
			name:       "discount capped at subtotal",
			v:          &mockValidator{discount: &Discount{Amount: d("999")}},
			code:       "HUGE",
			subtotal:   d("500"),
			wantAmount: d("500"),
			wantCode:   "HUGE",
		},
		{
			name:       "negative discount floored at zero",
			v:          &mockValidator{discount: &Discount{Amount: d("-10")}},
			code:       "ODD",
			subtotal:   d("500"),
			wantAmount: decimal.Zero,
			wantCode:   "ODD",
		},
		{
			name:       "amount rounded to two places",
			v:          &mockValidator{discount: &Discount{Code: "PCT", Amount: d("33.3333")}},
			code:       "pct",
			subtotal:   d("100"),
			wantAmount: d("33.33"),
			wantCode:   "PCT",
		},
		{
			name:     "rejection keeps invalid coupon identity",
			v:        &mockValidator{err: &RejectedError{Code: "OLD", Reason: "coupon expired"}},
			code:     "old",
			subtotal: d("100"),
			wantErr:  ErrInvalidCoupon,
		},
		{
			name:     "empty code",
			v:        &mockValidator{},
			code:     "   ",
			subtotal: d("100"),
			wantErr:  ErrEmptyCode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(context.Background(), tt.v, "tok", tt.code, tt.subtotal)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.True(t, tt.wantAmount.Equal(got.Amount),
				"expected amount %s, got %s", tt.wantAmount, got.Amount)
		})
	}
}

func TestValidate_EmptyCodeSkipsBackend(t *testing.T) {
	v := &mockValidator{}

	_, err := Validate(context.Background(), v, "tok", "", d("100"))

	require.ErrorIs(t, err, ErrEmptyCode)
	assert.Zero(t, v.calls)
}

func TestValidate_TransportErrorWrapped(t *testing.T) {
	v := &mockValidator{err: errors.New("connection reset")}

	_, err := Validate(context.Background(), v, "tok", "SAVE", d("100"))

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCoupon)
	assert.Contains(t, err.Error(), "validate coupon")
	assert.Equal(t, "SAVE", v.lastCode)
}

func TestRejectedError_Message(t *testing.T) {
	assert.Equal(t, "coupon X rejected", (&RejectedError{Code: "X"}).Error())
	assert.Equal(t, "coupon X rejected: minimum order 500", (&RejectedError{Code: "X", Reason: "minimum order 500"}).Error())
}
