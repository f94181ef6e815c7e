package commerceapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/", WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func testOrder() *checkout.Order {
	return &checkout.Order{
		IdempotencyKey: "key-1",
		Items: []cart.Line{
			{ID: "w1", Name: "Watch", UnitPrice: decimal.NewFromInt(1000), Quantity: 2, ImageURL: "https://cdn.example/w1.jpg"},
		},
		ShippingAddress: checkout.ShippingAddress{
			FullName:     "Rahim Uddin",
			Mobile:       "01712345678",
			Email:        "rahim@example.com",
			AddressLine1: "House 12",
			City:         "Dhaka",
		},
		DeliveryCharge: decimal.NewFromInt(60),
		PaymentMethod:  checkout.MethodBkash,
		PaymentOption:  checkout.OptionFull,
		PaymentAmount:  decimal.NewFromInt(2060),
		Subtotal:       decimal.NewFromInt(2000),
		Discount:       decimal.Zero,
		TotalAmount:    decimal.NewFromInt(2060),
		Note:           "Cart Order",
	}
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New("/api")
	require.Error(t, err)
	_, err = New("ftp://example.com")
	require.Error(t, err)
}

func TestCreateOrder(t *testing.T) {
	var (
		gotAuth, gotKey, gotPath string
		fields                   = map[string]string{}
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("Idempotency-Key")
		gotPath = r.URL.Path

		body, _ := io.ReadAll(r.Body)
		d := jx.DecodeBytes(body)
		_ = d.Obj(func(d *jx.Decoder, key string) error {
			raw, err := d.Raw()
			fields[key] = string(raw)
			return err
		})
		_, _ = w.Write([]byte(`{"order_id":"ord-1","message":"created"}`))
	})

	id, err := c.CreateOrder(context.Background(), "tok", testOrder())
	require.NoError(t, err)
	assert.Equal(t, "ord-1", id)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, "/api/orders", gotPath)

	assert.Equal(t, "2060.00", fields["payment_amount"])
	assert.Equal(t, "60.00", fields["delivery_charge"])
	assert.Equal(t, `"full"`, fields["payment_option"])
	assert.Equal(t, "null", fields["coupon_code"])
	assert.JSONEq(t, `[{"product_id":"w1","product_name":"Watch","price":1000.00,"quantity":2,"image":"https://cdn.example/w1.jpg"}]`, fields["items"])
	assert.Equal(t, `"Cart Order"`, fields["note"])
	assert.Equal(t, `"Cart Order"`, fields["notes"])
	assert.Contains(t, fields["shipping_address"], `"phone":"01712345678"`)
}

func TestCreateOrderResponses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		wantID string
		check  func(t *testing.T, err error)
	}{
		{name: "id fallback", status: 200, body: `{"id":42}`, wantID: "42"},
		{
			name: "missing id", status: 201, body: `{"ok":true}`,
			check: func(t *testing.T, err error) {
				var merr *MalformedResponseError
				require.ErrorAs(t, err, &merr)
			},
		},
		{
			name: "not json", status: 200, body: `<html>`,
			check: func(t *testing.T, err error) {
				var merr *MalformedResponseError
				require.ErrorAs(t, err, &merr)
			},
		},
		{
			name: "server error", status: 500, body: `{"detail":"db down"}`,
			check: func(t *testing.T, err error) {
				var rejected *checkout.RejectedError
				require.ErrorAs(t, err, &rejected)
				assert.Equal(t, 500, rejected.StatusCode)
				assert.Equal(t, "db down", rejected.Message)
				assert.False(t, errors.Is(err, checkout.ErrTimeout))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			id, err := c.CreateOrder(context.Background(), "tok", testOrder())
			if tt.check != nil {
				tt.check(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestCreateOrderTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.CreateOrder(ctx, "tok", testOrder())
	require.ErrorIs(t, err, checkout.ErrTimeout)
	var rejected *checkout.RejectedError
	assert.False(t, errors.As(err, &rejected))
}

func TestInitiatePayment(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantURL string
		wantErr bool
	}{
		{name: "ok", body: `{"payment_id":"p1","payment_url":"https://gw.example/pay/p1"}`, wantURL: "https://gw.example/pay/p1"},
		{name: "relative url", body: `{"payment_id":"p1","payment_url":"/pay/p1"}`, wantErr: true},
		{name: "script url", body: `{"payment_id":"p1","payment_url":"javascript:alert(1)"}`, wantErr: true},
		{name: "missing url", body: `{"payment_id":"p1"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				_, _ = w.Write([]byte(tt.body))
			})
			s, err := c.InitiatePayment(context.Background(), "tok", checkout.PaymentRequest{
				OrderID: "ord-1",
				Amount:  decimal.NewFromInt(200),
				Method:  checkout.MethodNagad,
			})
			assert.Equal(t, "/api/payment/initiate", gotPath)
			if tt.wantErr {
				var merr *MalformedResponseError
				require.ErrorAs(t, err, &merr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, s.RedirectURL)
			assert.Equal(t, "p1", s.PaymentID)
		})
	}
}

func TestPaymentStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/payment/status/p%201", r.URL.EscapedPath())
		_, _ = w.Write([]byte(`{"payment":{"id":"p 1","status":"completed"}}`))
	})

	status, err := c.PaymentStatus(context.Background(), "tok", "p 1")
	require.NoError(t, err)
	assert.Equal(t, checkout.PaymentCompleted, status)
}

func TestCouponValidate(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"code":"SAVE10","order_amount":1000.00}`, string(body))
			_, _ = w.Write([]byte(`{"discount_amount":100,"message":"10% off"}`))
		})
		d, err := c.Coupons().Validate(context.Background(), "tok", "SAVE10", decimal.NewFromInt(1000))
		require.NoError(t, err)
		assert.Equal(t, "SAVE10", d.Code)
		assert.True(t, d.Amount.Equal(decimal.NewFromInt(100)))
		assert.Equal(t, "10% off", d.Description)
	})

	t.Run("rejected", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail":"Coupon expired"}`))
		})
		_, err := c.Coupons().Validate(context.Background(), "tok", "OLD", decimal.NewFromInt(1000))
		require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
		var rejected *coupon.RejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, "Coupon expired", rejected.Reason)
	})

	t.Run("unauthorized is not a rejection", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"detail":"Not authenticated"}`))
				return
			}
			_, _ = w.Write([]byte(`{"discount_amount":100}`))
		})
		_, err := c.Coupons().Validate(context.Background(), "", "SAVE10", decimal.NewFromInt(1000))
		require.Error(t, err)
		assert.False(t, errors.Is(err, coupon.ErrInvalidCoupon))
		var rejected *checkout.RejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, http.StatusUnauthorized, rejected.StatusCode)

		d, err := c.Coupons().Validate(context.Background(), "tok", "SAVE10", decimal.NewFromInt(1000))
		require.NoError(t, err)
		assert.True(t, d.Amount.Equal(decimal.NewFromInt(100)))
	})

	t.Run("server error is not a rejection", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := c.Coupons().Validate(context.Background(), "tok", "SAVE10", decimal.NewFromInt(1000))
		require.Error(t, err)
		assert.False(t, errors.Is(err, coupon.ErrInvalidCoupon))
	})

	t.Run("missing amount", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"message":"ok"}`))
		})
		_, err := c.Coupons().Validate(context.Background(), "tok", "SAVE10", decimal.NewFromInt(1000))
		var merr *MalformedResponseError
		require.ErrorAs(t, err, &merr)
	})
}
