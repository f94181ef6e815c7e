package commerceapi

import (
	"context"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
)

var _ checkout.OrderAPI = (*Client)(nil)

// CreateOrder posts o and returns the backend's order id. The order's
// idempotency key is sent in the Idempotency-Key header.
func (c *Client) CreateOrder(ctx context.Context, token string, o *checkout.Order) (string, error) {
	data, err := c.do(ctx, request{
		method:         http.MethodPost,
		path:           "/api/orders",
		token:          token,
		idempotencyKey: o.IdempotencyKey,
		body:           encodeOrder(o),
	})
	if err != nil {
		return "", err
	}

	var orderID, fallbackID string
	err = decodeObject("order", data, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "order_id":
			orderID, err = scalarString(d)
		case "id", "_id":
			fallbackID, err = scalarString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return "", err
	}
	if orderID == "" {
		orderID = fallbackID
	}
	if orderID == "" {
		return "", &MalformedResponseError{Op: "order", Reason: "missing order_id"}
	}
	return orderID, nil
}

func encodeOrder(o *checkout.Order) []byte {
	var e jx.Encoder
	e.ObjStart()

	e.FieldStart("items")
	e.ArrStart()
	for _, l := range o.Items {
		encodeItem(&e, l)
	}
	e.ArrEnd()

	e.FieldStart("shipping_address")
	encodeAddress(&e, o.ShippingAddress)

	e.FieldStart("delivery_charge")
	money(&e, o.DeliveryCharge)
	e.FieldStart("shipping_cost")
	money(&e, o.DeliveryCharge)
	e.FieldStart("payment_method")
	e.Str(string(o.PaymentMethod))
	e.FieldStart("payment_option")
	e.Str(string(o.PaymentOption))
	e.FieldStart("payment_amount")
	money(&e, o.PaymentAmount)
	e.FieldStart("subtotal")
	money(&e, o.Subtotal)
	e.FieldStart("coupon_code")
	if o.CouponCode == "" {
		e.Null()
	} else {
		e.Str(o.CouponCode)
	}
	e.FieldStart("discount_amount")
	money(&e, o.Discount)
	e.FieldStart("total_amount")
	money(&e, o.TotalAmount)
	e.FieldStart("note")
	e.Str(o.Note)
	e.FieldStart("notes")
	e.Str(o.Note)

	e.ObjEnd()
	return e.Bytes()
}

// encodeItem writes a line with the product_* names the order backend uses
// for stock bookkeeping.
func encodeItem(e *jx.Encoder, l cart.Line) {
	e.ObjStart()
	e.FieldStart("product_id")
	e.Str(l.ID)
	e.FieldStart("product_name")
	e.Str(l.Name)
	e.FieldStart("price")
	money(e, l.UnitPrice)
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	if l.ImageURL != "" {
		e.FieldStart("image")
		e.Str(l.ImageURL)
	}
	if l.Category != "" {
		e.FieldStart("category")
		e.Str(l.Category)
	}
	if l.Brand != "" {
		e.FieldStart("brand")
		e.Str(l.Brand)
	}
	e.ObjEnd()
}

func encodeAddress(e *jx.Encoder, a checkout.ShippingAddress) {
	e.ObjStart()
	e.FieldStart("full_name")
	e.Str(a.FullName)
	e.FieldStart("phone")
	e.Str(a.Mobile)
	e.FieldStart("email")
	e.Str(a.Email)
	e.FieldStart("address_line1")
	e.Str(a.AddressLine1)
	if a.AddressLine2 != "" {
		e.FieldStart("address_line2")
		e.Str(a.AddressLine2)
	}
	e.FieldStart("city")
	e.Str(a.City)
	if a.PostalCode != "" {
		e.FieldStart("postal_code")
		e.Str(a.PostalCode)
	}
	if a.Note != "" {
		e.FieldStart("note")
		e.Str(a.Note)
	}
	e.ObjEnd()
}

// money writes d as a JSON number with two decimal places.
func money(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.StringFixed(2)))
}
