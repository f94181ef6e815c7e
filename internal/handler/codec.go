package handler

import (
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
)

const maxBodySize = 64 << 10

// decodeBody reads a JSON object body, calling fn for every field.
func decodeBody(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return badRequest("read body")
	}
	if len(raw) > maxBodySize {
		return &apiError{Status: http.StatusRequestEntityTooLarge, Message: "body too large"}
	}
	d := jx.DecodeBytes(raw)
	if d.Next() != jx.Object {
		return badRequest("body must be a JSON object")
	}
	if err := d.Obj(fn); err != nil {
		var api *apiError
		if errors.As(err, &api) {
			return api
		}
		return badRequest("malformed JSON: " + err.Error())
	}
	return nil
}

func str(d *jx.Decoder, dst *string) error {
	switch d.Next() {
	case jx.String:
		v, err := d.Str()
		*dst = strings.TrimSpace(v)
		return err
	case jx.Null:
		*dst = ""
		return d.Null()
	default:
		return badRequest("expected string")
	}
}

func integer(d *jx.Decoder, dst *int) error {
	if d.Next() != jx.Number {
		return badRequest("expected number")
	}
	v, err := d.Int()
	if err != nil {
		return badRequest("expected integer")
	}
	*dst = v
	return nil
}

// amount accepts money as a JSON number or numeric string.
func amount(d *jx.Decoder, dst *decimal.Decimal) error {
	var s string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return err
		}
		s = string(n)
	case jx.String:
		v, err := d.Str()
		if err != nil {
			return err
		}
		s = strings.TrimSpace(v)
	default:
		return badRequest("expected price")
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return badRequest("invalid price " + s)
	}
	*dst = v
	return nil
}

// decodeLine reads a product line from the request body. Quantity defaults
// to 1.
func decodeLine(r *http.Request) (cart.Line, error) {
	l := cart.Line{Quantity: 1}
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "id", "productId":
			return str(d, &l.ID)
		case "name":
			return str(d, &l.Name)
		case "unitPrice", "price":
			return amount(d, &l.UnitPrice)
		case "quantity":
			return integer(d, &l.Quantity)
		case "imageUrl", "image":
			return str(d, &l.ImageURL)
		case "category":
			return str(d, &l.Category)
		case "brand":
			return str(d, &l.Brand)
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return l, err
	}

	fields := make(map[string]string)
	if l.ID == "" {
		fields["id"] = "product id is required"
	}
	if l.UnitPrice.IsNegative() {
		fields["unitPrice"] = "price cannot be negative"
	}
	if len(fields) > 0 {
		return l, &checkout.ValidationError{Fields: fields}
	}
	return l, nil
}

func decodeAddress(r *http.Request) (checkout.ShippingAddress, error) {
	var a checkout.ShippingAddress
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case checkout.FieldFullName:
			return str(d, &a.FullName)
		case checkout.FieldMobile, "phone":
			return str(d, &a.Mobile)
		case checkout.FieldEmail:
			return str(d, &a.Email)
		case checkout.FieldAddressLine1:
			return str(d, &a.AddressLine1)
		case "addressLine2":
			return str(d, &a.AddressLine2)
		case checkout.FieldCity:
			return str(d, &a.City)
		case "postalCode":
			return str(d, &a.PostalCode)
		case "note":
			return str(d, &a.Note)
		default:
			return d.Skip()
		}
	})
	return a, err
}

func money(e *jx.Encoder, field string, v decimal.Decimal) {
	e.FieldStart(field)
	e.Str(v.StringFixed(2))
}

func encodeCart(e *jx.Encoder, lines []cart.Line) {
	e.FieldStart("items")
	e.Raw(cart.Encode(lines))
	e.FieldStart("count")
	e.Int(cart.Count(lines))
	money(e, "total", cart.Total(lines))
}

func encodeState(st checkout.State) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("idempotencyKey")
	e.Str(st.IdempotencyKey)
	e.FieldStart("buyNow")
	e.Bool(st.BuyNow)
	e.FieldStart("step")
	e.Str(string(st.Step))

	e.FieldStart("items")
	e.Raw(cart.Encode(st.Items))

	e.FieldStart("address")
	encodeAddress(&e, st.Address)

	e.FieldStart("payment")
	e.ObjStart()
	e.FieldStart("method")
	e.Str(string(st.Payment.Method))
	e.FieldStart("option")
	e.Str(string(st.Payment.Option))
	e.ObjEnd()

	e.FieldStart("coupon")
	encodeCoupon(&e, st.Coupon)

	e.FieldStart("quote")
	encodeQuote(&e, st.Quote)

	if st.OrderID != "" {
		e.FieldStart("orderId")
		e.Str(st.OrderID)
	}
	if p := st.PaymentSession; p != nil {
		e.FieldStart("paymentSession")
		encodePaymentSession(&e, p)
	}
	e.ObjEnd()
	return e.Bytes()
}

func encodeAddress(e *jx.Encoder, a checkout.ShippingAddress) {
	e.ObjStart()
	e.FieldStart(checkout.FieldFullName)
	e.Str(a.FullName)
	e.FieldStart(checkout.FieldMobile)
	e.Str(a.Mobile)
	e.FieldStart(checkout.FieldEmail)
	e.Str(a.Email)
	e.FieldStart(checkout.FieldAddressLine1)
	e.Str(a.AddressLine1)
	e.FieldStart("addressLine2")
	e.Str(a.AddressLine2)
	e.FieldStart(checkout.FieldCity)
	e.Str(a.City)
	e.FieldStart("postalCode")
	e.Str(a.PostalCode)
	e.FieldStart("note")
	e.Str(a.Note)
	e.ObjEnd()
}

func encodeCoupon(e *jx.Encoder, d *coupon.Discount) {
	if d == nil {
		e.Null()
		return
	}
	e.ObjStart()
	e.FieldStart("code")
	e.Str(d.Code)
	money(e, "amount", d.Amount)
	if d.Description != "" {
		e.FieldStart("description")
		e.Str(d.Description)
	}
	e.ObjEnd()
}

func encodeQuote(e *jx.Encoder, q checkout.Quote) {
	e.ObjStart()
	money(e, "subtotal", q.Subtotal)
	money(e, "discount", q.Discount)
	money(e, "deliveryCharge", q.DeliveryCharge)
	money(e, "total", q.Total)
	money(e, "paymentAmount", q.PaymentAmount)
	money(e, "dueOnDelivery", q.DueOnDelivery)
	e.ObjEnd()
}

func encodePaymentSession(e *jx.Encoder, p *checkout.PaymentSession) {
	e.ObjStart()
	e.FieldStart("paymentId")
	e.Str(p.PaymentID)
	e.FieldStart("paymentUrl")
	e.Str(p.RedirectURL)
	e.ObjEnd()
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
