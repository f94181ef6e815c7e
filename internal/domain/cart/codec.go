package cart

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Encode serializes lines as a JSON array. Prices are written as strings to
// keep decimal precision.
func Encode(lines []Line) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, l := range lines {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(l.ID)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("unitPrice")
		e.Str(l.UnitPrice.String())
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		if l.ImageURL != "" {
			e.FieldStart("imageUrl")
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
	e.ArrEnd()
	return e.Bytes()
}

// Decode parses a stored cart. Structurally broken JSON is an error; values
// of the wrong type inside a line are coerced (numbers to zero, strings to
// empty). Lines without an id or with a non-positive quantity are dropped,
// and repeated ids are merged so the result always satisfies the cart
// invariants.
func Decode(raw []byte) ([]Line, error) {
	var lines []Line
	index := make(map[string]int)

	d := jx.DecodeBytes(raw)
	if d.Next() == jx.Null {
		return nil, nil
	}
	err := d.Arr(func(d *jx.Decoder) error {
		l, err := decodeLine(d)
		if err != nil {
			return err
		}
		if l.ID == "" || l.Quantity <= 0 {
			return nil
		}
		if l.UnitPrice.IsNegative() {
			l.UnitPrice = decimal.Zero
		}
		if i, ok := index[l.ID]; ok {
			lines[i].Quantity += l.Quantity
			return nil
		}
		index[l.ID] = len(lines)
		lines = append(lines, l)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode cart")
	}
	return lines, nil
}

func decodeLine(d *jx.Decoder) (Line, error) {
	var l Line
	if d.Next() != jx.Object {
		return l, d.Skip()
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id", "product_id":
			l.ID, err = lenientString(d)
		case "name", "product_name":
			l.Name, err = lenientString(d)
		case "unitPrice", "price":
			l.UnitPrice, err = lenientDecimal(d)
		case "quantity":
			var q decimal.Decimal
			q, err = lenientDecimal(d)
			l.Quantity = int(q.IntPart())
		case "imageUrl", "image":
			l.ImageURL, err = lenientString(d)
		case "category":
			l.Category, err = lenientString(d)
		case "brand":
			l.Brand, err = lenientString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return l, err
}

func lenientString(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		return string(n), err
	default:
		return "", d.Skip()
	}
}

func lenientDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var s string
	switch d.Next() {
	case jx.String:
		v, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		s = v
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		s = string(n)
	default:
		return decimal.Zero, d.Skip()
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, nil
	}
	return v, nil
}
