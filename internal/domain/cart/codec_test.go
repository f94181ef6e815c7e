package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Lenient(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantIDs   []string
		wantQty   []int
		wantPrice []string
	}{
		{
			name:      "prices as numbers and strings",
			raw:       `[{"id":"a","unitPrice":12.5,"quantity":1},{"id":"b","unitPrice":"3","quantity":"2"}]`,
			wantIDs:   []string{"a", "b"},
			wantQty:   []int{1, 2},
			wantPrice: []string{"12.5", "3"},
		},
		{
			name:      "malformed price becomes zero",
			raw:       `[{"id":"a","unitPrice":"abc","quantity":1},{"id":"b","unitPrice":null,"quantity":1}]`,
			wantIDs:   []string{"a", "b"},
			wantQty:   []int{1, 1},
			wantPrice: []string{"0", "0"},
		},
		{
			name:      "invalid lines dropped",
			raw:       `[{"id":"","quantity":1},{"id":"a","quantity":0},{"id":"b","unitPrice":"1","quantity":1},42]`,
			wantIDs:   []string{"b"},
			wantQty:   []int{1},
			wantPrice: []string{"1"},
		},
		{
			name:      "duplicate ids merged",
			raw:       `[{"id":"a","unitPrice":"5","quantity":1},{"id":"a","unitPrice":"5","quantity":2}]`,
			wantIDs:   []string{"a"},
			wantQty:   []int{3},
			wantPrice: []string{"5"},
		},
		{
			name:      "legacy field names",
			raw:       `[{"product_id":"w9","product_name":"Seiko","price":4500,"quantity":1,"image":"/s.jpg","stock":3}]`,
			wantIDs:   []string{"w9"},
			wantQty:   []int{1},
			wantPrice: []string{"4500"},
		},
		{
			name: "null is empty",
			raw:  `null`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			require.Len(t, lines, len(tt.wantIDs))
			for i, l := range lines {
				assert.Equal(t, tt.wantIDs[i], l.ID)
				assert.Equal(t, tt.wantQty[i], l.Quantity)
				assert.True(t, d(tt.wantPrice[i]).Equal(l.UnitPrice), "price %s", l.UnitPrice)
			}
		})
	}
}

func TestDecode_Broken(t *testing.T) {
	for _, raw := range []string{`{`, `{"id":"a"}`, `[{"id":"a",]`, `not json`} {
		_, err := Decode([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestEncode_OmitsEmptyOptionalFields(t *testing.T) {
	raw := Encode([]Line{{ID: "a", Name: "A", UnitPrice: d("1.50"), Quantity: 2}})

	assert.JSONEq(t, `[{"id":"a","name":"A","unitPrice":"1.5","quantity":2}]`, string(raw))
}
