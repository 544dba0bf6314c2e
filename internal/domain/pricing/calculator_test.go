package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velvette/pricing-engine/internal/domain/discount"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func activeDiscount(typ discount.Type, value string, now time.Time) *discount.Discount {
	return &discount.Discount{
		Type:      typ,
		Value:     dec(value),
		StartDate: now.Add(-time.Hour),
		Active:    true,
	}
}

func TestCompute(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		price          string
		d              *discount.Discount
		wantDiscounted string
		wantSavings    string
		wantPercentage int
		wantHas        bool
	}{
		{
			name:           "25 percent off 200",
			price:          "200",
			d:              activeDiscount(discount.TypePercentage, "25", now),
			wantDiscounted: "150",
			wantSavings:    "50",
			wantPercentage: 25,
			wantHas:        true,
		},
		{
			name:           "flat 20 off 100",
			price:          "100",
			d:              activeDiscount(discount.TypeFlat, "20", now),
			wantDiscounted: "80",
			wantSavings:    "20",
			wantPercentage: 20,
			wantHas:        true,
		},
		{
			name:           "flat larger than price clamps to zero",
			price:          "50",
			d:              activeDiscount(discount.TypeFlat, "70", now),
			wantDiscounted: "0",
			wantSavings:    "50",
			wantPercentage: 100,
			wantHas:        true,
		},
		{
			name:           "nil discount is full price",
			price:          "99.99",
			d:              nil,
			wantDiscounted: "99.99",
			wantSavings:    "0",
		},
		{
			name:  "inactive discount is full price",
			price: "100",
			d: &discount.Discount{
				Type:      discount.TypePercentage,
				Value:     dec("50"),
				StartDate: now.Add(-time.Hour),
				Active:    false,
			},
			wantDiscounted: "100",
			wantSavings:    "0",
		},
		{
			name:  "discount outside date window is full price",
			price: "100",
			d: &discount.Discount{
				Type:      discount.TypePercentage,
				Value:     dec("50"),
				StartDate: now.Add(time.Hour),
				Active:    true,
			},
			wantDiscounted: "100",
			wantSavings:    "0",
		},
		{
			name:           "percentage reports configured value not recomputed",
			price:          "29.99",
			d:              activeDiscount(discount.TypePercentage, "33", now),
			wantDiscounted: "20.09",
			wantSavings:    "9.90",
			wantPercentage: 33,
			wantHas:        true,
		},
		{
			name:           "fractional percentage rounds for display",
			price:          "100",
			d:              activeDiscount(discount.TypePercentage, "12.5", now),
			wantDiscounted: "87.5",
			wantSavings:    "12.5",
			wantPercentage: 13,
			wantHas:        true,
		},
		{
			name:           "rounding happens once at the end",
			price:          "10.05",
			d:              activeDiscount(discount.TypePercentage, "15", now),
			wantDiscounted: "8.54",
			wantSavings:    "1.51",
			wantPercentage: 15,
			wantHas:        true,
		},
		{
			name:           "flat discount on zero price",
			price:          "0",
			d:              activeDiscount(discount.TypeFlat, "10", now),
			wantDiscounted: "0",
			wantSavings:    "0",
			wantPercentage: 0,
			wantHas:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Compute(dec(tt.price), tt.d, now)

			assert.True(t, dec(tt.price).Equal(q.OriginalPrice),
				"original price %s, got %s", tt.price, q.OriginalPrice)
			assert.True(t, dec(tt.wantDiscounted).Equal(q.DiscountedPrice),
				"discounted price %s, got %s", tt.wantDiscounted, q.DiscountedPrice)
			assert.True(t, dec(tt.wantSavings).Equal(q.Savings),
				"savings %s, got %s", tt.wantSavings, q.Savings)
			assert.Equal(t, tt.wantPercentage, q.DiscountPercentage)
			assert.Equal(t, tt.wantHas, q.HasDiscount)
		})
	}
}

func TestComputeCart(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("lines priced independently and summed", func(t *testing.T) {
		lines := []Line{
			{ProductID: "p1", Quantity: 2, UnitPrice: dec("100"), Discount: activeDiscount(discount.TypePercentage, "25", now)},
			{ProductID: "p2", Quantity: 1, UnitPrice: dec("50")},
			{ProductID: "p3", Quantity: 3, UnitPrice: dec("20"), Discount: activeDiscount(discount.TypeFlat, "5", now)},
		}

		cart := ComputeCart(lines, now)

		require.Len(t, cart.Items, 3)
		assert.True(t, dec("310").Equal(cart.Subtotal), "subtotal %s", cart.Subtotal)
		assert.True(t, dec("245").Equal(cart.DiscountedSubtotal), "discounted %s", cart.DiscountedSubtotal)
		assert.True(t, dec("65").Equal(cart.TotalSavings), "savings %s", cart.TotalSavings)

		assert.True(t, dec("200").Equal(cart.Items[0].OriginalTotal))
		assert.True(t, dec("150").Equal(cart.Items[0].DiscountedTotal))
		assert.True(t, dec("50").Equal(cart.Items[1].DiscountedTotal))
		assert.True(t, dec("45").Equal(cart.Items[2].DiscountedTotal))
	})

	t.Run("non-positive quantity priced as one unit", func(t *testing.T) {
		cart := ComputeCart([]Line{{ProductID: "p1", Quantity: 0, UnitPrice: dec("40")}}, now)

		require.Len(t, cart.Items, 1)
		assert.Equal(t, 1, cart.Items[0].Quantity)
		assert.True(t, dec("40").Equal(cart.Subtotal))
	})

	t.Run("empty cart", func(t *testing.T) {
		cart := ComputeCart(nil, now)

		assert.Empty(t, cart.Items)
		assert.True(t, cart.Subtotal.IsZero())
		assert.True(t, cart.DiscountedSubtotal.IsZero())
		assert.True(t, cart.TotalSavings.IsZero())
	})
}

func TestComputePreview(t *testing.T) {
	tests := []struct {
		name           string
		price          string
		typ            discount.Type
		value          string
		wantValid      bool
		wantErr        string
		wantDiscounted string
	}{
		{
			name:           "valid percentage preview",
			price:          "200",
			typ:            discount.TypePercentage,
			value:          "25",
			wantValid:      true,
			wantDiscounted: "150",
		},
		{
			name:           "valid flat preview",
			price:          "100",
			typ:            discount.TypeFlat,
			value:          "20",
			wantValid:      true,
			wantDiscounted: "80",
		},
		{
			name:    "non-positive price",
			price:   "0",
			typ:     discount.TypePercentage,
			value:   "10",
			wantErr: "Invalid price or discount value",
		},
		{
			name:    "non-positive value",
			price:   "100",
			typ:     discount.TypeFlat,
			value:   "0",
			wantErr: "Invalid price or discount value",
		},
		{
			name:    "flat value at product price",
			price:   "100",
			typ:     discount.TypeFlat,
			value:   "100",
			wantErr: "Flat discount cannot be greater than or equal to product price",
		},
		{
			name:    "percentage at 100",
			price:   "100",
			typ:     discount.TypePercentage,
			value:   "100",
			wantErr: "Percentage discount must be less than 100%",
		},
		{
			name:    "unknown type",
			price:   "100",
			typ:     discount.Type("bogo"),
			value:   "10",
			wantErr: "Invalid discount type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ComputePreview(dec(tt.price), tt.typ, dec(tt.value))

			assert.Equal(t, tt.wantValid, p.Valid)
			assert.Equal(t, tt.wantErr, p.Err)

			if tt.wantValid {
				require.True(t, p.Quote.HasDiscount)
				assert.True(t, dec(tt.wantDiscounted).Equal(p.Quote.DiscountedPrice),
					"discounted %s, got %s", tt.wantDiscounted, p.Quote.DiscountedPrice)
			} else {
				assert.False(t, p.Quote.HasDiscount)
				assert.True(t, dec(tt.price).Equal(p.Quote.DiscountedPrice), "invalid preview keeps full price")
			}
		})
	}
}
