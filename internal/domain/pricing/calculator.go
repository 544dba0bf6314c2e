// Package pricing computes display-ready prices from a base price and an
// optional discount. Every function is pure and total: no I/O, no clock
// access beyond the supplied instant, and out-of-range arithmetic clamps
// instead of failing, because pricing display must never be blocked.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/velvette/pricing-engine/internal/domain/discount"
)

var hundred = decimal.NewFromInt(100)

// Quote is the result of pricing a single product.
type Quote struct {
	OriginalPrice   decimal.Decimal
	DiscountedPrice decimal.Decimal
	Savings         decimal.Decimal
	// DiscountPercentage is rounded to the nearest whole number for display.
	// For percentage discounts it is the configured value, not recomputed
	// from the rounded savings, so it never drifts.
	DiscountPercentage int
	HasDiscount        bool
}

// Compute prices a product against its discount at the given instant.
// A nil or not-effectively-active discount yields a full-price quote.
func Compute(originalPrice decimal.Decimal, d *discount.Discount, now time.Time) Quote {
	if !d.EffectiveAt(now) {
		return Quote{
			OriginalPrice:   originalPrice,
			DiscountedPrice: originalPrice,
			Savings:         decimal.Zero,
		}
	}

	var (
		discounted decimal.Decimal
		savings    decimal.Decimal
		percentage int
	)

	switch d.Type {
	case discount.TypeFlat:
		discounted = originalPrice.Sub(d.Value)
		if discounted.IsNegative() {
			// Should have been rejected at write time; clamp rather than
			// surface a negative price.
			discounted = decimal.Zero
		}
		savings = originalPrice.Sub(discounted)
		if originalPrice.IsPositive() {
			percentage = int(savings.Div(originalPrice).Mul(hundred).Round(0).IntPart())
		}
	case discount.TypePercentage:
		savings = originalPrice.Mul(d.Value).Div(hundred)
		discounted = originalPrice.Sub(savings)
		percentage = int(d.Value.Round(0).IntPart())
	default:
		return Quote{
			OriginalPrice:   originalPrice,
			DiscountedPrice: originalPrice,
			Savings:         decimal.Zero,
		}
	}

	// Currency rounding happens once, after all arithmetic.
	return Quote{
		OriginalPrice:      originalPrice,
		DiscountedPrice:    discounted.Round(2),
		Savings:            savings.Round(2),
		DiscountPercentage: percentage,
		HasDiscount:        true,
	}
}

// Line is one cart entry to be priced.
type Line struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	Discount  *discount.Discount
}

// LineQuote is the priced form of a single cart line.
type LineQuote struct {
	ProductID       string
	Quantity        int
	Quote           Quote
	OriginalTotal   decimal.Decimal
	DiscountedTotal decimal.Decimal
	Savings         decimal.Decimal
}

// CartQuote aggregates per-line quotes into cart totals. Lines do not
// interact: there are no bulk or cross-item discount rules.
type CartQuote struct {
	Subtotal           decimal.Decimal
	DiscountedSubtotal decimal.Decimal
	TotalSavings       decimal.Decimal
	Items              []LineQuote
}

// ComputeCart prices each line independently and sums the totals.
// A non-positive quantity is priced as a single unit.
func ComputeCart(lines []Line, now time.Time) CartQuote {
	cart := CartQuote{
		Subtotal:           decimal.Zero,
		DiscountedSubtotal: decimal.Zero,
		TotalSavings:       decimal.Zero,
		Items:              make([]LineQuote, 0, len(lines)),
	}

	for _, line := range lines {
		qty := line.Quantity
		if qty <= 0 {
			qty = 1
		}
		q := Compute(line.UnitPrice, line.Discount, now)
		n := decimal.NewFromInt(int64(qty))

		lq := LineQuote{
			ProductID:       line.ProductID,
			Quantity:        qty,
			Quote:           q,
			OriginalTotal:   q.OriginalPrice.Mul(n).Round(2),
			DiscountedTotal: q.DiscountedPrice.Mul(n).Round(2),
			Savings:         q.Savings.Mul(n).Round(2),
		}
		cart.Items = append(cart.Items, lq)

		cart.Subtotal = cart.Subtotal.Add(lq.OriginalTotal)
		cart.DiscountedSubtotal = cart.DiscountedSubtotal.Add(lq.DiscountedTotal)
		cart.TotalSavings = cart.TotalSavings.Add(lq.Savings)
	}

	cart.Subtotal = cart.Subtotal.Round(2)
	cart.DiscountedSubtotal = cart.DiscountedSubtotal.Round(2)
	cart.TotalSavings = cart.TotalSavings.Round(2)
	return cart
}

// Preview is the admin-side what-if calculation shown before a discount is
// saved. Invalid input is reported in the result, never as an error.
type Preview struct {
	Quote Quote
	Valid bool
	Err   string
}

// ComputePreview prices a hypothetical discount against a price without
// touching persistence. It applies the same bounds the validator enforces so
// the admin sees rejections before submitting.
func ComputePreview(price decimal.Decimal, typ discount.Type, value decimal.Decimal) Preview {
	full := Quote{OriginalPrice: price, DiscountedPrice: price, Savings: decimal.Zero}

	if !price.IsPositive() || !value.IsPositive() {
		return Preview{Quote: full, Err: "Invalid price or discount value"}
	}

	switch typ {
	case discount.TypeFlat:
		if value.GreaterThanOrEqual(price) {
			return Preview{Quote: full, Err: "Flat discount cannot be greater than or equal to product price"}
		}
	case discount.TypePercentage:
		if value.GreaterThanOrEqual(hundred) {
			return Preview{Quote: full, Err: "Percentage discount must be less than 100%"}
		}
	default:
		return Preview{Quote: full, Err: "Invalid discount type"}
	}

	d := &discount.Discount{Type: typ, Value: value, Active: true}
	return Preview{Quote: Compute(price, d, time.Time{}), Valid: true}
}
