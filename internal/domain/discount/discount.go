package discount

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/velvette/pricing-engine/internal/domain/product"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypeFlat subtracts a fixed currency amount from the product price.
	TypeFlat Type = "flat"
	// TypePercentage subtracts a proportion of the product price.
	TypePercentage Type = "percentage"
)

// Valid reports whether t is a known discount type.
func (t Type) Valid() bool {
	return t == TypeFlat || t == TypePercentage
}

// Discount is a promotional price reduction attached to exactly one product.
// A product has at most one active discount at any instant; creating a new
// discount for a product replaces the previous one rather than stacking.
type Discount struct {
	ID        string
	ProductID string
	Type      Type
	Value     decimal.Decimal
	StartDate time.Time
	// EndDate is nil for open-ended discounts that never expire on their own.
	EndDate   *time.Time
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveAt reports whether the discount applies at the given instant:
// the admin flag is set and the date window contains now. Evaluated on every
// read; active-ness is never stored or cached.
func (d *Discount) EffectiveAt(now time.Time) bool {
	if d == nil || !d.Active {
		return false
	}
	if d.StartDate.After(now) {
		return false
	}
	if d.EndDate != nil && d.EndDate.Before(now) {
		return false
	}
	return true
}

// ProductDiscount pairs a catalog product with its currently effective
// discount, or nil when the product is sold at full price.
type ProductDiscount struct {
	Product  product.Product
	Discount *Discount
}

// Repository provides persistence for discount records.
//
// ReplaceActive must be atomic with respect to the one-active-per-product
// constraint: it removes any effectively active discount for the product and
// inserts the new record in a single transaction, retrying once when the
// storage-level uniqueness constraint rejects the insert.
type Repository interface {
	ReplaceActive(ctx context.Context, d *Discount) error
	Update(ctx context.Context, d *Discount) error
	// Delete removes the record and reports whether anything was removed.
	// Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) (bool, error)
	FindByID(ctx context.Context, id string) (*Discount, error)
	FindActiveByProduct(ctx context.Context, productID string, now time.Time) (*Discount, error)
	ListActive(ctx context.Context, now time.Time) ([]Discount, error)
	// ListWithProducts returns every discount joined with its product,
	// newest first, for the admin dashboard.
	ListWithProducts(ctx context.Context) ([]ProductDiscount, error)
	// ListProductsWithActive returns each product matching the filter paired
	// with its effective discount if any. Implemented as a single bulk query.
	ListProductsWithActive(ctx context.Context, f product.Filter, now time.Time) ([]ProductDiscount, error)
	// ListDiscounted returns up to limit products that have an effective
	// discount at the given instant, with the filtering done in storage.
	ListDiscounted(ctx context.Context, limit int, now time.Time) ([]ProductDiscount, error)
}
