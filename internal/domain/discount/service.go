package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/velvette/pricing-engine/internal/domain/product"
)

// CreateInput holds the fields an admin supplies when creating a discount.
type CreateInput struct {
	ProductID string
	Type      Type
	Value     decimal.Decimal
	HasValue  bool
	// StartDate defaults to the current instant when nil.
	StartDate *time.Time
	// EndDate nil means the discount never expires on its own.
	EndDate *time.Time
}

// Patch holds a partial update. Nil fields are left unchanged. ClearEndDate
// turns a bounded discount into an open-ended one.
type Patch struct {
	ProductID    *string
	Type         *Type
	Value        *decimal.Decimal
	StartDate    *time.Time
	EndDate      *time.Time
	ClearEndDate bool
	Active       *bool
}

// Service implements the discount lifecycle: validate, enforce the
// one-active-discount-per-product invariant, persist.
type Service struct {
	discounts Repository
	products  product.Repository
	now       func() time.Time
}

// NewService creates a discount Service with the required dependencies.
func NewService(discounts Repository, products product.Repository) *Service {
	return &Service{
		discounts: discounts,
		products:  products,
		now:       time.Now,
	}
}

// Create validates the input and persists a new discount. Any effectively
// active discount already attached to the product is deleted first — replace,
// not stack. The stored record is returned with id and audit timestamps set.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Discount, error) {
	now := s.now()

	cand := Candidate{
		ProductID: in.ProductID,
		Type:      in.Type,
		Value:     in.Value,
		HasValue:  in.HasValue,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
	}
	if err := s.resolveProductPrice(ctx, &cand); err != nil {
		return nil, err
	}

	if res := Validate(cand, now); !res.Valid {
		return nil, &ValidationError{Errors: res.Errors}
	}

	start := now
	if in.StartDate != nil {
		start = *in.StartDate
	}

	d := &Discount{
		ID:        uuid.New().String(),
		ProductID: in.ProductID,
		Type:      in.Type,
		Value:     in.Value,
		StartDate: start,
		EndDate:   in.EndDate,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.discounts.ReplaceActive(ctx, d); err != nil {
		return nil, errors.Wrap(err, "replace active discount")
	}
	return d, nil
}

// Update merges the patch onto the stored record, re-validates the merged
// state, and persists it. Moving a discount to a product that already has a
// different active discount deletes that other discount, same replace rule
// as Create. Returns ErrNotFound when id does not exist.
func (s *Service) Update(ctx context.Context, id string, p Patch) (*Discount, error) {
	existing, err := s.discounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	merged := *existing
	applyPatch(&merged, p)

	cand := Candidate{
		ProductID: merged.ProductID,
		Type:      merged.Type,
		Value:     merged.Value,
		HasValue:  true,
		StartDate: &merged.StartDate,
		EndDate:   merged.EndDate,
		IsUpdate:  true,
	}
	if err := s.resolveProductPrice(ctx, &cand); err != nil {
		return nil, err
	}

	if res := Validate(cand, now); !res.Valid {
		return nil, &ValidationError{Errors: res.Errors}
	}

	if p.ProductID != nil && *p.ProductID != existing.ProductID {
		other, err := s.discounts.FindActiveByProduct(ctx, merged.ProductID, now)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, errors.Wrap(err, "find active discount")
		}
		if other != nil && other.ID != id {
			if _, err := s.discounts.Delete(ctx, other.ID); err != nil {
				return nil, errors.Wrap(err, "delete replaced discount")
			}
		}
	}

	merged.UpdatedAt = now
	if err := s.discounts.Update(ctx, &merged); err != nil {
		return nil, errors.Wrap(err, "update discount")
	}
	return &merged, nil
}

// Delete removes the record. Deleting an unknown id reports removed=false
// rather than failing; the product simply reverts to its undiscounted price.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	return s.discounts.Delete(ctx, id)
}

// resolveProductPrice fills cand.ProductPrice for flat discounts, which are
// bound-checked against the product's current price. A missing product leaves
// the price nil so Validate reports an invalid-product violation.
func (s *Service) resolveProductPrice(ctx context.Context, cand *Candidate) error {
	if cand.Type != TypeFlat || cand.ProductID == "" {
		return nil
	}
	p, err := s.products.GetByID(ctx, cand.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "get product")
	}
	cand.ProductPrice = &p.Price
	return nil
}

func applyPatch(d *Discount, p Patch) {
	if p.ProductID != nil {
		d.ProductID = *p.ProductID
	}
	if p.Type != nil {
		d.Type = *p.Type
	}
	if p.Value != nil {
		d.Value = *p.Value
	}
	if p.StartDate != nil {
		d.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		d.EndDate = p.EndDate
	}
	if p.ClearEndDate {
		d.EndDate = nil
	}
	if p.Active != nil {
		d.Active = *p.Active
	}
}
