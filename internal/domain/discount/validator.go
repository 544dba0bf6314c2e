package discount

import (
	"time"

	"github.com/shopspring/decimal"
)

// startDateTolerance is how far in the past a new discount's start date may
// lie. Date-only pickers truncate the time of day, so a "today" selection can
// land up to a day in the past depending on timezone; one day of slack keeps
// those selections valid. Applies on creation only.
const startDateTolerance = 24 * time.Hour

// Candidate is the full field set checked by Validate. For updates it is the
// stored record merged with the patch, so the resulting state is validated,
// not just the delta.
type Candidate struct {
	ProductID string
	Type      Type
	Value     decimal.Decimal
	// HasValue distinguishes an absent discount value from a literal zero.
	HasValue  bool
	StartDate *time.Time
	EndDate   *time.Time

	// ProductPrice is the referenced product's current price, required only
	// for flat discounts. Nil means the product could not be found.
	ProductPrice *decimal.Decimal

	// IsUpdate relaxes the start-date-in-the-past rule, which only guards
	// fresh creations.
	IsUpdate bool
}

// Result is the outcome of validating a candidate. Invalid input is a normal
// result, not an error: Errors holds every violated rule, ready to be shown
// to the admin verbatim.
type Result struct {
	Valid  bool
	Errors []string
}

// Violation messages surfaced to the admin UI.
const (
	msgProductRequired  = "Product ID is required"
	msgTypeInvalid      = `Discount type must be either "flat" or "percentage"`
	msgValueRequired    = "Discount value is required"
	msgValueNotPositive = "Discount value must be greater than 0"
	msgPercentTooHigh   = "Percentage discount must be less than 100%"
	msgFlatTooHigh      = "Flat discount cannot be greater than or equal to product price"
	msgProductInvalid   = "Invalid product ID"
	msgStartTooOld      = "Start date cannot be more than 1 day in the past"
	msgEndBeforeStart   = "End date must be after start date"
)

var hundred = decimal.NewFromInt(100)

// Validate checks every rule independently and collects all violations.
// It is pure: no I/O, no clock access beyond the supplied now.
func Validate(c Candidate, now time.Time) Result {
	var errs []string

	if c.ProductID == "" {
		errs = append(errs, msgProductRequired)
	}
	if !c.Type.Valid() {
		errs = append(errs, msgTypeInvalid)
	}
	if !c.HasValue {
		errs = append(errs, msgValueRequired)
	} else {
		if !c.Value.IsPositive() {
			errs = append(errs, msgValueNotPositive)
		}
		if c.Type == TypePercentage && c.Value.GreaterThanOrEqual(hundred) {
			errs = append(errs, msgPercentTooHigh)
		}
		if c.Type == TypeFlat && c.ProductID != "" {
			switch {
			case c.ProductPrice == nil:
				// The product must exist to bound-check a flat discount.
				errs = append(errs, msgProductInvalid)
			case c.Value.GreaterThanOrEqual(*c.ProductPrice):
				errs = append(errs, msgFlatTooHigh)
			}
		}
	}

	if c.StartDate != nil && !c.IsUpdate {
		if c.StartDate.Before(now.Add(-startDateTolerance)) {
			errs = append(errs, msgStartTooOld)
		}
	}
	if c.EndDate != nil && c.StartDate != nil {
		if !c.EndDate.After(*c.StartDate) {
			errs = append(errs, msgEndBeforeStart)
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}
