package discount

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decp(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestValidate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	justInsideTolerance := fixedNow.Add(-23 * time.Hour)
	justOutsideTolerance := fixedNow.Add(-25 * time.Hour)
	future := fixedNow.Add(24 * time.Hour)

	tests := []struct {
		name       string
		cand       Candidate
		wantErrors []string
	}{
		{
			name: "valid percentage discount",
			cand: Candidate{
				ProductID: "p1",
				Type:      TypePercentage,
				Value:     decimal.NewFromInt(25),
				HasValue:  true,
			},
		},
		{
			name: "valid flat discount under product price",
			cand: Candidate{
				ProductID:    "p1",
				Type:         TypeFlat,
				Value:        decimal.NewFromInt(20),
				HasValue:     true,
				ProductPrice: decp("100"),
			},
		},
		{
			name: "missing product id",
			cand: Candidate{
				Type:     TypePercentage,
				Value:    decimal.NewFromInt(10),
				HasValue: true,
			},
			wantErrors: []string{"Product ID is required"},
		},
		{
			name: "unknown discount type",
			cand: Candidate{
				ProductID: "p1",
				Type:      Type("bogo"),
				Value:     decimal.NewFromInt(10),
				HasValue:  true,
			},
			wantErrors: []string{`Discount type must be either "flat" or "percentage"`},
		},
		{
			name: "missing value",
			cand: Candidate{
				ProductID: "p1",
				Type:      TypePercentage,
			},
			wantErrors: []string{"Discount value is required"},
		},
		{
			name: "zero value",
			cand: Candidate{
				ProductID: "p1",
				Type:      TypePercentage,
				Value:     decimal.Zero,
				HasValue:  true,
			},
			wantErrors: []string{"Discount value must be greater than 0"},
		},
		{
			name: "negative value",
			cand: Candidate{
				ProductID: "p1",
				Type:      TypePercentage,
				Value:     decimal.NewFromInt(-5),
				HasValue:  true,
			},
			wantErrors: []string{"Discount value must be greater than 0"},
		},
		{
			name: "percentage of exactly 100 rejected",
			cand: Candidate{
				ProductID: "p1",
				Type:      TypePercentage,
				Value:     decimal.NewFromInt(100),
				HasValue:  true,
			},
			wantErrors: []string{"Percentage discount must be less than 100%"},
		},
		{
			name: "percentage just below 100 accepted",
			cand: Candidate{
				ProductID: "p1",
				Type:      TypePercentage,
				Value:     decimal.RequireFromString("99.999"),
				HasValue:  true,
			},
		},
		{
			name: "flat equal to product price rejected",
			cand: Candidate{
				ProductID:    "p1",
				Type:         TypeFlat,
				Value:        decimal.NewFromInt(100),
				HasValue:     true,
				ProductPrice: decp("100"),
			},
			wantErrors: []string{"Flat discount cannot be greater than or equal to product price"},
		},
		{
			name: "flat just below product price accepted",
			cand: Candidate{
				ProductID:    "p1",
				Type:         TypeFlat,
				Value:        decimal.RequireFromString("99.99"),
				HasValue:     true,
				ProductPrice: decp("100"),
			},
		},
		{
			name: "flat discount for unknown product",
			cand: Candidate{
				ProductID: "missing",
				Type:      TypeFlat,
				Value:     decimal.NewFromInt(10),
				HasValue:  true,
			},
			wantErrors: []string{"Invalid product ID"},
		},
		{
			name: "start date within tolerance accepted",
			cand: Candidate{
				ProductID: "p1",
				Type:      TypePercentage,
				Value:     decimal.NewFromInt(10),
				HasValue:  true,
				StartDate: &justInsideTolerance,
			},
		},
		{
			name: "start date beyond tolerance rejected",
			cand: Candidate{
				ProductID: "p1",
				Type:      TypePercentage,
				Value:     decimal.NewFromInt(10),
				HasValue:  true,
				StartDate: &justOutsideTolerance,
			},
			wantErrors: []string{"Start date cannot be more than 1 day in the past"},
		},
		{
			name: "start date beyond tolerance allowed on update",
			cand: Candidate{
				ProductID: "p1",
				Type:      TypePercentage,
				Value:     decimal.NewFromInt(10),
				HasValue:  true,
				StartDate: &justOutsideTolerance,
				IsUpdate:  true,
			},
		},
		{
			name: "end date before start date rejected",
			cand: Candidate{
				ProductID: "p1",
				Type:      TypePercentage,
				Value:     decimal.NewFromInt(10),
				HasValue:  true,
				StartDate: &future,
				EndDate:   &fixedNow,
			},
			wantErrors: []string{"End date must be after start date"},
		},
		{
			name: "end date equal to start date rejected",
			cand: Candidate{
				ProductID: "p1",
				Type:      TypePercentage,
				Value:     decimal.NewFromInt(10),
				HasValue:  true,
				StartDate: &fixedNow,
				EndDate:   &fixedNow,
			},
			wantErrors: []string{"End date must be after start date"},
		},
		{
			name: "multiple violations collected",
			cand: Candidate{
				Type:      Type("bogus"),
				StartDate: &justOutsideTolerance,
			},
			wantErrors: []string{
				"Product ID is required",
				`Discount type must be either "flat" or "percentage"`,
				"Discount value is required",
				"Start date cannot be more than 1 day in the past",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.cand, fixedNow)

			if len(tt.wantErrors) == 0 {
				require.True(t, res.Valid, "unexpected violations: %v", res.Errors)
				assert.Empty(t, res.Errors)
				return
			}

			require.False(t, res.Valid)
			assert.Equal(t, tt.wantErrors, res.Errors)
		})
	}
}

func TestValidate_ValueRulesSkippedWhenValueAbsent(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	res := Validate(Candidate{ProductID: "p1", Type: TypeFlat}, fixedNow)

	require.False(t, res.Valid)
	assert.Equal(t, []string{"Discount value is required"}, res.Errors)
}
