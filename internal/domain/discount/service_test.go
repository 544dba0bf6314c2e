package discount

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velvette/pricing-engine/internal/domain/product"
)

type mockDiscountRepo struct {
	byID       map[string]*Discount
	active     map[string]*Discount
	replaced   *Discount
	updated    *Discount
	deletedIDs []string
	deleteOK   bool
	findErr    error
}

func (m *mockDiscountRepo) ReplaceActive(_ context.Context, d *Discount) error {
	m.replaced = d
	return nil
}

func (m *mockDiscountRepo) Update(_ context.Context, d *Discount) error {
	m.updated = d
	return nil
}

func (m *mockDiscountRepo) Delete(_ context.Context, id string) (bool, error) {
	m.deletedIDs = append(m.deletedIDs, id)
	return m.deleteOK, nil
}

func (m *mockDiscountRepo) FindByID(_ context.Context, id string) (*Discount, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	d, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDiscountRepo) FindActiveByProduct(_ context.Context, productID string, _ time.Time) (*Discount, error) {
	d, ok := m.active[productID]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (m *mockDiscountRepo) ListActive(_ context.Context, _ time.Time) ([]Discount, error) {
	return nil, nil
}

func (m *mockDiscountRepo) ListWithProducts(_ context.Context) ([]ProductDiscount, error) {
	return nil, nil
}

func (m *mockDiscountRepo) ListProductsWithActive(_ context.Context, _ product.Filter, _ time.Time) ([]ProductDiscount, error) {
	return nil, nil
}

func (m *mockDiscountRepo) ListDiscounted(_ context.Context, _ int, _ time.Time) ([]ProductDiscount, error) {
	return nil, nil
}

type mockProductRepo struct {
	products map[string]*product.Product
}

func (m *mockProductRepo) List(_ context.Context, _ product.Filter) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, _ []string) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) ListFeatured(_ context.Context, _ int) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) Categories(_ context.Context) ([]string, error) {
	return nil, nil
}

func newTestService(discounts *mockDiscountRepo, products *mockProductRepo, now time.Time) *Service {
	svc := NewService(discounts, products)
	svc.now = func() time.Time { return now }
	return svc
}

func TestServiceCreate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("valid percentage discount is persisted via replace", func(t *testing.T) {
		repo := &mockDiscountRepo{}
		svc := newTestService(repo, &mockProductRepo{}, fixedNow)

		d, err := svc.Create(context.Background(), CreateInput{
			ProductID: "p1",
			Type:      TypePercentage,
			Value:     decimal.NewFromInt(25),
			HasValue:  true,
		})

		require.NoError(t, err)
		require.NotNil(t, repo.replaced)
		assert.Equal(t, d, repo.replaced)
		assert.NotEmpty(t, d.ID)
		assert.Equal(t, "p1", d.ProductID)
		assert.True(t, d.Active)
		assert.Equal(t, fixedNow, d.StartDate, "start date defaults to now")
		assert.Nil(t, d.EndDate)
		assert.Equal(t, fixedNow, d.CreatedAt)
		assert.Equal(t, fixedNow, d.UpdatedAt)
	})

	t.Run("explicit start date is kept", func(t *testing.T) {
		repo := &mockDiscountRepo{}
		svc := newTestService(repo, &mockProductRepo{}, fixedNow)
		start := fixedNow.Add(48 * time.Hour)

		d, err := svc.Create(context.Background(), CreateInput{
			ProductID: "p1",
			Type:      TypePercentage,
			Value:     decimal.NewFromInt(10),
			HasValue:  true,
			StartDate: &start,
		})

		require.NoError(t, err)
		assert.Equal(t, start, d.StartDate)
	})

	t.Run("flat discount checks product price", func(t *testing.T) {
		price := decimal.NewFromInt(100)
		products := &mockProductRepo{products: map[string]*product.Product{
			"p1": {ID: "p1", Price: price},
		}}
		repo := &mockDiscountRepo{}
		svc := newTestService(repo, products, fixedNow)

		_, err := svc.Create(context.Background(), CreateInput{
			ProductID: "p1",
			Type:      TypeFlat,
			Value:     decimal.NewFromInt(150),
			HasValue:  true,
		})

		ve := AsValidation(err)
		require.NotNil(t, ve)
		assert.Contains(t, ve.Errors, "Flat discount cannot be greater than or equal to product price")
		assert.Nil(t, repo.replaced, "invalid input must not be persisted")
	})

	t.Run("flat discount for unknown product", func(t *testing.T) {
		repo := &mockDiscountRepo{}
		svc := newTestService(repo, &mockProductRepo{}, fixedNow)

		_, err := svc.Create(context.Background(), CreateInput{
			ProductID: "missing",
			Type:      TypeFlat,
			Value:     decimal.NewFromInt(10),
			HasValue:  true,
		})

		ve := AsValidation(err)
		require.NotNil(t, ve)
		assert.Contains(t, ve.Errors, "Invalid product ID")
	})

	t.Run("all violations reported at once", func(t *testing.T) {
		repo := &mockDiscountRepo{}
		svc := newTestService(repo, &mockProductRepo{}, fixedNow)

		_, err := svc.Create(context.Background(), CreateInput{
			Type: Type("bogus"),
		})

		ve := AsValidation(err)
		require.NotNil(t, ve)
		assert.Len(t, ve.Errors, 3)
	})
}

func TestServiceUpdate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	created := fixedNow.Add(-72 * time.Hour)

	existing := func() *Discount {
		return &Discount{
			ID:        "d1",
			ProductID: "p1",
			Type:      TypePercentage,
			Value:     decimal.NewFromInt(20),
			StartDate: created,
			Active:    true,
			CreatedAt: created,
			UpdatedAt: created,
		}
	}

	t.Run("patch merges onto stored record", func(t *testing.T) {
		repo := &mockDiscountRepo{byID: map[string]*Discount{"d1": existing()}}
		svc := newTestService(repo, &mockProductRepo{}, fixedNow)

		newValue := decimal.NewFromInt(30)
		d, err := svc.Update(context.Background(), "d1", Patch{Value: &newValue})

		require.NoError(t, err)
		require.NotNil(t, repo.updated)
		assert.True(t, newValue.Equal(d.Value))
		assert.Equal(t, "p1", d.ProductID, "unpatched fields unchanged")
		assert.Equal(t, created, d.StartDate, "old start date survives update")
		assert.Equal(t, fixedNow, d.UpdatedAt)
		assert.Equal(t, created, d.CreatedAt)
	})

	t.Run("merged state is validated", func(t *testing.T) {
		repo := &mockDiscountRepo{byID: map[string]*Discount{"d1": existing()}}
		svc := newTestService(repo, &mockProductRepo{}, fixedNow)

		tooHigh := decimal.NewFromInt(100)
		_, err := svc.Update(context.Background(), "d1", Patch{Value: &tooHigh})

		ve := AsValidation(err)
		require.NotNil(t, ve)
		assert.Contains(t, ve.Errors, "Percentage discount must be less than 100%")
		assert.Nil(t, repo.updated)
	})

	t.Run("unknown id returns ErrNotFound", func(t *testing.T) {
		repo := &mockDiscountRepo{}
		svc := newTestService(repo, &mockProductRepo{}, fixedNow)

		v := decimal.NewFromInt(10)
		_, err := svc.Update(context.Background(), "nope", Patch{Value: &v})

		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("moving to a product with an active discount replaces it", func(t *testing.T) {
		other := &Discount{ID: "d2", ProductID: "p2", Type: TypePercentage, Value: decimal.NewFromInt(5), StartDate: created, Active: true}
		repo := &mockDiscountRepo{
			byID:     map[string]*Discount{"d1": existing()},
			active:   map[string]*Discount{"p2": other},
			deleteOK: true,
		}
		svc := newTestService(repo, &mockProductRepo{}, fixedNow)

		target := "p2"
		d, err := svc.Update(context.Background(), "d1", Patch{ProductID: &target})

		require.NoError(t, err)
		assert.Equal(t, "p2", d.ProductID)
		assert.Equal(t, []string{"d2"}, repo.deletedIDs)
	})

	t.Run("moving to a product without an active discount deletes nothing", func(t *testing.T) {
		repo := &mockDiscountRepo{byID: map[string]*Discount{"d1": existing()}}
		svc := newTestService(repo, &mockProductRepo{}, fixedNow)

		target := "p3"
		_, err := svc.Update(context.Background(), "d1", Patch{ProductID: &target})

		require.NoError(t, err)
		assert.Empty(t, repo.deletedIDs)
	})

	t.Run("clearing the end date makes the discount open-ended", func(t *testing.T) {
		bounded := existing()
		end := fixedNow.Add(24 * time.Hour)
		bounded.EndDate = &end

		repo := &mockDiscountRepo{byID: map[string]*Discount{"d1": bounded}}
		svc := newTestService(repo, &mockProductRepo{}, fixedNow)

		d, err := svc.Update(context.Background(), "d1", Patch{ClearEndDate: true})

		require.NoError(t, err)
		assert.Nil(t, d.EndDate)
	})

	t.Run("deactivation via patch", func(t *testing.T) {
		repo := &mockDiscountRepo{byID: map[string]*Discount{"d1": existing()}}
		svc := newTestService(repo, &mockProductRepo{}, fixedNow)

		off := false
		d, err := svc.Update(context.Background(), "d1", Patch{Active: &off})

		require.NoError(t, err)
		assert.False(t, d.Active)
	})
}

func TestServiceDelete(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("existing discount removed", func(t *testing.T) {
		repo := &mockDiscountRepo{deleteOK: true}
		svc := newTestService(repo, &mockProductRepo{}, fixedNow)

		removed, err := svc.Delete(context.Background(), "d1")

		require.NoError(t, err)
		assert.True(t, removed)
		assert.Equal(t, []string{"d1"}, repo.deletedIDs)
	})

	t.Run("unknown id reports removed=false without error", func(t *testing.T) {
		repo := &mockDiscountRepo{}
		svc := newTestService(repo, &mockProductRepo{}, fixedNow)

		removed, err := svc.Delete(context.Background(), "nope")

		require.NoError(t, err)
		assert.False(t, removed)
	})
}
