package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item. The catalog is owned by a separate
// component; the pricing engine only reads it and never mutates it.
type Product struct {
	ID          string
	Name        string
	Description string
	Brand       string
	Category    string
	Price       decimal.Decimal
	ImageURL    string
	Featured    bool
	InStock     bool
}

// Filter narrows catalog listings. Zero values mean "no constraint".
type Filter struct {
	Category string
	Search   string
	InStock  bool
	Limit    int
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	ListFeatured(ctx context.Context, limit int) ([]Product, error)
	Categories(ctx context.Context) ([]string, error)
}
