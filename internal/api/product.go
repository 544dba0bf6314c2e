package api

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/velvette/pricing-engine/internal/domain/discount"
	"github.com/velvette/pricing-engine/internal/domain/pricing"
	"github.com/velvette/pricing-engine/internal/domain/product"
)

// ListProducts returns the catalog with computed pricing. Each product is
// paired with its effective discount in a single bulk query.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	f := product.Filter{
		Category: r.URL.Query().Get("category"),
		Search:   r.URL.Query().Get("search"),
		InStock:  r.URL.Query().Get("inStock") == "true",
		Limit:    queryInt(r, "limit", 0),
	}

	now := h.now()
	pds, err := h.discounts.ListProductsWithActive(r.Context(), f, now)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, pd := range pds {
				encodeProductDiscount(e, pd, now)
			}
		})
	})
}

// GetProduct returns a single product with its pricing quote. A malformed or
// unknown id is a 404, never a crash.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	now := h.now()
	d, err := h.discounts.FindActiveByProduct(r.Context(), id, now)
	if err != nil && !errors.Is(err, discount.ErrNotFound) {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeProductDiscount(e, discount.ProductDiscount{Product: *p, Discount: d}, now)
	})
}

// ListDiscounted returns only products that currently have an effective
// discount, for the storefront promotions section.
func (h *Handler) ListDiscounted(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	pds, err := h.discounts.ListDiscounted(r.Context(), queryInt(r, "limit", 8), now)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, pd := range pds {
				encodeProductDiscount(e, pd, now)
			}
		})
	})
}

// ListFeatured returns the curated featured products at full price.
func (h *Handler) ListFeatured(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.ListFeatured(r.Context(), queryInt(r, "limit", 6))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, p := range products {
				e.Obj(func(e *jx.Encoder) { encodeProduct(e, p) })
			}
		})
	})
}

// ListCategories returns the distinct product categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.products.Categories(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, c := range categories {
				e.Str(c)
			}
		})
	})
}

// cartItem is one entry of a cart pricing request.
type cartItem struct {
	ProductID string
	Quantity  int
}

// PriceCart prices a cart: every line is priced independently against its
// product's effective discount, then the totals are summed.
func (h *Handler) PriceCart(w http.ResponseWriter, r *http.Request) {
	items, err := decodeCartRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(items) == 0 {
		writeError(w, http.StatusBadRequest, "Cart items are required")
		return
	}

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}

	fetched, err := h.products.GetByIDs(r.Context(), ids)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	now := h.now()
	active, err := h.discounts.ListActive(r.Context(), now)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	activeByProduct := make(map[string]*discount.Discount, len(active))
	for i := range active {
		activeByProduct[active[i].ProductID] = &active[i]
	}

	lines := make([]pricing.Line, 0, len(items))
	for _, item := range items {
		p, ok := byID[item.ProductID]
		if !ok {
			writeDomainError(w, r, errors.Wrapf(product.ErrNotFound, "product %q", item.ProductID))
			return
		}
		lines = append(lines, pricing.Line{
			ProductID: p.ID,
			Quantity:  item.Quantity,
			UnitPrice: p.Price,
			Discount:  activeByProduct[p.ID],
		})
	}

	cart := pricing.ComputeCart(lines, now)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeCartQuote(e, cart)
	})
}

func encodeCartQuote(e *jx.Encoder, cart pricing.CartQuote) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("subtotal", func(e *jx.Encoder) { encodeDecimal(e, cart.Subtotal) })
		e.Field("discountedSubtotal", func(e *jx.Encoder) { encodeDecimal(e, cart.DiscountedSubtotal) })
		e.Field("totalSavings", func(e *jx.Encoder) { encodeDecimal(e, cart.TotalSavings) })
		e.Field("itemCount", func(e *jx.Encoder) { e.Int(len(cart.Items)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range cart.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(item.ProductID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
						e.Field("originalPrice", func(e *jx.Encoder) { encodeDecimal(e, item.Quote.OriginalPrice) })
						e.Field("discountedPrice", func(e *jx.Encoder) { encodeDecimal(e, item.Quote.DiscountedPrice) })
						e.Field("originalTotal", func(e *jx.Encoder) { encodeDecimal(e, item.OriginalTotal) })
						e.Field("discountedTotal", func(e *jx.Encoder) { encodeDecimal(e, item.DiscountedTotal) })
						e.Field("savings", func(e *jx.Encoder) { encodeDecimal(e, item.Savings) })
						e.Field("hasDiscount", func(e *jx.Encoder) { e.Bool(item.Quote.HasDiscount) })
					})
				}
			})
		})
	})
}

func decodeCartRequest(r *http.Request) ([]cartItem, error) {
	body, err := readBody(r)
	if err != nil {
		return nil, err
	}

	var items []cartItem
	d := jx.DecodeBytes(body)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			var item cartItem
			item.Quantity = 1
			if err := d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "productId":
					v, err := d.Str()
					item.ProductID = v
					return err
				case "quantity":
					v, err := d.Int()
					item.Quantity = v
					return err
				default:
					return d.Skip()
				}
			}); err != nil {
				return err
			}
			items = append(items, item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
