package api

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/velvette/pricing-engine/internal/domain/discount"
	"github.com/velvette/pricing-engine/internal/domain/pricing"
	"github.com/velvette/pricing-engine/internal/domain/product"
)

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := &jx.Encoder{}
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("error", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

// writeDomainError maps the error taxonomy onto HTTP statuses: validation
// failures are 400 with the full violation list, unknown resources are 404,
// anything else is a 500 the caller may retry.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if ve := discount.AsValidation(err); ve != nil {
		writeJSON(w, http.StatusBadRequest, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("error", func(e *jx.Encoder) { e.Str(ve.Error()) })
				e.Field("errors", func(e *jx.Encoder) {
					e.Arr(func(e *jx.Encoder) {
						for _, msg := range ve.Errors {
							e.Str(msg)
						}
					})
				})
			})
		})
		return
	}
	if errors.Is(err, discount.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Discount not found")
		return
	}
	if errors.Is(err, product.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Product not found")
		return
	}

	zctx.From(r.Context()).Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func encodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.String()))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
	e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
	e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
	e.Field("brand", func(e *jx.Encoder) { e.Str(p.Brand) })
	e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
	e.Field("price", func(e *jx.Encoder) { encodeDecimal(e, p.Price) })
	e.Field("imageUrl", func(e *jx.Encoder) { e.Str(p.ImageURL) })
	e.Field("featured", func(e *jx.Encoder) { e.Bool(p.Featured) })
	e.Field("inStock", func(e *jx.Encoder) { e.Bool(p.InStock) })
}

func encodeDiscount(e *jx.Encoder, d *discount.Discount) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(d.ID) })
		e.Field("productId", func(e *jx.Encoder) { e.Str(d.ProductID) })
		e.Field("discountType", func(e *jx.Encoder) { e.Str(string(d.Type)) })
		e.Field("discountValue", func(e *jx.Encoder) { encodeDecimal(e, d.Value) })
		e.Field("startDate", func(e *jx.Encoder) { encodeTime(e, d.StartDate) })
		e.Field("endDate", func(e *jx.Encoder) {
			if d.EndDate == nil {
				e.Null()
				return
			}
			encodeTime(e, *d.EndDate)
		})
		e.Field("isActive", func(e *jx.Encoder) { e.Bool(d.Active) })
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, d.CreatedAt) })
		e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, d.UpdatedAt) })
	})
}

func encodeQuote(e *jx.Encoder, q pricing.Quote) {
	e.Field("originalPrice", func(e *jx.Encoder) { encodeDecimal(e, q.OriginalPrice) })
	e.Field("discountedPrice", func(e *jx.Encoder) { encodeDecimal(e, q.DiscountedPrice) })
	e.Field("savings", func(e *jx.Encoder) { encodeDecimal(e, q.Savings) })
	e.Field("discountPercentage", func(e *jx.Encoder) { e.Int(q.DiscountPercentage) })
	e.Field("hasDiscount", func(e *jx.Encoder) { e.Bool(q.HasDiscount) })
}

// encodeProductDiscount renders a product with its pricing quote and, when
// present, the discount record that produced it.
func encodeProductDiscount(e *jx.Encoder, pd discount.ProductDiscount, now time.Time) {
	q := pricing.Compute(pd.Product.Price, pd.Discount, now)
	e.Obj(func(e *jx.Encoder) {
		encodeProduct(e, pd.Product)
		encodeQuote(e, q)
		e.Field("discount", func(e *jx.Encoder) {
			if pd.Discount == nil {
				e.Null()
				return
			}
			encodeDiscount(e, pd.Discount)
		})
	})
}
