package api

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/velvette/pricing-engine/internal/domain/discount"
	"github.com/velvette/pricing-engine/internal/domain/pricing"
	"github.com/velvette/pricing-engine/internal/domain/product"
)

const maxBodyBytes = 1 << 20

// AdminListDiscounts returns every product paired with its effective discount
// and quote — the admin dashboard's main listing. With ?view=records it
// instead returns all discount records (including inactive and expired ones)
// joined with their products, newest first, for the edit list.
func (h *Handler) AdminListDiscounts(w http.ResponseWriter, r *http.Request) {
	now := h.now()

	var (
		pds []discount.ProductDiscount
		err error
	)
	if r.URL.Query().Get("view") == "records" {
		pds, err = h.discounts.ListWithProducts(r.Context())
	} else {
		pds, err = h.discounts.ListProductsWithActive(r.Context(), product.Filter{}, now)
	}
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

// CreateDiscount creates a discount, replacing any active one on the same
// product. 201 with the stored record, or 400 carrying the full violation
// list.
func (h *Handler) CreateDiscount(w http.ResponseWriter, r *http.Request) {
	in, derr, err := decodeCreateRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if derr != nil {
		writeDomainError(w, r, derr)
		return
	}

	d, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeDiscount(e, d) })
}

// UpdateDiscount applies a partial update. The merged state is re-validated
// before anything is persisted.
func (h *Handler) UpdateDiscount(w http.ResponseWriter, r *http.Request) {
	patch, derr, err := decodeUpdateRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if derr != nil {
		writeDomainError(w, r, derr)
		return
	}

	d, err := h.svc.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeDiscount(e, d) })
}

// DeleteDiscount removes a discount; the product reverts to full price.
func (h *Handler) DeleteDiscount(w http.ResponseWriter, r *http.Request) {
	removed, err := h.svc.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "Discount not found")
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("message", func(e *jx.Encoder) { e.Str("Discount deleted successfully") })
		})
	})
}

// PreviewDiscount prices a hypothetical discount for the admin modal without
// touching persistence.
func (h *Handler) PreviewDiscount(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var (
		price, value decimal.Decimal
		typ          discount.Type
	)
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "price":
			v, err := decodeDecimal(d)
			price = v
			return err
		case "discountType":
			v, err := d.Str()
			typ = discount.Type(v)
			return err
		case "discountValue":
			v, err := decodeDecimal(d)
			value = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	preview := pricing.ComputePreview(price, typ, value)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			encodeQuote(e, preview.Quote)
			e.Field("isValid", func(e *jx.Encoder) { e.Bool(preview.Valid) })
			e.Field("error", func(e *jx.Encoder) {
				if preview.Err == "" {
					e.Null()
					return
				}
				e.Str(preview.Err)
			})
		})
	})
}

// decodeCreateRequest parses the create payload. The second return value is a
// domain error (unparseable dates reported as validation violations); the
// third is a malformed-JSON error.
func decodeCreateRequest(r *http.Request) (discount.CreateInput, error, error) {
	var in discount.CreateInput

	body, err := readBody(r)
	if err != nil {
		return in, nil, err
	}

	var violations []string
	d := jx.DecodeBytes(body)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			v, err := d.Str()
			in.ProductID = v
			return err
		case "discountType":
			v, err := d.Str()
			in.Type = discount.Type(v)
			return err
		case "discountValue":
			v, err := decodeDecimal(d)
			if err != nil {
				return err
			}
			in.Value = v
			in.HasValue = true
			return nil
		case "startDate":
			t, ok, err := decodeNullableTime(d)
			if err != nil {
				violations = append(violations, "Invalid start date")
				return nil
			}
			if ok {
				in.StartDate = &t
			}
			return nil
		case "endDate":
			t, ok, err := decodeNullableTime(d)
			if err != nil {
				violations = append(violations, "Invalid end date")
				return nil
			}
			if ok {
				in.EndDate = &t
			}
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return in, nil, err
	}
	if len(violations) > 0 {
		return in, &discount.ValidationError{Errors: violations}, nil
	}
	return in, nil, nil
}

func decodeUpdateRequest(r *http.Request) (discount.Patch, error, error) {
	var patch discount.Patch

	body, err := readBody(r)
	if err != nil {
		return patch, nil, err
	}

	var violations []string
	d := jx.DecodeBytes(body)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			v, err := d.Str()
			patch.ProductID = &v
			return err
		case "discountType":
			v, err := d.Str()
			typ := discount.Type(v)
			patch.Type = &typ
			return err
		case "discountValue":
			v, err := decodeDecimal(d)
			if err != nil {
				return err
			}
			patch.Value = &v
			return nil
		case "startDate":
			t, ok, err := decodeNullableTime(d)
			if err != nil {
				violations = append(violations, "Invalid start date")
				return nil
			}
			if ok {
				patch.StartDate = &t
			}
			return nil
		case "endDate":
			t, ok, err := decodeNullableTime(d)
			if err != nil {
				violations = append(violations, "Invalid end date")
				return nil
			}
			if ok {
				patch.EndDate = &t
			} else {
				patch.ClearEndDate = true
			}
			return nil
		case "isActive":
			v, err := d.Bool()
			patch.Active = &v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return patch, nil, err
	}
	if len(violations) > 0 {
		return patch, &discount.ValidationError{Errors: violations}, nil
	}
	return patch, nil, nil
}

// decodeDecimal accepts either a JSON number or a numeric string, matching
// what the admin form submits.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(n.String())
}

// decodeNullableTime parses an RFC 3339 timestamp, also accepting the
// date-only form produced by date pickers. ok is false for JSON null.
func decodeNullableTime(d *jx.Decoder) (t time.Time, ok bool, err error) {
	if d.Next() == jx.Null {
		return time.Time{}, false, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return time.Time{}, false, err
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if parsed, perr := time.Parse(layout, s); perr == nil {
			return parsed, true, nil
		}
	}
	return time.Time{}, false, errors.Errorf("invalid timestamp %q", s)
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}
