package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/velvette/pricing-engine/internal/domain/discount"
	"github.com/velvette/pricing-engine/internal/domain/product"
)

// effectiveSQL is the eligibility predicate from the domain, expressed once
// in SQL. $N is the evaluation instant. Every active-discount query reuses
// this fragment so the predicate cannot drift between call sites.
const effectiveSQL = `is_active AND start_date <= %[1]s AND (end_date IS NULL OR end_date >= %[1]s)`

const (
	discountColumns = `id, product_id, discount_type, discount_value, start_date, end_date, is_active, created_at, updated_at`

	insertDiscountSQL = `INSERT INTO discounts (` + discountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	updateDiscountSQL = `UPDATE discounts
		SET product_id = $2, discount_type = $3, discount_value = $4,
		    start_date = $5, end_date = $6, is_active = $7, updated_at = $8
		WHERE id = $1`

	deleteDiscountSQL = `DELETE FROM discounts WHERE id = $1`

	getDiscountByIDSQL = `SELECT ` + discountColumns + ` FROM discounts WHERE id = $1`

	listWithProductsSQL = `SELECT d.id, d.product_id, d.discount_type, d.discount_value,
			d.start_date, d.end_date, d.is_active, d.created_at, d.updated_at,
			p.id, p.name, p.description, p.brand, p.category, p.price, p.image_url, p.featured, p.in_stock
		FROM discounts d
		JOIN products p ON p.id = d.product_id
		ORDER BY d.created_at DESC`

	// uniqueViolation is the PostgreSQL error code raised when the partial
	// unique index on active discounts rejects an insert.
	uniqueViolation = "23505"
)

var (
	deleteActiveForProductSQL = fmt.Sprintf(
		`DELETE FROM discounts WHERE product_id = $1 AND `+effectiveSQL, `$2`)

	deleteAnyActiveForProductSQL = `DELETE FROM discounts WHERE product_id = $1 AND is_active`

	deleteOtherActiveForProductSQL = `DELETE FROM discounts WHERE product_id = $1 AND is_active AND id <> $2`

	findActiveByProductSQL = fmt.Sprintf(
		`SELECT `+discountColumns+` FROM discounts WHERE product_id = $1 AND `+effectiveSQL+` LIMIT 1`, `$2`)

	listActiveSQL = fmt.Sprintf(
		`SELECT `+discountColumns+` FROM discounts WHERE `+effectiveSQL+` ORDER BY created_at DESC`, `$1`)

	listDiscountedSQL = fmt.Sprintf(
		`SELECT p.id, p.name, p.description, p.brand, p.category, p.price, p.image_url, p.featured, p.in_stock,
			d.id, d.product_id, d.discount_type, d.discount_value,
			d.start_date, d.end_date, d.is_active, d.created_at, d.updated_at
		FROM products p
		JOIN LATERAL (
			SELECT `+discountColumns+` FROM discounts
			WHERE product_id = p.id AND `+effectiveSQL+`
			LIMIT 1
		) d ON TRUE
		ORDER BY p.id
		LIMIT $2`, `$1`)
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
//
// The one-active-discount-per-product invariant is enforced twice: by the
// replace transaction in ReplaceActive, and by a partial unique index on
// (product_id) WHERE is_active that closes the race between two concurrent
// creates for the same product.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// ReplaceActive deletes any effectively active discount for the product and
// inserts d, in one transaction. When the unique index still rejects the
// insert — a concurrent create won the race, or a stale active row sits
// outside its date window — the conflicting active rows are cleared and the
// insert is retried exactly once.
func (r *DiscountRepository) ReplaceActive(ctx context.Context, d *discount.Discount) error {
	err := r.replaceActiveOnce(ctx, d, deleteActiveForProductSQL, true)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return fmt.Errorf("replacing active discount for product %q: %w", d.ProductID, err)
	}

	if err := r.replaceActiveOnce(ctx, d, deleteAnyActiveForProductSQL, false); err != nil {
		return fmt.Errorf("retrying discount insert for product %q: %w", d.ProductID, err)
	}
	return nil
}

func (r *DiscountRepository) replaceActiveOnce(ctx context.Context, d *discount.Discount, deleteSQL string, withNow bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if withNow {
		_, err = tx.Exec(ctx, deleteSQL, d.ProductID, d.CreatedAt)
	} else {
		_, err = tx.Exec(ctx, deleteSQL, d.ProductID)
	}
	if err != nil {
		return fmt.Errorf("delete active: %w", err)
	}

	_, err = tx.Exec(ctx, insertDiscountSQL,
		d.ID, d.ProductID, string(d.Type), d.Value,
		d.StartDate, d.EndDate, d.Active, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Update persists the full merged record. Returns discount.ErrNotFound when
// the id does not exist. When moving an active discount to a product whose
// flagged-active row sits outside its date window, the unique index rejects
// the move; the stale row is cleared and the update retried exactly once,
// same recovery as ReplaceActive.
func (r *DiscountRepository) Update(ctx context.Context, d *discount.Discount) error {
	err := r.updateOnce(ctx, r.pool, d)
	if err == nil || errors.Is(err, discount.ErrNotFound) {
		return err
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return fmt.Errorf("updating discount %q: %w", d.ID, err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, deleteOtherActiveForProductSQL, d.ProductID, d.ID); err != nil {
		return fmt.Errorf("clearing active discount for product %q: %w", d.ProductID, err)
	}
	if err := r.updateOnce(ctx, tx, d); err != nil {
		return fmt.Errorf("retrying discount update %q: %w", d.ID, err)
	}
	return tx.Commit(ctx)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *DiscountRepository) updateOnce(ctx context.Context, db execer, d *discount.Discount) error {
	tag, err := db.Exec(ctx, updateDiscountSQL,
		d.ID, d.ProductID, string(d.Type), d.Value,
		d.StartDate, d.EndDate, d.Active, d.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrNotFound
	}
	return nil
}

// Delete removes the record entirely, with no history retained. It reports
// whether a row was actually removed; deleting an unknown id is not an error.
func (r *DiscountRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, deleteDiscountSQL, id)
	if err != nil {
		return false, fmt.Errorf("deleting discount %q: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindByID returns the record regardless of its active state.
func (r *DiscountRepository) FindByID(ctx context.Context, id string) (*discount.Discount, error) {
	rows, err := r.pool.Query(ctx, getDiscountByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting discount %q: %w", id, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("getting discount %q: %w", id, err)
	}
	return &d, nil
}

// FindActiveByProduct returns the single effectively active discount for the
// product at the given instant, or discount.ErrNotFound.
func (r *DiscountRepository) FindActiveByProduct(ctx context.Context, productID string, now time.Time) (*discount.Discount, error) {
	rows, err := r.pool.Query(ctx, findActiveByProductSQL, productID, now)
	if err != nil {
		return nil, fmt.Errorf("finding active discount for product %q: %w", productID, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("finding active discount for product %q: %w", productID, err)
	}
	return &d, nil
}

// ListActive returns every effectively active discount at the given instant.
func (r *DiscountRepository) ListActive(ctx context.Context, now time.Time) ([]discount.Discount, error) {
	rows, err := r.pool.Query(ctx, listActiveSQL, now)
	if err != nil {
		return nil, fmt.Errorf("listing active discounts: %w", err)
	}
	return pgx.CollectRows(rows, scanDiscount)
}

// ListWithProducts returns every discount joined with its product, newest
// first. Used by the admin dashboard, where inactive and expired records are
// still shown for editing.
func (r *DiscountRepository) ListWithProducts(ctx context.Context) ([]discount.ProductDiscount, error) {
	rows, err := r.pool.Query(ctx, listWithProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing discounts with products: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (discount.ProductDiscount, error) {
		var (
			d   discount.Discount
			p   product.Product
			typ string
		)
		err := row.Scan(
			&d.ID, &d.ProductID, &typ, &d.Value,
			&d.StartDate, &d.EndDate, &d.Active, &d.CreatedAt, &d.UpdatedAt,
			&p.ID, &p.Name, &p.Description, &p.Brand, &p.Category,
			&p.Price, &p.ImageURL, &p.Featured, &p.InStock,
		)
		d.Type = discount.Type(typ)
		return discount.ProductDiscount{Product: p, Discount: &d}, err
	})
}

// ListProductsWithActive returns each product matching the filter paired with
// its effectively active discount, or nil. One query for the whole page; the
// per-product lookup is folded into a lateral join to avoid N+1 access.
func (r *DiscountRepository) ListProductsWithActive(ctx context.Context, f product.Filter, now time.Time) ([]discount.ProductDiscount, error) {
	sql, args := buildProductsWithActiveQuery(f, now)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing products with active discounts: %w", err)
	}
	return pgx.CollectRows(rows, scanProductDiscount)
}

// ListDiscounted returns only products carrying an effective discount. The
// inner lateral join drops undiscounted products in storage, so the limit
// applies to discounted rows, not catalog rows.
func (r *DiscountRepository) ListDiscounted(ctx context.Context, limit int, now time.Time) ([]discount.ProductDiscount, error) {
	rows, err := r.pool.Query(ctx, listDiscountedSQL, now, limit)
	if err != nil {
		return nil, fmt.Errorf("listing discounted products: %w", err)
	}
	return pgx.CollectRows(rows, scanProductDiscount)
}

func buildProductsWithActiveQuery(f product.Filter, now time.Time) (string, []any) {
	args := []any{now}
	sql := `SELECT p.id, p.name, p.description, p.brand, p.category, p.price, p.image_url, p.featured, p.in_stock,
			d.id, d.product_id, d.discount_type, d.discount_value,
			d.start_date, d.end_date, d.is_active, d.created_at, d.updated_at
		FROM products p
		LEFT JOIN LATERAL (
			SELECT ` + discountColumns + ` FROM discounts
			WHERE product_id = p.id AND ` + fmt.Sprintf(effectiveSQL, `$1`) + `
			LIMIT 1
		) d ON TRUE`

	var conds []string
	if f.Category != "" {
		args = append(args, f.Category)
		conds = append(conds, `p.category = $`+strconv.Itoa(len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := strconv.Itoa(len(args))
		conds = append(conds, `(p.name ILIKE $`+n+` OR p.brand ILIKE $`+n+` OR p.description ILIKE $`+n+`)`)
	}
	if f.InStock {
		conds = append(conds, `p.in_stock`)
	}
	if len(conds) > 0 {
		sql += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	sql += ` ORDER BY p.id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += ` LIMIT $` + strconv.Itoa(len(args))
	}
	return sql, args
}

func scanProductDiscount(row pgx.CollectableRow) (discount.ProductDiscount, error) {
	var (
		p product.Product

		// Discount side of the left join; all nullable.
		id, productID, typ   *string
		value                decimal.NullDecimal
		startDate, endDate   *time.Time
		active               *bool
		createdAt, updatedAt *time.Time
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Brand, &p.Category,
		&p.Price, &p.ImageURL, &p.Featured, &p.InStock,
		&id, &productID, &typ, &value,
		&startDate, &endDate, &active, &createdAt, &updatedAt,
	)
	if err != nil {
		return discount.ProductDiscount{}, err
	}

	pd := discount.ProductDiscount{Product: p}
	if id != nil {
		pd.Discount = &discount.Discount{
			ID:        *id,
			ProductID: *productID,
			Type:      discount.Type(*typ),
			Value:     value.Decimal,
			StartDate: *startDate,
			EndDate:   endDate,
			Active:    *active,
			CreatedAt: *createdAt,
			UpdatedAt: *updatedAt,
		}
	}
	return pd, nil
}

func scanDiscount(row pgx.CollectableRow) (discount.Discount, error) {
	var (
		d   discount.Discount
		typ string
	)
	err := row.Scan(
		&d.ID, &d.ProductID, &typ, &d.Value,
		&d.StartDate, &d.EndDate, &d.Active, &d.CreatedAt, &d.UpdatedAt,
	)
	d.Type = discount.Type(typ)
	return d, err
}
