package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ListFilter narrows List. Zero values mean "any".
type ListFilter struct {
	UserID string
	Status Status
}

// MutateFunc applies a transition to a locked order. It reports whether
// anything changed; unchanged orders are not written back.
type MutateFunc func(o *Order) (changed bool, err error)

// Repository persists Order aggregates. Every read returns the order with
// all of its items.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	GetForUser(ctx context.Context, id, userID string) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]*Order, error)
	// Update locks the order (scoped to userID unless empty), runs fn and
	// saves the result in one transaction.
	Update(ctx context.Context, id, userID string, fn MutateFunc) (*Order, error)
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

const orderColumns = `id, user_id, status, payment_method, full_name, phone, address,
    email, note, subtotal::text, shipping_fee::text, total::text, created_at, updated_at`

func (r *PGRepo) Create(ctx context.Context, o *Order) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
    INSERT INTO orders (id, user_id, status, payment_method, full_name, phone, address,
                        email, note, subtotal, shipping_fee, total, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
  `, o.ID, o.UserID, string(o.Status), string(o.PaymentMethod), o.FullName, o.Phone, o.Address,
		o.Email, o.Note, o.Subtotal.String(), o.ShippingFee.String(), o.Total.String(),
		o.CreatedAt, o.UpdatedAt); err != nil {
		return mapPGError(err, o.ID)
	}

	for i, it := range o.Items {
		if _, err := tx.Exec(ctx, `
      INSERT INTO order_items (order_id, position, product_id, name, slug, thumbnail,
                               unit_price, quantity, line_total)
      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    `, o.ID, i, it.ProductID, it.Name, it.Slug, it.Thumbnail,
			it.UnitPrice.String(), it.Quantity, it.LineTotal.String()); err != nil {
			return mapPGError(err, o.ID)
		}
	}
	return mapPGError(tx.Commit(ctx), o.ID)
}

func (r *PGRepo) Get(ctx context.Context, id string) (*Order, error) {
	return r.get(ctx, r.db, id, "", false)
}

func (r *PGRepo) GetForUser(ctx context.Context, id, userID string) (*Order, error) {
	return r.get(ctx, r.db, id, userID, false)
}

func (r *PGRepo) get(ctx context.Context, q dbtx, id, userID string, lock bool) (*Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1 AND ($2 = '' OR user_id=$2)`
	if lock {
		sql += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, sql, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errOrderNotFound()
		}
		return nil, mapPGError(err, id)
	}
	if err := r.loadItems(ctx, q, []*Order{o}); err != nil {
		return nil, err
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PGRepo) List(ctx context.Context, f ListFilter) ([]*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
    SELECT `+orderColumns+`
    FROM orders
    WHERE ($1 = '' OR user_id=$1) AND ($2 = '' OR status=$2)
    ORDER BY created_at DESC, id DESC
  `, f.UserID, string(f.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, r.db, out); err != nil {
		return nil, err
	}
	for _, o := range out {
		if err := o.Validate(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *PGRepo) Update(ctx context.Context, id, userID string, fn MutateFunc) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := r.get(ctx, tx, id, userID, true)
	if err != nil {
		return nil, err
	}
	changed, err := fn(o)
	if err != nil {
		return nil, err
	}
	if !changed {
		return o, nil
	}

	tag, err := tx.Exec(ctx, `
    UPDATE orders
    SET status = $2, updated_at = $3
    WHERE id = $1
  `, o.ID, string(o.Status), o.UpdatedAt)
	if err != nil {
		return nil, mapPGError(err, id)
	}
	if tag.RowsAffected() == 0 {
		return nil, errOrderNotFound()
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapPGError(err, id)
	}
	return o, nil
}

// loadItems fills Items for every order with a single query.
func (r *PGRepo) loadItems(ctx context.Context, q dbtx, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	byID := make(map[string]*Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Items = []Item{}
	}

	rows, err := q.Query(ctx, `
    SELECT order_id, product_id, name, slug, thumbnail, unit_price::text, quantity, line_total::text
    FROM order_items
    WHERE order_id = ANY($1)
    ORDER BY order_id, position
  `, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID, unit, line string
			it                  Item
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Name, &it.Slug, &it.Thumbnail,
			&unit, &it.Quantity, &line); err != nil {
			return err
		}
		if it.UnitPrice, err = decimal.NewFromString(unit); err != nil {
			return fmt.Errorf("order %s: unit_price: %w", orderID, err)
		}
		if it.LineTotal, err = decimal.NewFromString(line); err != nil {
			return fmt.Errorf("order %s: line_total: %w", orderID, err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                         Order
		status, payment           string
		subtotal, shipping, total string
	)
	if err := row.Scan(&o.ID, &o.UserID, &status, &payment, &o.FullName, &o.Phone, &o.Address,
		&o.Email, &o.Note, &subtotal, &shipping, &total, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	// a bad stored code is corruption, not caller input
	st, err := ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("order %s: stored status %q is not a known code", o.ID, status)
	}
	o.Status = st
	o.PaymentMethod = ParsePaymentMethod(payment)

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&o.Subtotal, subtotal}, {&o.ShippingFee, shipping}, {&o.Total, total}} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", o.ID, err)
		}
		*f.dst = d
	}
	return &o, nil
}

// mapPGError turns key collisions and serialization failures into ErrConflict
// and out-of-range values into ErrValidation.
func mapPGError(err error, id string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return NewConflictError("order id " + id + " already exists")
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return NewConflictError("order " + id + " was modified concurrently")
		case "55P03": // lock_not_available
			return NewConflictError("order " + id + " is locked by another request")
		case "22003": // numeric_value_out_of_range
			return NewValidationError("order " + id + ": amount or quantity out of range")
		}
	}
	return err
}
