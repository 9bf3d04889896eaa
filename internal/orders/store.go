package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound             = errors.New("order not found")
	ErrDuplicateOrderNumber = errors.New("order number already exists")
	ErrInvalidTransition    = errors.New("illegal order status transition")
)

type Store struct{ DB *pgxpool.Pool }

const orderColumns = `id, order_number, customer_email, customer_name, customer_phone,
	ship_line1, ship_line2, ship_city, ship_state, ship_postal_code, ship_country,
	subtotal_minor, discount_minor, shipping_minor, tax_minor, total_minor,
	status, payment_intent_id, payment_status,
	tracking_number, shipping_carrier, estimated_delivery, internal_notes,
	created_at, updated_at`

// Create is the sole entry point for new orders: one tx inserts the
// order row plus the item snapshot. A duplicate order_number trips
// the unique constraint and maps to ErrDuplicateOrderNumber; the
// caller treats that as "already created, fetch the existing order".
func (s *Store) Create(ctx context.Context, o Order) (Order, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o.ID = uuid.NewString()
	if o.Status == "" {
		o.Status = StatusPending
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders
			(id, order_number, customer_email, customer_name, customer_phone,
			 ship_line1, ship_line2, ship_city, ship_state, ship_postal_code, ship_country,
			 subtotal_minor, discount_minor, shipping_minor, tax_minor, total_minor,
			 status, payment_intent_id, payment_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING created_at, updated_at`,
		o.ID, o.OrderNumber, o.CustomerEmail, o.CustomerName, o.CustomerPhone,
		o.ShippingAddress.Line1, o.ShippingAddress.Line2, o.ShippingAddress.City,
		o.ShippingAddress.State, o.ShippingAddress.PostalCode, o.ShippingAddress.Country,
		o.SubtotalMinor, o.DiscountMinor, o.ShippingMinor, o.TaxMinor, o.TotalMinor,
		o.Status, o.PaymentIntentID, o.PaymentStatus).
		Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Order{}, ErrDuplicateOrderNumber
		}
		return Order{}, err
	}

	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, price_minor, quantity, size, color)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			o.ID, it.ProductID, it.ProductName, it.PriceMinor, it.Quantity, it.Size, it.Color); err != nil {
			return Order{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (Order, error) {
	return s.get(ctx, `WHERE id=$1`, id)
}

func (s *Store) GetByNumber(ctx context.Context, orderNumber string) (Order, error) {
	return s.get(ctx, `WHERE order_number=$1`, orderNumber)
}

func (s *Store) get(ctx context.Context, where string, args ...any) (Order, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders `+where, args...)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	o.Items, err = s.loadItems(ctx, o.ID)
	return o, err
}

func (s *Store) loadItems(ctx context.Context, orderID string) ([]Item, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT product_id, product_name, price_minor, quantity, size, color
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.ProductName, &it.PriceMinor, &it.Quantity, &it.Size, &it.Color); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) List(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpdateStatus enforces the transition table under FOR UPDATE so
// concurrent updates serialize on the row.
func (s *Store) UpdateStatus(ctx context.Context, id string, next Status) (Order, error) {
	if !IsValid(next) {
		return Order{}, ErrInvalidTransition
	}
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(current, next) {
		return Order{}, ErrInvalidTransition
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, id, next); err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return s.GetByID(ctx, id)
}

// AddTracking sets the tracking fields and auto-transitions to
// shipped where the table allows; on delivered or cancelled the
// fields still update but the status is left alone.
func (s *Store) AddTracking(ctx context.Context, id string, tr Tracking) (Order, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}

	next := current
	if current != StatusShipped && CanTransition(current, StatusShipped) {
		next = StatusShipped
	}
	if _, err := tx.Exec(ctx, `
		UPDATE orders SET
			tracking_number=$2, shipping_carrier=$3, estimated_delivery=$4,
			internal_notes = CASE WHEN $5 <> '' THEN $5 ELSE internal_notes END,
			status=$6, updated_at=now()
		WHERE id=$1`,
		id, tr.Number, tr.Carrier, tr.EstimatedDelivery, tr.Notes, next); err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return s.GetByID(ctx, id)
}

// SetPayment records gateway-side payment state on the order row.
func (s *Store) SetPayment(ctx context.Context, id, paymentIntentID, paymentStatus string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE orders SET payment_intent_id=$2, payment_status=$3, updated_at=now()
		WHERE id=$1`, id, paymentIntentID, paymentStatus)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerEmail, &o.CustomerName, &o.CustomerPhone,
		&o.ShippingAddress.Line1, &o.ShippingAddress.Line2, &o.ShippingAddress.City,
		&o.ShippingAddress.State, &o.ShippingAddress.PostalCode, &o.ShippingAddress.Country,
		&o.SubtotalMinor, &o.DiscountMinor, &o.ShippingMinor, &o.TaxMinor, &o.TotalMinor,
		&o.Status, &o.PaymentIntentID, &o.PaymentStatus,
		&o.TrackingNumber, &o.ShippingCarrier, &o.EstimatedDelivery, &o.InternalNotes,
		&o.CreatedAt, &o.UpdatedAt)
	return o, err
}
