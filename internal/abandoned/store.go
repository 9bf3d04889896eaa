package abandoned

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/infstore/storefront/internal/cart"
)

var ErrNotFound = errors.New("abandoned cart not found")

// Snapshot is one debounced capture of an in-progress cart.
type Snapshot struct {
	SessionID  string      `json:"session_id"`
	Email      string      `json:"email,omitempty"`
	Name       string      `json:"name,omitempty"`
	Items      []cart.Item `json:"items"`
	TotalMinor int64       `json:"total_minor"`
}

type Cart struct {
	ID             string
	SessionID      string
	Email          string
	Name           string
	Items          []cart.Item
	TotalMinor     int64
	ReminderSent   bool
	ReminderSentAt *time.Time
	Recovered      bool
	RecoveredAt    *time.Time
	CreatedAt      time.Time
	LastUpdated    time.Time
}

// cartData is the versioned persisted shape, so schema evolution
// does not silently corrupt old rows.
type cartData struct {
	V     int         `json:"v"`
	Items []cart.Item `json:"items"`
}

type Store struct{ DB *pgxpool.Pool }

// Save upserts by session_id. A recovered row is never overwritten:
// once the session checked out, late debounce flushes are dropped.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	if snap.SessionID == "" {
		return fmt.Errorf("missing session id")
	}
	data, err := json.Marshal(cartData{V: 1, Items: snap.Items})
	if err != nil {
		return err
	}
	var email, name *string
	if snap.Email != "" {
		email = &snap.Email
	}
	if snap.Name != "" {
		name = &snap.Name
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO abandoned_carts (id, session_id, customer_email, customer_name, cart_data, cart_total)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (session_id) DO UPDATE SET
			customer_email = COALESCE($3, abandoned_carts.customer_email),
			customer_name  = COALESCE($4, abandoned_carts.customer_name),
			cart_data      = $5,
			cart_total     = $6,
			last_updated   = now()
		WHERE abandoned_carts.recovered = FALSE`,
		uuid.NewString(), snap.SessionID, email, name, data, snap.TotalMinor)
	return err
}

func (s *Store) MarkRecovered(ctx context.Context, sessionID string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE abandoned_carts SET recovered=TRUE, recovered_at=now()
		WHERE session_id=$1 AND recovered=FALSE`, sessionID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) MarkReminderSent(ctx context.Context, sessionID string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE abandoned_carts SET reminder_sent=TRUE, reminder_sent_at=now()
		WHERE session_id=$1`, sessionID)
	return err
}

// DueForReminder: email known, not recovered, not yet reminded, and
// quiet since before the cutoff (abandoned, not merely idle).
func (s *Store) DueForReminder(ctx context.Context, cutoff time.Time) ([]Cart, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+cartColumns+`
		FROM abandoned_carts
		WHERE customer_email IS NOT NULL
		  AND recovered = FALSE
		  AND reminder_sent = FALSE
		  AND last_updated < $1
		ORDER BY last_updated`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Cart
	for rows.Next() {
		c, err := scanCart(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CountUnrecovered(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM abandoned_carts WHERE recovered=FALSE`).Scan(&n)
	return n, err
}

func (s *Store) GetBySession(ctx context.Context, sessionID string) (Cart, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+cartColumns+` FROM abandoned_carts WHERE session_id=$1`, sessionID)
	c, err := scanCart(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cart{}, ErrNotFound
	}
	return c, err
}

const cartColumns = `id, session_id, customer_email, customer_name, cart_data, cart_total,
	reminder_sent, reminder_sent_at, recovered, recovered_at, created_at, last_updated`

func scanCart(row pgx.Row) (Cart, error) {
	var c Cart
	var email, name *string
	var raw []byte
	err := row.Scan(&c.ID, &c.SessionID, &email, &name, &raw, &c.TotalMinor,
		&c.ReminderSent, &c.ReminderSentAt, &c.Recovered, &c.RecoveredAt, &c.CreatedAt, &c.LastUpdated)
	if err != nil {
		return Cart{}, err
	}
	if email != nil {
		c.Email = *email
	}
	if name != nil {
		c.Name = *name
	}
	var data cartData
	if err := json.Unmarshal(raw, &data); err != nil {
		return Cart{}, fmt.Errorf("decode cart data for %s: %w", c.SessionID, err)
	}
	c.Items = data.Items
	return c, nil
}
