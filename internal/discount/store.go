package discount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct{ DB *pgxpool.Pool }

func (s *Store) GetByCode(ctx context.Context, code string) (Code, error) {
	var c Code
	var subscriber *string
	var expires *time.Time
	err := s.DB.QueryRow(ctx, `
		SELECT id, code, discount_type, discount_value, min_purchase,
		       max_uses, used_count, subscriber_email, expires_at, is_active, created_at
		FROM discount_codes WHERE code=$1`, Normalize(code)).
		Scan(&c.ID, &c.Code, &c.Type, &c.Value, &c.MinPurchase,
			&c.MaxUses, &c.UsedCount, &subscriber, &expires, &c.IsActive, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Code{}, ErrNotFound
	}
	if err != nil {
		return Code{}, err
	}
	if subscriber != nil {
		c.SubscriberEmail = *subscriber
	}
	if expires != nil {
		c.ExpiresAt = *expires
	}
	return c, nil
}

// Consume burns one use. The WHERE guard keeps used_count <= max_uses
// even under concurrent consumers; losing the race surfaces as
// ErrExhausted for operational follow-up, the order stands either way.
func (s *Store) Consume(ctx context.Context, code string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE discount_codes SET used_count = used_count + 1
		WHERE code=$1 AND used_count < max_uses`, Normalize(code))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrExhausted
	}
	return nil
}

func (s *Store) Create(ctx context.Context, c Code) (Code, error) {
	c.ID = uuid.NewString()
	c.Code = Normalize(c.Code)
	var subscriber *string
	if c.SubscriberEmail != "" {
		subscriber = &c.SubscriberEmail
	}
	var expires *time.Time
	if !c.ExpiresAt.IsZero() {
		expires = &c.ExpiresAt
	}
	err := s.DB.QueryRow(ctx, `
		INSERT INTO discount_codes
			(id, code, discount_type, discount_value, min_purchase, max_uses, used_count, subscriber_email, expires_at, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,0,$7,$8,$9)
		RETURNING created_at`,
		c.ID, c.Code, c.Type, c.Value, c.MinPurchase, c.MaxUses, subscriber, expires, c.IsActive).
		Scan(&c.CreatedAt)
	if err != nil {
		return Code{}, err
	}
	return c, nil
}

// MintWelcomeCode creates the single-use 10% code carried by the
// newsletter welcome email, bound to the subscriber.
func (s *Store) MintWelcomeCode(ctx context.Context, email string, now time.Time) (Code, error) {
	c := Code{
		Code:            fmt.Sprintf("WELCOME-%s", uuid.NewString()[:8]),
		Type:            TypePercentage,
		Value:           10,
		MaxUses:         1,
		SubscriberEmail: email,
		ExpiresAt:       now.Add(30 * 24 * time.Hour),
		IsActive:        true,
	}
	return s.Create(ctx, c)
}
