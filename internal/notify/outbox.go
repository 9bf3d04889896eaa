package notify

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Outbox persists notifications in the same relational store as the
// business rows; the dispatcher drains it asynchronously. Call sites
// log and swallow Enqueue errors so a failed notification can never
// roll back the operation that triggered it.
type Outbox struct{ DB *pgxpool.Pool }

func (o *Outbox) Enqueue(ctx context.Context, eventType, recipient string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = o.DB.Exec(ctx, `
		INSERT INTO notification_outbox (id, event_type, recipient, payload)
		VALUES ($1,$2,$3,$4)`, uuid.NewString(), eventType, recipient, b)
	return err
}

func (o *Outbox) FetchUnsent(ctx context.Context, limit int) ([]Notification, error) {
	rows, err := o.DB.Query(ctx, `
		SELECT id, event_type, recipient, payload, attempts, created_at, sent_at
		FROM notification_outbox
		WHERE sent_at IS NULL AND attempts < $1
		ORDER BY created_at
		LIMIT $2`, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.EventType, &n.Recipient, &n.Payload, &n.Attempts, &n.CreatedAt, &n.SentAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (o *Outbox) MarkSent(ctx context.Context, id string) error {
	_, err := o.DB.Exec(ctx, `UPDATE notification_outbox SET sent_at=now() WHERE id=$1`, id)
	return err
}

func (o *Outbox) MarkFailed(ctx context.Context, id string) error {
	_, err := o.DB.Exec(ctx, `UPDATE notification_outbox SET attempts=attempts+1 WHERE id=$1`, id)
	return err
}
