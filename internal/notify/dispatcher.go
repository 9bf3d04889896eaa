package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

const maxAttempts = 5

type OutboxSource interface {
	FetchUnsent(ctx context.Context, limit int) ([]Notification, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

type Sender interface {
	Send(to, subject, body string) error
}

// Dispatcher drains the outbox on a ticker. Send failures bump the
// attempt counter and the row is retried next tick until the cap;
// rows at the cap stay in the table for manual follow-up.
type Dispatcher struct {
	Outbox    OutboxSource
	Sender    Sender
	Tick      time.Duration
	BatchSize int
}

func NewDispatcher(outbox OutboxSource, sender Sender, tick time.Duration) *Dispatcher {
	return &Dispatcher{Outbox: outbox, Sender: sender, Tick: tick, BatchSize: 100}
}

func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.ProcessBatch(ctx)
		case <-ctx.Done():
			// pending rows persist; next boot picks them up
			return
		}
	}
}

func (d *Dispatcher) ProcessBatch(ctx context.Context) {
	batch, err := d.Outbox.FetchUnsent(ctx, d.BatchSize)
	if err != nil {
		log.Printf("fetch outbox: %v", err)
		return
	}
	for _, n := range batch {
		subject, body, err := BuildEmail(n)
		if err != nil {
			log.Printf("build notification %s (%s): %v", n.ID, n.EventType, err)
			if err := d.Outbox.MarkFailed(ctx, n.ID); err != nil {
				log.Printf("mark failed %s: %v", n.ID, err)
			}
			continue
		}
		if err := d.Sender.Send(n.Recipient, subject, body); err != nil {
			log.Printf("send notification %s (%s) to %s: %v", n.ID, n.EventType, n.Recipient, err)
			if err := d.Outbox.MarkFailed(ctx, n.ID); err != nil {
				log.Printf("mark failed %s: %v", n.ID, err)
			}
			continue
		}
		if err := d.Outbox.MarkSent(ctx, n.ID); err != nil {
			log.Printf("mark sent %s: %v", n.ID, err)
		}
	}
}

// BuildEmail maps a payload to subject + body. Bodies are a minimal
// rendering of the payload contract; real templating lives outside
// this subsystem.
func BuildEmail(n Notification) (subject, body string, err error) {
	switch n.EventType {
	case EventOrderCreated:
		var p OrderCreatedPayload
		if err := json.Unmarshal(n.Payload, &p); err != nil {
			return "", "", err
		}
		if p.Operator {
			subject = fmt.Sprintf("New order %s", p.OrderNumber)
			body = fmt.Sprintf("Order %s from %s (%s), %d item(s), total %s.",
				p.OrderNumber, p.CustomerName, p.CustomerEmail, p.ItemCount, money(p.TotalMinor))
			return subject, body, nil
		}
		subject = fmt.Sprintf("Order confirmation %s", p.OrderNumber)
		body = fmt.Sprintf("Hi %s, thanks for your order %s. %d item(s), total %s.",
			p.CustomerName, p.OrderNumber, p.ItemCount, money(p.TotalMinor))
		return subject, body, nil

	case EventOrderStatusChanged:
		var p OrderStatusChangedPayload
		if err := json.Unmarshal(n.Payload, &p); err != nil {
			return "", "", err
		}
		subject = fmt.Sprintf("Order %s update: %s", p.OrderNumber, p.NewStatus)
		body = fmt.Sprintf("Hi %s, your order %s is now %s.", p.CustomerName, p.OrderNumber, p.NewStatus)
		if p.TrackingNumber != "" {
			body += fmt.Sprintf(" Tracking: %s (%s).", p.TrackingNumber, p.Carrier)
		}
		return subject, body, nil

	case EventCartReminder:
		var p CartReminderPayload
		if err := json.Unmarshal(n.Payload, &p); err != nil {
			return "", "", err
		}
		subject = "You left something in your basket"
		body = fmt.Sprintf("%d item(s) worth %s are waiting for you. Finish your order: %s",
			len(p.Items), money(p.TotalMinor), p.CheckoutURL)
		return subject, body, nil

	case EventNewsletterWelcome:
		var p NewsletterWelcomePayload
		if err := json.Unmarshal(n.Payload, &p); err != nil {
			return "", "", err
		}
		subject = "Welcome to the newsletter"
		body = "Thanks for subscribing."
		if p.DiscountCode != "" {
			body += fmt.Sprintf(" Here is 10%% off your next order: %s", p.DiscountCode)
		}
		return subject, body, nil
	}
	return "", "", fmt.Errorf("unknown event type %q", n.EventType)
}

func money(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}
