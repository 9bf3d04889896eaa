package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memOutbox implements OutboxSource for testing
type memOutbox struct {
	rows   []Notification
	sent   []string
	failed []string
}

func (m *memOutbox) FetchUnsent(_ context.Context, limit int) ([]Notification, error) {
	var out []Notification
	for _, n := range m.rows {
		if n.SentAt == nil && n.Attempts < maxAttempts {
			out = append(out, n)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memOutbox) MarkSent(_ context.Context, id string) error {
	m.sent = append(m.sent, id)
	for i := range m.rows {
		if m.rows[i].ID == id {
			now := time.Now()
			m.rows[i].SentAt = &now
		}
	}
	return nil
}

func (m *memOutbox) MarkFailed(_ context.Context, id string) error {
	m.failed = append(m.failed, id)
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].Attempts++
		}
	}
	return nil
}

type fakeSender struct {
	sent    []string
	failFor map[string]error
}

func (f *fakeSender) Send(to, subject, _ string) error {
	if err, ok := f.failFor[to]; ok {
		return err
	}
	f.sent = append(f.sent, to+"|"+subject)
	return nil
}

func confirmation(id, to string) Notification {
	return Notification{
		ID:        id,
		EventType: EventOrderCreated,
		Recipient: to,
		Payload: MustMarshal(OrderCreatedPayload{
			OrderNumber: "INF1700000000000", CustomerName: "Ada", CustomerEmail: to,
			ItemCount: 2, TotalMinor: 3900,
		}),
	}
}

func TestProcessBatch_SendsAndMarks(t *testing.T) {
	outbox := &memOutbox{rows: []Notification{confirmation("n1", "ada@example.com")}}
	sender := &fakeSender{}
	d := NewDispatcher(outbox, sender, time.Second)

	d.ProcessBatch(context.Background())

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "Order confirmation INF1700000000000")
	assert.Equal(t, []string{"n1"}, outbox.sent)
	assert.Empty(t, outbox.failed)
}

func TestProcessBatch_FailureDoesNotBlockOthers(t *testing.T) {
	outbox := &memOutbox{rows: []Notification{
		confirmation("n1", "down@example.com"),
		confirmation("n2", "ok@example.com"),
	}}
	sender := &fakeSender{failFor: map[string]error{"down@example.com": errors.New("smtp 550")}}
	d := NewDispatcher(outbox, sender, time.Second)

	d.ProcessBatch(context.Background())

	assert.Equal(t, []string{"n1"}, outbox.failed)
	assert.Equal(t, []string{"n2"}, outbox.sent)
	require.Len(t, sender.sent, 1)
}

func TestProcessBatch_RetriesUntilAttemptCap(t *testing.T) {
	outbox := &memOutbox{rows: []Notification{confirmation("n1", "down@example.com")}}
	sender := &fakeSender{failFor: map[string]error{"down@example.com": errors.New("smtp timeout")}}
	d := NewDispatcher(outbox, sender, time.Second)

	for i := 0; i < maxAttempts+3; i++ {
		d.ProcessBatch(context.Background())
	}

	assert.Len(t, outbox.failed, maxAttempts, "row stops being picked up at the cap")
	assert.Empty(t, outbox.sent)
}

func TestBuildEmail_AllEvents(t *testing.T) {
	cases := []struct {
		name        string
		n           Notification
		wantSubject string
		wantInBody  string
	}{
		{
			name:        "customer confirmation",
			n:           confirmation("n1", "ada@example.com"),
			wantSubject: "Order confirmation INF1700000000000",
			wantInBody:  "total 39.00",
		},
		{
			name: "operator alert",
			n: Notification{EventType: EventOrderCreated, Payload: MustMarshal(OrderCreatedPayload{
				OrderNumber: "INF1", CustomerName: "Ada", CustomerEmail: "a@b.c", ItemCount: 1, TotalMinor: 100, Operator: true,
			})},
			wantSubject: "New order INF1",
			wantInBody:  "a@b.c",
		},
		{
			name: "status change with tracking",
			n: Notification{EventType: EventOrderStatusChanged, Payload: MustMarshal(OrderStatusChangedPayload{
				OrderNumber: "INF1", CustomerName: "Ada", NewStatus: "shipped", TrackingNumber: "TRK9", Carrier: "royal-mail",
			})},
			wantSubject: "Order INF1 update: shipped",
			wantInBody:  "TRK9",
		},
		{
			name: "cart reminder",
			n: Notification{EventType: EventCartReminder, Payload: MustMarshal(CartReminderPayload{
				SessionID: "sess-1", TotalMinor: 4000, CheckoutURL: "https://shop/checkout?session=sess-1",
			})},
			wantSubject: "You left something in your basket",
			wantInBody:  "https://shop/checkout?session=sess-1",
		},
		{
			name: "newsletter welcome with code",
			n: Notification{EventType: EventNewsletterWelcome, Payload: MustMarshal(NewsletterWelcomePayload{
				Email: "ada@example.com", DiscountCode: "WELCOME-AB12CD34",
			})},
			wantSubject: "Welcome to the newsletter",
			wantInBody:  "WELCOME-AB12CD34",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			subject, body, err := BuildEmail(c.n)
			require.NoError(t, err)
			assert.Equal(t, c.wantSubject, subject)
			assert.Contains(t, body, c.wantInBody)
		})
	}
}

func TestBuildEmail_UnknownEvent(t *testing.T) {
	_, _, err := BuildEmail(Notification{EventType: "bogus"})
	assert.Error(t, err)
}
