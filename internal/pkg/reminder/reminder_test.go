package reminder

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/VeloBillHQ/VeloBill/app/models"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/apperrors"
)

func testRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 11})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping: redis not reachable at %s: %v", addr, err)
	}

	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func TestOccurrenceKey(t *testing.T) {
	at := time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, "reminder:inv-1:2026-09-01", occurrenceKey("inv-1", at))

	// Same day, different hour: same occurrence
	later := at.Add(5 * time.Hour)
	assert.Equal(t, occurrenceKey("inv-1", at), occurrenceKey("inv-1", later))

	// Next day: new occurrence
	nextDay := at.Add(24 * time.Hour)
	assert.NotEqual(t, occurrenceKey("inv-1", at), occurrenceKey("inv-1", nextDay))
}

func TestScheduleRequiresInvoiceID(t *testing.T) {
	s := NewSenderWithClient(nil, nil, nil, nil, time.Second)

	err := s.Schedule(context.Background(), "", time.Now())
	require.Error(t, err)

	var validationErr *apperrors.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestScheduleAndCancel(t *testing.T) {
	client := testRedisClient(t)
	s := NewSenderWithClient(nil, nil, nil, client, time.Second)
	ctx := context.Background()

	dueAt := time.Now().Add(time.Hour)
	require.NoError(t, s.Schedule(ctx, "inv-1", dueAt))

	score, err := client.ZScore(ctx, ScheduleKey, "inv-1").Result()
	require.NoError(t, err)
	assert.Equal(t, float64(dueAt.Unix()), score)

	// Rescheduling moves the due time
	movedTo := dueAt.Add(2 * time.Hour)
	require.NoError(t, s.Schedule(ctx, "inv-1", movedTo))
	score, err = client.ZScore(ctx, ScheduleKey, "inv-1").Result()
	require.NoError(t, err)
	assert.Equal(t, float64(movedTo.Unix()), score)

	count, _ := client.ZCard(ctx, ScheduleKey).Result()
	assert.Equal(t, int64(1), count, "one pending reminder per invoice")

	require.NoError(t, s.Cancel(ctx, "inv-1"))
	_, err = client.ZScore(ctx, ScheduleKey, "inv-1").Result()
	assert.Equal(t, redis.Nil, err)

	// Cancelling again is a no-op
	require.NoError(t, s.Cancel(ctx, "inv-1"))
}

type fakeStore struct {
	invoices map[string]*models.Invoice
	clients  map[string]*models.Client
	events   []*models.InvoiceEvent
}

func (s *fakeStore) GetInvoice(invoiceID string) (*models.Invoice, error) {
	if inv, ok := s.invoices[invoiceID]; ok {
		return inv, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStore) GetClient(clientID string) (*models.Client, error) {
	if cl, ok := s.clients[clientID]; ok {
		return cl, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStore) HasReminderEvent(invoiceID, idempotencyKey string) (bool, error) {
	for _, e := range s.events {
		if e.InvoiceID == invoiceID && strings.Contains(e.Metadata, idempotencyKey) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) AppendReminderEvent(event *models.InvoiceEvent) error {
	s.events = append(s.events, event)
	return nil
}

type fakeMailer struct {
	sent []string
	err  error
}

func (m *fakeMailer) SendPaymentReminder(toEmail string, invoice *models.Invoice) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, toEmail)
	return nil
}

type fakeTracker struct {
	count int
}

func (tr *fakeTracker) TrackReminderSent(userID string) { tr.count++ }

func newDeliveryFixture() (*Sender, *fakeStore, *fakeMailer, *fakeTracker) {
	store := &fakeStore{
		invoices: map[string]*models.Invoice{
			"inv-1": {
				ID:            "inv-1",
				UserID:        "user-1",
				ClientID:      "cl-1",
				InvoiceNumber: "INV-0001",
				Status:        models.InvoiceStatusSent,
				Currency:      "USD",
				Total:         5000,
			},
		},
		clients: map[string]*models.Client{
			"cl-1": {ID: "cl-1", Email: "client@acme.test"},
		},
	}
	mailer := &fakeMailer{}
	tracker := &fakeTracker{}
	return NewSenderWithClient(store, mailer, tracker, nil, time.Second), store, mailer, tracker
}

func TestDeliverSuppressesDuplicateOccurrence(t *testing.T) {
	s, store, mailer, tracker := newDeliveryFixture()
	now := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

	s.deliver(context.Background(), "inv-1", now)
	require.Len(t, mailer.sent, 1)
	require.Len(t, store.events, 1)
	assert.Equal(t, models.InvoiceEventReminderSent, store.events[0].EventType)
	assert.Contains(t, store.events[0].Metadata, occurrenceKey("inv-1", now))

	// Replaying the same occurrence later the same day sends nothing
	// and appends nothing
	s.deliver(context.Background(), "inv-1", now.Add(3*time.Hour))
	assert.Len(t, mailer.sent, 1)
	assert.Len(t, store.events, 1)
	assert.Equal(t, 1, tracker.count)
}

func TestDeliverSkipsTerminalInvoice(t *testing.T) {
	s, store, mailer, _ := newDeliveryFixture()
	store.invoices["inv-1"].Status = models.InvoiceStatusPaid

	s.deliver(context.Background(), "inv-1", time.Now())
	assert.Empty(t, mailer.sent)
	assert.Empty(t, store.events)
}

func TestDeliverMailFailureIsNotRecorded(t *testing.T) {
	s, store, mailer, tracker := newDeliveryFixture()
	mailer.err = errors.New("smtp down")
	now := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

	s.deliver(context.Background(), "inv-1", now)
	assert.Empty(t, store.events, "failed send must not claim the occurrence")
	assert.Zero(t, tracker.count)

	// The next attempt for the same occurrence goes through
	mailer.err = nil
	s.deliver(context.Background(), "inv-1", now)
	assert.Len(t, mailer.sent, 1)
	assert.Len(t, store.events, 1)
	assert.Equal(t, 1, tracker.count)
}

func TestDueSelection(t *testing.T) {
	client := testRedisClient(t)
	s := NewSenderWithClient(nil, nil, nil, client, time.Second)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, s.Schedule(ctx, "inv-due", now.Add(-time.Minute)))
	require.NoError(t, s.Schedule(ctx, "inv-future", now.Add(time.Hour)))

	due, err := client.ZRangeByScore(ctx, ScheduleKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"inv-due"}, due)
}
