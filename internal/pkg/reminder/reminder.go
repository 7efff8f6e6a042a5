package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/VeloBillHQ/VeloBill/app/models"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/apperrors"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/cache"
)

const (
	// ScheduleKey is the ZSET of pending reminders: member is the
	// invoice id, score the unix time the reminder is due.
	ScheduleKey = "reminders:due"

	DefaultPollInterval = 30 * time.Second
)

// Mailer sends the reminder message
type Mailer interface {
	SendPaymentReminder(toEmail string, invoice *models.Invoice) error
}

// Tracker counts sent reminders. Fire-and-forget.
type Tracker interface {
	TrackReminderSent(userID string)
}

// Store is the persistence surface the sender reads and appends to
type Store interface {
	GetInvoice(invoiceID string) (*models.Invoice, error)
	GetClient(clientID string) (*models.Client, error)
	HasReminderEvent(invoiceID, idempotencyKey string) (bool, error)
	AppendReminderEvent(event *models.InvoiceEvent) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates the gorm-backed reminder store
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) GetInvoice(invoiceID string) (*models.Invoice, error) {
	return models.FindInvoiceByID(s.db, invoiceID)
}

func (s *gormStore) GetClient(clientID string) (*models.Client, error) {
	return models.FindClientByID(s.db, clientID)
}

func (s *gormStore) HasReminderEvent(invoiceID, idempotencyKey string) (bool, error) {
	return models.HasInvoiceEventWithKey(s.db, invoiceID, models.InvoiceEventReminderSent, idempotencyKey)
}

func (s *gormStore) AppendReminderEvent(event *models.InvoiceEvent) error {
	return s.db.Create(event).Error
}

// Sender schedules and delivers payment reminders. At most one
// reminder is pending per invoice; rescheduling moves the due time,
// Cancel drops it. Delivery is suppressed through the invoice audit
// ledger, so a reminder that was already sent for the same occurrence
// is never sent twice even if the schedule entry is replayed.
type Sender struct {
	client  *redis.Client
	store   Store
	mailer  Mailer
	tracker Tracker

	pollInterval time.Duration
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex
	running      bool
}

// NewSender creates a reminder sender on the shared cache client
func NewSender(db *gorm.DB, mailer Mailer, tracker Tracker) *Sender {
	return NewSenderWithClient(NewStore(db), mailer, tracker, cache.GetClient(), DefaultPollInterval)
}

// NewSenderWithClient creates a sender with explicit wiring, used by tests
func NewSenderWithClient(store Store, mailer Mailer, tracker Tracker, client *redis.Client, pollInterval time.Duration) *Sender {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Sender{
		client:       client,
		store:        store,
		mailer:       mailer,
		tracker:      tracker,
		pollInterval: pollInterval,
		stopCh:       make(chan struct{}),
	}
}

// Schedule arms (or moves) the reminder for an invoice
func (s *Sender) Schedule(ctx context.Context, invoiceID string, dueAt time.Time) error {
	if invoiceID == "" {
		return &apperrors.ValidationError{Msg: "invoice id is required"}
	}
	err := s.client.ZAdd(ctx, ScheduleKey, redis.Z{
		Score:  float64(dueAt.Unix()),
		Member: invoiceID,
	}).Err()
	if err != nil {
		return &apperrors.PersistenceError{Op: "schedule reminder", Err: err}
	}
	return nil
}

// Cancel drops the pending reminder for an invoice. Cancelling an
// invoice with no pending reminder is a no-op.
func (s *Sender) Cancel(ctx context.Context, invoiceID string) error {
	if err := s.client.ZRem(ctx, ScheduleKey, invoiceID).Err(); err != nil {
		return &apperrors.PersistenceError{Op: "cancel reminder", Err: err}
	}
	return nil
}

// Start starts the delivery loop
func (s *Sender) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.stopCh = make(chan struct{})
	s.running = true
	log.Info("[Reminder] Starting sender")

	s.wg.Add(1)
	go s.loop()
}

// Stop stops the delivery loop
func (s *Sender) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	log.Info("[Reminder] Stopping sender...")
	close(s.stopCh)
	s.running = false
	s.wg.Wait()
	log.Info("[Reminder] Sender stopped")
}

// IsRunning returns whether the sender loop is active
func (s *Sender) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sender) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sendDue(ctx, time.Now())
		}
	}
}

// sendDue claims and delivers every reminder whose due time has
// passed. Claiming is the ZRem: only the caller that removed the
// member delivers, so concurrent senders never double-send.
func (s *Sender) sendDue(ctx context.Context, now time.Time) {
	due, err := s.client.ZRangeByScore(ctx, ScheduleKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		log.Errorf("[Reminder] Failed to read due reminders: %v", err)
		return
	}

	for _, invoiceID := range due {
		removed, err := s.client.ZRem(ctx, ScheduleKey, invoiceID).Result()
		if err != nil {
			log.Errorf("[Reminder] Failed to claim reminder for invoice %s: %v", invoiceID, err)
			continue
		}
		if removed == 0 {
			continue
		}
		s.deliver(ctx, invoiceID, now)
	}
}

// occurrenceKey identifies one reminder occurrence for suppression.
// Replays of the same occurrence (same invoice, same day) match an
// existing audit row and are skipped.
func occurrenceKey(invoiceID string, now time.Time) string {
	return fmt.Sprintf("reminder:%s:%s", invoiceID, now.Format("2006-01-02"))
}

func (s *Sender) deliver(ctx context.Context, invoiceID string, now time.Time) {
	invoice, err := s.store.GetInvoice(invoiceID)
	if err != nil {
		log.Errorf("[Reminder] Invoice %s lookup failed: %v", invoiceID, err)
		return
	}
	if invoice.IsTerminal() {
		log.Infof("[Reminder] Invoice %s is %s, skipping reminder", invoiceID, invoice.Status)
		return
	}

	key := occurrenceKey(invoiceID, now)
	sent, err := s.store.HasReminderEvent(invoiceID, key)
	if err != nil {
		log.Errorf("[Reminder] Suppression lookup failed for invoice %s: %v", invoiceID, err)
		return
	}
	if sent {
		log.Infof("[Reminder] Reminder %s already sent, suppressed", key)
		return
	}

	client, err := s.store.GetClient(invoice.ClientID)
	if err != nil {
		log.Errorf("[Reminder] Client lookup failed for invoice %s: %v", invoiceID, err)
		return
	}
	if client.Email == "" {
		log.Warnf("[Reminder] Client %s has no email, reminder for invoice %s dropped", client.ID, invoiceID)
		return
	}

	if err := s.mailer.SendPaymentReminder(client.Email, invoice); err != nil {
		log.Errorf("[Reminder] %v", &apperrors.ExternalServiceError{Service: "mail", Err: err})
		// Not recorded as sent; the next scheduled occurrence retries.
		return
	}

	metadata, _ := json.Marshal(map[string]string{
		"idempotency_key": key,
		"sent_to":         client.Email,
	})
	event := &models.InvoiceEvent{
		ID:        uuid.New().String(),
		InvoiceID: invoiceID,
		EventType: models.InvoiceEventReminderSent,
		Metadata:  string(metadata),
	}
	if err := s.store.AppendReminderEvent(event); err != nil {
		log.Errorf("[Reminder] Failed to record reminder event for invoice %s: %v", invoiceID, err)
	}

	if s.tracker != nil {
		s.tracker.TrackReminderSent(invoice.UserID)
	}
	log.Infof("[Reminder] Sent payment reminder for invoice %s to %s", invoiceID, client.Email)
}
