package payments

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/VeloBillHQ/VeloBill/app/models"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/apperrors"
)

// ReminderCanceller drops pending payment reminders for an invoice.
type ReminderCanceller interface {
	Cancel(ctx context.Context, invoiceID string) error
}

// AnalyticsTracker records reconciliation outcomes. Fire-and-forget.
type AnalyticsTracker interface {
	TrackInvoicePaid(userID string, amount int64)
}

// ReceiptSender mails the payment receipt to the paying client.
type ReceiptSender interface {
	SendPaymentReceipt(toEmail string, invoice *models.Invoice, payment *models.Payment) error
}

// Service reconciles provider payment events against the local invoice
// ledger. The ledger writes are transactional and idempotent; the
// post-commit hooks (reminders, analytics, receipt mail) are best
// effort and never undo committed state.
type Service struct {
	repo      Repository
	reminders ReminderCanceller
	analytics AnalyticsTracker
	receipts  ReceiptSender
}

// NewService creates a payments service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a payments service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// WithHooks attaches the optional post-commit collaborators.
func (s *Service) WithHooks(reminders ReminderCanceller, analytics AnalyticsTracker, receipts ReceiptSender) *Service {
	s.reminders = reminders
	s.analytics = analytics
	s.receipts = receipts
	return s
}

// RecordWebhookEvent persists a delivery exactly once. The bool result
// reports whether this delivery was the first with its provider event
// id; duplicates are acknowledged without reprocessing.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.PaymentWebhookEvent, error) {
	_ = ctx
	event := &models.PaymentWebhookEvent{
		Provider:        in.Provider,
		ProviderEventID: in.ProviderEventID,
		EventType:       in.EventType,
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	created, stored, err := s.repo.CreateWebhookEventIfNotExists(event)
	if err != nil {
		return false, nil, &apperrors.PersistenceError{Op: "record webhook event", Err: err}
	}
	return created, stored, nil
}

// MarkWebhookProcessed stamps the stored delivery with its outcome.
func (s *Service) MarkWebhookProcessed(id uint, processingError string) error {
	return s.repo.MarkWebhookProcessed(id, processingError)
}

// Apply dispatches one decoded event to its handler. Unknown event
// kinds are a deliberate no-op; the delivery is still acknowledged.
func (s *Service) Apply(ctx context.Context, event *Event) error {
	switch event.Type {
	case EventCheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, event)
	case EventCheckoutExpired:
		return s.applyCheckoutExpired(ctx, event)
	case EventPaymentFailed:
		return s.applyPaymentFailed(ctx, event)
	default:
		log.Debugf("[Payments] Ignoring event %s of kind %s", event.ID, event.Type)
		return nil
	}
}

func (s *Service) applyCheckoutCompleted(ctx context.Context, event *Event) error {
	session, err := event.checkoutSession()
	if err != nil {
		return err
	}

	payment, err := s.repo.GetPaymentByCheckoutSession(session.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// A session we never created a payment for. Acknowledge so the
			// provider stops redelivering, but keep it visible in the logs.
			log.Warnf("[Payments] Event %s references unknown checkout session %s", event.ID, session.ID)
			return nil
		}
		return &apperrors.PersistenceError{Op: "load payment by checkout session", Err: err}
	}

	if payment.IsTerminal() {
		log.Infof("[Payments] Payment %s already %s, event %s is a no-op", payment.ID, payment.Status, event.ID)
		return nil
	}

	paidAt := time.Now()
	moved, err := s.repo.MarkPaymentSucceeded(payment.ID, session.PaymentIntent, paidAt)
	if err != nil {
		return &apperrors.PersistenceError{Op: "mark payment succeeded", Err: err}
	}
	if !moved {
		// Lost the race against a concurrent delivery of the same event.
		return nil
	}

	metadata, _ := json.Marshal(map[string]interface{}{
		"payment_id":     payment.ID,
		"payment_intent": session.PaymentIntent,
		"amount":         payment.Amount,
		"provider_event": event.ID,
	})
	auditEvent := &models.InvoiceEvent{
		ID:        uuid.New().String(),
		InvoiceID: payment.InvoiceID,
		EventType: models.InvoiceEventPaid,
		Metadata:  string(metadata),
	}
	if err := s.repo.MarkInvoicePaidWithEvent(payment.InvoiceID, paidAt, auditEvent); err != nil {
		return &apperrors.PersistenceError{Op: "mark invoice paid", Err: err}
	}

	log.Infof("[Payments] Invoice %s paid via session %s", payment.InvoiceID, session.ID)
	s.runPostCommitHooks(ctx, payment, paidAt)
	return nil
}

func (s *Service) applyCheckoutExpired(ctx context.Context, event *Event) error {
	_ = ctx
	session, err := event.checkoutSession()
	if err != nil {
		return err
	}

	payment, err := s.repo.GetPaymentByCheckoutSession(session.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Payments] Event %s references unknown checkout session %s", event.ID, session.ID)
			return nil
		}
		return &apperrors.PersistenceError{Op: "load payment by checkout session", Err: err}
	}

	moved, err := s.repo.MarkPaymentFailed(payment.ID)
	if err != nil {
		return &apperrors.PersistenceError{Op: "mark payment failed", Err: err}
	}
	if moved {
		log.Infof("[Payments] Payment %s expired without completion", payment.ID)
	}
	// The invoice stays open; the client may start a new checkout.
	return nil
}

func (s *Service) applyPaymentFailed(ctx context.Context, event *Event) error {
	_ = ctx
	intent, err := event.paymentIntent()
	if err != nil {
		return err
	}

	payment, err := s.repo.GetPaymentByIntent(intent.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Payments] Event %s references unknown payment intent %s", event.ID, intent.ID)
			return nil
		}
		return &apperrors.PersistenceError{Op: "load payment by intent", Err: err}
	}

	moved, err := s.repo.MarkPaymentFailed(payment.ID)
	if err != nil {
		return &apperrors.PersistenceError{Op: "mark payment failed", Err: err}
	}
	if !moved {
		return nil
	}

	metadata, _ := json.Marshal(map[string]string{
		"payment_id":     payment.ID,
		"payment_intent": intent.ID,
		"failure":        intent.LastPaymentError.Message,
		"provider_event": event.ID,
	})
	auditEvent := &models.InvoiceEvent{
		ID:        uuid.New().String(),
		InvoiceID: payment.InvoiceID,
		EventType: models.InvoiceEventPaymentFailed,
		Metadata:  string(metadata),
	}
	if err := s.repo.AppendInvoiceEvent(auditEvent); err != nil {
		return &apperrors.PersistenceError{Op: "append payment_failed event", Err: err}
	}

	log.Infof("[Payments] Payment %s failed: %s", payment.ID, intent.LastPaymentError.Message)
	return nil
}

// runPostCommitHooks executes the best-effort side effects of a paid
// invoice. Failures are logged as ExternalServiceError and swallowed;
// the ledger commit above is the source of truth.
func (s *Service) runPostCommitHooks(ctx context.Context, payment *models.Payment, paidAt time.Time) {
	invoice, err := s.repo.GetInvoice(payment.InvoiceID)
	if err != nil {
		log.Errorf("[Payments] Post-commit invoice reload failed: %v", err)
		return
	}
	if invoice.PaidAt == nil {
		invoice.PaidAt = &paidAt
	}

	if s.reminders != nil {
		if err := s.reminders.Cancel(ctx, invoice.ID); err != nil {
			log.Errorf("[Payments] %v", &apperrors.ExternalServiceError{Service: "reminder", Err: err})
		}
	}

	if s.analytics != nil {
		s.analytics.TrackInvoicePaid(invoice.UserID, payment.Amount)
	}

	if s.receipts != nil {
		client, err := s.repo.GetClient(invoice.ClientID)
		if err != nil {
			log.Errorf("[Payments] %v", &apperrors.ExternalServiceError{Service: "receipt", Err: err})
			return
		}
		if client.Email == "" {
			return
		}
		if err := s.receipts.SendPaymentReceipt(client.Email, invoice, payment); err != nil {
			log.Errorf("[Payments] %v", &apperrors.ExternalServiceError{Service: "receipt", Err: err})
		}
	}
}
