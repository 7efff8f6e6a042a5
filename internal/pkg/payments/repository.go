package payments

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/VeloBillHQ/VeloBill/app/models"
)

// Repository provides DB operations used by the payment reconciler.
type Repository interface {
	CreatePayment(payment *models.Payment) error
	GetPaymentByCheckoutSession(sessionID string) (*models.Payment, error)
	GetPaymentByIntent(intentID string) (*models.Payment, error)
	MarkPaymentSucceeded(paymentID, intentID string, paidAt time.Time) (bool, error)
	MarkPaymentFailed(paymentID string) (bool, error)

	GetInvoice(invoiceID string) (*models.Invoice, error)
	MarkInvoicePaidWithEvent(invoiceID string, paidAt time.Time, event *models.InvoiceEvent) error
	AppendInvoiceEvent(event *models.InvoiceEvent) error

	GetClient(clientID string) (*models.Client, error)

	CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payments repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreatePayment(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

func (r *gormRepository) GetPaymentByCheckoutSession(sessionID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.Where("checkout_session_id = ?", sessionID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *gormRepository) GetPaymentByIntent(intentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.Where("payment_intent_id = ?", intentID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// MarkPaymentSucceeded is a conditional update: only a pending payment
// moves to succeeded, so terminal states are never overwritten even
// under duplicate or out-of-order deliveries. Returns whether this call
// performed the transition.
func (r *gormRepository) MarkPaymentSucceeded(paymentID, intentID string, paidAt time.Time) (bool, error) {
	tx := r.db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":            models.PaymentStatusSucceeded,
			"payment_intent_id": intentID,
			"paid_at":           &paidAt,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) MarkPaymentFailed(paymentID string) (bool, error) {
	tx := r.db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, models.PaymentStatusPending).
		Update("status", models.PaymentStatusFailed)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) GetInvoice(invoiceID string) (*models.Invoice, error) {
	return models.FindInvoiceByID(r.db, invoiceID)
}

// MarkInvoicePaidWithEvent flips the invoice to paid and appends the
// audit event in one transaction, so the ledger never shows a paid
// invoice without its audit row or vice versa.
func (r *gormRepository) MarkInvoicePaidWithEvent(invoiceID string, paidAt time.Time, event *models.InvoiceEvent) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Invoice{}).
			Where("id = ? AND status NOT IN ?", invoiceID, []string{models.InvoiceStatusPaid, models.InvoiceStatusCancelled}).
			Updates(map[string]interface{}{
				"status":  models.InvoiceStatusPaid,
				"paid_at": &paidAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Already terminal; skip the audit row too.
			return nil
		}
		return tx.Create(event).Error
	})
}

func (r *gormRepository) AppendInvoiceEvent(event *models.InvoiceEvent) error {
	return r.db.Create(event).Error
}

func (r *gormRepository) GetClient(clientID string) (*models.Client, error) {
	return models.FindClientByID(r.db, clientID)
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
