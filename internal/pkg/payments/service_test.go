package payments

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/VeloBillHQ/VeloBill/app/models"
)

// fakeRepository is an in-memory Repository for reconciler tests
type fakeRepository struct {
	payments       map[string]*models.Payment // by id
	invoices       map[string]*models.Invoice
	clients        map[string]*models.Client
	invoiceEvents  []*models.InvoiceEvent
	webhookEvents  map[string]*models.PaymentWebhookEvent // by provider event id
	nextWebhookID  uint
	processedCalls []uint
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		payments:      make(map[string]*models.Payment),
		invoices:      make(map[string]*models.Invoice),
		clients:       make(map[string]*models.Client),
		webhookEvents: make(map[string]*models.PaymentWebhookEvent),
	}
}

func (r *fakeRepository) CreatePayment(p *models.Payment) error {
	r.payments[p.ID] = p
	return nil
}

func (r *fakeRepository) GetPaymentByCheckoutSession(sessionID string) (*models.Payment, error) {
	for _, p := range r.payments {
		if p.CheckoutSessionID == sessionID {
			return p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) GetPaymentByIntent(intentID string) (*models.Payment, error) {
	for _, p := range r.payments {
		if p.PaymentIntentID == intentID {
			return p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) MarkPaymentSucceeded(paymentID, intentID string, paidAt time.Time) (bool, error) {
	p, ok := r.payments[paymentID]
	if !ok || p.Status != models.PaymentStatusPending {
		return false, nil
	}
	p.Status = models.PaymentStatusSucceeded
	p.PaymentIntentID = intentID
	p.PaidAt = &paidAt
	return true, nil
}

func (r *fakeRepository) MarkPaymentFailed(paymentID string) (bool, error) {
	p, ok := r.payments[paymentID]
	if !ok || p.Status != models.PaymentStatusPending {
		return false, nil
	}
	p.Status = models.PaymentStatusFailed
	return true, nil
}

func (r *fakeRepository) GetInvoice(invoiceID string) (*models.Invoice, error) {
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return inv, nil
}

func (r *fakeRepository) MarkInvoicePaidWithEvent(invoiceID string, paidAt time.Time, event *models.InvoiceEvent) error {
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if inv.IsTerminal() {
		return nil
	}
	inv.Status = models.InvoiceStatusPaid
	inv.PaidAt = &paidAt
	r.invoiceEvents = append(r.invoiceEvents, event)
	return nil
}

func (r *fakeRepository) AppendInvoiceEvent(event *models.InvoiceEvent) error {
	r.invoiceEvents = append(r.invoiceEvents, event)
	return nil
}

func (r *fakeRepository) GetClient(clientID string) (*models.Client, error) {
	c, ok := r.clients[clientID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}

func (r *fakeRepository) CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	if stored, ok := r.webhookEvents[event.ProviderEventID]; ok {
		return false, stored, nil
	}
	r.nextWebhookID++
	event.ID = r.nextWebhookID
	r.webhookEvents[event.ProviderEventID] = event
	return true, event, nil
}

func (r *fakeRepository) MarkWebhookProcessed(id uint, processingError string) error {
	r.processedCalls = append(r.processedCalls, id)
	return nil
}

func (r *fakeRepository) eventsOfType(eventType string) []*models.InvoiceEvent {
	var out []*models.InvoiceEvent
	for _, e := range r.invoiceEvents {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeHooks struct {
	cancelled []string
	tracked   []string
	receipts  []string
}

func (h *fakeHooks) Cancel(ctx context.Context, invoiceID string) error {
	h.cancelled = append(h.cancelled, invoiceID)
	return nil
}

func (h *fakeHooks) TrackInvoicePaid(userID string, amount int64) {
	h.tracked = append(h.tracked, fmt.Sprintf("%s:%d", userID, amount))
}

func (h *fakeHooks) SendPaymentReceipt(toEmail string, invoice *models.Invoice, payment *models.Payment) error {
	h.receipts = append(h.receipts, toEmail)
	return nil
}

func seedOpenInvoice(repo *fakeRepository) {
	repo.invoices["inv-1"] = &models.Invoice{
		ID:       "inv-1",
		UserID:   "user-1",
		ClientID: "client-1",
		Status:   models.InvoiceStatusSent,
		Total:    5000,
		Currency: "USD",
	}
	repo.clients["client-1"] = &models.Client{ID: "client-1", UserID: "user-1", Name: "Acme", Email: "billing@acme.test"}
	repo.payments["pay-1"] = &models.Payment{
		ID:                "pay-1",
		InvoiceID:         "inv-1",
		CheckoutSessionID: "cs_1",
		Amount:            5000,
		Currency:          "USD",
		Status:            models.PaymentStatusPending,
	}
}

func completedEvent(id string) *Event {
	return &Event{
		ID:     id,
		Type:   EventCheckoutCompleted,
		Object: []byte(`{"id":"cs_1","payment_intent":"pi_1","amount_total":5000}`),
	}
}

func TestApplyCheckoutCompleted(t *testing.T) {
	repo := newFakeRepository()
	seedOpenInvoice(repo)
	hooks := &fakeHooks{}
	svc := NewService(repo).WithHooks(hooks, hooks, hooks)

	require.NoError(t, svc.Apply(context.Background(), completedEvent("evt_1")))

	payment := repo.payments["pay-1"]
	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)
	assert.Equal(t, "pi_1", payment.PaymentIntentID)
	require.NotNil(t, payment.PaidAt)

	invoice := repo.invoices["inv-1"]
	assert.Equal(t, models.InvoiceStatusPaid, invoice.Status)
	require.NotNil(t, invoice.PaidAt)

	paidEvents := repo.eventsOfType(models.InvoiceEventPaid)
	require.Len(t, paidEvents, 1)
	assert.Contains(t, paidEvents[0].Metadata, "pi_1")

	assert.Equal(t, []string{"inv-1"}, hooks.cancelled)
	assert.Equal(t, []string{"user-1:5000"}, hooks.tracked)
	assert.Equal(t, []string{"billing@acme.test"}, hooks.receipts)
}

func TestApplyCheckoutCompletedIsIdempotent(t *testing.T) {
	repo := newFakeRepository()
	seedOpenInvoice(repo)
	hooks := &fakeHooks{}
	svc := NewService(repo).WithHooks(hooks, hooks, hooks)

	require.NoError(t, svc.Apply(context.Background(), completedEvent("evt_1")))
	// Provider redelivers the same logical event
	require.NoError(t, svc.Apply(context.Background(), completedEvent("evt_1_redelivery")))

	assert.Len(t, repo.eventsOfType(models.InvoiceEventPaid), 1, "duplicate delivery must not add audit rows")
	assert.Len(t, hooks.receipts, 1, "duplicate delivery must not re-send the receipt")
	assert.Equal(t, models.PaymentStatusSucceeded, repo.payments["pay-1"].Status)
}

func TestApplyCheckoutCompletedNeverDowngradesFailed(t *testing.T) {
	repo := newFakeRepository()
	seedOpenInvoice(repo)
	repo.payments["pay-1"].Status = models.PaymentStatusFailed
	svc := NewService(repo)

	require.NoError(t, svc.Apply(context.Background(), completedEvent("evt_1")))

	assert.Equal(t, models.PaymentStatusFailed, repo.payments["pay-1"].Status)
	assert.Equal(t, models.InvoiceStatusSent, repo.invoices["inv-1"].Status)
	assert.Empty(t, repo.invoiceEvents)
}

func TestApplyCheckoutCompletedUnknownSession(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)

	// Unknown session is logged and acknowledged, not an error
	require.NoError(t, svc.Apply(context.Background(), completedEvent("evt_1")))
	assert.Empty(t, repo.invoiceEvents)
}

func TestApplyCheckoutExpired(t *testing.T) {
	repo := newFakeRepository()
	seedOpenInvoice(repo)
	svc := NewService(repo)

	event := &Event{ID: "evt_2", Type: EventCheckoutExpired, Object: []byte(`{"id":"cs_1"}`)}
	require.NoError(t, svc.Apply(context.Background(), event))

	assert.Equal(t, models.PaymentStatusFailed, repo.payments["pay-1"].Status)
	// The invoice stays open for a new checkout attempt
	assert.Equal(t, models.InvoiceStatusSent, repo.invoices["inv-1"].Status)
}

func TestApplyPaymentFailed(t *testing.T) {
	repo := newFakeRepository()
	seedOpenInvoice(repo)
	repo.payments["pay-1"].PaymentIntentID = "pi_1"
	svc := NewService(repo)

	event := &Event{
		ID:     "evt_3",
		Type:   EventPaymentFailed,
		Object: []byte(`{"id":"pi_1","last_payment_error":{"message":"card declined"}}`),
	}
	require.NoError(t, svc.Apply(context.Background(), event))

	assert.Equal(t, models.PaymentStatusFailed, repo.payments["pay-1"].Status)
	failedEvents := repo.eventsOfType(models.InvoiceEventPaymentFailed)
	require.Len(t, failedEvents, 1)
	assert.Contains(t, failedEvents[0].Metadata, "card declined")
}

func TestApplyUnknownEventKindIsNoOp(t *testing.T) {
	repo := newFakeRepository()
	seedOpenInvoice(repo)
	svc := NewService(repo)

	event := &Event{ID: "evt_4", Type: "customer.created", Object: []byte(`{}`)}
	require.NoError(t, svc.Apply(context.Background(), event))

	assert.Equal(t, models.PaymentStatusPending, repo.payments["pay-1"].Status)
	assert.Empty(t, repo.invoiceEvents)
}

func TestRecordWebhookEventDeduplicates(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	ctx := context.Background()

	in := WebhookEventInput{
		Provider:        ProviderStripe,
		ProviderEventID: "evt_1",
		EventType:       EventCheckoutCompleted,
		PayloadJSON:     "{}",
		SignatureValid:  true,
	}

	created, stored, err := svc.RecordWebhookEvent(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, stored)

	createdAgain, storedAgain, err := svc.RecordWebhookEvent(ctx, in)
	require.NoError(t, err)
	assert.False(t, createdAgain)
	assert.Equal(t, stored.ID, storedAgain.ID)
}

type fakeCheckoutProvider struct {
	lastParams CheckoutParams
	session    *CheckoutSession
	err        error
}

func (p *fakeCheckoutProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	p.lastParams = params
	if p.err != nil {
		return nil, p.err
	}
	return p.session, nil
}

func TestStartCheckout(t *testing.T) {
	repo := newFakeRepository()
	seedOpenInvoice(repo)
	delete(repo.payments, "pay-1")
	svc := NewService(repo)

	provider := &fakeCheckoutProvider{session: &CheckoutSession{ID: "cs_new", URL: "https://pay.test/cs_new"}}
	session, err := svc.StartCheckout(context.Background(), provider, repo.invoices["inv-1"], repo.clients["client-1"],
		"https://velobill.test/ok", "https://velobill.test/cancel")
	require.NoError(t, err)
	assert.Equal(t, "cs_new", session.ID)

	assert.Equal(t, "inv-1", provider.lastParams.InvoiceID)
	assert.Equal(t, int64(5000), provider.lastParams.Amount)
	assert.Equal(t, "billing@acme.test", provider.lastParams.CustomerEmail)

	payment, err := repo.GetPaymentByCheckoutSession("cs_new")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Equal(t, "inv-1", payment.InvoiceID)
}

func TestStartCheckoutRejectsTerminalInvoice(t *testing.T) {
	repo := newFakeRepository()
	seedOpenInvoice(repo)
	repo.invoices["inv-1"].Status = models.InvoiceStatusPaid
	svc := NewService(repo)

	_, err := svc.StartCheckout(context.Background(), &fakeCheckoutProvider{}, repo.invoices["inv-1"], nil, "", "")
	require.Error(t, err)
}
