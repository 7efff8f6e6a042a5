package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/VeloBillHQ/VeloBill/app/models"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/apperrors"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/env"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com/v1"

// StripeClient talks to the Stripe REST API. Only the checkout session
// endpoint is used; everything else arrives via webhooks.
type StripeClient struct {
	SecretKey     string
	WebhookSecret string
	APIBaseURL    string

	HTTPClient *http.Client
}

// CheckoutParams describes one hosted checkout session to create.
type CheckoutParams struct {
	InvoiceID     string
	InvoiceNumber string
	ProductName   string
	CustomerEmail string
	Currency      string
	Amount        int64
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is the provider-side session handle.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CheckoutProvider creates hosted checkout sessions.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
}

func NewStripeClientFromEnv() *StripeClient {
	return &StripeClient{
		SecretKey:     strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		WebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		APIBaseURL:    strings.TrimRight(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CreateCheckoutSession creates a single-payment checkout session. The
// invoice id travels in the session metadata so the webhook reconciler
// can map the session back to the ledger.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is not configured")
	}
	if strings.TrimSpace(params.InvoiceID) == "" {
		return nil, errors.New("invoice id is required")
	}
	if params.Amount <= 0 {
		return nil, errors.New("amount must be positive")
	}

	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}
	productName := strings.TrimSpace(params.ProductName)
	if productName == "" {
		productName = "Invoice " + params.InvoiceNumber
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][price_data][currency]", currency)
	form.Set("line_items[0][price_data][product_data][name]", productName)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.Amount, 10))
	form.Set("line_items[0][quantity]", "1")
	form.Set("metadata[invoice_id]", params.InvoiceID)
	form.Set("metadata[invoice_number]", params.InvoiceNumber)
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	if email := strings.TrimSpace(params.CustomerEmail); email != "" {
		form.Set("customer_email", email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &apperrors.ExternalServiceError{Service: "stripe", Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apperrors.ExternalServiceError{
			Service: "stripe",
			Err:     fmt.Errorf("checkout session create failed: status=%d body=%s", resp.StatusCode, string(body)),
		}
	}

	var session CheckoutSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, &apperrors.ExternalServiceError{Service: "stripe", Err: err}
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, &apperrors.ExternalServiceError{Service: "stripe", Err: errors.New("checkout session response has no id")}
	}
	return &session, nil
}

// StartCheckout creates a provider checkout session for an invoice and
// records the matching pending payment row. The payment row is what
// later webhook deliveries reconcile against.
func (s *Service) StartCheckout(ctx context.Context, provider CheckoutProvider, invoice *models.Invoice, client *models.Client, successURL, cancelURL string) (*CheckoutSession, error) {
	if invoice.IsTerminal() {
		return nil, &apperrors.ValidationError{Msg: fmt.Sprintf("invoice %s is %s and cannot be paid", invoice.ID, invoice.Status)}
	}

	params := CheckoutParams{
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		ProductName:   "Invoice " + invoice.InvoiceNumber,
		Currency:      invoice.Currency,
		Amount:        invoice.Total,
		SuccessURL:    successURL,
		CancelURL:     cancelURL,
	}
	if client != nil {
		params.CustomerEmail = client.Email
	}

	session, err := provider.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		ID:                uuid.New().String(),
		InvoiceID:         invoice.ID,
		CheckoutSessionID: session.ID,
		Amount:            invoice.Total,
		Currency:          invoice.Currency,
		Status:            models.PaymentStatusPending,
	}
	if err := s.repo.CreatePayment(payment); err != nil {
		return nil, &apperrors.PersistenceError{Op: "create pending payment", Err: err}
	}
	return session, nil
}
