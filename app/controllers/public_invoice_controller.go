package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/VeloBillHQ/VeloBill/app/models"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/apperrors"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/database"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/env"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/manager"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/payments"
)

var validate = validator.New()

// HandlePublicInvoiceView serves an invoice to its public token holder.
// The first view moves a sent invoice to viewed and records the audit
// event; later views change nothing.
func HandlePublicInvoiceView(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Params("token"))
	db := database.GetDB()

	invoice, err := models.FindInvoiceByPublicToken(db, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "invoice_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "invoice_lookup_failed"})
	}

	recordFirstView(db, invoice)

	client, err := models.FindClientByID(db, invoice.ClientID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "client_lookup_failed"})
	}
	settings, err := models.LoadBusinessSettings(db, invoice.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "settings_lookup_failed"})
	}

	return c.JSON(fiber.Map{
		"invoice": invoice,
		"client": fiber.Map{
			"name":    client.Name,
			"company": client.Company,
		},
		"business_name": settings.GetBusinessName(),
	})
}

// recordFirstView flips sent to viewed exactly once. The conditional
// update is the guard: only the request that wins the transition also
// writes the audit row.
func recordFirstView(db *gorm.DB, invoice *models.Invoice) {
	res := db.Model(&models.Invoice{}).
		Where("id = ? AND status = ?", invoice.ID, models.InvoiceStatusSent).
		Update("status", models.InvoiceStatusViewed)
	if res.Error != nil {
		log.Errorf("[PublicInvoice] Failed to mark invoice %s viewed: %v", invoice.ID, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		return
	}
	invoice.Status = models.InvoiceStatusViewed

	metadata, _ := json.Marshal(map[string]string{"source": "public_link"})
	event := &models.InvoiceEvent{
		ID:        uuid.New().String(),
		InvoiceID: invoice.ID,
		EventType: models.InvoiceEventViewed,
		Metadata:  string(metadata),
	}
	if err := db.Create(event).Error; err != nil {
		log.Errorf("[PublicInvoice] Failed to record viewed event for invoice %s: %v", invoice.ID, err)
	}
}

type payRequest struct {
	SuccessURL string `json:"success_url" validate:"omitempty,url"`
	CancelURL  string `json:"cancel_url" validate:"omitempty,url"`
}

// HandlePublicInvoicePay starts a hosted checkout for an open invoice
// and returns the redirect URL.
func HandlePublicInvoicePay(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Params("token"))
	db := database.GetDB()

	invoice, err := models.FindInvoiceByPublicToken(db, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "invoice_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "invoice_lookup_failed"})
	}
	if invoice.IsTerminal() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "invoice_not_payable", "status": invoice.Status})
	}

	var req payRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
		}
		if err := validate.Struct(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
		}
	}

	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	successURL := req.SuccessURL
	if successURL == "" {
		successURL = base + "/invoice/" + token + "?paid=1"
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = base + "/invoice/" + token
	}

	client, err := models.FindClientByID(db, invoice.ClientID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "client_lookup_failed"})
	}

	svc := manager.GetManager().PaymentService()
	provider := payments.NewStripeClientFromEnv()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	session, err := svc.StartCheckout(ctx, provider, invoice, client, successURL, cancelURL)
	if err != nil {
		var validationErr *apperrors.ValidationError
		if errors.As(err, &validationErr) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "invoice_not_payable"})
		}
		var externalErr *apperrors.ExternalServiceError
		if errors.As(err, &externalErr) {
			log.Errorf("[PublicInvoice] Checkout create failed for invoice %s: %v", invoice.ID, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "checkout_unavailable"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "checkout_failed"})
	}

	return c.JSON(fiber.Map{
		"checkout_url": session.URL,
		"session_id":   session.ID,
	})
}
