package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/VeloBillHQ/VeloBill/app/models"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/database"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/manager"
)

type reminderRequest struct {
	DueAt time.Time `json:"due_at"`
}

// HandleScheduleReminder arms (or moves) the payment reminder for an
// invoice. One reminder is pending per invoice at a time.
func HandleScheduleReminder(c *fiber.Ctx) error {
	invoiceID := strings.TrimSpace(c.Params("id"))
	db := database.GetDB()

	invoice, err := models.FindInvoiceByID(db, invoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "invoice_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "invoice_lookup_failed"})
	}
	if invoice.IsTerminal() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "invoice_not_open", "status": invoice.Status})
	}

	var req reminderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}
	dueAt := req.DueAt
	if dueAt.IsZero() {
		// Default: nudge tomorrow
		dueAt = time.Now().Add(24 * time.Hour)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := manager.GetManager().Reminders().Schedule(ctx, invoiceID, dueAt); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "schedule_failed"})
	}

	return c.JSON(fiber.Map{"scheduled": true, "due_at": dueAt})
}

// HandleCancelReminder drops the pending reminder for an invoice
func HandleCancelReminder(c *fiber.Ctx) error {
	invoiceID := strings.TrimSpace(c.Params("id"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := manager.GetManager().Reminders().Cancel(ctx, invoiceID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cancel_failed"})
	}

	return c.JSON(fiber.Map{"cancelled": true})
}
