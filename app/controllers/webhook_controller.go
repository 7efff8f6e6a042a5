package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/VeloBillHQ/VeloBill/internal/pkg/apperrors"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/env"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/manager"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/payments"
)

// HandleStripeWebhook receives provider payment events. The signature
// is checked before anything else touches internal state; deliveries
// that fail it are rejected without being recorded. Valid deliveries
// are persisted exactly once and acknowledged with 200 even when the
// event kind is unknown, so the provider stops redelivering.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	if err := payments.AuthenticateStripeWebhook(rawBody, signature, secret); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	event, err := payments.ParseEvent(rawBody)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	svc := manager.GetManager().PaymentService()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	created, stored, err := svc.RecordWebhookEvent(ctx, payments.WebhookEventInput{
		Provider:        payments.ProviderStripe,
		ProviderEventID: event.ID,
		EventType:       event.Type,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created && stored.ProcessedCleanly() {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
	}
	// A redelivery of an event whose earlier processing never finished
	// cleanly falls through: Apply is idempotent, so re-application is
	// how the provider's retry actually completes the transition.

	applyErr := svc.Apply(ctx, event)
	processingError := ""
	if applyErr != nil {
		processingError = applyErr.Error()
	}
	_ = svc.MarkWebhookProcessed(stored.ID, processingError)

	if applyErr != nil {
		var validationErr *apperrors.ValidationError
		if errors.As(applyErr, &validationErr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		}
		// Persistence trouble: fail the delivery so the provider retries
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_apply_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}
