package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/VeloBillHQ/VeloBill/internal/pkg/cache"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/codequeue"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/manager"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/scheduler"
)

// HandleQueueEnqueue accepts one code-event message for asynchronous
// processing. The message is validated at the ingress so producers get
// immediate feedback; the consumer revalidates anyway since other
// producers write to the same list.
func HandleQueueEnqueue(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	if _, err := codequeue.ParseMessage(rawBody); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_message", "detail": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := codequeue.Publish(ctx, cache.GetClient(), rawBody); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "enqueue_failed"})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"queued": true})
}

// HandleQueueStatus reports queue depths and background component state
func HandleQueueStatus(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := cache.GetClient()

	pending, err := client.LLen(ctx, codequeue.PendingKey).Result()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "status_unavailable"})
	}
	claimed, _ := client.LLen(ctx, codequeue.ClaimedKey).Result()
	armed, _ := client.ZCard(ctx, scheduler.DeadlineSetKey).Result()

	return c.JSON(fiber.Map{
		"pending":         pending,
		"claimed":         claimed,
		"armed_deadlines": armed,
		"components":      manager.GetManager().Status(),
	})
}
