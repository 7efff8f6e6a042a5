package codequeue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/VeloBillHQ/VeloBill/internal/pkg/cache"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/env"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/scheduler"
)

const (
	// Redis keys for the inbound code-event transport
	PendingKey = "codequeue:pending"
	ClaimedKey = "codequeue:claimed"

	DefaultBatchSize = 10
)

// Collector receives validated tasks from the consumer
type Collector interface {
	Collect(ctx context.Context, task scheduler.PendingTask) error
}

// Consumer drains inbound code-event messages in batches, validates
// them, persists the announced code row and hands recognized events to
// the scheduler. Poison messages (unparseable or unknown kind) are
// logged and acknowledged so they never loop; persist and dispatch
// failures are requeued for redelivery.
type Consumer struct {
	client    *redis.Client
	collector Collector
	codes     CodeStore
	batchSize int
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

// NewConsumer creates a consumer reading from the shared cache client
func NewConsumer(collector Collector, codes CodeStore) *Consumer {
	return NewConsumerWithClient(collector, codes, cache.GetClient(), env.GetEnvInt("QUEUE_BATCH_SIZE", DefaultBatchSize))
}

// NewConsumerWithClient creates a consumer with explicit wiring, used by tests
func NewConsumerWithClient(collector Collector, codes CodeStore, client *redis.Client, batchSize int) *Consumer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Consumer{
		client:    client,
		collector: collector,
		codes:     codes,
		batchSize: batchSize,
		stopCh:    make(chan struct{}),
	}
}

// Publish enqueues a raw message for consumption (producer side)
func Publish(ctx context.Context, client *redis.Client, raw []byte) error {
	return client.LPush(ctx, PendingKey, raw).Err()
}

// Start starts the consume loop
func (c *Consumer) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}

	c.stopCh = make(chan struct{})
	c.running = true
	log.Infof("[CodeQueue] Starting consumer (batch size %d)", c.batchSize)

	c.wg.Add(1)
	go c.loop()
}

// Stop stops the consume loop and waits for the current batch
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}

	log.Info("[CodeQueue] Stopping consumer...")
	close(c.stopCh)
	c.running = false
	c.wg.Wait()
	log.Info("[CodeQueue] Consumer stopped")
}

// IsRunning returns whether the consumer is currently running
func (c *Consumer) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Consumer) loop() {
	defer c.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-c.stopCh:
			return
		default:
			batch := c.claimBatch(ctx)
			if len(batch) == 0 {
				continue
			}
			c.ProcessBatch(ctx, batch)
		}
	}
}

// claimBatch moves up to batchSize messages from pending to claimed.
// The blocking pop doubles as the idle wait.
func (c *Consumer) claimBatch(ctx context.Context) []string {
	var batch []string
	for len(batch) < c.batchSize {
		raw, err := c.client.BRPopLPush(ctx, PendingKey, ClaimedKey, time.Second).Result()
		if err != nil {
			if err != redis.Nil {
				log.Errorf("[CodeQueue] Claim error: %v", err)
			}
			break
		}
		batch = append(batch, raw)
	}
	return batch
}

// ProcessBatch handles one claimed batch sequentially
func (c *Consumer) ProcessBatch(ctx context.Context, batch []string) {
	log.Infof("[CodeQueue] Processing %d message(s)", len(batch))

	for _, raw := range batch {
		msg, err := ParseMessage([]byte(raw))
		if err != nil {
			// Poison message: never retried, acknowledged and dropped
			log.Errorf("[CodeQueue] Invalid message dropped: %v (body: %s)", err, raw)
			c.ack(ctx, raw)
			continue
		}

		// The code row must exist before the debounce fires, or the
		// evaluation pipeline has nothing to load.
		if err := c.codes.UpsertCode(ctx, msg); err != nil {
			log.Errorf("[CodeQueue] Failed to persist code %s, requeueing: %v", msg.CodeID, err)
			c.requeue(ctx, raw)
			continue
		}

		if err := c.collector.Collect(ctx, msg.ToPendingTask()); err != nil {
			log.Errorf("[CodeQueue] Dispatch failed for code %s, requeueing: %v", msg.CodeID, err)
			c.requeue(ctx, raw)
			continue
		}

		log.Infof("[CodeQueue] Scheduled evaluation for code %s", msg.CodeID)
		c.ack(ctx, raw)
	}
}

// ack removes a processed message from the claimed list
func (c *Consumer) ack(ctx context.Context, raw string) {
	if err := c.client.LRem(ctx, ClaimedKey, 1, raw).Err(); err != nil {
		log.Errorf("[CodeQueue] Failed to ack message: %v", err)
	}
}

// requeue hands a message back to the transport for redelivery
func (c *Consumer) requeue(ctx context.Context, raw string) {
	pipe := c.client.Pipeline()
	pipe.LRem(ctx, ClaimedKey, 1, raw)
	pipe.RPush(ctx, PendingKey, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Errorf("[CodeQueue] Failed to requeue message: %v", err)
	}
}
