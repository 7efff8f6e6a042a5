package analytics

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/VeloBillHQ/VeloBill/internal/pkg/cache"
)

const (
	invoicesPaidKey  = "analytics:counters:invoices_paid"
	revenueKey       = "analytics:counters:revenue"
	remindersSentKey = "analytics:counters:reminders_sent"

	DefaultFlushInterval = time.Minute
)

// Tracker accumulates per-user billing counters in Redis hashes and
// periodically flushes them to MySQL in one batched statement per
// counter. Tracking is fire-and-forget: a Redis hiccup loses a tick,
// never a request.
type Tracker struct {
	client *redis.Client
	db     *gorm.DB

	flushInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
}

// NewTracker creates a tracker on the shared cache client
func NewTracker(db *gorm.DB) *Tracker {
	return NewTrackerWithClient(db, cache.GetClient(), DefaultFlushInterval)
}

// NewTrackerWithClient creates a tracker with explicit wiring, used by tests
func NewTrackerWithClient(db *gorm.DB, client *redis.Client, flushInterval time.Duration) *Tracker {
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	return &Tracker{
		client:        client,
		db:            db,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
	}
}

// TrackInvoicePaid counts one paid invoice and its revenue for a user
func (t *Tracker) TrackInvoicePaid(userID string, amount int64) {
	ctx := context.Background()
	pipe := t.client.Pipeline()
	pipe.HIncrBy(ctx, invoicesPaidKey, userID, 1)
	pipe.HIncrBy(ctx, revenueKey, userID, amount)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Errorf("[Analytics] Failed to track invoice_paid for user %s: %v", userID, err)
	}
}

// TrackReminderSent counts one sent reminder for a user
func (t *Tracker) TrackReminderSent(userID string) {
	ctx := context.Background()
	if err := t.client.HIncrBy(ctx, remindersSentKey, userID, 1).Err(); err != nil {
		log.Errorf("[Analytics] Failed to track reminder_sent for user %s: %v", userID, err)
	}
}

// Start starts the periodic flush loop
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return
	}

	t.stopCh = make(chan struct{})
	t.running = true
	log.Infof("[Analytics] Starting flusher (interval %s)", t.flushInterval)

	t.wg.Add(1)
	go t.loop()
}

// Stop stops the flush loop after a final flush
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return
	}

	log.Info("[Analytics] Stopping flusher...")
	close(t.stopCh)
	t.running = false
	t.wg.Wait()
	if err := t.FlushAll(); err != nil {
		log.Errorf("[Analytics] Final flush failed: %v", err)
	}
	log.Info("[Analytics] Flusher stopped")
}

// IsRunning returns whether the flush loop is active
func (t *Tracker) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Tracker) loop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			if err := t.FlushAll(); err != nil {
				log.Errorf("[Analytics] Flush failed: %v", err)
			}
		}
	}
}

// FlushAll drains every counter hash into the user_stats table
func (t *Tracker) FlushAll() error {
	if err := t.flushHashToColumn(invoicesPaidKey, "invoices_paid"); err != nil {
		return err
	}
	if err := t.flushHashToColumn(revenueKey, "revenue_total"); err != nil {
		return err
	}
	return t.flushHashToColumn(remindersSentKey, "reminders_sent")
}

// flushHashToColumn drains one Redis hash atomically and applies the
// increments as a batched upsert. RENAME moves the hash to a temp key
// first so in-flight increments land in the next flush instead of
// being lost.
func (t *Tracker) flushHashToColumn(redisKey, column string) error {
	ctx := context.Background()

	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := t.client.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// Missing key means nothing accumulated since the last flush
		if err == redis.Nil || strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		return err
	}
	defer t.client.Del(ctx, tmpKey)

	data, err := t.client.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}

	type pair struct {
		userID string
		inc    int64
	}
	pairs := make([]pair, 0, len(data))
	for userID, v := range data {
		inc, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil || inc == 0 {
			continue
		}
		pairs = append(pairs, pair{userID: userID, inc: inc})
	}
	if len(pairs) == 0 {
		return nil
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].userID < pairs[j].userID })

	// INSERT .. ON DUPLICATE KEY UPDATE so first-time users get a row
	// and existing rows accumulate
	var builder strings.Builder
	args := make([]interface{}, 0, len(pairs)*2)
	builder.WriteString("INSERT INTO user_stats (user_id, ")
	builder.WriteString(column)
	builder.WriteString(") VALUES ")
	for i, p := range pairs {
		if i > 0 {
			builder.WriteString(",")
		}
		builder.WriteString("(?,?)")
		args = append(args, p.userID, p.inc)
	}
	builder.WriteString(" ON DUPLICATE KEY UPDATE ")
	builder.WriteString(column)
	builder.WriteString(" = ")
	builder.WriteString(column)
	builder.WriteString(" + VALUES(")
	builder.WriteString(column)
	builder.WriteString(")")

	return t.db.Exec(builder.String(), args...).Error
}
