package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/VeloBillHQ/VeloBill/internal/pkg/apperrors"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/cache"
)

// WorkflowRunner triggers the downstream evaluation pipeline for one
// debounced task.
type WorkflowRunner interface {
	RunCodeEvaluation(ctx context.Context, task PendingTask) error
}

// Scheduler debounces bursts of triggers per code into a single
// workflow invocation. Task payload and fire deadline both live in
// Redis, so pending work survives process restarts; the deadline set is
// the durable replacement for a one-shot alarm.
type Scheduler struct {
	client       *redis.Client
	runner       WorkflowRunner
	debounce     time.Duration
	pollInterval time.Duration
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex
	running      bool
}

// NewScheduler creates a scheduler with the default debounce window
func NewScheduler(runner WorkflowRunner) *Scheduler {
	return NewSchedulerWithOptions(runner, cache.GetClient(), DefaultDebounceInterval, time.Second)
}

// NewSchedulerWithOptions creates a scheduler with explicit wiring, used by tests
func NewSchedulerWithOptions(runner WorkflowRunner, client *redis.Client, debounce, pollInterval time.Duration) *Scheduler {
	if debounce <= 0 {
		debounce = DefaultDebounceInterval
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	return &Scheduler{
		client:       client,
		runner:       runner,
		debounce:     debounce,
		pollInterval: pollInterval,
		stopCh:       make(chan struct{}),
	}
}

// Collect durably persists (or overwrites) the pending task for a code
// and arms a fire deadline if none is armed yet. The debounce window is
// fixed: later collects update the payload but never move the deadline.
func (s *Scheduler) Collect(ctx context.Context, task PendingTask) error {
	if task.CodeID == "" {
		return &apperrors.ValidationError{Msg: "task code_id is required"}
	}

	data, err := task.Marshal()
	if err != nil {
		return &apperrors.ValidationError{Msg: "task payload not serializable", Err: err}
	}

	deadline := float64(time.Now().Add(s.debounce).UnixMilli())

	// Overwrite payload and arm the deadline in one round trip. ZAddNX
	// keeps an already-armed deadline untouched (fixed-window debounce).
	pipe := s.client.Pipeline()
	pipe.Set(ctx, taskKey(task.CodeID), data, TaskTTL)
	pipe.ZAddNX(ctx, DeadlineSetKey, redis.Z{Score: deadline, Member: task.CodeID})

	if _, err := pipe.Exec(ctx); err != nil {
		return &apperrors.PersistenceError{Op: "collect " + task.CodeID, Err: err}
	}

	log.Debugf("[Scheduler] Collected task for code %s (deadline armed if new)", task.CodeID)
	return nil
}

// Start starts the dispatcher that fires due deadlines
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.stopCh = make(chan struct{})
	s.running = true
	log.Infof("[Scheduler] Starting dispatcher (debounce=%s, poll=%s)", s.debounce, s.pollInterval)

	s.wg.Add(1)
	go s.dispatcher()
}

// Stop stops the dispatcher and waits for in-flight firings
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	log.Info("[Scheduler] Stopping dispatcher...")
	close(s.stopCh)
	s.running = false
	s.wg.Wait()
	log.Info("[Scheduler] Dispatcher stopped")
}

// IsRunning returns whether the dispatcher is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// dispatcher polls the deadline set and fires due entities
func (s *Scheduler) dispatcher() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	ctx := context.Background()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.fireDue(ctx)
		}
	}
}

// fireDue claims and fires every deadline that has passed. Claiming is
// a ZRem per member, so even with several dispatcher processes exactly
// one of them runs a given firing.
func (s *Scheduler) fireDue(ctx context.Context) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := s.client.ZRangeByScore(ctx, DeadlineSetKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: 100,
	}).Result()
	if err != nil {
		log.Errorf("[Scheduler] Deadline scan error: %v", err)
		return
	}

	for _, codeID := range due {
		removed, err := s.client.ZRem(ctx, DeadlineSetKey, codeID).Result()
		if err != nil {
			log.Errorf("[Scheduler] Failed to claim deadline for %s: %v", codeID, err)
			continue
		}
		if removed == 0 {
			// Another dispatcher claimed this firing
			continue
		}
		s.fire(ctx, codeID)
	}
}

// fire runs one timer firing for a code. A missing task means the work
// was already handled (raced cleanup) and the firing is a no-op. On
// workflow failure the task is kept and the deadline re-armed so the
// payload is delayed, not lost.
func (s *Scheduler) fire(ctx context.Context, codeID string) {
	data, err := s.client.Get(ctx, taskKey(codeID)).Result()
	if err == redis.Nil {
		log.Infof("[Scheduler] No pending task for code %s, skipping firing", codeID)
		return
	}
	if err != nil {
		log.Errorf("[Scheduler] Failed to read task for %s: %v", codeID, err)
		s.rearm(ctx, codeID, FireRetryDelay)
		return
	}

	task, err := UnmarshalPendingTask([]byte(data))
	if err != nil {
		// Unreadable payload can never fire; drop it instead of looping
		log.Errorf("[Scheduler] Dropping unreadable task for %s: %v", codeID, err)
		_ = s.client.Del(ctx, taskKey(codeID)).Err()
		return
	}

	log.Infof("[Scheduler] Firing evaluation workflow for code %s", codeID)
	if err := s.runner.RunCodeEvaluation(ctx, *task); err != nil {
		log.Errorf("[Scheduler] Workflow invocation failed for code %s: %v", codeID, err)
		s.rearm(ctx, codeID, FireRetryDelay)
		return
	}

	released, err := releaseTaskScript.Run(ctx, s.client, []string{taskKey(codeID)}, data).Int()
	if err != nil {
		log.Errorf("[Scheduler] Failed to release handed-off task for %s: %v", codeID, err)
		return
	}
	if released == 0 {
		log.Infof("[Scheduler] New payload collected for code %s during the firing, kept for its deadline", codeID)
		return
	}
	log.Infof("[Scheduler] Workflow handed off for code %s", codeID)
}

// releaseTaskScript deletes the task key only while it still holds the
// payload that was handed off. A payload collected while the workflow
// was running stays put, together with the deadline its Collect armed.
var releaseTaskScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// rearm schedules a retry firing after delay, keeping the task payload
func (s *Scheduler) rearm(ctx context.Context, codeID string, delay time.Duration) {
	score := float64(time.Now().Add(delay).UnixMilli())
	if err := s.client.ZAdd(ctx, DeadlineSetKey, redis.Z{Score: score, Member: codeID}).Err(); err != nil {
		log.Errorf("[Scheduler] Failed to re-arm deadline for %s: %v", codeID, err)
	}
}
