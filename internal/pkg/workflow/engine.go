package workflow

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/VeloBillHQ/VeloBill/internal/pkg/apperrors"
)

// RetryPolicy controls how often a step body is attempted. The delay
// between attempts is fixed, not exponential.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Step is one named stage of a pipeline. The body receives the run
// payload and returns a JSON result that is checkpointed on success.
type Step struct {
	Name  string
	Retry RetryPolicy
	Body  func(ctx context.Context, payload []byte) ([]byte, error)
}

// CheckpointStore persists run progress. A recorded step result means
// the step succeeded durably and must not execute again.
type CheckpointStore interface {
	BeginRun(runID, pipeline, entityID string) error
	GetStepResult(runID, stepName string) (string, bool, error)
	SaveStepResult(runID, stepName, resultJSON string, attempts int) error
	CompleteRun(runID string) error
	FailRun(runID, stepName string, runErr error) error
}

// StepResult describes one step's outcome within a run
type StepResult struct {
	Name     string `json:"name"`
	Attempts int    `json:"attempts"`
	Resumed  bool   `json:"resumed"`
	Result   string `json:"result"`
}

// RunResult is the per-step detail of one completed run
type RunResult struct {
	RunID string       `json:"run_id"`
	Steps []StepResult `json:"steps"`
}

// Engine executes a fixed, ordered pipeline of steps with per-step
// retry and crash-resumable progress. Step N does not begin until step
// N-1 has durably recorded success.
type Engine struct {
	pipeline string
	steps    []Step
	store    CheckpointStore
	sleep    func(time.Duration) // overridable in tests
}

// NewEngine creates an engine for one named pipeline
func NewEngine(pipeline string, steps []Step, store CheckpointStore) *Engine {
	return &Engine{
		pipeline: pipeline,
		steps:    steps,
		store:    store,
		sleep:    time.Sleep,
	}
}

// Run executes the pipeline against one payload. Re-invoking with the
// same runID after a crash skips steps that already checkpointed and
// resumes at the first incomplete one.
func (e *Engine) Run(ctx context.Context, runID, entityID string, payload []byte) (*RunResult, error) {
	if err := e.store.BeginRun(runID, e.pipeline, entityID); err != nil {
		return nil, &apperrors.PersistenceError{Op: "begin run " + runID, Err: err}
	}

	result := &RunResult{RunID: runID}

	for _, step := range e.steps {
		cached, done, err := e.store.GetStepResult(runID, step.Name)
		if err != nil {
			return nil, &apperrors.PersistenceError{Op: "load checkpoint " + step.Name, Err: err}
		}
		if done {
			log.Infof("[Workflow] Run %s: step %q already completed, reusing result", runID, step.Name)
			result.Steps = append(result.Steps, StepResult{Name: step.Name, Resumed: true, Result: cached})
			continue
		}

		stepResult, attempts, err := e.runStep(ctx, runID, step, payload)
		if err != nil {
			stepErr := &apperrors.StepExecutionError{Step: step.Name, Attempts: attempts, Err: err}
			if ferr := e.store.FailRun(runID, step.Name, stepErr); ferr != nil {
				log.Errorf("[Workflow] Run %s: failed to record run failure: %v", runID, ferr)
			}
			log.Errorf("[Workflow] Run %s failed: %v", runID, stepErr)
			return result, stepErr
		}

		if err := e.store.SaveStepResult(runID, step.Name, string(stepResult), attempts); err != nil {
			// Without a durable checkpoint the next step must not start
			return result, &apperrors.PersistenceError{Op: "checkpoint " + step.Name, Err: err}
		}
		result.Steps = append(result.Steps, StepResult{Name: step.Name, Attempts: attempts, Result: string(stepResult)})
	}

	if err := e.store.CompleteRun(runID); err != nil {
		return result, &apperrors.PersistenceError{Op: "complete run " + runID, Err: err}
	}
	log.Infof("[Workflow] Run %s completed (%d steps)", runID, len(e.steps))
	return result, nil
}

// runStep executes one step body with its retry policy
func (e *Engine) runStep(ctx context.Context, runID string, step Step, payload []byte) ([]byte, int, error) {
	maxAttempts := step.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err := step.Body(ctx, payload)
		if err == nil {
			return out, attempt, nil
		}
		lastErr = err
		log.Warnf("[Workflow] Run %s: step %q attempt %d/%d failed: %v", runID, step.Name, attempt, maxAttempts, err)
		if attempt < maxAttempts {
			e.sleep(step.Retry.Delay)
		}
	}
	return nil, maxAttempts, lastErr
}
