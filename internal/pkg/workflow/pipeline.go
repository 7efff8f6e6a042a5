package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/VeloBillHQ/VeloBill/app/models"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/scheduler"
)

const CodeEvaluationPipelineName = "code_evaluation"

// SummaryGenerator produces the derived evaluation content for a code
type SummaryGenerator interface {
	GenerateSummary(ctx context.Context, code *models.Code) (string, error)
}

// Mailer sends the evaluation notification
type Mailer interface {
	SendMail(to, subject, body string) error
}

// CodeEvaluationPipeline wires the three-step evaluation workflow:
// generate the AI summary, notify the owner, persist the status
// transition. It implements scheduler.WorkflowRunner.
type CodeEvaluationPipeline struct {
	db        *gorm.DB
	generator SummaryGenerator
	mailer    Mailer
	engine    *Engine
}

// NewCodeEvaluationPipeline builds the pipeline with its collaborators
func NewCodeEvaluationPipeline(db *gorm.DB, generator SummaryGenerator, mailer Mailer) *CodeEvaluationPipeline {
	p := &CodeEvaluationPipeline{
		db:        db,
		generator: generator,
		mailer:    mailer,
	}

	steps := []Step{
		{
			Name:  "generate_ai_summary",
			Retry: RetryPolicy{MaxAttempts: 2, Delay: time.Second},
			Body:  p.generateSummaryStep,
		},
		{
			Name:  "send_notification",
			Retry: RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second},
			Body:  p.sendNotificationStep,
		},
		{
			Name:  "persist_status",
			Retry: RetryPolicy{MaxAttempts: 2, Delay: time.Second},
			Body:  p.persistStatusStep,
		},
	}

	p.engine = NewEngine(CodeEvaluationPipelineName, steps, NewCheckpointStore(db))
	return p
}

// RunCodeEvaluation executes (or resumes) the evaluation run for one
// debounced task. An incomplete run for the same code is resumed under
// its original run id so completed steps are not repeated.
func (p *CodeEvaluationPipeline) RunCodeEvaluation(ctx context.Context, task scheduler.PendingTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	runID := p.resumableRunID(task.CodeID)
	log.Infof("[Workflow] Starting code evaluation run %s for code %s", runID, task.CodeID)

	_, err = p.engine.Run(ctx, runID, task.CodeID, payload)
	return err
}

// resumableRunID reuses the id of an unfinished run for this code, if
// any, so a retried firing resumes instead of restarting.
func (p *CodeEvaluationPipeline) resumableRunID(codeID string) string {
	var run models.WorkflowRun
	err := p.db.
		Where("pipeline = ? AND entity_id = ? AND status <> ?",
			CodeEvaluationPipelineName, codeID, models.WorkflowRunStatusCompleted).
		Order("started_at DESC").
		First(&run).Error
	if err == nil {
		return run.ID
	}
	return uuid.New().String()
}

type summaryStepResult struct {
	Summary string `json:"summary"`
}

func (p *CodeEvaluationPipeline) generateSummaryStep(ctx context.Context, payload []byte) ([]byte, error) {
	task, err := decodeTask(payload)
	if err != nil {
		return nil, err
	}

	code, err := p.loadCode(task.CodeID)
	if err != nil {
		return nil, err
	}

	summary, err := p.generator.GenerateSummary(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("summary generation failed: %w", err)
	}

	return json.Marshal(summaryStepResult{Summary: summary})
}

func (p *CodeEvaluationPipeline) sendNotificationStep(ctx context.Context, payload []byte) ([]byte, error) {
	task, err := decodeTask(payload)
	if err != nil {
		return nil, err
	}

	if !task.EmailSend {
		return json.Marshal(map[string]bool{"sent": false})
	}

	user, err := models.FindUserByID(p.db, task.UserID)
	if err != nil {
		return nil, fmt.Errorf("owner lookup failed for user %s: %w", task.UserID, err)
	}

	subject := "Your bike-program code is ready"
	body := fmt.Sprintf("Hi %s,<br><br>the evaluation of your code %s has finished.<br><br>VeloBill", user.Name, task.CodeID)
	if err := p.mailer.SendMail(user.Email, subject, body); err != nil {
		return nil, fmt.Errorf("notification send failed: %w", err)
	}

	return json.Marshal(map[string]bool{"sent": true})
}

func (p *CodeEvaluationPipeline) persistStatusStep(ctx context.Context, payload []byte) ([]byte, error) {
	task, err := decodeTask(payload)
	if err != nil {
		return nil, err
	}

	summary := ""
	// The summary step has already checkpointed; read its result back so
	// the persisted code row carries the generated content.
	if res, done, err := p.engine.store.GetStepResult(p.currentRunID(task.CodeID), "generate_ai_summary"); err == nil && done {
		var sr summaryStepResult
		if json.Unmarshal([]byte(res), &sr) == nil {
			summary = sr.Summary
		}
	}

	if err := models.MarkCodeSuccess(p.db, task.CodeID, summary); err != nil {
		return nil, fmt.Errorf("status persist failed for code %s: %w", task.CodeID, err)
	}
	return json.Marshal(map[string]string{"status": models.CodeStatusSuccess})
}

func (p *CodeEvaluationPipeline) loadCode(codeID string) (*models.Code, error) {
	var code models.Code
	if err := p.db.Where("id = ?", codeID).First(&code).Error; err != nil {
		return nil, fmt.Errorf("code lookup failed for %s: %w", codeID, err)
	}
	return &code, nil
}

func (p *CodeEvaluationPipeline) currentRunID(codeID string) string {
	var run models.WorkflowRun
	err := p.db.
		Where("pipeline = ? AND entity_id = ?", CodeEvaluationPipelineName, codeID).
		Order("started_at DESC").
		First(&run).Error
	if err != nil {
		return ""
	}
	return run.ID
}

func decodeTask(payload []byte) (*scheduler.PendingTask, error) {
	task, err := scheduler.UnmarshalPendingTask(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid run payload: %w", err)
	}
	return task, nil
}
