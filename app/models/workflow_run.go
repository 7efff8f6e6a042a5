package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	WorkflowRunStatusRunning   = "running"
	WorkflowRunStatusCompleted = "completed"
	WorkflowRunStatusFailed    = "failed"
)

// WorkflowRun tracks one execution of a step pipeline. Failed runs stay
// in the table so an operator can inspect and replay them.
type WorkflowRun struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Pipeline    string     `gorm:"type:varchar(100);not null;index" json:"pipeline"`
	EntityID    string     `gorm:"type:varchar(36);not null;index" json:"entity_id"`
	Status      string     `gorm:"type:varchar(20);not null;default:'running';index" json:"status"`
	FailedStep  string     `gorm:"type:varchar(100)" json:"failed_step"`
	ErrorMsg    string     `gorm:"type:text" json:"error_msg"`
	StartedAt   time.Time  `gorm:"autoCreateTime" json:"started_at"`
	CompletedAt *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
}

// WorkflowStepRun is the durable checkpoint for one completed step of a
// run. Its presence means the step succeeded and must not run again;
// the recorded result is reused on resumption.
type WorkflowStepRun struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RunID      string    `gorm:"type:varchar(36);not null;index:ux_workflow_step_runs_run_step,unique,priority:1" json:"run_id"`
	StepName   string    `gorm:"type:varchar(100);not null;index:ux_workflow_step_runs_run_step,unique,priority:2" json:"step_name"`
	ResultJSON string    `gorm:"type:text" json:"result_json"`
	Attempts   int       `gorm:"not null;default:1" json:"attempts"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// FindWorkflowRunByID loads a run by primary key
func FindWorkflowRunByID(db *gorm.DB, id string) (*WorkflowRun, error) {
	var run WorkflowRun
	if err := db.Where("id = ?", id).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}
