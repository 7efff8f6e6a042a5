package workflow

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/VeloBillHQ/VeloBill/app/models"
)

type gormCheckpointStore struct {
	db *gorm.DB
}

// NewCheckpointStore creates a checkpoint store backed by GORM
func NewCheckpointStore(db *gorm.DB) CheckpointStore {
	return &gormCheckpointStore{db: db}
}

func (s *gormCheckpointStore) BeginRun(runID, pipeline, entityID string) error {
	run := &models.WorkflowRun{
		ID:       runID,
		Pipeline: pipeline,
		EntityID: entityID,
		Status:   models.WorkflowRunStatusRunning,
	}
	// A resumed run already has its row; keep the original record
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"status": models.WorkflowRunStatusRunning}),
	}).Create(run).Error
}

func (s *gormCheckpointStore) GetStepResult(runID, stepName string) (string, bool, error) {
	var step models.WorkflowStepRun
	err := s.db.Where("run_id = ? AND step_name = ?", runID, stepName).First(&step).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return step.ResultJSON, true, nil
}

func (s *gormCheckpointStore) SaveStepResult(runID, stepName, resultJSON string, attempts int) error {
	step := &models.WorkflowStepRun{
		RunID:      runID,
		StepName:   stepName,
		ResultJSON: resultJSON,
		Attempts:   attempts,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}, {Name: "step_name"}},
		DoNothing: true,
	}).Create(step).Error
}

func (s *gormCheckpointStore) CompleteRun(runID string) error {
	now := time.Now()
	return s.db.Model(&models.WorkflowRun{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"status":       models.WorkflowRunStatusCompleted,
		"completed_at": &now,
	}).Error
}

func (s *gormCheckpointStore) FailRun(runID, stepName string, runErr error) error {
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	now := time.Now()
	return s.db.Model(&models.WorkflowRun{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"status":       models.WorkflowRunStatusFailed,
		"failed_step":  stepName,
		"error_msg":    errMsg,
		"completed_at": &now,
	}).Error
}
