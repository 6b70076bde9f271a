package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TrainingRun is one successful training invocation as recorded in the run
// ledger.
type TrainingRun struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Command      string    `json:"command" db:"command"`
	Source       string    `json:"source" db:"source"`
	Model        string    `json:"model" db:"model"`
	ArtifactPath string    `json:"artifact_path" db:"artifact_path"`
	ArtifactCID  string    `json:"artifact_cid,omitempty" db:"artifact_cid"`
	Rows         int       `json:"rows" db:"rows"`
	TrainRows    int       `json:"train_rows" db:"train_rows"`
	TestRows     int       `json:"test_rows" db:"test_rows"`
	Features     int       `json:"features" db:"features"`
	TrainLoss    float64   `json:"train_loss" db:"train_loss"`
	ValLoss      float64   `json:"val_loss" db:"val_loss"`
	TestMSE      float64   `json:"test_mse" db:"test_mse"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

func NewTrainingRun(command, source string) *TrainingRun {
	return &TrainingRun{
		ID:        uuid.New(),
		Command:   command,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate performs basic validation on the run
func (r *TrainingRun) Validate() error {
	if r.ID == uuid.Nil {
		return errors.New("run id is required")
	}
	if r.Command == "" {
		return errors.New("run command is required")
	}
	if r.Source == "" {
		return errors.New("run source is required")
	}
	if r.TrainRows+r.TestRows > r.Rows {
		return fmt.Errorf("split rows (%d + %d) exceed total rows %d", r.TrainRows, r.TestRows, r.Rows)
	}
	return nil
}
