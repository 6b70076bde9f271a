package models_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/theblitlabs/csvtrain/internal/models"
)

func TestNewTrainingRun(t *testing.T) {
	run := models.NewTrainingRun("train", "birds.csv")
	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.Equal(t, "train", run.Command)
	assert.False(t, run.CreatedAt.IsZero())
	assert.NoError(t, run.Validate())
}

func TestTrainingRunValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *models.TrainingRun)
		wantErr bool
	}{
		{name: "valid run", mutate: func(r *models.TrainingRun) { r.Rows, r.TrainRows, r.TestRows = 10, 8, 2 }},
		{name: "missing id", mutate: func(r *models.TrainingRun) { r.ID = uuid.Nil }, wantErr: true},
		{name: "missing command", mutate: func(r *models.TrainingRun) { r.Command = "" }, wantErr: true},
		{name: "missing source", mutate: func(r *models.TrainingRun) { r.Source = "" }, wantErr: true},
		{name: "split exceeds rows", mutate: func(r *models.TrainingRun) { r.Rows, r.TrainRows, r.TestRows = 5, 4, 2 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := models.NewTrainingRun("train-encoded", "birds.csv")
			tt.mutate(run)
			err := run.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
