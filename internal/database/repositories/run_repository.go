package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/theblitlabs/csvtrain/internal/models"
)

var (
	ErrRunNotFound = errors.New("training run not found")
)

const createRunsTable = `
	CREATE TABLE IF NOT EXISTS training_runs (
		id            UUID PRIMARY KEY,
		command       TEXT NOT NULL,
		source        TEXT NOT NULL,
		model         TEXT NOT NULL,
		artifact_path TEXT NOT NULL,
		artifact_cid  TEXT NOT NULL DEFAULT '',
		rows          INTEGER NOT NULL,
		train_rows    INTEGER NOT NULL,
		test_rows     INTEGER NOT NULL,
		features      INTEGER NOT NULL,
		train_loss    DOUBLE PRECISION NOT NULL,
		val_loss      DOUBLE PRECISION NOT NULL,
		test_mse      DOUBLE PRECISION NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL
	)
`

const runColumns = `id, command, source, model, artifact_path, artifact_cid,
	rows, train_rows, test_rows, features,
	train_loss, val_loss, test_mse, created_at`

type RunRepository struct {
	db *sqlx.DB
}

func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// EnsureSchema creates the training_runs table when it does not exist.
func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createRunsTable); err != nil {
		return fmt.Errorf("failed to create training_runs table: %w", err)
	}
	return nil
}

func (r *RunRepository) Create(ctx context.Context, run *models.TrainingRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid training run: %w", err)
	}

	query := `
		INSERT INTO training_runs (` + runColumns + `)
		VALUES (
			:id, :command, :source, :model, :artifact_path, :artifact_cid,
			:rows, :train_rows, :test_rows, :features,
			:train_loss, :val_loss, :test_mse, :created_at
		)
	`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("failed to insert training run: %w", err)
	}
	return nil
}

func (r *RunRepository) Get(ctx context.Context, id uuid.UUID) (*models.TrainingRun, error) {
	var run models.TrainingRun
	query := `SELECT ` + runColumns + ` FROM training_runs WHERE id = $1`

	err := r.db.GetContext(ctx, &run, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return &run, nil
}

// List returns the most recent runs first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]models.TrainingRun, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	runs := []models.TrainingRun{}
	query := `SELECT ` + runColumns + ` FROM training_runs ORDER BY created_at DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list training runs: %w", err)
	}
	return runs, nil
}
