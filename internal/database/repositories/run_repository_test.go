package repositories

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/csvtrain/internal/models"
)

var columns = []string{
	"id", "command", "source", "model", "artifact_path", "artifact_cid",
	"rows", "train_rows", "test_rows", "features",
	"train_loss", "val_loss", "test_mse", "created_at",
}

func newMock(t *testing.T) (*RunRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRunRepository(sqlx.NewDb(db, "postgres")), mock
}

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

func sampleRun() *models.TrainingRun {
	run := models.NewTrainingRun("train", "birds.csv")
	run.Model = "mlp"
	run.ArtifactPath = "birds_0123456789ab"
	run.Rows = 100
	run.TrainRows = 80
	run.TestRows = 20
	run.Features = 3
	run.TrainLoss = 1.25
	run.ValLoss = 1.5
	run.TestMSE = 1.5
	return run
}

func runRow(rows *sqlmock.Rows, run *models.TrainingRun) *sqlmock.Rows {
	return rows.AddRow(
		run.ID.String(), run.Command, run.Source, run.Model, run.ArtifactPath, run.ArtifactCID,
		run.Rows, run.TrainRows, run.TestRows, run.Features,
		run.TrainLoss, run.ValLoss, run.TestMSE, run.CreatedAt,
	)
}

func TestRunRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("ensure schema", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS training_runs").
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, repo.EnsureSchema(ctx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("create run", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectExec("INSERT INTO training_runs").
			WithArgs(anyArgs(len(columns))...).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, repo.Create(ctx, sampleRun()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("create invalid run", func(t *testing.T) {
		repo, mock := newMock(t)
		run := sampleRun()
		run.Source = ""

		assert.Error(t, repo.Create(ctx, run))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("create failure", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectExec("INSERT INTO training_runs").
			WithArgs(anyArgs(len(columns))...).
			WillReturnError(errors.New("connection reset"))

		err := repo.Create(ctx, sampleRun())
		assert.ErrorContains(t, err, "connection reset")
	})

	t.Run("get run", func(t *testing.T) {
		repo, mock := newMock(t)
		run := sampleRun()
		run.CreatedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

		mock.ExpectQuery(regexp.QuoteMeta("FROM training_runs WHERE id = $1")).
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(runRow(sqlmock.NewRows(columns), run))

		got, err := repo.Get(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get non-existent run", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM training_runs WHERE id = $1")).
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(columns))

		got, err := repo.Get(ctx, uuid.MustParse("2e445e32-4766-4b08-9e00-bd389f7af972"))
		assert.Equal(t, ErrRunNotFound, err)
		assert.Nil(t, got)
	})

	t.Run("list runs", func(t *testing.T) {
		repo, mock := newMock(t)
		newer, older := sampleRun(), sampleRun()
		newer.CreatedAt = time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
		older.CreatedAt = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

		rows := runRow(runRow(sqlmock.NewRows(columns), newer), older)
		mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC LIMIT $1")).
			WithArgs(20).
			WillReturnRows(rows)

		runs, err := repo.List(ctx, 20)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, newer.ID, runs[0].ID)
		assert.Equal(t, older.ID, runs[1].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("list with bad limit", func(t *testing.T) {
		repo, _ := newMock(t)
		_, err := repo.List(ctx, 0)
		assert.Error(t, err)
	})
}
