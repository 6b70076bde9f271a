package cli

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/theblitlabs/csvtrain/internal/artifact"
	"github.com/theblitlabs/csvtrain/internal/config"
	"github.com/theblitlabs/csvtrain/internal/database/repositories"
	"github.com/theblitlabs/csvtrain/internal/dataset"
	"github.com/theblitlabs/csvtrain/internal/execution/training"
	"github.com/theblitlabs/csvtrain/internal/models"
	"github.com/theblitlabs/csvtrain/internal/preprocess"
	"github.com/theblitlabs/csvtrain/internal/report"
	"github.com/theblitlabs/csvtrain/internal/telemetry"
	"github.com/theblitlabs/csvtrain/internal/utils/errorutil"
	"github.com/theblitlabs/csvtrain/pkg/database"
	"github.com/theblitlabs/csvtrain/pkg/logger"
)

var errCSVArgument = errors.New("Please provide the CSV file path as the first argument.")

// csvArg validates the single CSV path argument of the training commands.
func csvArg(cmd *cobra.Command, args []string) error {
	switch {
	case len(args) == 0:
		return errCSVArgument
	case len(args) > 1:
		return fmt.Errorf("accepts 1 arg, received %d", len(args))
	}
	return nil
}

// checkTrainingInput verifies a local input exists, is a regular file and
// can be opened. ipfs:// inputs are checked when fetched.
func checkTrainingInput(path string) error {
	if dataset.IsRemote(path) {
		return nil
	}
	err := dataset.CheckLocal(path)
	if err == nil {
		var f *os.File
		if f, err = os.Open(path); err == nil {
			f.Close()
		}
	}
	if err != nil {
		return &exitError{
			msg: fmt.Sprintf("File '%s' does not exist or is not readable.", path),
			err: errors.Join(dataset.ErrInputNotFound, err),
		}
	}
	return nil
}

// trainingFlags are the per-command overrides of the training config.
type trainingFlags struct {
	model       string
	epochs      int
	batchSize   int
	outDir      string
	plot        string
	publish     bool
	metricsFile string
}

func (f *trainingFlags) register(cmd *cobra.Command, withArtifact bool) {
	cmd.Flags().StringVar(&f.model, "model", training.ModelMLP, "Model kind: mlp or linear")
	cmd.Flags().IntVar(&f.epochs, "epochs", 10, "Number of training epochs")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 32, "Mini-batch size")
	cmd.Flags().StringVar(&f.plot, "plot", "", "Write a loss chart to this image file")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	if withArtifact {
		cmd.Flags().StringVar(&f.outDir, "out-dir", "", "Directory for the saved model (default from config)")
		cmd.Flags().BoolVar(&f.publish, "publish", false, "Add the saved model to IPFS")
	}
}

// apply returns the training config with flags set on the command line
// taking precedence.
func (f *trainingFlags) apply(cmd *cobra.Command, cfg config.TrainingConfig) config.TrainingConfig {
	if cmd.Flags().Changed("model") {
		cfg.Model = f.model
	}
	if cmd.Flags().Changed("epochs") {
		cfg.Epochs = f.epochs
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.BatchSize = f.batchSize
	}
	return cfg
}

// run is the state of one training pipeline invocation.
type run struct {
	command string
	input   string
	cfg     config.TrainingConfig
	flags   *trainingFlags
	metrics *telemetry.Metrics
	record  *models.TrainingRun
}

func (a *app) newRun(cmd *cobra.Command, input string, flags *trainingFlags) *run {
	return &run{
		command: cmd.Name(),
		input:   input,
		cfg:     flags.apply(cmd, a.cfg.Training),
		flags:   flags,
		metrics: telemetry.NewMetrics(cmd.Name()),
		record:  models.NewTrainingRun(cmd.Name(), input),
	}
}

func (a *app) loadFrame(ctx context.Context, r *run) (*dataset.Frame, error) {
	log := logger.WithComponent("loader")

	var frame *dataset.Frame
	err := telemetry.Stage(ctx, r.metrics, "load", func(ctx context.Context) error {
		var fetcher dataset.Fetcher
		if dataset.IsRemote(r.input) {
			fetcher = a.ipfsService()
		}
		var err error
		frame, err = dataset.Load(ctx, r.input, fetcher)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.metrics.RecordRows("load", frame.Len())
	log.Info().Str("input", r.input).Int("rows", frame.Len()).Int("columns", len(frame.Header)).Msg("Dataset loaded")
	return frame, nil
}

// checkSchema verifies the frame carries the columns a command depends on.
func checkSchema(frame *dataset.Frame, schema dataset.Schema) error {
	if err := schema.Check(frame); err != nil {
		return err
	}
	logger.WithComponent("loader").Debug().Stringer("schema", schema).Msg("Schema satisfied")
	return nil
}

// buildTable drops incomplete rows and splits the frame into features and
// targets.
func buildTable(ctx context.Context, r *run, frame *dataset.Frame, targets []string, exclude ...string) (*preprocess.Table, error) {
	log := logger.WithComponent("preprocess")

	var table *preprocess.Table
	err := telemetry.Stage(ctx, r.metrics, "preprocess", func(context.Context) error {
		var err error
		table, err = preprocess.BuildTable(frame, targets, exclude...)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, col := range table.Skipped {
		log.Warn().Str("column", col).Msg("Skipping non-numeric column")
	}
	r.metrics.RecordRows("dropna", table.Len())
	log.Info().
		Int("rows", table.Len()).
		Int("dropped", frame.Len()-table.Len()).
		Strs("features", table.Features).
		Strs("targets", table.Targets).
		Msg("Rows with missing values dropped")

	r.record.Rows = table.Len()
	r.record.Features = len(table.Features)
	return table, nil
}

// fitResult is a trained model with the scaler fitted on its training split.
type fitResult struct {
	table   *preprocess.Table
	scaler  *preprocess.StandardScaler
	trainer training.Trainer
	history training.History
	testMSE float64
}

// fit splits, scales and trains. The test split doubles as validation data
// and is evaluated once training ends.
func fit(ctx context.Context, r *run, table *preprocess.Table) (*fitResult, error) {
	log := logger.WithComponent("trainer")

	XTrain, XTest, YTrain, YTest, err := preprocess.TrainTestSplit(table.X, table.Y, r.cfg.TestRatio, r.cfg.Seed)
	if err != nil {
		return nil, err
	}
	r.metrics.RecordRows("train", len(XTrain))
	r.metrics.RecordRows("test", len(XTest))
	r.record.TrainRows, r.record.TestRows = len(XTrain), len(XTest)

	scaler := preprocess.NewStandardScaler()
	if XTrain, err = scaler.FitTransform(XTrain); err != nil {
		return nil, err
	}
	if XTest, err = scaler.Transform(XTest); err != nil {
		return nil, err
	}

	opts := training.Options{
		Hidden:       r.cfg.HiddenLayers,
		Epochs:       r.cfg.Epochs,
		BatchSize:    r.cfg.BatchSize,
		LearningRate: r.cfg.LearningRate,
		Seed:         r.cfg.Seed,
		OnEpoch: func(s training.EpochStats) {
			r.metrics.RecordEpoch(ctx, s.Loss, s.ValLoss, s.HasVal)
			log.Info().
				Int("epoch", s.Epoch).
				Int("epochs", r.cfg.Epochs).
				Float64("loss", s.Loss).
				Float64("val_loss", s.ValLoss).
				Msg("Epoch completed")
		},
	}
	trainer, err := training.NewTrainer(r.cfg.Model, opts)
	if err != nil {
		return nil, err
	}

	train := training.Set{X: XTrain, Y: YTrain}
	test := training.Set{X: XTest, Y: YTest}

	var history training.History
	err = telemetry.Stage(ctx, r.metrics, "fit", func(ctx context.Context) error {
		var err error
		history, err = trainer.Fit(ctx, train, test)
		return err
	})
	if err != nil {
		errorutil.HandleContextError(log, ctx, err, "Training cancelled", "Training failed")
		return nil, errorutil.WrapError(err, "training %s model", r.cfg.Model)
	}

	var testMSE float64
	err = telemetry.Stage(ctx, r.metrics, "evaluate", func(context.Context) error {
		var err error
		testMSE, err = trainer.Evaluate(test)
		return err
	})
	if err != nil {
		return nil, err
	}

	final := history.Final()
	r.metrics.RecordTestMSE(testMSE)
	r.record.Model = r.cfg.Model
	r.record.TrainLoss = final.Loss
	r.record.ValLoss = final.ValLoss
	r.record.TestMSE = testMSE
	log.Info().Float64("test_mse", testMSE).Int("test_rows", len(XTest)).Msg("Model evaluated")

	return &fitResult{
		table:   table,
		scaler:  scaler,
		trainer: trainer,
		history: history,
		testMSE: testMSE,
	}, nil
}

// bundle packages the fitted model and scaler.
func (res *fitResult) bundle(r *run) *artifact.Bundle {
	b := artifact.New(r.command, r.input, res.table.Features, res.table.Targets, res.scaler, r.cfg.Model, res.trainer.Layers())
	final := res.history.Final()
	b.Metrics = artifact.Metrics{
		TrainRows: r.record.TrainRows,
		TestRows:  r.record.TestRows,
		TrainLoss: final.Loss,
		ValLoss:   final.ValLoss,
		TestMSE:   res.testMSE,
	}
	return b
}

// outDir resolves the artifact directory from flags and config.
func (a *app) outDir(r *run) string {
	if r.flags.outDir != "" {
		return r.flags.outDir
	}
	return a.cfg.Output.Dir
}

// saveArtifact persists the bundle with save, then optionally publishes it.
func (a *app) saveArtifact(ctx context.Context, r *run, b *artifact.Bundle, save func() (string, error)) (string, error) {
	log := logger.WithComponent("artifact")

	var path string
	err := telemetry.Stage(ctx, r.metrics, "save", func(context.Context) error {
		var err error
		path, err = save()
		return err
	})
	if err != nil {
		return "", err
	}
	r.record.ArtifactPath = path
	log.Info().Str("path", path).Str("id", b.ID).Msg("Model saved")

	if r.flags.publish {
		var cid string
		err := telemetry.Stage(ctx, r.metrics, "publish", func(ctx context.Context) error {
			var err error
			cid, err = a.ipfsService().Publish(ctx, path)
			return err
		})
		if err != nil {
			return "", err
		}
		r.record.ArtifactCID = cid
	}
	return path, nil
}

// finish writes the optional chart and metrics textfile and records the
// run in the ledger when one is configured.
func (a *app) finish(ctx context.Context, r *run, res *fitResult) error {
	log := logger.WithComponent("cli")

	if r.flags.plot != "" {
		if err := report.LossCurve(res.history, dataset.Stem(r.input), r.flags.plot); err != nil {
			return err
		}
		log.Info().Str("path", r.flags.plot).Msg("Loss chart written")
	}

	r.metrics.RecordSuccess()
	textfile := a.cfg.Metrics.Textfile
	if r.flags.metricsFile != "" {
		textfile = r.flags.metricsFile
	}
	if err := r.metrics.WriteTextfile(textfile); err != nil {
		return errorutil.WrapError(err, "failed to write metrics textfile")
	}

	if a.cfg.Ledger.DSN != "" && r.record.ArtifactPath != "" {
		ctx, span := telemetry.StartSpan(ctx, "ledger", attribute.String("run.id", r.record.ID.String()))
		defer span.End()
		errorutil.HandleError(log, a.recordRun(ctx, r.record), "Failed to record training run")
	}
	return nil
}

func (a *app) recordRun(ctx context.Context, record *models.TrainingRun) error {
	repo, closeDB, err := a.runRepository(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}
	return repo.Create(ctx, record)
}

var errLedgerNotConfigured = errors.New("run ledger is not configured")

func (a *app) runRepository(ctx context.Context) (*repositories.RunRepository, func(), error) {
	if a.cfg.Ledger.DSN == "" {
		return nil, nil, errLedgerNotConfigured
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := database.Connect(connectCtx, a.cfg.Ledger.DSN)
	if err != nil {
		return nil, nil, err
	}
	return repositories.NewRunRepository(db), func() { db.Close() }, nil
}

// parseFragment reads one CSV record from a line of input.
func parseFragment(line string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.TrimLeadingSpace = true
	record, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("invalid CSV fragment: %w", err)
	}
	return record, nil
}

// formatPrediction renders rows the way a 2-D array prints: [[a b] [c d]].
func formatPrediction(rows [][]float64) string {
	parts := make([]string, len(rows))
	for i, row := range rows {
		values := make([]string, len(row))
		for j, v := range row {
			values[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		parts[i] = "[" + strings.Join(values, " ") + "]"
	}
	return "[" + strings.Join(parts, " ") + "]"
}
