package cli

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/csvtrain/internal/artifact"
	"github.com/theblitlabs/csvtrain/internal/dataset"
	"github.com/theblitlabs/csvtrain/internal/models"
	"github.com/theblitlabs/csvtrain/pkg/logger"
)

// execute runs the command tree and returns the command error together with
// stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd, a := newRootCommand(strings.NewReader(stdin), &out, &errOut)
	cmd.SetArgs(append(args, "--log", "disabled"))
	err := cmd.ExecuteContext(context.Background())
	if a.shutdown != nil {
		require.NoError(t, a.shutdown(context.Background()))
	}
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// regressionCSV holds target_column = 2*x1 - x2 with an id column that is
// not numeric.
func regressionCSV(t *testing.T, n int) string {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	var sb strings.Builder
	sb.WriteString("id,x1,x2,target_column\n")
	for i := 0; i < n; i++ {
		x1, x2 := rng.Float64()*4, rng.Float64()*4
		fmt.Fprintf(&sb, "row-%d,%.4f,%.4f,%.4f\n", i, x1, x2, 2*x1-x2)
	}
	return writeFile(t, "regression.csv", sb.String())
}

func observationsCSV(t *testing.T, n int) string {
	t.Helper()
	rng := rand.New(rand.NewSource(11))
	species := []string{"Heron", "Robin", "Sparrow"}
	var sb strings.Builder
	sb.WriteString("observed_on,species_guess,latitude,longitude,elevation\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "2024-%02d-%02d,%s,%.4f,%.4f,%d\n",
			i%12+1, i%28+1, species[i%len(species)],
			45+rng.Float64(), -122+rng.Float64(), 100+rng.Intn(50))
	}
	return writeFile(t, "observations.csv", sb.String())
}

func TestRunWithoutArguments(t *testing.T) {
	for _, name := range []string{"predict", "train", "train-encoded"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			args := []string{name, "--log", "disabled", "--metrics-file", filepath.Join(dir, "m.prom")}
			if name != "predict" {
				args = append(args, "--out-dir", dir)
			}
			var out, errOut bytes.Buffer
			code := Run(context.Background(), args, strings.NewReader(""), &out, &errOut)

			assert.Equal(t, 1, code)
			assert.Equal(t, "Error: Please provide the CSV file path as the first argument.\n", errOut.String())
			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}

	t.Run("clean", func(t *testing.T) {
		var out, errOut bytes.Buffer
		code := Run(context.Background(), []string{"clean", "--log", "disabled"}, strings.NewReader(""), &out, &errOut)
		assert.Equal(t, 1, code)
		assert.Equal(t, "Error: Usage: csvtrain clean input_file.csv output_file.csv\n", errOut.String())
	})
}

func TestTrainingInputMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.csv")

	_, err := execute(t, "", "train-encoded", missing)
	require.Error(t, err)
	assert.ErrorIs(t, err, dataset.ErrInputNotFound)
	assert.Equal(t, fmt.Sprintf("File '%s' does not exist or is not readable.", missing), err.Error())

	_, err = execute(t, "", "train", t.TempDir())
	assert.ErrorIs(t, err, dataset.ErrInputNotFound)
}

func TestClean(t *testing.T) {
	input := writeFile(t, "in.csv", strings.Join([]string{
		"id,latitude,species_guess,notes,observed_on,longitude",
		"1,45.1,Heron,,2024-01-01,-122.1",
		"2,,Robin,x,2024-01-02,-122.2",
		"3,45.3,NA,x,2024-01-03,-122.3",
		"4,45.4,Sparrow,x,2024-01-04,-122.4",
		"5,45.5,Robin,x,,-122.5",
	}, "\n")+"\n")
	output := filepath.Join(t.TempDir(), "out.csv")

	_, err := execute(t, "", "clean", input, output)
	require.NoError(t, err)

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	cleaned, err := dataset.Read(f)
	require.NoError(t, err)

	assert.Equal(t, []string{"observed_on", "species_guess", "latitude", "longitude"}, cleaned.Header)
	assert.Equal(t, [][]string{
		{"2024-01-01", "Heron", "45.1", "-122.1"},
		{"2024-01-04", "Sparrow", "45.4", "-122.4"},
	}, cleaned.Rows)
}

func TestCleanErrors(t *testing.T) {
	output := filepath.Join(t.TempDir(), "out.csv")

	_, err := execute(t, "", "clean", filepath.Join(t.TempDir(), "nope.csv"), output)
	require.Error(t, err)
	assert.Equal(t, "Input file not found.", err.Error())
	assert.ErrorIs(t, err, dataset.ErrInputNotFound)

	input := writeFile(t, "in.csv", "observed_on,species_guess,latitude\n2024-01-01,Heron,45\n")
	_, err = execute(t, "", "clean", input, output)
	assert.ErrorIs(t, err, dataset.ErrMissingColumns)
	assert.Contains(t, err.Error(), "longitude")
	assert.NoFileExists(t, output)
}

func TestPredict(t *testing.T) {
	input := regressionCSV(t, 80)

	out, err := execute(t, "1.5,0.5\n", "predict", input, "--epochs", "3")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, fragmentPrompt, lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Predicted value: [["), lines[1])
	assert.True(t, strings.HasSuffix(lines[1], "]]"), lines[1])
}

func TestPredictBadFragment(t *testing.T) {
	input := regressionCSV(t, 40)

	_, err := execute(t, "1.5\n", "predict", input, "--epochs", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 values (x1, x2)")

	_, err = execute(t, "1.5,abc\n", "predict", input, "--epochs", "1")
	assert.Error(t, err)

	_, err = execute(t, "", "predict", input, "--epochs", "1", "--target", "nope")
	assert.ErrorIs(t, err, dataset.ErrMissingColumns)
}

func TestTrainSavesDistinctArtifacts(t *testing.T) {
	input := observationsCSV(t, 60)
	outDir := t.TempDir()
	metrics := filepath.Join(t.TempDir(), "train.prom")

	first, err := execute(t, "", "train", input, "--out-dir", outDir, "--epochs", "2", "--metrics-file", metrics)
	require.NoError(t, err)
	second, err := execute(t, "", "train", input, "--out-dir", outDir, "--epochs", "2")
	require.NoError(t, err)

	firstPath, secondPath := strings.TrimSpace(first), strings.TrimSpace(second)
	assert.NotEqual(t, firstPath, secondPath)
	for _, path := range []string{firstPath, secondPath} {
		assert.True(t, strings.HasPrefix(filepath.Base(path), "observations_"), path)
		assert.FileExists(t, filepath.Join(path, artifact.ModelFile))
	}

	b, err := artifact.Load(firstPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"latitude", "longitude"}, b.Targets)
	assert.Equal(t, []string{"elevation"}, b.Features)

	prom, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `csvtrain_epochs_total{command="train"} 2`)
}

func TestTrainEncodedAndInfer(t *testing.T) {
	input := observationsCSV(t, 90)
	outDir := t.TempDir()
	chart := filepath.Join(t.TempDir(), "loss.png")

	out, err := execute(t, "", "train-encoded", input, "--out-dir", outDir, "--epochs", "2", "--plot", chart)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Mean Squared Error: "), out)
	assert.FileExists(t, chart)

	_, err = execute(t, "", "train-encoded", input, "--out-dir", outDir, "--epochs", "2")
	require.NoError(t, err)

	saved, err := filepath.Glob(filepath.Join(outDir, "observations_*.h5"))
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.NotEqual(t, saved[0], saved[1])

	b, err := artifact.Load(saved[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"observed_on", "elevation", "species_guess"}, b.Inputs)

	out, err = execute(t, "2024-03-01,120,Robin\n\n2024-05-09,130,Owl\n", "infer", saved[0])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "Predicted value: [["), line)
	}

	_, err = execute(t, "2024-03-01,Robin\n", "infer", saved[0])
	assert.ErrorIs(t, err, artifact.ErrBadFragment)
}

func TestInferMissingArtifact(t *testing.T) {
	_, err := execute(t, "", "infer", filepath.Join(t.TempDir(), "missing.h5"))
	assert.Error(t, err)
}

func TestHistoryWithoutLedger(t *testing.T) {
	_, err := execute(t, "", "history")
	assert.ErrorIs(t, err, errLedgerNotConfigured)

	_, err = execute(t, "", "history", "--id", uuid.NewString())
	assert.ErrorIs(t, err, errLedgerNotConfigured)

	_, err = execute(t, "", "history", "--id", "not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid run id "not-a-uuid"`)
}

func TestWriteRuns(t *testing.T) {
	run := models.NewTrainingRun("train-encoded", "birds.csv")
	run.Model = "mlp"
	run.ArtifactPath = "out/birds_0123456789ab.h5"
	run.Rows, run.TrainRows, run.TestRows, run.Features = 100, 80, 20, 5
	run.TestMSE = 0.125

	var list bytes.Buffer
	require.NoError(t, writeRuns(&list, []models.TrainingRun{*run}))
	lines := strings.Split(strings.TrimSpace(list.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], run.ID.String())
	assert.Contains(t, lines[1], "0.125")

	var single bytes.Buffer
	require.NoError(t, writeRun(&single, run))
	out := single.String()
	assert.Contains(t, out, "source:")
	assert.Contains(t, out, "birds.csv")
	assert.Contains(t, out, "out/birds_0123456789ab.h5")
	assert.Regexp(t, `train rows:\s+80`, out)
}

func TestCheckSchemaLogsSchema(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{Level: logger.LogLevelDebug, Output: &buf})
	defer logger.Init(logger.Config{Level: logger.LogLevelDisabled})

	frame := dataset.NewFrame([]string{"latitude", "longitude"}, [][]string{{"1", "2"}})
	require.NoError(t, checkSchema(frame, dataset.CoordinateSchema("latitude", "longitude")))
	assert.Contains(t, buf.String(), `"schema":"coordinates(latitude:numeric, longitude:numeric)"`)

	err := checkSchema(frame, dataset.TargetSchema("target_column"))
	assert.ErrorIs(t, err, dataset.ErrMissingColumns)
}

func TestCleanKeepsCellWhitespace(t *testing.T) {
	input := writeFile(t, "in.csv", "observed_on,species_guess,latitude,longitude\n2024-01-01, Great Heron,45.1,-122.1\n2024-01-02,#N/A,45.2,-122.2\n")
	output := filepath.Join(t.TempDir(), "out.csv")

	_, err := execute(t, "", "clean", input, output)
	require.NoError(t, err)

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	cleaned, err := dataset.Read(f)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"2024-01-01", " Great Heron", "45.1", "-122.1"}}, cleaned.Rows)
}

func TestFormatPrediction(t *testing.T) {
	assert.Equal(t, "[[1.5]]", formatPrediction([][]float64{{1.5}}))
	assert.Equal(t, "[[45.25 -122] [1 2]]", formatPrediction([][]float64{{45.25, -122}, {1, 2}}))
}

func TestParseFragment(t *testing.T) {
	record, err := parseFragment(`2024-01-01, "Great Blue Heron", 12.5`)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "Great Blue Heron", "12.5"}, record)

	_, err = parseFragment("")
	assert.Error(t, err)
}
