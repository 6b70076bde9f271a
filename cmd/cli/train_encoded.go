package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/theblitlabs/csvtrain/internal/artifact"
	"github.com/theblitlabs/csvtrain/internal/dataset"
	"github.com/theblitlabs/csvtrain/internal/preprocess"
	"github.com/theblitlabs/csvtrain/internal/telemetry"
	"github.com/theblitlabs/csvtrain/pkg/logger"
)

func (a *app) trainEncodedCommand() *cobra.Command {
	flags := &trainingFlags{}

	cmd := &cobra.Command{
		Use:   "train-encoded <input.csv>",
		Short: "Encode dates and species, train a latitude/longitude regressor and save it",
		Long: `train-encoded parses the observation date into days since the epoch,
one-hot encodes the species column, coerces the coordinates to numbers,
drops incomplete rows, trains, prints the test mean squared error and saves
the model as {stem}_{id}.h5.`,
		Args: csvArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTrainEncoded(cmd, args[0], flags)
		},
	}
	flags.register(cmd, true)
	return cmd
}

func (a *app) runTrainEncoded(cmd *cobra.Command, input string, flags *trainingFlags) error {
	ctx := cmd.Context()
	if err := checkTrainingInput(input); err != nil {
		return err
	}
	r := a.newRun(cmd, input, flags)
	schema := a.cfg.Schema
	log := logger.WithComponent("preprocess")

	frame, err := a.loadFrame(ctx, r)
	if err != nil {
		return err
	}
	observations := dataset.ObservationSchema(schema.DateColumn, schema.CategoryColumn, schema.LatitudeColumn, schema.LongitudeColumn)
	if err := checkSchema(frame, observations); err != nil {
		return err
	}

	var encoder *preprocess.OneHotEncoder
	err = telemetry.Stage(ctx, r.metrics, "encode", func(context.Context) error {
		if err := preprocess.ConvertDates(frame, schema.DateColumn); err != nil {
			return err
		}
		for _, col := range []string{schema.LatitudeColumn, schema.LongitudeColumn} {
			coerced, err := preprocess.CoerceNumeric(frame, col)
			if err != nil {
				return err
			}
			if coerced > 0 {
				log.Warn().Str("column", col).Int("cells", coerced).Msg("Non-numeric values treated as missing")
			}
		}
		var err error
		if encoder, err = preprocess.FitOneHot(frame, schema.CategoryColumn); err != nil {
			return err
		}
		return encoder.Transform(frame)
	})
	if err != nil {
		return err
	}
	log.Info().
		Str("column", schema.CategoryColumn).
		Int("categories", len(encoder.Categories)).
		Msg("Categories one-hot encoded")

	table, err := buildTable(ctx, r, frame, []string{schema.LatitudeColumn, schema.LongitudeColumn}, schema.CategoryColumn)
	if err != nil {
		return err
	}
	res, err := fit(ctx, r, table)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Mean Squared Error: %v\n", res.testMSE)

	b := res.bundle(r).WithEncoding([]string{schema.DateColumn}, encoder)
	path := filepath.Join(a.outDir(r), artifact.Name(dataset.Stem(input), b.ID, a.cfg.Output.Extension))
	if _, err := a.saveArtifact(ctx, r, b, func() (string, error) {
		return artifact.SaveFile(path, b)
	}); err != nil {
		return err
	}

	return a.finish(ctx, r, res)
}
