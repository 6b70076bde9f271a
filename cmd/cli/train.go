package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/theblitlabs/csvtrain/internal/artifact"
	"github.com/theblitlabs/csvtrain/internal/dataset"
)

func (a *app) trainCommand() *cobra.Command {
	flags := &trainingFlags{}

	cmd := &cobra.Command{
		Use:   "train <input.csv>",
		Short: "Train a latitude/longitude regressor and save it",
		Long: `train drops every row with a missing value, trains on the numeric columns
against the latitude/longitude pair and saves the model with its scaler in
a directory named {stem}_{id}.`,
		Args: csvArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTrain(cmd, args[0], flags)
		},
	}
	flags.register(cmd, true)
	return cmd
}

func (a *app) runTrain(cmd *cobra.Command, input string, flags *trainingFlags) error {
	ctx := cmd.Context()
	if err := checkTrainingInput(input); err != nil {
		return err
	}
	r := a.newRun(cmd, input, flags)
	schema := a.cfg.Schema

	frame, err := a.loadFrame(ctx, r)
	if err != nil {
		return err
	}
	if err := checkSchema(frame, dataset.CoordinateSchema(schema.LatitudeColumn, schema.LongitudeColumn)); err != nil {
		return err
	}

	table, err := buildTable(ctx, r, frame, []string{schema.LatitudeColumn, schema.LongitudeColumn})
	if err != nil {
		return err
	}
	res, err := fit(ctx, r, table)
	if err != nil {
		return err
	}

	b := res.bundle(r)
	dir := filepath.Join(a.outDir(r), artifact.Name(dataset.Stem(input), b.ID, ""))
	path, err := a.saveArtifact(ctx, r, b, func() (string, error) {
		return artifact.SaveDir(dir, b)
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, path)

	return a.finish(ctx, r, res)
}
