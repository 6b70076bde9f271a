package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theblitlabs/csvtrain/internal/dataset"
	"github.com/theblitlabs/csvtrain/pkg/logger"
)

var errCleanUsage = errors.New("Usage: csvtrain clean input_file.csv output_file.csv")

func (a *app) cleanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clean <input.csv> <output.csv>",
		Short: "Keep the observation columns and drop rows missing any of them",
		Long: `clean writes a copy of the input holding only the date, category, latitude
and longitude columns, in that order, without the rows that miss a value in
any of them.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return errCleanUsage
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runClean(cmd.Context(), args[0], args[1])
		},
	}
}

func (a *app) runClean(ctx context.Context, input, output string) error {
	log := logger.WithComponent("clean")

	if err := dataset.CheckLocal(input); err != nil {
		return &exitError{msg: "Input file not found.", err: err}
	}
	frame, err := dataset.Load(ctx, input, nil)
	if err != nil {
		return err
	}

	schema := a.cfg.Schema
	columns := dataset.ObservationSchema(schema.DateColumn, schema.CategoryColumn, schema.LatitudeColumn, schema.LongitudeColumn)
	if err := checkSchema(frame, columns); err != nil {
		return err
	}

	complete, err := frame.DropMissing(columns.Names()...)
	if err != nil {
		return err
	}
	cleaned, err := complete.Select(columns.Names()...)
	if err != nil {
		return err
	}
	if err := dataset.Save(output, cleaned); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	log.Info().
		Str("input", input).
		Str("output", output).
		Int("rows", cleaned.Len()).
		Int("dropped", frame.Len()-cleaned.Len()).
		Msg("Cleaned dataset written")
	return nil
}
