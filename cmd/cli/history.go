package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/theblitlabs/csvtrain/internal/models"
)

func (a *app) historyCommand() *cobra.Command {
	var (
		limit int
		id    string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent training runs from the run ledger",
		Long: `history lists the most recent training runs recorded in the run ledger.
With --id it prints every field of a single run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var runID uuid.UUID
			if id != "" {
				var err error
				if runID, err = uuid.Parse(id); err != nil {
					return fmt.Errorf("invalid run id %q: %w", id, err)
				}
			}

			repo, closeDB, err := a.runRepository(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			if id != "" {
				run, err := repo.Get(ctx, runID)
				if err != nil {
					return err
				}
				return writeRun(a.out, run)
			}

			runs, err := repo.List(ctx, limit)
			if err != nil {
				return err
			}
			return writeRuns(a.out, runs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	cmd.Flags().StringVar(&id, "id", "", "Show a single run by id")
	return cmd
}

func writeRuns(out io.Writer, runs []models.TrainingRun) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tCOMMAND\tMODEL\tROWS\tTEST MSE\tARTIFACT\tCID")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.6g\t%s\t%s\n",
			run.ID,
			run.CreatedAt.Local().Format(time.DateTime),
			run.Command,
			run.Model,
			run.Rows,
			run.TestMSE,
			run.ArtifactPath,
			run.ArtifactCID,
		)
	}
	return w.Flush()
}

func writeRun(out io.Writer, run *models.TrainingRun) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fields := []struct {
		name  string
		value any
	}{
		{"id", run.ID},
		{"created", run.CreatedAt.Local().Format(time.DateTime)},
		{"command", run.Command},
		{"source", run.Source},
		{"model", run.Model},
		{"artifact", run.ArtifactPath},
		{"cid", run.ArtifactCID},
		{"rows", run.Rows},
		{"train rows", run.TrainRows},
		{"test rows", run.TestRows},
		{"features", run.Features},
		{"train loss", run.TrainLoss},
		{"val loss", run.ValLoss},
		{"test mse", run.TestMSE},
	}
	for _, f := range fields {
		fmt.Fprintf(w, "%s:\t%v\n", f.name, f.value)
	}
	return w.Flush()
}
