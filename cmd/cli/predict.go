package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theblitlabs/csvtrain/internal/dataset"
	"github.com/theblitlabs/csvtrain/internal/preprocess"
)

const fragmentPrompt = "Please provide the CSV fragment:"

func (a *app) predictCommand() *cobra.Command {
	flags := &trainingFlags{}
	var target string

	cmd := &cobra.Command{
		Use:   "predict <input.csv>",
		Short: "Train on a CSV file and predict the target for one fragment read from stdin",
		Long: `predict drops every row with a missing value, trains on all numeric columns
against the target column, then reads one headerless CSV record of feature
values from stdin and prints the predicted target.`,
		Args: csvArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				target = a.cfg.Schema.TargetColumn
			}
			return a.runPredict(cmd, args[0], target, flags)
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "Target column (default from config schema.target_column)")
	flags.register(cmd, false)
	return cmd
}

func (a *app) runPredict(cmd *cobra.Command, input, target string, flags *trainingFlags) error {
	ctx := cmd.Context()
	if err := checkTrainingInput(input); err != nil {
		return err
	}
	r := a.newRun(cmd, input, flags)

	frame, err := a.loadFrame(ctx, r)
	if err != nil {
		return err
	}
	if err := checkSchema(frame, dataset.TargetSchema(target)); err != nil {
		return err
	}

	table, err := buildTable(ctx, r, frame, []string{target})
	if err != nil {
		return err
	}
	res, err := fit(ctx, r, table)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, fragmentPrompt)
	line, err := readLine(ctx, a.in)
	if err != nil {
		return err
	}
	prediction, err := predictFragment(res, line)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Predicted value: %s\n", formatPrediction(prediction))

	return a.finish(ctx, r, res)
}

// predictFragment parses a line of feature values in table order, scales it
// with the training scaler and runs the model.
func predictFragment(res *fitResult, line string) ([][]float64, error) {
	record, err := parseFragment(line)
	if err != nil {
		return nil, err
	}
	values, err := preprocess.ParseRecord(record, len(res.table.Features))
	if err != nil {
		return nil, fmt.Errorf("expected %d values (%s): %w", len(res.table.Features), strings.Join(res.table.Features, ", "), err)
	}
	scaled, err := res.scaler.TransformRow(values)
	if err != nil {
		return nil, err
	}
	return res.trainer.Predict([][]float64{scaled})
}

// readLine blocks for one line of input. A final line without a newline is
// accepted.
func readLine(ctx context.Context, in io.Reader) (string, error) {
	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		line, err := bufio.NewReader(in).ReadString('\n')
		if errors.Is(err, io.EOF) && line != "" {
			err = nil
		}
		done <- result{line: strings.TrimRight(line, "\r\n"), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("failed to read fragment: %w", res.err)
		}
		return res.line, nil
	}
}
