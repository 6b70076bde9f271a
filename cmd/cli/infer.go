package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theblitlabs/csvtrain/internal/artifact"
	"github.com/theblitlabs/csvtrain/pkg/logger"
)

func (a *app) inferCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "infer <artifact>",
		Short: "Predict with a saved model for CSV fragments read from stdin",
		Long: `infer loads a model saved by train or train-encoded and prints one
prediction per non-empty stdin line. Each line is a headerless CSV record of
the raw input columns the model was trained on.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInfer(cmd, args[0])
		},
	}
}

func (a *app) runInfer(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	log := logger.WithComponent("infer")

	b, err := artifact.Load(path)
	if err != nil {
		return err
	}
	network, err := b.Network()
	if err != nil {
		return err
	}
	log.Info().
		Str("artifact", path).
		Str("id", b.ID).
		Str("model", b.Model).
		Strs("inputs", b.Inputs).
		Strs("targets", b.Targets).
		Msg("Model loaded")

	scanner := bufio.NewScanner(a.in)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		record, err := parseFragment(line)
		if err != nil {
			return err
		}
		row, err := b.Vectorize(record)
		if err != nil {
			return err
		}
		prediction, err := network.Predict([][]float64{row})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Predicted value: %s\n", formatPrediction(prediction))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read fragments: %w", err)
	}
	return nil
}
