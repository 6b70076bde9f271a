package report

import (
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/theblitlabs/csvtrain/internal/execution/training"
)

// LossCurve renders training and validation loss per epoch. The image
// format follows the file extension (png, svg, pdf, ...).
func LossCurve(history training.History, title, path string) error {
	if len(history.Epochs) == 0 {
		return errors.New("no epochs to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "MSE"
	p.Legend.Top = true

	train := make(plotter.XYs, 0, len(history.Epochs))
	val := make(plotter.XYs, 0, len(history.Epochs))
	for _, e := range history.Epochs {
		train = append(train, plotter.XY{X: float64(e.Epoch), Y: e.Loss})
		if e.HasVal {
			val = append(val, plotter.XY{X: float64(e.Epoch), Y: e.ValLoss})
		}
	}

	trainLine, err := plotter.NewLine(train)
	if err != nil {
		return fmt.Errorf("failed to build training loss line: %w", err)
	}
	trainLine.Color = color.RGBA{B: 255, A: 255}
	p.Add(trainLine)
	p.Legend.Add("train", trainLine)

	if len(val) > 0 {
		valLine, err := plotter.NewLine(val)
		if err != nil {
			return fmt.Errorf("failed to build validation loss line: %w", err)
		}
		valLine.Color = color.RGBA{R: 255, A: 255}
		valLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(valLine)
		p.Legend.Add("validation", valLine)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save loss chart: %w", err)
	}
	return nil
}
