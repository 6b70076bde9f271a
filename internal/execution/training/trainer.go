package training

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmptyData     = errors.New("empty training data")
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrDiverged      = errors.New("training diverged")
	ErrNotTrained    = errors.New("model has not been trained")
)

const (
	ModelMLP    = "mlp"
	ModelLinear = "linear"
)

// Set is a pair of aligned feature and target rows.
type Set struct {
	X [][]float64
	Y [][]float64
}

func (s Set) Len() int { return len(s.X) }

// Validate checks that X and Y align and every row has a consistent width.
func (s Set) Validate() error {
	if len(s.X) != len(s.Y) {
		return fmt.Errorf("%w: %d feature rows, %d target rows", ErrShapeMismatch, len(s.X), len(s.Y))
	}
	if len(s.X) == 0 {
		return nil
	}
	in, out := len(s.X[0]), len(s.Y[0])
	for i := range s.X {
		if len(s.X[i]) != in {
			return fmt.Errorf("%w: row %d has %d features, expected %d", ErrShapeMismatch, i, len(s.X[i]), in)
		}
		if len(s.Y[i]) != out {
			return fmt.Errorf("%w: row %d has %d targets, expected %d", ErrShapeMismatch, i, len(s.Y[i]), out)
		}
	}
	return nil
}

// EpochStats is the loss summary of one pass over the training set.
type EpochStats struct {
	Epoch   int
	Loss    float64
	ValLoss float64
	HasVal  bool
}

type History struct {
	Epochs []EpochStats
}

// Final returns the stats of the last epoch.
func (h History) Final() EpochStats {
	if len(h.Epochs) == 0 {
		return EpochStats{Loss: math.NaN(), ValLoss: math.NaN()}
	}
	return h.Epochs[len(h.Epochs)-1]
}

// Options configures a trainer.
type Options struct {
	Hidden       []int
	Epochs       int
	BatchSize    int
	LearningRate float64
	Seed         int64
	// OnEpoch is called after every epoch, e.g. for logging or metrics.
	OnEpoch func(EpochStats)
}

// DefaultOptions mirrors the 64-32 ReLU network trained for 10 epochs in
// batches of 32 with Adam at 0.001.
func DefaultOptions() Options {
	return Options{
		Hidden:       []int{64, 32},
		Epochs:       10,
		BatchSize:    32,
		LearningRate: 0.001,
		Seed:         42,
	}
}

// LayerState is the serializable form of one dense layer. Weights are
// row-major with shape Inputs x Outputs.
type LayerState struct {
	Inputs     int       `json:"inputs"`
	Outputs    int       `json:"outputs"`
	Activation string    `json:"activation"`
	Weights    []float64 `json:"weights"`
	Bias       []float64 `json:"bias"`
}

// Trainer defines the interface for model training
type Trainer interface {
	// Fit trains on train and reports validation loss per epoch when
	// validation is non-empty.
	Fit(ctx context.Context, train, validation Set) (History, error)

	// Predict returns one output row per input row.
	Predict(X [][]float64) ([][]float64, error)

	// Evaluate returns the mean squared error over the set.
	Evaluate(s Set) (float64, error)

	// Layers returns a copy of the trained parameters.
	Layers() []LayerState
}

// NewTrainer creates a new trainer instance based on model type
func NewTrainer(modelType string, opts Options) (Trainer, error) {
	var (
		t   *NeuralNetworkTrainer
		err error
	)
	switch modelType {
	case ModelMLP, "":
		t, err = NewNeuralNetworkTrainer(opts)
	case ModelLinear:
		t, err = NewLinearRegressionTrainer(opts)
	default:
		return nil, fmt.Errorf("unsupported model type: %s", modelType)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}
