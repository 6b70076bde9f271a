package artifact

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/theblitlabs/csvtrain/internal/dataset"
	"github.com/theblitlabs/csvtrain/internal/execution/training"
	"github.com/theblitlabs/csvtrain/internal/preprocess"
)

const (
	Format  = "csvtrain-model"
	Version = 1

	// ModelFile is the bundle file inside a directory-form artifact.
	ModelFile = "model.json"

	idLength = 12
)

var (
	ErrUnknownFormat = errors.New("unknown artifact format")
	ErrBadFragment   = errors.New("invalid input fragment")
)

// Metrics summarizes how the bundled model performed when it was trained.
type Metrics struct {
	TrainRows int     `json:"train_rows"`
	TestRows  int     `json:"test_rows"`
	TrainLoss float64 `json:"train_loss"`
	ValLoss   float64 `json:"val_loss"`
	TestMSE   float64 `json:"test_mse"`
}

// Bundle is everything needed to turn a raw input record into a prediction:
// the preprocessing state and the network parameters.
type Bundle struct {
	Format    string    `json:"format"`
	Version   int       `json:"version"`
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Command   string    `json:"command"`
	Source    string    `json:"source"`

	// Inputs are the raw columns an input record carries, in order.
	Inputs []string `json:"inputs"`
	// Features are the model input columns after date parsing and one-hot
	// expansion, in the order the scaler and first layer expect.
	Features []string `json:"features"`
	Targets  []string `json:"targets"`

	DateColumns []string                    `json:"date_columns,omitempty"`
	Encoders    []*preprocess.OneHotEncoder `json:"encoders,omitempty"`
	Scaler      *preprocess.StandardScaler  `json:"scaler"`

	Model   string                `json:"model"`
	Layers  []training.LayerState `json:"layers"`
	Metrics Metrics               `json:"metrics"`
}

// NewID returns a 12 character lowercase hex identifier taken from a random
// UUID.
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:idLength]
}

// Name joins the input stem and id: "{stem}_{id}" plus ext when non-empty.
func Name(stem, id, ext string) string {
	return stem + "_" + id + ext
}

// New assembles a bundle around a trained model.
func New(command, source string, features, targets []string, scaler *preprocess.StandardScaler, model string, layers []training.LayerState) *Bundle {
	return &Bundle{
		Format:    Format,
		Version:   Version,
		ID:        NewID(),
		CreatedAt: time.Now().UTC(),
		Command:   command,
		Source:    source,
		Inputs:    append([]string(nil), features...),
		Features:  append([]string(nil), features...),
		Targets:   append([]string(nil), targets...),
		Scaler:    scaler,
		Model:     model,
		Layers:    layers,
	}
}

// WithEncoding records the date columns and one-hot encoders applied
// before training, and recomputes Inputs so each encoder's indicator
// columns collapse back into its source column.
func (b *Bundle) WithEncoding(dateColumns []string, encoders ...*preprocess.OneHotEncoder) *Bundle {
	b.DateColumns = append([]string(nil), dateColumns...)
	b.Encoders = encoders

	owner := make(map[string]string)
	for _, enc := range encoders {
		for _, name := range enc.FeatureNames() {
			owner[name] = enc.Column
		}
	}

	inputs := make([]string, 0, len(b.Features))
	added := make(map[string]bool)
	for _, f := range b.Features {
		col, encoded := owner[f]
		if !encoded {
			inputs = append(inputs, f)
			continue
		}
		if !added[col] {
			inputs = append(inputs, col)
			added[col] = true
		}
	}
	b.Inputs = inputs
	return b
}

// Validate checks the bundle is internally consistent.
func (b *Bundle) Validate() error {
	if b.Format != Format {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, b.Format)
	}
	if b.Version != Version {
		return fmt.Errorf("%w: version %d", ErrUnknownFormat, b.Version)
	}
	if len(b.Layers) == 0 {
		return fmt.Errorf("artifact %s has no layers", b.ID)
	}
	if b.Scaler == nil || len(b.Scaler.Mean) != len(b.Features) {
		return fmt.Errorf("artifact %s: scaler does not match %d features", b.ID, len(b.Features))
	}
	if b.Layers[0].Inputs != len(b.Features) {
		return fmt.Errorf("artifact %s: first layer expects %d inputs, have %d features", b.ID, b.Layers[0].Inputs, len(b.Features))
	}
	if out := b.Layers[len(b.Layers)-1].Outputs; out != len(b.Targets) {
		return fmt.Errorf("artifact %s: output layer has %d units, have %d targets", b.ID, out, len(b.Targets))
	}
	return nil
}

// Network rebuilds the trained network.
func (b *Bundle) Network() (*training.NeuralNetworkTrainer, error) {
	return training.FromLayers(b.Layers)
}

// Vectorize turns a raw input record into a scaled feature row, applying
// the same date parsing and one-hot encoding used during training.
func (b *Bundle) Vectorize(record []string) ([]float64, error) {
	if len(record) != len(b.Inputs) {
		return nil, fmt.Errorf("%w: got %d fields, expected %d (%s)", ErrBadFragment, len(record), len(b.Inputs), strings.Join(b.Inputs, ", "))
	}

	frame := dataset.NewFrame(append([]string(nil), b.Inputs...), [][]string{append([]string(nil), record...)})
	for _, col := range b.DateColumns {
		if err := preprocess.ConvertDates(frame, col); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadFragment, err)
		}
	}
	for _, enc := range b.Encoders {
		if err := enc.Transform(frame); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadFragment, err)
		}
	}

	row := make([]float64, len(b.Features))
	for i, name := range b.Features {
		idx, ok := frame.ColumnIndex(name)
		if !ok {
			return nil, fmt.Errorf("%w: feature %s not derivable from input", ErrBadFragment, name)
		}
		v, err := preprocess.ParseFloat(frame.Rows[0][idx])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrBadFragment, name, err)
		}
		row[i] = v
	}
	return b.Scaler.TransformRow(row)
}
