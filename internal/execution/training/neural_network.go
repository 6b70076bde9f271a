package training

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const (
	activationReLU   = "relu"
	activationLinear = "linear"
)

type denseLayer struct {
	w          *mat.Dense // inputs x outputs
	b          *mat.Dense // 1 x outputs
	activation string

	// forward cache for backpropagation
	input *mat.Dense
	z     *mat.Dense

	gw *mat.Dense
	gb *mat.Dense
}

func newDenseLayer(in, out int, activation string, rng *rand.Rand) *denseLayer {
	// Glorot/Xavier uniform initialization, zero biases
	limit := math.Sqrt(6.0 / float64(in+out))
	data := make([]float64, in*out)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
	return &denseLayer{
		w:          mat.NewDense(in, out, data),
		b:          mat.NewDense(1, out, nil),
		activation: activation,
		gw:         mat.NewDense(in, out, nil),
		gb:         mat.NewDense(1, out, nil),
	}
}

func (l *denseLayer) forward(x *mat.Dense) *mat.Dense {
	r, _ := x.Dims()
	_, out := l.w.Dims()

	z := mat.NewDense(r, out, nil)
	z.Mul(x, l.w)
	bias := l.b.RawRowView(0)
	z.Apply(func(_, j int, v float64) float64 { return v + bias[j] }, z)

	l.input = x
	l.z = z

	a := mat.NewDense(r, out, nil)
	if l.activation == activationReLU {
		a.Apply(func(_, _ int, v float64) float64 { return relu(v) }, z)
	} else {
		a.Copy(z)
	}
	return a
}

// backward stores the parameter gradients and returns the gradient with
// respect to the layer input.
func (l *denseLayer) backward(dA *mat.Dense) *mat.Dense {
	r, out := dA.Dims()
	in, _ := l.w.Dims()

	dZ := mat.NewDense(r, out, nil)
	if l.activation == activationReLU {
		dZ.Apply(func(i, j int, v float64) float64 { return v * reluDerivative(l.z.At(i, j)) }, dA)
	} else {
		dZ.Copy(dA)
	}

	l.gw.Mul(l.input.T(), dZ)

	gb := l.gb.RawRowView(0)
	for j := range gb {
		gb[j] = 0
	}
	for i := 0; i < r; i++ {
		for j, v := range dZ.RawRowView(i) {
			gb[j] += v
		}
	}

	dX := mat.NewDense(r, in, nil)
	dX.Mul(dZ, l.w.T())
	return dX
}

func (l *denseLayer) state() LayerState {
	in, out := l.w.Dims()
	s := LayerState{
		Inputs:     in,
		Outputs:    out,
		Activation: l.activation,
		Weights:    make([]float64, 0, in*out),
		Bias:       make([]float64, out),
	}
	for i := 0; i < in; i++ {
		s.Weights = append(s.Weights, l.w.RawRowView(i)...)
	}
	copy(s.Bias, l.b.RawRowView(0))
	return s
}

func relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func reluDerivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

// NeuralNetworkTrainer implements a fully-connected feed-forward regressor:
// ReLU hidden layers and a linear output layer, trained with MSE and Adam.
type NeuralNetworkTrainer struct {
	opts   Options
	layers []*denseLayer
	opt    *adam
}

// NewNeuralNetworkTrainer creates a new neural network trainer. Layers are
// sized on the first call to Fit.
func NewNeuralNetworkTrainer(opts Options) (*NeuralNetworkTrainer, error) {
	if opts.Epochs <= 0 {
		return nil, fmt.Errorf("epochs must be positive, got %d", opts.Epochs)
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %f", opts.LearningRate)
	}
	if opts.LearningRate > 1.0 {
		return nil, fmt.Errorf("learning rate is too high (%f), maximum allowed is 1.0", opts.LearningRate)
	}
	for _, h := range opts.Hidden {
		if h <= 0 {
			return nil, fmt.Errorf("hidden layer sizes must be positive, got %v", opts.Hidden)
		}
	}
	return &NeuralNetworkTrainer{opts: opts}, nil
}

// FromLayers rebuilds a trained network from saved layer states.
func FromLayers(states []LayerState) (*NeuralNetworkTrainer, error) {
	if len(states) == 0 {
		return nil, fmt.Errorf("%w: no layers", ErrShapeMismatch)
	}
	t := &NeuralNetworkTrainer{opts: DefaultOptions()}
	for i, s := range states {
		if s.Inputs <= 0 || s.Outputs <= 0 {
			return nil, fmt.Errorf("%w: layer %d has size %dx%d", ErrShapeMismatch, i, s.Inputs, s.Outputs)
		}
		if len(s.Weights) != s.Inputs*s.Outputs || len(s.Bias) != s.Outputs {
			return nil, fmt.Errorf("%w: layer %d parameter count does not match %dx%d", ErrShapeMismatch, i, s.Inputs, s.Outputs)
		}
		if i > 0 && states[i-1].Outputs != s.Inputs {
			return nil, fmt.Errorf("%w: layer %d expects %d inputs, previous layer has %d outputs", ErrShapeMismatch, i, s.Inputs, states[i-1].Outputs)
		}
		if s.Activation != activationReLU && s.Activation != activationLinear {
			return nil, fmt.Errorf("unsupported activation %q in layer %d", s.Activation, i)
		}
		t.layers = append(t.layers, &denseLayer{
			w:          mat.NewDense(s.Inputs, s.Outputs, append([]float64(nil), s.Weights...)),
			b:          mat.NewDense(1, s.Outputs, append([]float64(nil), s.Bias...)),
			activation: s.Activation,
			gw:         mat.NewDense(s.Inputs, s.Outputs, nil),
			gb:         mat.NewDense(1, s.Outputs, nil),
		})
	}
	return t, nil
}

func (t *NeuralNetworkTrainer) build(in, out int, rng *rand.Rand) {
	t.layers = t.layers[:0]
	prev := in
	for _, h := range t.opts.Hidden {
		t.layers = append(t.layers, newDenseLayer(prev, h, activationReLU, rng))
		prev = h
	}
	t.layers = append(t.layers, newDenseLayer(prev, out, activationLinear, rng))
	t.opt = newAdam(t.opts.LearningRate)
}

func (t *NeuralNetworkTrainer) inputSize() int {
	if len(t.layers) == 0 {
		return 0
	}
	in, _ := t.layers[0].w.Dims()
	return in
}

func (t *NeuralNetworkTrainer) outputSize() int {
	if len(t.layers) == 0 {
		return 0
	}
	_, out := t.layers[len(t.layers)-1].w.Dims()
	return out
}

// Fit performs mini-batch training with backpropagation. Batches are
// reshuffled every epoch from a generator seeded with Options.Seed.
func (t *NeuralNetworkTrainer) Fit(ctx context.Context, train, validation Set) (History, error) {
	var history History
	if train.Len() == 0 {
		return history, ErrEmptyData
	}
	if err := train.Validate(); err != nil {
		return history, err
	}
	if err := validation.Validate(); err != nil {
		return history, err
	}

	in, out := len(train.X[0]), len(train.Y[0])
	if in == 0 || out == 0 {
		return history, fmt.Errorf("%w: %d features, %d targets", ErrShapeMismatch, in, out)
	}
	if validation.Len() > 0 && (len(validation.X[0]) != in || len(validation.Y[0]) != out) {
		return history, fmt.Errorf("%w: validation rows do not match training width", ErrShapeMismatch)
	}

	rng := rand.New(rand.NewSource(t.opts.Seed))
	t.build(in, out, rng)

	batches := newBatchLoader(train, t.opts.BatchSize, rng)
	for epoch := 0; epoch < t.opts.Epochs; epoch++ {
		totalLoss := 0.0
		for _, batch := range batches.Epoch() {
			if err := ctx.Err(); err != nil {
				return history, err
			}

			pred := t.forward(batch.X)
			loss, grad := meanSquaredError(pred, batch.Y)
			if math.IsNaN(loss) || math.IsInf(loss, 0) {
				return history, fmt.Errorf("%w: NaN/Inf loss at epoch %d", ErrDiverged, epoch+1)
			}
			t.backward(grad)
			t.step()

			rows, _ := batch.X.Dims()
			totalLoss += loss * float64(rows)
		}

		stats := EpochStats{Epoch: epoch + 1, Loss: totalLoss / float64(train.Len())}
		if validation.Len() > 0 {
			valLoss, err := t.Evaluate(validation)
			if err != nil {
				return history, err
			}
			stats.ValLoss = valLoss
			stats.HasVal = true
		}
		history.Epochs = append(history.Epochs, stats)
		if t.opts.OnEpoch != nil {
			t.opts.OnEpoch(stats)
		}
	}
	return history, nil
}

func (t *NeuralNetworkTrainer) forward(x *mat.Dense) *mat.Dense {
	a := x
	for _, l := range t.layers {
		a = l.forward(a)
	}
	return a
}

func (t *NeuralNetworkTrainer) backward(grad *mat.Dense) {
	for i := len(t.layers) - 1; i >= 0; i-- {
		grad = t.layers[i].backward(grad)
	}
}

func (t *NeuralNetworkTrainer) step() {
	params := make([][]float64, 0, 2*len(t.layers))
	grads := make([][]float64, 0, 2*len(t.layers))
	for _, l := range t.layers {
		params = append(params, l.w.RawMatrix().Data, l.b.RawMatrix().Data)
		grads = append(grads, l.gw.RawMatrix().Data, l.gb.RawMatrix().Data)
	}
	t.opt.step(params, grads)
}

// Predict runs a forward pass over X.
func (t *NeuralNetworkTrainer) Predict(X [][]float64) ([][]float64, error) {
	if len(t.layers) == 0 {
		return nil, ErrNotTrained
	}
	if len(X) == 0 {
		return [][]float64{}, nil
	}
	x, err := toDense(X, t.inputSize())
	if err != nil {
		return nil, err
	}
	return fromDense(t.forward(x)), nil
}

// Evaluate returns the mean squared error over the set.
func (t *NeuralNetworkTrainer) Evaluate(s Set) (float64, error) {
	if s.Len() == 0 {
		return 0, ErrEmptyData
	}
	if err := s.Validate(); err != nil {
		return 0, err
	}
	if len(t.layers) == 0 {
		return 0, ErrNotTrained
	}
	x, err := toDense(s.X, t.inputSize())
	if err != nil {
		return 0, err
	}
	y, err := toDense(s.Y, t.outputSize())
	if err != nil {
		return 0, err
	}
	loss, _ := meanSquaredError(t.forward(x), y)
	return loss, nil
}

// Layers returns a copy of the current parameters.
func (t *NeuralNetworkTrainer) Layers() []LayerState {
	states := make([]LayerState, len(t.layers))
	for i, l := range t.layers {
		states[i] = l.state()
	}
	return states
}

// meanSquaredError averages over every sample and output, and returns the
// gradient with respect to the predictions.
func meanSquaredError(pred, target *mat.Dense) (float64, *mat.Dense) {
	r, c := pred.Dims()
	n := float64(r * c)
	grad := mat.NewDense(r, c, nil)
	grad.Sub(pred, target)

	loss := 0.0
	for i := 0; i < r; i++ {
		for _, d := range grad.RawRowView(i) {
			loss += d * d
		}
	}
	grad.Scale(2/n, grad)
	return loss / n, grad
}

func toDense(rows [][]float64, width int) (*mat.Dense, error) {
	data := make([]float64, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d", ErrShapeMismatch, i, len(row), width)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), width, data), nil
}

func fromDense(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = append([]float64(nil), m.RawRowView(i)...)
	}
	return out
}
