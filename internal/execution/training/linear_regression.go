package training

// NewLinearRegressionTrainer creates a trainer with no hidden layers: a
// single linear layer fitted by the same Adam loop as the MLP.
func NewLinearRegressionTrainer(opts Options) (*NeuralNetworkTrainer, error) {
	opts.Hidden = nil
	return NewNeuralNetworkTrainer(opts)
}
