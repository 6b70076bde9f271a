package training

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

type batch struct {
	X *mat.Dense
	Y *mat.Dense
}

// batchLoader slices a training set into shuffled mini-batches.
type batchLoader struct {
	set       Set
	batchSize int
	rng       *rand.Rand
}

func newBatchLoader(set Set, batchSize int, rng *rand.Rand) *batchLoader {
	if batchSize > set.Len() {
		batchSize = set.Len()
	}
	return &batchLoader{set: set, batchSize: batchSize, rng: rng}
}

// Epoch returns one full pass over the set in a fresh random order. The
// last batch may be smaller than the batch size.
func (l *batchLoader) Epoch() []batch {
	n := l.set.Len()
	in, out := len(l.set.X[0]), len(l.set.Y[0])
	perm := l.rng.Perm(n)

	batches := make([]batch, 0, (n+l.batchSize-1)/l.batchSize)
	for start := 0; start < n; start += l.batchSize {
		end := min(start+l.batchSize, n)
		rows := end - start

		xData := make([]float64, 0, rows*in)
		yData := make([]float64, 0, rows*out)
		for _, idx := range perm[start:end] {
			xData = append(xData, l.set.X[idx]...)
			yData = append(yData, l.set.Y[idx]...)
		}
		batches = append(batches, batch{
			X: mat.NewDense(rows, in, xData),
			Y: mat.NewDense(rows, out, yData),
		})
	}
	return batches
}
