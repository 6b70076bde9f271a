package preprocess

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

var ErrTooFewRows = errors.New("too few rows to split into train and test sets")

// TestSize returns how many of n rows go to the test split: ceil(n*ratio),
// clamped so both splits keep at least one row.
func TestSize(n int, ratio float64) int {
	nTest := int(math.Ceil(float64(n) * ratio))
	if nTest < 1 {
		nTest = 1
	}
	if nTest > n-1 {
		nTest = n - 1
	}
	return nTest
}

// TrainTestSplit shuffles rows with a seeded permutation and splits X, Y
// in unison. The same seed always yields the same split.
func TrainTestSplit(X, Y [][]float64, testRatio float64, seed int64) (XTrain, XTest, YTrain, YTest [][]float64, err error) {
	n := len(X)
	if n != len(Y) {
		return nil, nil, nil, nil, fmt.Errorf("feature rows (%d) and target rows (%d) differ", n, len(Y))
	}
	if n < 2 {
		return nil, nil, nil, nil, fmt.Errorf("%w: have %d", ErrTooFewRows, n)
	}

	indices := rand.New(rand.NewSource(seed)).Perm(n)
	nTest := TestSize(n, testRatio)
	for i, idx := range indices {
		if i < nTest {
			XTest = append(XTest, X[idx])
			YTest = append(YTest, Y[idx])
		} else {
			XTrain = append(XTrain, X[idx])
			YTrain = append(YTrain, Y[idx])
		}
	}
	return XTrain, XTest, YTrain, YTest, nil
}
