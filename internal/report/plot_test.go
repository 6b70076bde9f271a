package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/csvtrain/internal/execution/training"
)

func TestLossCurve(t *testing.T) {
	history := training.History{Epochs: []training.EpochStats{
		{Epoch: 1, Loss: 4, ValLoss: 5, HasVal: true},
		{Epoch: 2, Loss: 2, ValLoss: 3, HasVal: true},
		{Epoch: 3, Loss: 1, ValLoss: 2.5, HasVal: true},
	}}

	path := filepath.Join(t.TempDir(), "loss.png")
	require.NoError(t, LossCurve(history, "birds.csv", path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data[:4])

	t.Run("train only", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "loss.svg")
		h := training.History{Epochs: []training.EpochStats{{Epoch: 1, Loss: 1}, {Epoch: 2, Loss: 0.5}}}
		require.NoError(t, LossCurve(h, "train", path))
		assert.FileExists(t, path)
	})

	t.Run("empty history", func(t *testing.T) {
		assert.Error(t, LossCurve(training.History{}, "x", filepath.Join(t.TempDir(), "x.png")))
	})
}
