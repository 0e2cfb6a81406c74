package train

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"starling/internal/dataset"
)

func TestGrid(t *testing.T) {
	grid := Grid()
	require.Len(t, grid, 8)

	// First and last combinations anchor the iteration order; ties in
	// the search resolve toward earlier entries.
	assert.Equal(t, Params{NumIterations: 300, LearningRate: 0.05, NumLeaves: 31}, grid[0])
	assert.Equal(t, Params{NumIterations: 600, LearningRate: 0.1, NumLeaves: 63}, grid[7])

	seen := map[Params]bool{}
	for _, p := range grid {
		assert.False(t, seen[p], "duplicate grid point %+v", p)
		seen[p] = true
	}
}

func TestNewClassifierParams(t *testing.T) {
	p := Params{NumIterations: 300, LearningRate: 0.05, NumLeaves: 31}
	clf := newClassifier(p)

	assert.Equal(t, 0.9, clf.Subsample)
	assert.Equal(t, 0.9, clf.ColsampleBytree)
	assert.Equal(t, len(dataset.Labels), clf.NumClass)
	assert.Equal(t, "multiclass", clf.Objective)
}

func TestMeanStd(t *testing.T) {
	mean, std := meanStd([]float64{0.8, 0.9, 1.0})
	assert.InDelta(t, 0.9, mean, 1e-12)
	assert.InDelta(t, 0.0816496580927726, std, 1e-12)

	mean, std = meanStd(nil)
	assert.Zero(t, mean)
	assert.Zero(t, std)

	mean, std = meanStd([]float64{0.7})
	assert.Equal(t, 0.7, mean)
	assert.Zero(t, std)
}

func TestHoldoutSplitProportions(t *testing.T) {
	f := &dataset.Frame{}
	for class := 0; class < 3; class++ {
		for i := 0; i < 50; i++ {
			values := make([]float64, len(dataset.Features))
			f.Rows = append(f.Rows, dataset.Row{Values: values, Class: class})
		}
	}

	train, holdout := HoldoutSplit(f)
	assert.Equal(t, 120, train.Len())
	assert.Equal(t, 30, holdout.Len())
	assert.Equal(t, []int{10, 10, 10}, holdout.ClassCounts())
}

func TestClassSlice(t *testing.T) {
	pred := mat.NewDense(3, 1, []float64{2, 0, 1})
	assert.Equal(t, []int{2, 0, 1}, classSlice(pred))
}
