package eval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// probsWithTop builds a 3-class probability matrix where row i predicts
// class pred[i] with probability top[i], the remainder split evenly.
func probsWithTop(pred []int, top []float64) *mat.Dense {
	p := mat.NewDense(len(pred), 3, nil)
	for i := range pred {
		rest := (1 - top[i]) / 2
		for j := 0; j < 3; j++ {
			if j == pred[i] {
				p.Set(i, j, top[i])
			} else {
				p.Set(i, j, rest)
			}
		}
	}
	return p
}

func TestECEPerfectlyCalibrated(t *testing.T) {
	// Every prediction has confidence 1.0 and is correct: the single
	// occupied bin has conf == acc, so the error is exactly zero.
	probs := probsWithTop([]int{0, 1, 2, 0}, []float64{1, 1, 1, 1})
	ece, bins := ECE(probs, []int{0, 1, 2, 0}, 10)

	assert.Zero(t, ece)
	require.Len(t, bins.Count, 1)
	assert.Equal(t, 4, bins.Count[0])
	assert.Equal(t, 0.95, bins.BinMid[0])
}

func TestECEMiscalibrated(t *testing.T) {
	// Two samples at confidence 0.75, one right and one wrong:
	// conf 0.75 vs acc 0.5 gives ECE 0.25.
	probs := probsWithTop([]int{0, 0}, []float64{0.75, 0.75})
	ece, bins := ECE(probs, []int{0, 1}, 10)

	assert.InDelta(t, 0.25, ece, 1e-12)
	require.Len(t, bins.Count, 1)
	assert.InDelta(t, 0.75, bins.Conf[0], 1e-12)
	assert.InDelta(t, 0.5, bins.Acc[0], 1e-12)
}

func TestECEBinEdges(t *testing.T) {
	// Confidence exactly 1.0 lands in the last bin, not past it.
	probs := probsWithTop([]int{1}, []float64{1.0})
	_, bins := ECE(probs, []int{1}, 10)
	require.Len(t, bins.Count, 1)
	assert.Equal(t, 0.95, bins.BinMid[0])
}

func TestThresholdForPrecision(t *testing.T) {
	// Ranked by confidence: 0.9 right, 0.8 right, 0.7 wrong, 0.6 right.
	probs := probsWithTop([]int{0, 1, 2, 0}, []float64{0.9, 0.8, 0.7, 0.6})
	yTrue := []int{0, 1, 0, 0}

	tests := []struct {
		name   string
		target float64
		want   float64
	}{
		{"strict target stops before the mistake", 1.0, 0.8},
		{"loose target admits the mistake", 0.75, 0.6},
		{"mid target", 0.8, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ThresholdForPrecision(probs, yTrue, tt.target, 0.5)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestThresholdForPrecisionMonotonic(t *testing.T) {
	probs := probsWithTop([]int{0, 1, 2, 0, 1}, []float64{0.95, 0.85, 0.75, 0.65, 0.55})
	yTrue := []int{0, 1, 1, 0, 1}

	prev := -1.0
	for _, target := range []float64{0.5, 0.6, 0.7, 0.8, 0.9, 1.0} {
		th := ThresholdForPrecision(probs, yTrue, target, 0.5)
		assert.GreaterOrEqual(t, th, prev, "target %v", target)
		prev = th
	}
}

func TestThresholdForPrecisionFallback(t *testing.T) {
	// Nothing is ever correct, so no cutoff can reach the target.
	probs := probsWithTop([]int{0, 0}, []float64{0.9, 0.8})
	th := ThresholdForPrecision(probs, []int{1, 1}, 0.9, 0.5)
	assert.Equal(t, 0.5, th)
}

func TestDecide(t *testing.T) {
	labels := []string{"FALSE POSITIVE", "CANDIDATE", "CONFIRMED"}
	probs := probsWithTop([]int{0, 1, 2, 1}, []float64{0.9, 0.8, 0.6, 0.4})
	yTrue := []int{0, 2, 2, 1}

	d := Decide(probs, yTrue, 0.7, labels)

	assert.Equal(t, 0.7, d.RecommendedThreshold)
	assert.InDelta(t, 0.5, d.CoverageAtThreshold, 1e-12)
	assert.InDelta(t, 0.5, float64(d.PrecisionOnAccepted), 1e-12)
	assert.InDelta(t, 1.0, d.PerClassAcceptRate["FALSE POSITIVE"], 1e-12)
	assert.InDelta(t, 0.0, d.PerClassAcceptRate["CANDIDATE"], 1e-12)
	assert.InDelta(t, 0.5, d.PerClassAcceptRate["CONFIRMED"], 1e-12)
}

func TestDecideNothingAccepted(t *testing.T) {
	labels := []string{"FALSE POSITIVE", "CANDIDATE", "CONFIRMED"}
	probs := probsWithTop([]int{0, 1}, []float64{0.4, 0.45})
	d := Decide(probs, []int{0, 1}, 0.99, labels)

	assert.Zero(t, d.CoverageAtThreshold)
	assert.True(t, math.IsNaN(float64(d.PrecisionOnAccepted)))
}
