package eval

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// MacroF1 returns the unweighted mean of per-class F1 scores. A class
// with no predicted and no true members contributes 0, matching the
// zero_division=0 convention.
func MacroF1(yTrue, yPred []int, numClasses int) float64 {
	tp := make([]int, numClasses)
	fp := make([]int, numClasses)
	fn := make([]int, numClasses)

	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			tp[yTrue[i]]++
		} else {
			fp[yPred[i]]++
			fn[yTrue[i]]++
		}
	}

	sum := 0.0
	for c := 0; c < numClasses; c++ {
		denom := float64(2*tp[c] + fp[c] + fn[c])
		if denom > 0 {
			sum += 2 * float64(tp[c]) / denom
		}
	}
	return sum / float64(numClasses)
}

// Confusion builds the numClasses×numClasses confusion matrix with true
// labels on rows and predictions on columns.
func Confusion(yTrue, yPred []int, numClasses int) [][]int {
	cm := make([][]int, numClasses)
	for i := range cm {
		cm[i] = make([]int, numClasses)
	}
	for i := range yTrue {
		cm[yTrue[i]][yPred[i]]++
	}
	return cm
}

// TopConfusions returns the n highest-count off-diagonal cells, sorted
// descending by count. Diagonal (true==pred) cells never appear.
func TopConfusions(cm [][]int, labels []string, n int) []ConfusionPair {
	var pairs []ConfusionPair
	for i := range cm {
		for j := range cm[i] {
			if i != j {
				pairs = append(pairs, ConfusionPair{True: labels[i], Pred: labels[j], Count: cm[i][j]})
			}
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool { return pairs[a].Count > pairs[b].Count })
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	return pairs
}

// ArgmaxRows returns the column index of the row maximum for each row.
func ArgmaxRows(probs mat.Matrix) []int {
	rows, cols := probs.Dims()
	out := make([]int, rows)
	for i := 0; i < rows; i++ {
		best := 0
		for j := 1; j < cols; j++ {
			if probs.At(i, j) > probs.At(i, best) {
				best = j
			}
		}
		out[i] = best
	}
	return out
}

// TopProbs returns the row maximum for each row.
func TopProbs(probs mat.Matrix) []float64 {
	rows, cols := probs.Dims()
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		top := probs.At(i, 0)
		for j := 1; j < cols; j++ {
			if probs.At(i, j) > top {
				top = probs.At(i, j)
			}
		}
		out[i] = top
	}
	return out
}
