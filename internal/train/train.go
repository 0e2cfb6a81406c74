// Package train runs the hyperparameter search and fits the final
// gradient-boosted model. The search is a small exhaustive grid scored
// by 5-fold stratified cross-validated macro-F1; the winner is refit
// once on an 80/20 stratified split and every downstream metric is
// computed on the untouched holdout, never on CV folds.
package train

import (
	"fmt"
	"math"
	"time"

	"github.com/YuminosukeSato/scigo/sklearn/lightgbm"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"starling/internal/dataset"
	"starling/internal/eval"
)

// Seed fixes every stochastic step (fold shuffling, bagging, splits) so
// two runs over the same catalogs produce the same artifacts.
const Seed = 42

const (
	cvFolds      = 5
	holdoutFrac  = 0.2
	subsample    = 0.9
	colsampleByT = 0.9
)

// Params is one point of the search grid.
type Params struct {
	NumIterations int     `json:"n_estimators"`
	LearningRate  float64 `json:"learning_rate"`
	NumLeaves     int     `json:"num_leaves"`
}

// Grid returns the 2×2×2 search grid in declaration order. Iteration
// order matters: ties on CV score keep the earliest combination.
func Grid() []Params {
	var grid []Params
	for _, nIter := range []int{300, 600} {
		for _, lr := range []float64{0.05, 0.1} {
			for _, leaves := range []int{31, 63} {
				grid = append(grid, Params{NumIterations: nIter, LearningRate: lr, NumLeaves: leaves})
			}
		}
	}
	return grid
}

// SearchResult is the outcome of the grid search.
type SearchResult struct {
	Best      Params
	CVMeanF1  float64
	CVStdF1   float64
	Evaluated int
}

func newClassifier(p Params) *lightgbm.LGBMClassifier {
	clf := lightgbm.NewLGBMClassifier().
		WithNumIterations(p.NumIterations).
		WithNumLeaves(p.NumLeaves).
		WithLearningRate(p.LearningRate).
		WithRandomState(Seed).
		WithDeterministic(true)
	clf.Subsample = subsample
	clf.ColsampleBytree = colsampleByT
	clf.NumClass = len(dataset.Labels)
	clf.Objective = string(lightgbm.MulticlassSoftmax)
	return clf
}

// Search scans the grid and returns the combination with the highest
// mean cross-validated macro-F1.
func Search(frame *dataset.Frame) (*SearchResult, error) {
	x := frame.Matrix()
	y := frame.LabelVec()
	folds := lightgbm.NewStratifiedKFold(cvFolds, true, Seed).Split(x, y)

	result := &SearchResult{CVMeanF1: -1}
	for _, p := range Grid() {
		mean, std, err := crossValidate(frame, folds, p)
		if err != nil {
			return nil, fmt.Errorf("cross-validation for %+v: %w", p, err)
		}
		log.Info().
			Int("n_estimators", p.NumIterations).
			Float64("learning_rate", p.LearningRate).
			Int("num_leaves", p.NumLeaves).
			Float64("cv_macro_f1", mean).
			Float64("cv_std", std).
			Msg("grid point evaluated")

		result.Evaluated++
		if mean > result.CVMeanF1 {
			result.Best = p
			result.CVMeanF1 = mean
			result.CVStdF1 = std
		}
	}
	return result, nil
}

func crossValidate(frame *dataset.Frame, folds []lightgbm.CVFold, p Params) (mean, std float64, err error) {
	scores := make([]float64, 0, len(folds))
	for i, fold := range folds {
		trainSet := frame.Subset(fold.TrainIndices)
		validSet := frame.Subset(fold.TestIndices)

		start := time.Now()
		clf := newClassifier(p)
		if err := clf.FitWeighted(trainSet.Matrix(), trainSet.LabelVec(), trainSet.SampleWeights()); err != nil {
			return 0, 0, fmt.Errorf("fold %d fit: %w", i, err)
		}

		pred, err := clf.Predict(validSet.Matrix())
		if err != nil {
			return 0, 0, fmt.Errorf("fold %d predict: %w", i, err)
		}

		f1 := eval.MacroF1(validSet.Classes(), classSlice(pred), len(dataset.Labels))
		scores = append(scores, f1)

		log.Debug().Int("fold", i).Float64("macro_f1", f1).Dur("elapsed", time.Since(start)).Msg("fold done")
	}
	mean, std = meanStd(scores)
	return mean, std, nil
}

// Fit trains a classifier with the given params and class-balancing
// sample weights.
func Fit(frame *dataset.Frame, p Params) (*lightgbm.LGBMClassifier, error) {
	clf := newClassifier(p)
	if err := clf.FitWeighted(frame.Matrix(), frame.LabelVec(), frame.SampleWeights()); err != nil {
		return nil, fmt.Errorf("final fit: %w", err)
	}
	return clf, nil
}

// HoldoutSplit returns the stratified 80/20 train/holdout frames used
// for the final refit and all reported metrics.
func HoldoutSplit(frame *dataset.Frame) (train, holdout *dataset.Frame) {
	return frame.Split(holdoutFrac, Seed)
}

// PredictProba returns the n×k probability matrix for a frame.
func PredictProba(clf *lightgbm.LGBMClassifier, frame *dataset.Frame) (*mat.Dense, error) {
	proba, err := clf.PredictProba(frame.Matrix())
	if err != nil {
		return nil, fmt.Errorf("predict_proba: %w", err)
	}
	return mat.DenseCopyOf(proba), nil
}

func classSlice(pred mat.Matrix) []int {
	rows, _ := pred.Dims()
	out := make([]int, rows)
	for i := 0; i < rows; i++ {
		out[i] = int(pred.At(i, 0))
	}
	return out
}

func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, v := range xs {
		mean += v
	}
	mean /= float64(len(xs))
	for _, v := range xs {
		std += (v - mean) * (v - mean)
	}
	std = math.Sqrt(std / float64(len(xs)))
	return mean, std
}
