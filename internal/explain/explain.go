// Package explain derives global and per-request feature attributions
// from a trained booster. SHAP values are preferred; gain importances
// are the fallback when SHAP cannot be computed.
package explain

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/scigo/sklearn/lightgbm"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"starling/internal/eval"
)

// shapSampleCap bounds how many training rows feed the global SHAP
// average so explanation cost stays flat as the catalog grows.
const shapSampleCap = 200

const topFactorCount = 5

// Factor is one entry of a prediction's top_factors list. Exactly one
// of SHAP and Importance is set, depending on which attribution source
// produced it.
type Factor struct {
	Feature    string         `json:"feature"`
	SHAP       *float64       `json:"shap,omitempty"`
	Importance *float64       `json:"importance,omitempty"`
	Value      eval.JSONFloat `json:"value"`
}

// GainImportances returns per-feature split gain totals keyed by
// feature name.
func GainImportances(model *lightgbm.Model, features []string) map[string]float64 {
	raw := model.GetFeatureImportance("gain")
	out := make(map[string]float64, len(features))
	for i, name := range features {
		if i < len(raw) {
			out[name] = raw[i]
		} else {
			out[name] = 0
		}
	}
	return out
}

// MeanAbsSHAP computes mean absolute SHAP attribution per feature over
// a random subsample of the training matrix. It is best effort: any
// failure yields an empty map and a warning, never an error.
func MeanAbsSHAP(model *lightgbm.Model, x *mat.Dense, features []string, seed uint64) map[string]float64 {
	out := map[string]float64{}
	rows, cols := x.Dims()
	if rows == 0 || cols != len(features) {
		return out
	}

	sample := x
	if rows > shapSampleCap {
		rng := rand.New(rand.NewPCG(seed, seed))
		perm := rng.Perm(rows)[:shapSampleCap]
		sample = mat.NewDense(shapSampleCap, cols, nil)
		for i, src := range perm {
			sample.SetRow(i, mat.Row(nil, src, x))
		}
		rows = shapSampleCap
	}

	sv, err := lightgbm.NewTreeSHAP(model).CalculateSHAP(sample)
	if err != nil {
		log.Warn().Err(err).Msg("shap computation failed, skipping global shap importances")
		return out
	}

	for j, name := range features {
		sum := 0.0
		for i := 0; i < rows; i++ {
			sum += math.Abs(sv.Values.At(i, j))
		}
		out[name] = sum / float64(rows)
	}
	return out
}

// TopFactors explains a single request vector. SHAP attributions ranked
// by absolute value win when the calculator succeeds; otherwise the
// globally strongest gain features are reported, annotated with the
// request's values.
func TopFactors(model *lightgbm.Model, vec []float64, gain map[string]float64, features []string) []Factor {
	factors, err := shapFactors(model, vec, features)
	if err == nil {
		return factors
	}
	log.Debug().Err(err).Msg("per-request shap unavailable, falling back to gain importances")
	return gainFactors(vec, gain, features)
}

func shapFactors(model *lightgbm.Model, vec []float64, features []string) ([]Factor, error) {
	if model == nil {
		return nil, fmt.Errorf("no model loaded")
	}
	sv, err := lightgbm.NewTreeSHAP(model).CalculateSHAP(mat.NewDense(1, len(vec), vec))
	if err != nil {
		return nil, fmt.Errorf("calculate shap: %w", err)
	}

	order := make([]int, len(features))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return math.Abs(sv.Values.At(0, order[a])) > math.Abs(sv.Values.At(0, order[b]))
	})

	n := topFactorCount
	if n > len(order) {
		n = len(order)
	}
	factors := make([]Factor, 0, n)
	for _, j := range order[:n] {
		v := sv.Values.At(0, j)
		factors = append(factors, Factor{
			Feature: features[j],
			SHAP:    &v,
			Value:   eval.JSONFloat(vec[j]),
		})
	}
	return factors, nil
}

func gainFactors(vec []float64, gain map[string]float64, features []string) []Factor {
	order := make([]int, len(features))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return gain[features[order[a]]] > gain[features[order[b]]]
	})

	n := topFactorCount
	if n > len(order) {
		n = len(order)
	}
	factors := make([]Factor, 0, n)
	for _, j := range order[:n] {
		imp := gain[features[j]]
		factors = append(factors, Factor{
			Feature:    features[j],
			Importance: &imp,
			Value:      eval.JSONFloat(vec[j]),
		})
	}
	return factors
}
