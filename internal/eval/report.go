// Package eval computes every holdout metric the training run reports:
// macro-F1, one-vs-rest ROC/PR curves, the confusion summary, calibration
// error, and the abstention threshold the API applies at request time.
package eval

import (
	"bytes"
	"math"
	"strconv"
)

// JSONFloat marshals NaN as null. encoding/json rejects NaN outright and
// the metrics document has legitimate NaNs (degenerate AUC).
type JSONFloat float64

func (f JSONFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(v, 'g', -1, 64)), nil
}

func (f *JSONFloat) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = JSONFloat(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = JSONFloat(v)
	return nil
}

// BestParams mirrors the winning grid point in the metrics document.
type BestParams struct {
	NEstimators  int     `json:"n_estimators"`
	LearningRate float64 `json:"learning_rate"`
	NumLeaves    int     `json:"num_leaves"`
}

// SearchSummary records the grid-search outcome.
type SearchSummary struct {
	BestParams    BestParams `json:"best_params"`
	CVMacroF1Mean float64    `json:"cv_macro_f1_mean"`
	CVMacroF1Std  float64    `json:"cv_macro_f1_std"`
}

// ConfusionPair is one off-diagonal (true, pred) cell of the confusion
// matrix, used for the confusability summary.
type ConfusionPair struct {
	True  string `json:"true"`
	Pred  string `json:"pred"`
	Count int    `json:"count"`
}

// ROCCurve is a per-class one-vs-rest ROC point sequence.
type ROCCurve struct {
	FPR []float64 `json:"fpr"`
	TPR []float64 `json:"tpr"`
}

// PRCurve is a per-class precision-recall point sequence plus the
// average precision.
type PRCurve struct {
	Precision []float64 `json:"precision"`
	Recall    []float64 `json:"recall"`
	AP        JSONFloat `json:"ap"`
}

// CalibrationBins holds the non-empty confidence bins, parallel slices.
type CalibrationBins struct {
	BinMid []float64 `json:"bin_mid"`
	Acc    []float64 `json:"acc"`
	Conf   []float64 `json:"conf"`
	Count  []int     `json:"count"`
}

// DecisionSummary describes the abstention policy measured on holdout.
type DecisionSummary struct {
	RecommendedThreshold float64              `json:"recommended_threshold"`
	CoverageAtThreshold  float64              `json:"coverage_at_threshold"`
	PrecisionOnAccepted  JSONFloat            `json:"precision_on_accepted"`
	PerClassAcceptRate   map[string]float64   `json:"per_class_accept_rate"`
}

// Report is the complete metrics document written to metrics.json and
// served verbatim by /metrics_full. Every feature name in an importance
// map is a member of the feature list; every label in curves and
// confusions comes from the fixed label set.
type Report struct {
	Labels               []string             `json:"labels"`
	NTotal               int                  `json:"n_total"`
	NTrain               int                  `json:"n_train"`
	NTest                int                  `json:"n_test"`
	Search               SearchSummary        `json:"search"`
	MacroF1              float64              `json:"macro_f1"`
	RocAucOvr            JSONFloat            `json:"roc_auc_ovr"`
	ConfusionMatrix      [][]int              `json:"confusion_matrix"`
	TopConfusions        []ConfusionPair      `json:"top_confusions"`
	Roc                  map[string]ROCCurve  `json:"roc"`
	Pr                   map[string]PRCurve   `json:"pr"`
	AucPerClass          map[string]JSONFloat `json:"auc_per_class"`
	ECE                  float64              `json:"ece"`
	CalibrationBins      CalibrationBins      `json:"calibration_bins"`
	RecommendedThreshold float64              `json:"recommended_threshold"`
	Decision             DecisionSummary      `json:"decision"`
	ImportancesGain      map[string]float64   `json:"feature_importances_gain"`
	ImportancesSHAP      map[string]float64   `json:"feature_importances_shap"`
}

// Slim returns the subset of headline metrics served by /metadata.
func (r *Report) Slim() map[string]any {
	return map[string]any{
		"macro_f1":              r.MacroF1,
		"roc_auc_ovr":           r.RocAucOvr,
		"n_train":               r.NTrain,
		"n_test":                r.NTest,
		"recommended_threshold": r.RecommendedThreshold,
	}
}
