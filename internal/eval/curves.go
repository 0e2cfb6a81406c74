package eval

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// CurvesOVR produces per-class one-vs-rest ROC and PR point sequences
// plus per-class AUC, binarizing the true label against each class's
// probability column. A class absent from (or covering all of) the
// holdout has no defined curve: it gets empty point lists and NaN AUC.
func CurvesOVR(probs mat.Matrix, yTrue []int, labels []string) (map[string]ROCCurve, map[string]PRCurve, map[string]JSONFloat) {
	roc := make(map[string]ROCCurve, len(labels))
	pr := make(map[string]PRCurve, len(labels))
	auc := make(map[string]JSONFloat, len(labels))

	for k, label := range labels {
		pos := make([]bool, len(yTrue))
		scores := make([]float64, len(yTrue))
		for i := range yTrue {
			pos[i] = yTrue[i] == k
			scores[i] = probs.At(i, k)
		}

		fpr, tpr, a := binaryROC(pos, scores)
		precision, recall, ap := binaryPR(pos, scores)

		roc[label] = ROCCurve{FPR: fpr, TPR: tpr}
		pr[label] = PRCurve{Precision: precision, Recall: recall, AP: JSONFloat(ap)}
		auc[label] = JSONFloat(a)
	}
	return roc, pr, auc
}

// MacroOvrAUC averages per-class AUCs; any degenerate class makes the
// macro value NaN, mirroring the all-or-nothing behavior of the
// one-vs-rest multiclass score.
func MacroOvrAUC(aucs map[string]JSONFloat) JSONFloat {
	sum := 0.0
	for _, a := range aucs {
		v := float64(a)
		if math.IsNaN(v) {
			return JSONFloat(math.NaN())
		}
		sum += v
	}
	if len(aucs) == 0 {
		return JSONFloat(math.NaN())
	}
	return JSONFloat(sum / float64(len(aucs)))
}

// byScoreDesc returns sample indices sorted by descending score.
// Stable so equal scores keep input order.
func byScoreDesc(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	return order
}

// binaryROC sweeps thresholds from the highest score down, emitting one
// (fpr, tpr) point per distinct score, with the (0,0) origin prepended.
func binaryROC(pos []bool, scores []float64) (fpr, tpr []float64, auc float64) {
	nPos, nNeg := 0, 0
	for _, p := range pos {
		if p {
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return nil, nil, math.NaN()
	}

	order := byScoreDesc(scores)

	fpr = append(fpr, 0)
	tpr = append(tpr, 0)
	tp, fp := 0, 0
	for i, idx := range order {
		if pos[idx] {
			tp++
		} else {
			fp++
		}
		// Emit only at threshold boundaries so tied scores collapse into
		// a single point.
		if i+1 < len(order) && scores[order[i+1]] == scores[idx] {
			continue
		}
		fpr = append(fpr, float64(fp)/float64(nNeg))
		tpr = append(tpr, float64(tp)/float64(nPos))
	}

	for i := 1; i < len(fpr); i++ {
		auc += (fpr[i] - fpr[i-1]) * (tpr[i] + tpr[i-1]) / 2
	}
	return fpr, tpr, auc
}

// binaryPR sweeps the same thresholds and emits (precision, recall)
// points, terminated by the conventional (1, 0) endpoint. The returned
// ap is the step-interpolated average precision.
func binaryPR(pos []bool, scores []float64) (precision, recall []float64, ap float64) {
	nPos := 0
	for _, p := range pos {
		if p {
			nPos++
		}
	}
	if nPos == 0 {
		return nil, nil, math.NaN()
	}

	order := byScoreDesc(scores)

	tp, fp := 0, 0
	prevRecall := 0.0
	for i, idx := range order {
		if pos[idx] {
			tp++
		} else {
			fp++
		}
		if i+1 < len(order) && scores[order[i+1]] == scores[idx] {
			continue
		}
		p := float64(tp) / float64(tp+fp)
		r := float64(tp) / float64(nPos)
		precision = append(precision, p)
		recall = append(recall, r)
		ap += (r - prevRecall) * p
		prevRecall = r
	}

	precision = append(precision, 1)
	recall = append(recall, 0)
	return precision, recall, ap
}
