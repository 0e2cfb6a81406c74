package eval

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

const calibrationBins = 10

// ECE bins the top-class probability into nBins equal-width bins over
// [0,1] (last bin closed, others half-open) and returns the
// population-weighted mean absolute gap between per-bin confidence and
// per-bin empirical accuracy, along with the non-empty bins themselves.
// This measures whether the probabilities are trustworthy, not whether
// the top class is right.
func ECE(probs mat.Matrix, yTrue []int, nBins int) (float64, CalibrationBins) {
	topProb := TopProbs(probs)
	topPred := ArgmaxRows(probs)
	n := float64(len(yTrue))

	var bins CalibrationBins
	ece := 0.0
	for b := 0; b < nBins; b++ {
		lo := float64(b) / float64(nBins)
		hi := float64(b+1) / float64(nBins)

		count := 0
		confSum, accSum := 0.0, 0.0
		for i, p := range topProb {
			in := p >= lo && p < hi
			if b == nBins-1 {
				in = p >= lo && p <= hi
			}
			if !in {
				continue
			}
			count++
			confSum += p
			if topPred[i] == yTrue[i] {
				accSum++
			}
		}
		if count == 0 {
			continue
		}

		conf := confSum / float64(count)
		acc := accSum / float64(count)
		bins.BinMid = append(bins.BinMid, (lo+hi)/2)
		bins.Conf = append(bins.Conf, conf)
		bins.Acc = append(bins.Acc, acc)
		bins.Count = append(bins.Count, count)
		ece += (float64(count) / n) * math.Abs(acc-conf)
	}
	return ece, bins
}

// ThresholdForPrecision picks the lowest top-class probability such that
// accepting everything at or above it yields empirical precision of at
// least target. Predictions are scanned in descending confidence order
// and the most permissive qualifying cutoff wins; when no cutoff meets
// the target the fallback is returned. For achievable targets the result
// is monotone: a higher target never yields a lower threshold.
func ThresholdForPrecision(probs mat.Matrix, yTrue []int, target, fallback float64) float64 {
	topProb := TopProbs(probs)
	topPred := ArgmaxRows(probs)

	order := make([]int, len(topProb))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return topProb[order[a]] > topProb[order[b]] })

	best := -1
	correct := 0
	for rank, idx := range order {
		if topPred[idx] == yTrue[idx] {
			correct++
		}
		precision := float64(correct) / float64(rank+1)
		if precision >= target {
			best = rank
		}
	}
	if best < 0 {
		return fallback
	}
	return topProb[order[best]]
}

// Decide measures the abstention policy on the holdout: coverage,
// precision on the accepted subset, and per-class acceptance rates.
func Decide(probs mat.Matrix, yTrue []int, threshold float64, labels []string) DecisionSummary {
	topProb := TopProbs(probs)
	topPred := ArgmaxRows(probs)

	accepted, acceptedCorrect := 0, 0
	classTotal := make([]int, len(labels))
	classAccepted := make([]int, len(labels))
	for i := range yTrue {
		classTotal[yTrue[i]]++
		if topProb[i] >= threshold {
			accepted++
			classAccepted[yTrue[i]]++
			if topPred[i] == yTrue[i] {
				acceptedCorrect++
			}
		}
	}

	precisionOnAccepted := math.NaN()
	if accepted > 0 {
		precisionOnAccepted = float64(acceptedCorrect) / float64(accepted)
	}

	perClass := make(map[string]float64, len(labels))
	for k, label := range labels {
		if classTotal[k] > 0 {
			perClass[label] = float64(classAccepted[k]) / float64(classTotal[k])
		} else {
			perClass[label] = 0
		}
	}

	return DecisionSummary{
		RecommendedThreshold: threshold,
		CoverageAtThreshold:  float64(accepted) / float64(len(yTrue)),
		PrecisionOnAccepted:  JSONFloat(precisionOnAccepted),
		PerClassAcceptRate:   perClass,
	}
}

// Evaluate fills the metric portion of the report from holdout
// probabilities. Dataset counts, search results and importances are
// stamped on by the caller.
func Evaluate(probs mat.Matrix, yTrue []int, labels []string, targetPrecision, fallbackThreshold float64) *Report {
	yPred := ArgmaxRows(probs)

	cm := Confusion(yTrue, yPred, len(labels))
	rocCurves, prCurves, aucPerClass := CurvesOVR(probs, yTrue, labels)
	ece, bins := ECE(probs, yTrue, calibrationBins)
	threshold := ThresholdForPrecision(probs, yTrue, targetPrecision, fallbackThreshold)

	return &Report{
		Labels:               labels,
		NTest:                len(yTrue),
		MacroF1:              MacroF1(yTrue, yPred, len(labels)),
		RocAucOvr:            MacroOvrAUC(aucPerClass),
		ConfusionMatrix:      cm,
		TopConfusions:        TopConfusions(cm, labels, 5),
		Roc:                  rocCurves,
		Pr:                   prCurves,
		AucPerClass:          aucPerClass,
		ECE:                  ece,
		CalibrationBins:      bins,
		RecommendedThreshold: threshold,
		Decision:             Decide(probs, yTrue, threshold, labels),
	}
}
