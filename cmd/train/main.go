// Command train builds the transit-signal classifier: it harmonizes
// the KOI and TOI catalogs, grid-searches booster parameters with
// cross-validation, evaluates the winner on a stratified holdout and
// writes the model plus metrics to the artifacts directory.
package main

import (
	"flag"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"starling/internal/artifacts"
	"starling/internal/cfg"
	"starling/internal/dataset"
	"starling/internal/eval"
	"starling/internal/explain"
	"starling/internal/train"
)

func main() {
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	koiPath := flag.String("koi", "artifacts/data/koi_min.csv", "path to the KOI catalog CSV")
	toiPath := flag.String("toi", "artifacts/data/toi_min.csv", "path to the TOI catalog CSV")
	outDir := flag.String("outdir", c.ArtifactsDir, "artifacts output directory")
	targetPrecision := flag.Float64("target-precision", c.TargetPrecision, "precision target for threshold selection")
	flag.Parse()

	frame, err := dataset.LoadAndMerge(*koiPath, *toiPath)
	if err != nil {
		log.Fatal().Err(err).Msg("catalog load failed")
	}
	log.Info().
		Int("rows", frame.Len()).
		Int("dropped", frame.Dropped).
		Ints("class_counts", frame.ClassCounts()).
		Msg("catalogs harmonized")

	search, err := train.Search(frame)
	if err != nil {
		log.Fatal().Err(err).Msg("grid search failed")
	}
	log.Info().
		Int("evaluated", search.Evaluated).
		Float64("cv_macro_f1_mean", search.CVMeanF1).
		Float64("cv_macro_f1_std", search.CVStdF1).
		Interface("best_params", search.Best).
		Msg("grid search complete")

	trainFrame, holdout := train.HoldoutSplit(frame)
	clf, err := train.Fit(trainFrame, search.Best)
	if err != nil {
		log.Fatal().Err(err).Msg("final fit failed")
	}

	probs, err := train.PredictProba(clf, holdout)
	if err != nil {
		log.Fatal().Err(err).Msg("holdout prediction failed")
	}

	report := eval.Evaluate(probs, holdout.Classes(), dataset.Labels, *targetPrecision, c.DefaultThreshold)
	report.NTotal = frame.Len()
	report.NTrain = trainFrame.Len()
	report.Search = eval.SearchSummary{
		BestParams: eval.BestParams{
			NEstimators:  search.Best.NumIterations,
			LearningRate: search.Best.LearningRate,
			NumLeaves:    search.Best.NumLeaves,
		},
		CVMacroF1Mean: search.CVMeanF1,
		CVMacroF1Std:  search.CVStdF1,
	}
	report.ImportancesGain = explain.GainImportances(clf.Model, dataset.Features)
	report.ImportancesSHAP = explain.MeanAbsSHAP(clf.Model, trainFrame.Matrix(), dataset.Features, train.Seed)

	if err := artifacts.Write(*outDir, clf.Model, report, holdout); err != nil {
		log.Fatal().Err(err).Msg("artifact write failed")
	}

	log.Info().
		Float64("macro_f1", report.MacroF1).
		Float64("ece", report.ECE).
		Float64("recommended_threshold", report.RecommendedThreshold).
		Float64("coverage", report.Decision.CoverageAtThreshold).
		Msg("training complete")
}
