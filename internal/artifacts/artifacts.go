// Package artifacts persists a training run to a directory and loads
// it back for serving. The model is stored as JSON so the serving
// binary needs nothing beyond the artifacts directory.
package artifacts

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/YuminosukeSato/scigo/sklearn/lightgbm"
	"github.com/rs/zerolog/log"

	"starling/internal/dataset"
	"starling/internal/eval"
)

const (
	ModelFile       = "model.json"
	FeatureListFile = "feature_list.json"
	MetricsFile     = "metrics.json"
	SampleFile      = "sample_inputs.csv"
)

const sampleRows = 5

type modelDocument struct {
	TrainedAt time.Time       `json:"trained_at"`
	Labels    []string        `json:"labels"`
	Features  []string        `json:"features"`
	Model     *lightgbm.Model `json:"model"`
}

// Bundle is everything the serving layer needs, loaded once at startup
// and treated as read-only afterwards.
type Bundle struct {
	Dir       string
	Model     *lightgbm.Model
	Predictor *lightgbm.Predictor
	Features  []string
	Labels    []string
	Metrics   *eval.Report
	TrainedAt time.Time
}

// Write stores the model, feature list, metrics document and a small
// sample of holdout rows under dir, creating it if needed.
func Write(dir string, model *lightgbm.Model, report *eval.Report, holdout *dataset.Frame) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifacts dir: %w", err)
	}

	doc := modelDocument{
		TrainedAt: time.Now().UTC(),
		Labels:    report.Labels,
		Features:  dataset.Features,
		Model:     model,
	}
	if err := writeJSON(filepath.Join(dir, ModelFile), doc); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, FeatureListFile), dataset.Features); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, MetricsFile), report); err != nil {
		return err
	}
	if err := writeSampleInputs(filepath.Join(dir, SampleFile), holdout); err != nil {
		return err
	}

	log.Info().Str("dir", dir).Msg("artifacts written")
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeSampleInputs keeps a handful of holdout rows with their true
// labels so the API can serve a ready-made example payload. Missing
// values become empty cells.
func writeSampleInputs(path string, holdout *dataset.Frame) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append(append([]string{}, dataset.Features...), "true_label")
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}

	n := sampleRows
	if n > len(holdout.Rows) {
		n = len(holdout.Rows)
	}
	record := make([]string, len(dataset.Features)+1)
	for _, row := range holdout.Rows[:n] {
		for j, v := range row.Values {
			record[j] = ""
			if !math.IsNaN(v) {
				record[j] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		record[len(record)-1] = dataset.Labels[row.Class]
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write %s: %w", filepath.Base(path), err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Load reads a bundle back from dir. Every core artifact must be
// present; only the sample CSV is allowed to be absent.
func Load(dir string) (*Bundle, error) {
	var doc modelDocument
	if err := readJSON(filepath.Join(dir, ModelFile), &doc); err != nil {
		return nil, err
	}
	if doc.Model == nil {
		return nil, fmt.Errorf("%s has no model payload", ModelFile)
	}

	var features []string
	if err := readJSON(filepath.Join(dir, FeatureListFile), &features); err != nil {
		return nil, err
	}

	var report eval.Report
	if err := readJSON(filepath.Join(dir, MetricsFile), &report); err != nil {
		return nil, err
	}

	pred := lightgbm.NewPredictor(doc.Model)
	pred.SetDeterministic(true)

	log.Info().
		Str("dir", dir).
		Time("trained_at", doc.TrainedAt).
		Int("features", len(features)).
		Msg("artifacts loaded")

	return &Bundle{
		Dir:       dir,
		Model:     doc.Model,
		Predictor: pred,
		Features:  features,
		Labels:    report.Labels,
		Metrics:   &report,
		TrainedAt: doc.TrainedAt,
	}, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// SamplePath returns the location of the sample CSV without checking
// that it exists.
func (b *Bundle) SamplePath() string {
	return filepath.Join(b.Dir, SampleFile)
}
