package server

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"starling/internal/audit"
	"starling/internal/eval"
	"starling/internal/explain"
)

type predictRequest struct {
	Features map[string]any `json:"features"`
}

type secondBest struct {
	Label string  `json:"label"`
	Prob  float64 `json:"prob"`
}

type decision struct {
	Accepted   bool       `json:"accepted"`
	Reason     string     `json:"reason"`
	Threshold  float64    `json:"threshold"`
	Confidence float64    `json:"confidence"`
	Margin     float64    `json:"margin"`
	SecondBest secondBest `json:"second_best"`
}

type predictResponse struct {
	Label      string             `json:"label"`
	Probs      map[string]float64 `json:"probs"`
	Decision   decision           `json:"decision"`
	TopFactors []explain.Factor   `json:"top_factors"`
}

type batchRow struct {
	Label string             `json:"label"`
	Probs map[string]float64 `json:"probs"`
}

// toVector orders the request's features into the model's input layout.
// Missing, null and empty-string values become NaN; anything else must
// be numeric.
func toVector(features map[string]any, names []string) ([]float64, error) {
	vec := make([]float64, len(names))
	for i, name := range names {
		raw, ok := features[name]
		if !ok || raw == nil {
			vec[i] = math.NaN()
			continue
		}
		switch v := raw.(type) {
		case float64:
			vec[i] = v
		case string:
			if v == "" {
				vec[i] = math.NaN()
				continue
			}
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("feature %q: %q is not numeric", name, v)
			}
			vec[i] = parsed
		case json.Number:
			parsed, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("feature %q: %v is not numeric", name, v)
			}
			vec[i] = parsed
		default:
			return nil, fmt.Errorf("feature %q: unsupported value type %T", name, raw)
		}
	}
	return vec, nil
}

func (s *Server) probsFor(x *mat.Dense) (*mat.Dense, error) {
	out, err := s.bundle.Predictor.Predict(x)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return mat.DenseCopyOf(out), nil
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()

	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	vec, err := toVector(req.Features, s.bundle.Features)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	probs, err := s.probsFor(mat.NewDense(1, len(vec), vec))
	if err != nil {
		// Inference problems are request errors: the vector, not the
		// server, is what the model rejected.
		log.Warn().Err(err).Msg("prediction failed")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	row := probs.RawRowView(0)

	topIdx, secondIdx := topTwo(row)
	topP, secondP := row[topIdx], row[secondIdx]
	margin := topP - secondP
	accepted := topP >= s.threshold && margin >= s.settings.MarginGap
	reason := "low_confidence"
	if accepted {
		reason = "above_threshold_and_margin"
	}

	probsOut := make(map[string]float64, len(s.bundle.Labels))
	for i, label := range s.bundle.Labels {
		probsOut[label] = row[i]
	}

	resp := predictResponse{
		Label: s.bundle.Labels[topIdx],
		Probs: probsOut,
		Decision: decision{
			Accepted:   accepted,
			Reason:     reason,
			Threshold:  s.threshold,
			Confidence: topP,
			Margin:     margin,
			SecondBest: secondBest{Label: s.bundle.Labels[secondIdx], Prob: secondP},
		},
		TopFactors: explain.TopFactors(s.bundle.Model, vec, s.gain, s.bundle.Features),
	}

	s.metrics.PredictionsTotal.Inc()
	if accepted {
		s.metrics.PredictionsAccepted.Inc()
	}
	s.metrics.PredictLatency.Observe(time.Since(start).Seconds())

	auditVec := make([]eval.JSONFloat, len(vec))
	for i, v := range vec {
		auditVec[i] = eval.JSONFloat(v)
	}
	entry := audit.Entry{
		Timestamp: time.Now().UTC(),
		Features:  auditVec,
		Label:     resp.Label,
		TopProb:   topP,
		Margin:    margin,
		Accepted:  accepted,
	}
	s.audit.Record(entry)
	s.broadcast(entry)

	writeJSON(w, http.StatusOK, resp)
}

// handleBatchPredict scores a JSON array of feature dicts. Rows may be
// raw feature objects or wrapped as {"features": {...}}. The response
// carries labels and probabilities only.
func (s *Server) handleBatchPredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var rows []map[string]any
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if len(rows) == 0 {
		http.Error(w, "provide a non-empty JSON array of {features:{...}} or raw feature dicts", http.StatusBadRequest)
		return
	}

	x := mat.NewDense(len(rows), len(s.bundle.Features), nil)
	for i, raw := range rows {
		feats := raw
		if wrapped, ok := raw["features"].(map[string]any); ok {
			feats = wrapped
		}
		vec, err := toVector(feats, s.bundle.Features)
		if err != nil {
			http.Error(w, fmt.Sprintf("row %d: %v", i, err), http.StatusBadRequest)
			return
		}
		x.SetRow(i, vec)
	}

	probs, err := s.probsFor(x)
	if err != nil {
		log.Warn().Err(err).Msg("batch prediction failed")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	out := make([]batchRow, len(rows))
	for i := range rows {
		row := probs.RawRowView(i)
		topIdx, _ := topTwo(row)
		probsOut := make(map[string]float64, len(s.bundle.Labels))
		for j, label := range s.bundle.Labels {
			probsOut[label] = row[j]
		}
		out[i] = batchRow{Label: s.bundle.Labels[topIdx], Probs: probsOut}
	}

	s.metrics.BatchRowsTotal.Add(float64(len(rows)))
	writeJSON(w, http.StatusOK, out)
}

// topTwo returns the indices of the largest and second-largest entries.
func topTwo(row []float64) (int, int) {
	top, second := 0, 1
	if len(row) > 1 && row[1] > row[0] {
		top, second = 1, 0
	}
	for i := 2; i < len(row); i++ {
		switch {
		case row[i] > row[top]:
			second = top
			top = i
		case row[i] > row[second]:
			second = i
		}
	}
	return top, second
}
