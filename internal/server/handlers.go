package server

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

type featureDoc struct {
	Unit string `json:"unit"`
	Hint string `json:"hint"`
}

var featureInfo = map[string]featureDoc{
	"period":   {Unit: "days", Hint: "Orbital period"},
	"duration": {Unit: "hours", Hint: "Transit duration"},
	"depth":    {Unit: "ppm", Hint: "Transit depth"},
	"impact":   {Unit: "", Hint: "Impact parameter (0-1)"},
	"prad":     {Unit: "R_Earth", Hint: "Planet radius"},
	"insol":    {Unit: "F_Earth", Hint: "Insolation vs Earth"},
	"teq":      {Unit: "K", Hint: "Equilibrium temperature"},
	"steff":    {Unit: "K", Hint: "Stellar effective temp"},
	"slogg":    {Unit: "cgs", Hint: "Stellar surface gravity (log g)"},
	"srad":     {Unit: "R_Sun", Hint: "Stellar radius"},
	"smass":    {Unit: "M_Sun", Hint: "Stellar mass"},
	"smet":     {Unit: "dex", Hint: "Stellar metallicity"},
	"star_mag": {Unit: "mag", Hint: "Kepler/TESS magnitude"},
	"snr":      {Unit: "", Hint: "Transit SNR"},
	"ntrans":   {Unit: "", Hint: "Number of observed transits"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encoding failed")
	}
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"features": s.bundle.Features,
		"labels":   s.bundle.Labels,
		"metrics":  s.bundle.Metrics.Slim(),
		"version":  apiVersion,
	})
}

func (s *Server) handleMetricsFull(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bundle.Metrics)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "version": apiVersion})
}

func (s *Server) handleFeatureInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, featureInfo)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	entries, err := s.audit.Recent(s.settings.RecentLimit)
	if err != nil {
		log.Error().Err(err).Msg("recent predictions lookup failed")
		http.Error(w, "audit store unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"predictions": entries})
}

// handleEchoSample returns the first stored holdout row as a ready-made
// /predict payload, including its true label when known.
func (s *Server) handleEchoSample(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(s.bundle.SamplePath())
	if err != nil {
		http.Error(w, "sample_inputs.csv not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		http.Error(w, "sample_inputs.csv unreadable", http.StatusInternalServerError)
		return
	}
	record, err := reader.Read()
	if err != nil {
		http.Error(w, "sample_inputs.csv has no rows", http.StatusInternalServerError)
		return
	}

	cols := make(map[string]string, len(header))
	for i, name := range header {
		if i < len(record) {
			cols[name] = record[i]
		}
	}

	features := make(map[string]any, len(s.bundle.Features))
	for _, name := range s.bundle.Features {
		cell := cols[name]
		if cell == "" {
			features[name] = nil
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			features[name] = nil
			continue
		}
		features[name] = v
	}

	payload := map[string]any{"features": features}
	if label := cols["true_label"]; label != "" {
		payload["true_label"] = label
	}
	writeJSON(w, http.StatusOK, payload)
}
