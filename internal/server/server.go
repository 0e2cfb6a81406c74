// Package server exposes the trained classifier over HTTP: metadata
// and metrics for dashboards, single and batch prediction, and a
// websocket feed of recent prediction activity. The loaded bundle is
// read-only, so handlers share it without locking.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"starling/internal/artifacts"
	"starling/internal/audit"
	"starling/internal/cfg"
	"starling/internal/metrics"
)

const apiVersion = "0.2.0"

// Server serves predictions from a loaded artifact bundle.
type Server struct {
	bundle    *artifacts.Bundle
	settings  *cfg.Settings
	metrics   *metrics.Metrics
	audit     *audit.Logger
	threshold float64
	gain      map[string]float64

	srv      *http.Server
	upgrader websocket.Upgrader

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool
}

// New builds the server around a loaded bundle. The acceptance
// threshold comes from the training run's metrics; the configured
// default covers bundles trained before threshold selection existed.
func New(bundle *artifacts.Bundle, settings *cfg.Settings, m *metrics.Metrics, auditLog *audit.Logger) *Server {
	threshold := bundle.Metrics.RecommendedThreshold
	if threshold <= 0 {
		threshold = settings.DefaultThreshold
	}

	s := &Server{
		bundle:    bundle,
		settings:  settings,
		metrics:   m,
		audit:     auditLog,
		threshold: threshold,
		gain:      bundle.Metrics.ImportancesGain,
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:   map[*websocket.Conn]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metadata", s.instrument("metadata", s.handleMetadata))
	mux.HandleFunc("/metrics_full", s.instrument("metrics_full", s.handleMetricsFull))
	mux.HandleFunc("/echo-sample", s.instrument("echo_sample", s.handleEchoSample))
	mux.HandleFunc("/predict", s.instrument("predict", s.handlePredict))
	mux.HandleFunc("/batch_predict", s.instrument("batch_predict", s.handleBatchPredict))
	mux.HandleFunc("/health", s.instrument("health", s.handleHealth))
	mux.HandleFunc("/feature_info", s.instrument("feature_info", s.handleFeatureInfo))
	mux.HandleFunc("/recent", s.instrument("recent", s.handleRecent))
	mux.HandleFunc("/ws/activity", s.handleActivity)
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", settings.ListenPort),
		Handler:      corsMiddleware(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start begins serving and blocks until the listener stops.
func (s *Server) Start() error {
	log.Info().Str("addr", s.srv.Addr).Str("version", apiVersion).Msg("starting api server")
	return s.srv.ListenAndServe()
}

// Shutdown stops the listener and closes any websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.clientsMu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = map[*websocket.Conn]bool{}
	s.clientsMu.Unlock()
	return s.srv.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// instrument counts requests per handler and status code.
func (s *Server) instrument(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.metrics.HTTPRequests.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()
	}
}

// handleActivity upgrades to a websocket and streams audit entries for
// every prediction served while the connection is open.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()

	// Hold the connection open; clients only listen.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.clientsMu.Lock()
	delete(s.clients, conn)
	s.clientsMu.Unlock()
}

// broadcast pushes an audit entry to every websocket client, dropping
// connections that fail.
func (s *Server) broadcast(e audit.Entry) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteJSON(e); err != nil {
			conn.Close()
			delete(s.clients, conn)
		}
	}
}
