// Command api serves the trained classifier over HTTP. It requires a
// complete artifacts directory produced by the train command and
// refuses to start without one.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"starling/internal/artifacts"
	"starling/internal/audit"
	"starling/internal/cfg"
	"starling/internal/metrics"
	"starling/internal/server"
)

func main() {
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	bundle, err := artifacts.Load(c.ArtifactsDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", c.ArtifactsDir).Msg("artifact load failed, run the train command first")
	}

	m := metrics.New()

	auditLog, err := audit.New(filepath.Join(c.ArtifactsDir, audit.CSVName), c.AuditDBPath, m.AuditFailures.Inc)
	if err != nil {
		log.Fatal().Err(err).Msg("audit logger init failed")
	}
	defer auditLog.Close()

	srv := server.New(bundle, &c, m, auditLog)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatal().Err(err).Msg("server failed")
	case <-sigCh:
		log.Info().Msg("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}
