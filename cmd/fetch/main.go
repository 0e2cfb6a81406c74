// Command fetch downloads the Kepler KOI and TESS TOI cumulative
// tables from the NASA Exoplanet Archive TAP service as CSV files.
package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"starling/internal/catalog"
	"starling/internal/cfg"
)

func main() {
	_ = godotenv.Load()

	outDir := flag.String("outdir", "artifacts/data", "directory for the downloaded catalog CSVs")
	flag.Parse()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", *outDir).Msg("create output dir failed")
	}

	client := catalog.NewClient(c.TAPBaseURL, c.FetchTimeout)

	koiPath := filepath.Join(*outDir, "koi_min.csv")
	if err := client.FetchCSV(catalog.KOIQuery, koiPath); err != nil {
		log.Fatal().Err(err).Msg("KOI fetch failed")
	}
	log.Info().Str("path", koiPath).Msg("KOI catalog written")

	toiPath := filepath.Join(*outDir, "toi_min.csv")
	if err := client.FetchCSV(catalog.TOIQuery, toiPath); err != nil {
		log.Fatal().Err(err).Msg("TOI fetch failed")
	}
	log.Info().Str("path", toiPath).Msg("TOI catalog written")
}
