// Package catalog pulls the candidate catalogs from the NASA Exoplanet
// Archive TAP service. The ADQL queries alias each catalog's native
// column names onto the canonical feature set so the harmonizer only
// has to deal with labels.
package catalog

import (
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// KOIQuery selects the Kepler cumulative KOI table. The disposition is
// already one of the three model classes.
const KOIQuery = `
SELECT
  koi_disposition AS label,
  koi_period      AS period,
  koi_duration    AS duration,
  koi_depth       AS depth,
  koi_impact      AS impact,
  koi_prad        AS prad,
  koi_insol       AS insol,
  koi_teq         AS teq,
  koi_steff       AS steff,
  koi_slogg       AS slogg,
  koi_srad        AS srad,
  koi_smass       AS smass,
  koi_smet        AS smet,
  koi_kepmag      AS star_mag,
  koi_model_snr   AS snr,
  koi_num_transits AS ntrans
FROM cumulative
`

// TOIQuery selects the TESS objects of interest. Several features have
// no TOI counterpart and come back NULL; the disposition is a working
// group code that the harmonizer maps.
const TOIQuery = `
SELECT
  tfopwg_disp       AS raw_label,
  pl_orbper         AS period,
  pl_trandurh       AS duration,
  pl_trandep        AS depth,
  NULL              AS impact,
  pl_rade           AS prad,
  pl_insol          AS insol,
  pl_eqt            AS teq,
  st_teff           AS steff,
  st_logg           AS slogg,
  st_rad            AS srad,
  NULL              AS smass,
  NULL              AS smet,
  st_tmag           AS star_mag,
  NULL              AS snr,
  NULL              AS ntrans
FROM toi
`

type Client struct {
	base string
	rest *resty.Client
}

// NewClient builds a TAP client with a fixed request timeout. The fetch
// is a one-shot bulk download; there is no retry.
func NewClient(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(120 * time.Second) // default fallback
	}
	return &Client{base: base, rest: r}
}

// FetchCSV runs a sync TAP query and writes the CSV response to outPath.
func (c *Client) FetchCSV(query, outPath string) error {
	resp, err := c.rest.R().
		SetQueryParam("query", query).
		SetQueryParam("format", "csv").
		Get(c.base)
	if err != nil {
		return fmt.Errorf("TAP request failed: %w", err)
	}
	if resp.IsError() {
		// Surface the start of the body; TAP errors come back as VOTable
		// XML that would otherwise be opaque.
		log.Error().
			Int("status", resp.StatusCode()).
			Str("body", truncate(string(resp.Body()), 1000)).
			Msg("TAP returned an error")
		return fmt.Errorf("TAP returned status %d", resp.StatusCode())
	}

	if err := os.WriteFile(outPath, resp.Body(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	log.Info().Str("path", outPath).Int("bytes", len(resp.Body())).Msg("catalog written")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
