package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("CONFIG_FILE")

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "artifacts", s.ArtifactsDir)
	assert.Equal(t, 8000, s.ListenPort)
	assert.Equal(t, 0.5, s.DefaultThreshold)
	assert.Equal(t, 0.05, s.MarginGap)
	assert.Equal(t, 0.90, s.TargetPrecision)
	assert.Equal(t, defaultTAPBaseURL, s.TAPBaseURL)
	assert.Equal(t, 120*time.Second, s.FetchTimeout)
	assert.Empty(t, s.AuditDBPath)
	assert.Equal(t, 50, s.RecentLimit)
}

func TestLoadEnvOverrides(t *testing.T) {
	os.Unsetenv("CONFIG_FILE")
	t.Setenv("PORT", "9100")
	t.Setenv("MARGIN_GAP", "0.1")
	t.Setenv("AUDIT_DB_PATH", "/tmp/audit.db")
	t.Setenv("FETCH_TIMEOUT", "30s")

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, s.ListenPort)
	assert.Equal(t, 0.1, s.MarginGap)
	assert.Equal(t, "/tmp/audit.db", s.AuditDBPath)
	assert.Equal(t, 30*time.Second, s.FetchTimeout)
}

func TestLoadFromYAML(t *testing.T) {
	content := `
artifacts:
  dir: /data/artifacts
server:
  port: 9000
  recentLimit: 25
decision:
  defaultThreshold: 0.6
  marginGap: 0.02
training:
  targetPrecision: 0.95
fetch:
  timeout: 60s
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_FILE", path)

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/artifacts", s.ArtifactsDir)
	assert.Equal(t, 9000, s.ListenPort)
	assert.Equal(t, 25, s.RecentLimit)
	assert.Equal(t, 0.6, s.DefaultThreshold)
	assert.Equal(t, 0.02, s.MarginGap)
	assert.Equal(t, 0.95, s.TargetPrecision)
	assert.Equal(t, 60*time.Second, s.FetchTimeout)
}

func TestEnvBeatsYAML(t *testing.T) {
	content := "server:\n  port: 9000\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9999")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, s.ListenPort)
}

func TestValidateSettings(t *testing.T) {
	valid := Settings{
		ArtifactsDir:     "artifacts",
		ListenPort:       8000,
		DefaultThreshold: 0.5,
		MarginGap:        0.05,
		TargetPrecision:  0.9,
		TAPBaseURL:       defaultTAPBaseURL,
		FetchTimeout:     120 * time.Second,
		RecentLimit:      50,
	}
	require.NoError(t, validateSettings(&valid))

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"empty artifacts dir", func(s *Settings) { s.ArtifactsDir = "" }},
		{"port too high", func(s *Settings) { s.ListenPort = 70000 }},
		{"threshold above one", func(s *Settings) { s.DefaultThreshold = 1.5 }},
		{"negative margin", func(s *Settings) { s.MarginGap = -0.1 }},
		{"precision below half", func(s *Settings) { s.TargetPrecision = 0.3 }},
		{"empty TAP URL", func(s *Settings) { s.TAPBaseURL = "" }},
		{"timeout too short", func(s *Settings) { s.FetchTimeout = time.Millisecond }},
		{"zero recent limit", func(s *Settings) { s.RecentLimit = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			assert.Error(t, validateSettings(&s))
		})
	}
}

func TestLoadInvalidEnvValues(t *testing.T) {
	os.Unsetenv("CONFIG_FILE")
	t.Setenv("PORT", "not-a-number")

	// Unparseable values fall back to defaults rather than failing.
	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8000, s.ListenPort)
}
