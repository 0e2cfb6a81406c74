package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings carries everything the three binaries need. Values come from
// a YAML file when CONFIG_FILE is set, otherwise from environment
// variables; the environment always wins over the file.
type Settings struct {
	ArtifactsDir string
	ListenPort   int

	// Decision policy applied at inference time. Threshold comes from
	// metrics.json at startup; DefaultThreshold is the fallback when
	// training could not hit the precision target. MarginGap is the
	// required top-vs-second probability gap.
	DefaultThreshold float64
	MarginGap        float64

	// Training.
	TargetPrecision float64

	// Catalog fetch.
	TAPBaseURL   string
	FetchTimeout time.Duration

	// Audit trail. Empty AuditDBPath disables the bbolt store; the CSV
	// sidecar always lives next to the artifacts.
	AuditDBPath string
	RecentLimit int
}

type configFile struct {
	Artifacts struct {
		Dir string `yaml:"dir"`
	} `yaml:"artifacts"`

	Server struct {
		Port        int    `yaml:"port"`
		AuditDBPath string `yaml:"auditDBPath"`
		RecentLimit int    `yaml:"recentLimit"`
	} `yaml:"server"`

	Decision struct {
		DefaultThreshold float64 `yaml:"defaultThreshold"`
		MarginGap        float64 `yaml:"marginGap"`
	} `yaml:"decision"`

	Training struct {
		TargetPrecision float64 `yaml:"targetPrecision"`
	} `yaml:"training"`

	Fetch struct {
		TAPBaseURL string `yaml:"tapBaseURL"`
		Timeout    string `yaml:"timeout"`
	} `yaml:"fetch"`
}

const (
	defaultTAPBaseURL = "https://exoplanetarchive.ipac.caltech.edu/TAP/sync"
)

func Load() (Settings, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config configFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	fetchTimeout, err := time.ParseDuration(config.Fetch.Timeout)
	if err != nil {
		fetchTimeout = 120 * time.Second
	}

	settings := Settings{
		ArtifactsDir:     getEnvOrDefault("ARTIFACTS_DIR", orString(config.Artifacts.Dir, "artifacts")),
		ListenPort:       getIntFromEnvOrConfig("PORT", config.Server.Port, 8000),
		DefaultThreshold: getFloatFromEnvOrConfig("DEFAULT_THRESHOLD", config.Decision.DefaultThreshold, 0.5),
		MarginGap:        getFloatFromEnvOrConfig("MARGIN_GAP", config.Decision.MarginGap, 0.05),
		TargetPrecision:  getFloatFromEnvOrConfig("TARGET_PRECISION", config.Training.TargetPrecision, 0.90),
		TAPBaseURL:       getEnvOrDefault("TAP_BASE_URL", orString(config.Fetch.TAPBaseURL, defaultTAPBaseURL)),
		FetchTimeout:     getDurationOrDefault("FETCH_TIMEOUT", fetchTimeout),
		AuditDBPath:      getEnvOrDefault("AUDIT_DB_PATH", config.Server.AuditDBPath),
		RecentLimit:      getIntFromEnvOrConfig("RECENT_LIMIT", config.Server.RecentLimit, 50),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ArtifactsDir:     getEnvOrDefault("ARTIFACTS_DIR", "artifacts"),
		ListenPort:       getIntOrDefault("PORT", 8000),
		DefaultThreshold: getFloatOrDefault("DEFAULT_THRESHOLD", 0.5),
		MarginGap:        getFloatOrDefault("MARGIN_GAP", 0.05),
		TargetPrecision:  getFloatOrDefault("TARGET_PRECISION", 0.90),
		TAPBaseURL:       getEnvOrDefault("TAP_BASE_URL", defaultTAPBaseURL),
		FetchTimeout:     getDurationOrDefault("FETCH_TIMEOUT", 120*time.Second),
		AuditDBPath:      os.Getenv("AUDIT_DB_PATH"), // optional
		RecentLimit:      getIntOrDefault("RECENT_LIMIT", 50),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func validateSettings(settings *Settings) error {
	if settings.ArtifactsDir == "" {
		return fmt.Errorf("artifacts directory cannot be empty")
	}
	if settings.ListenPort < 1 || settings.ListenPort > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", settings.ListenPort)
	}
	if settings.DefaultThreshold < 0 || settings.DefaultThreshold > 1 {
		return fmt.Errorf("default threshold must be between 0 and 1, got %f", settings.DefaultThreshold)
	}
	if settings.MarginGap < 0 || settings.MarginGap > 0.5 {
		return fmt.Errorf("margin gap must be between 0 and 0.5, got %f", settings.MarginGap)
	}
	if settings.TargetPrecision < 0.5 || settings.TargetPrecision > 1 {
		return fmt.Errorf("target precision must be between 0.5 and 1, got %f", settings.TargetPrecision)
	}
	if settings.TAPBaseURL == "" {
		return fmt.Errorf("TAP base URL cannot be empty")
	}
	if settings.FetchTimeout < time.Second || settings.FetchTimeout > 10*time.Minute {
		return fmt.Errorf("fetch timeout must be between 1s and 10m, got %v", settings.FetchTimeout)
	}
	if settings.RecentLimit <= 0 || settings.RecentLimit > 1000 {
		return fmt.Errorf("recent limit must be between 1 and 1000, got %d", settings.RecentLimit)
	}
	return nil
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, def int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return def
}

func getFloatFromEnvOrConfig(key string, configValue, def float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return def
}
