package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all Insight Bot environment variables.
const EnvPrefix = "INSIGHT_"

// Config holds all application configuration. Secrets (tokens, API keys) are
// loaded exclusively from environment variables and never appear in the
// config file.
type Config struct {
	DBPath            string `yaml:"db_path"`
	TempAudioDir      string `yaml:"temp_audio_dir"`
	GeminiModel       string `yaml:"gemini_model"`
	AnalyzeTimeout    string `yaml:"analyze_timeout"`
	UploadParallelism int    `yaml:"upload_parallelism"`
	LogLevel          string `yaml:"log_level"`

	// Secrets — env vars only, never serialized to YAML.
	DiscordToken string `yaml:"-"`
	GeminiAPIKey string `yaml:"-"`
}

func defaults() Config {
	return Config{
		DBPath:            "data/insight.db",
		TempAudioDir:      "",
		GeminiModel:       "gemini-2.5-flash",
		AnalyzeTimeout:    "3m",
		UploadParallelism: 4,
		LogLevel:          "info",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedAnalyzeTimeout returns AnalyzeTimeout as a time.Duration, falling
// back to 3m if the value is invalid.
func (c *Config) ParsedAnalyzeTimeout() time.Duration {
	d, err := time.ParseDuration(c.AnalyzeTimeout)
	if err != nil || d <= 0 {
		return 3 * time.Minute
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "TEMP_AUDIO_DIR"); v != "" {
		cfg.TempAudioDir = v
	}
	if v := os.Getenv(EnvPrefix + "GEMINI_MODEL"); v != "" {
		cfg.GeminiModel = v
	}
	if v := os.Getenv(EnvPrefix + "ANALYZE_TIMEOUT"); v != "" {
		cfg.AnalyzeTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "UPLOAD_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.UploadParallelism = n
		}
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.DiscordToken = os.Getenv(EnvPrefix + "DISCORD_TOKEN")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.DiscordToken == "" {
		warnings = append(warnings, "Discord token not configured — the bot cannot connect. Set "+EnvPrefix+"DISCORD_TOKEN.")
	}
	if cfg.GeminiAPIKey == "" {
		warnings = append(warnings, "Gemini API key not configured — analysis is disabled. Set "+EnvPrefix+"GEMINI_API_KEY.")
	}
	if _, err := time.ParseDuration(cfg.AnalyzeTimeout); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid analyze_timeout %q — using default 3m.", cfg.AnalyzeTimeout))
	}

	return warnings
}
