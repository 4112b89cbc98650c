package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DB_PATH", "TEMP_AUDIO_DIR", "GEMINI_MODEL",
		"ANALYZE_TIMEOUT", "UPLOAD_PARALLELISM", "LOG_LEVEL",
		"DISCORD_TOKEN", "GEMINI_API_KEY",
	} {
		t.Setenv(EnvPrefix+key, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DBPath != "data/insight.db" {
		t.Fatalf("expected default db_path, got %q", cfg.DBPath)
	}
	if cfg.GeminiModel != "gemini-2.5-flash" {
		t.Fatalf("expected default gemini_model, got %q", cfg.GeminiModel)
	}
	if cfg.AnalyzeTimeout != "3m" {
		t.Fatalf("expected default analyze_timeout, got %q", cfg.AnalyzeTimeout)
	}
	if cfg.UploadParallelism != 4 {
		t.Fatalf("expected default upload_parallelism 4, got %d", cfg.UploadParallelism)
	}
}

func TestYAMLLoading(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yamlContent := `
db_path: /custom/insight.db
temp_audio_dir: /custom/audio
gemini_model: gemini-2.5-pro
analyze_timeout: 90s
upload_parallelism: 8
log_level: debug
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DBPath != "/custom/insight.db" {
		t.Fatalf("expected yaml db_path, got %q", cfg.DBPath)
	}
	if cfg.TempAudioDir != "/custom/audio" {
		t.Fatalf("expected yaml temp_audio_dir, got %q", cfg.TempAudioDir)
	}
	if cfg.GeminiModel != "gemini-2.5-pro" {
		t.Fatalf("expected yaml gemini_model, got %q", cfg.GeminiModel)
	}
	if cfg.ParsedAnalyzeTimeout() != 90*time.Second {
		t.Fatalf("expected 90s analyze timeout, got %v", cfg.ParsedAnalyzeTimeout())
	}
	if cfg.UploadParallelism != 8 {
		t.Fatalf("expected yaml upload_parallelism, got %d", cfg.UploadParallelism)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected yaml log_level, got %q", cfg.LogLevel)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yamlContent := `
db_path: /from/yaml
gemini_model: model-yaml
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	clearEnv(t)
	t.Setenv(EnvPrefix+"DB_PATH", "/from/env")
	t.Setenv(EnvPrefix+"GEMINI_MODEL", "model-env")
	t.Setenv(EnvPrefix+"UPLOAD_PARALLELISM", "2")

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DBPath != "/from/env" {
		t.Fatalf("expected env override for db_path, got %q", cfg.DBPath)
	}
	if cfg.GeminiModel != "model-env" {
		t.Fatalf("expected env override for gemini_model, got %q", cfg.GeminiModel)
	}
	if cfg.UploadParallelism != 2 {
		t.Fatalf("expected env override for upload_parallelism, got %d", cfg.UploadParallelism)
	}
}

func TestSecretsFromEnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"DISCORD_TOKEN", "token-secret")
	t.Setenv(EnvPrefix+"GEMINI_API_KEY", "gemini-secret")

	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DiscordToken != "token-secret" {
		t.Fatalf("expected discord token from env, got %q", cfg.DiscordToken)
	}
	if cfg.GeminiAPIKey != "gemini-secret" {
		t.Fatalf("expected gemini key from env, got %q", cfg.GeminiAPIKey)
	}
}

func TestSecretsIgnoredInYAML(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yamlContent := `
discord_token: should-be-ignored
gemini_api_key: also-ignored
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DiscordToken != "" {
		t.Fatalf("expected empty discord token (yaml should be ignored), got %q", cfg.DiscordToken)
	}
	if cfg.GeminiAPIKey != "" {
		t.Fatalf("expected empty gemini key (yaml should be ignored), got %q", cfg.GeminiAPIKey)
	}
}

func TestValidationWarnings(t *testing.T) {
	clearEnv(t)

	_, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	var discordWarning, geminiWarning bool
	for _, w := range warnings {
		if strings.Contains(w, "Discord") {
			discordWarning = true
		}
		if strings.Contains(w, "Gemini") {
			geminiWarning = true
		}
	}

	if !discordWarning {
		t.Fatalf("expected Discord warning when token is missing, got warnings: %v", warnings)
	}
	if !geminiWarning {
		t.Fatalf("expected Gemini warning when key is missing, got warnings: %v", warnings)
	}
}

func TestValidationNoWarningsWhenConfigured(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"DISCORD_TOKEN", "token")
	t.Setenv(EnvPrefix+"GEMINI_API_KEY", "key")

	_, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(warnings) != 0 {
		t.Fatalf("expected no warnings when fully configured, got: %v", warnings)
	}
}

func TestInvalidAnalyzeTimeoutWarning(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"DISCORD_TOKEN", "token")
	t.Setenv(EnvPrefix+"GEMINI_API_KEY", "key")
	t.Setenv(EnvPrefix+"ANALYZE_TIMEOUT", "not-a-duration")

	cfg, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(warnings) != 1 || !strings.Contains(warnings[0], "analyze_timeout") {
		t.Fatalf("expected analyze_timeout warning, got: %v", warnings)
	}

	if cfg.ParsedAnalyzeTimeout() != 3*time.Minute {
		t.Fatalf("expected fallback to 3m, got %v", cfg.ParsedAnalyzeTimeout())
	}
}

func TestMissingConfigFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, _, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("Load should not fail for missing config file, got: %v", err)
	}

	if cfg.DBPath != "data/insight.db" {
		t.Fatalf("expected defaults when config file missing, got db_path=%q", cfg.DBPath)
	}
}

func TestInvalidConfigFileReturnsError(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(configPath, []byte(":::invalid yaml"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	clearEnv(t)

	_, _, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for invalid yaml, got nil")
	}
}
