package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OLLAMA_API_ENDPOINT", "OLLAMA_MODEL", "OPENAI_API_ENDPOINT", "OPENAI_API_KEY",
		"OPENAI_MODEL", "GEMINI_API_KEY", "GEMINI_API_ENDPOINT", "GEMINI_MODEL",
		"GEMINI_VISION_MODEL", "COMFY_UI_ENDPOINT", "COMFY_WORKFLOW_PATH", "COMFY_CLIENT_ID",
		"NEGATIVE_PROMPT", "PROMPT_SUFFIX", "PROVIDER_TIMEOUT", "LISTEN_ADDR", "OUTPUT_DIR",
		"PUBLIC_BASE_URL", "CORS_ORIGINS", "LOG_LEVEL", "ENV_FILE",
	} {
		// Setenv restores the value after the test; unset so defaults apply
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv returned error: %v", err)
	}
	if cfg.Providers.OllamaEndpoint != "http://localhost:11434/api/generate" {
		t.Fatalf("OllamaEndpoint mismatch: %q", cfg.Providers.OllamaEndpoint)
	}
	if cfg.Providers.Timeout != 30*time.Second {
		t.Fatalf("Timeout mismatch: %v", cfg.Providers.Timeout)
	}
	if cfg.Comfy.Endpoint != "http://localhost:8188" {
		t.Fatalf("Comfy endpoint mismatch: %q", cfg.Comfy.Endpoint)
	}
	if cfg.Comfy.NegativePrompt != "text, watermark, bad quality, blur, noise" {
		t.Fatalf("NegativePrompt mismatch: %q", cfg.Comfy.NegativePrompt)
	}
	if cfg.Server.PublicBaseURL != "http://localhost:8000/outputs" {
		t.Fatalf("PublicBaseURL mismatch: %q", cfg.Server.PublicBaseURL)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "http://localhost:5173" {
		t.Fatalf("CORSOrigins mismatch: %#v", cfg.Server.CORSOrigins)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel mismatch: %v", cfg.LogLevel)
	}
	if cfg.Providers.OpenAIAPIKey != "" || cfg.Providers.GeminiAPIKey != "" {
		t.Fatal("credentials must default to empty")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROVIDER_TIMEOUT", "45")
	t.Setenv("COMFY_UI_ENDPOINT", "http://comfy:8188/")
	t.Setenv("LISTEN_ADDR", "0.0.0.0:9000")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test,,")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv returned error: %v", err)
	}
	if cfg.Providers.Timeout != 45*time.Second {
		t.Fatalf("Timeout mismatch: %v", cfg.Providers.Timeout)
	}
	if cfg.Comfy.Endpoint != "http://comfy:8188" {
		t.Fatalf("Comfy endpoint mismatch: %q", cfg.Comfy.Endpoint)
	}
	if cfg.Server.PublicBaseURL != "http://0.0.0.0:9000/outputs" {
		t.Fatalf("PublicBaseURL mismatch: %q", cfg.Server.PublicBaseURL)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "http://b.test" {
		t.Fatalf("CORSOrigins mismatch: %#v", cfg.Server.CORSOrigins)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel mismatch: %v", cfg.LogLevel)
	}
}

func TestFromEnvEmptyDecorations(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROMPT_SUFFIX", "")
	t.Setenv("NEGATIVE_PROMPT", "")
	t.Setenv("COMFY_UI_ENDPOINT", "")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv returned error: %v", err)
	}
	if cfg.Comfy.PromptSuffix != "" || cfg.Comfy.NegativePrompt != "" {
		t.Fatalf("decorations should be disabled: suffix %q, negative %q", cfg.Comfy.PromptSuffix, cfg.Comfy.NegativePrompt)
	}
	if cfg.Comfy.Endpoint != "http://localhost:8188" {
		t.Fatalf("empty endpoint should fall back to the default: %q", cfg.Comfy.Endpoint)
	}
}

func TestFromEnvInvalidTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROVIDER_TIMEOUT", "soon")

	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for invalid PROVIDER_TIMEOUT")
	}

	t.Setenv("PROVIDER_TIMEOUT", "1m30s")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv returned error: %v", err)
	}
	if cfg.Providers.Timeout != 90*time.Second {
		t.Fatalf("Timeout mismatch: %v", cfg.Providers.Timeout)
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("OPENAI_API_KEY=sk-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Providers.OpenAIAPIKey != "sk-file" {
		t.Fatalf("OpenAIAPIKey mismatch: %q", cfg.Providers.OpenAIAPIKey)
	}
}

func TestLoadMissingEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	if _, err := Load(); err != nil {
		t.Fatalf("missing env file must not fail: %v", err)
	}
}
