// Package config loads relay settings from the environment and an optional
// .env file into explicit values.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Providers holds the settings of the description providers. Empty
// credentials are reported when the provider is resolved, not at load time.
type Providers struct {
	OllamaEndpoint string
	OllamaModel    string

	OpenAIEndpoint string
	OpenAIAPIKey   string
	OpenAIModel    string

	GeminiAPIKey      string
	GeminiEndpoint    string
	GeminiModel       string
	GeminiVisionModel string

	// Timeout bounds a whole description call including retries
	Timeout time.Duration
}

// Comfy holds the generation engine settings.
type Comfy struct {
	Endpoint       string
	WorkflowPath   string
	ClientID       string
	PromptSuffix   string
	NegativePrompt string
}

// Server holds the HTTP surface settings.
type Server struct {
	ListenAddr    string
	OutputDir     string
	PublicBaseURL string
	CORSOrigins   []string
}

// Config represents application configuration loaded from environment variables.
type Config struct {
	Providers Providers
	Comfy     Comfy
	Server    Server
	LogLevel  slog.Level
}

// Load reads ENV_FILE (default ".env") if present, then the environment.
// A missing env file is not an error.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	timeout, err := getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	listenAddr := getEnv("LISTEN_ADDR", ":8000")

	cfg := &Config{
		Providers: Providers{
			OllamaEndpoint:    getEnv("OLLAMA_API_ENDPOINT", "http://localhost:11434/api/generate"),
			OllamaModel:       os.Getenv("OLLAMA_MODEL"),
			OpenAIEndpoint:    os.Getenv("OPENAI_API_ENDPOINT"),
			OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
			OpenAIModel:       os.Getenv("OPENAI_MODEL"),
			GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
			GeminiEndpoint:    os.Getenv("GEMINI_API_ENDPOINT"),
			GeminiModel:       os.Getenv("GEMINI_MODEL"),
			GeminiVisionModel: os.Getenv("GEMINI_VISION_MODEL"),
			Timeout:           timeout,
		},
		Comfy: Comfy{
			Endpoint:       strings.TrimRight(getEnv("COMFY_UI_ENDPOINT", "http://localhost:8188"), "/"),
			WorkflowPath:   os.Getenv("COMFY_WORKFLOW_PATH"),
			ClientID:       os.Getenv("COMFY_CLIENT_ID"),
			PromptSuffix:   lookupEnv("PROMPT_SUFFIX", ", photorealistic, masterpiece, best quality"),
			NegativePrompt: lookupEnv("NEGATIVE_PROMPT", "text, watermark, bad quality, blur, noise"),
		},
		Server: Server{
			ListenAddr:    listenAddr,
			OutputDir:     getEnv("OUTPUT_DIR", "outputs"),
			PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", defaultPublicBaseURL(listenAddr)), "/"),
			CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		},
		LogLevel: level,
	}

	return cfg, nil
}

func defaultPublicBaseURL(listenAddr string) string {
	host := listenAddr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "http://" + host + "/outputs"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// lookupEnv is getEnv for settings where an empty value is meaningful.
func lookupEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

// getEnvDuration accepts Go durations ("45s") or whole seconds ("45").
func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
