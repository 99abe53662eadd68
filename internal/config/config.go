package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/quickhelp/quickhelp/internal/consts"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	OCRProviderVision    = "vision"
	OCRProviderTesseract = "tesseract"
)

type Config struct {
	TelegramBotToken string

	LLMProvider string
	LLMEndpoint string
	LLMToken    string
	LLMModel    string
	LLMTimeout  time.Duration

	OCRProvider string
	OCRModel    string
	OCRLanguage string

	FreeLimit          int
	CountFailedAnswers bool

	UpgradeURL    string
	UpgradeQRPath string
	TempDir       string

	// Optional Redis backing for usage and premium state
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MetricsAddr string
	LogLevel    string
	LogDir      string
}

// MissingEnvError is returned when a required environment variable is unset.
type MissingEnvError struct {
	Name string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("required environment variable %s is not set", e.Name)
}

// InvalidEnvError is returned when an environment variable cannot be parsed.
type InvalidEnvError struct {
	Name  string
	Value string
	Err   error
}

func (e *InvalidEnvError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %v", e.Value, e.Name, e.Err)
}

func (e *InvalidEnvError) Unwrap() error {
	return e.Err
}

var defaultModels = map[string]string{
	ProviderOpenAI: "gpt-3.5-turbo",
	ProviderGemini: "gemini-2.5-flash",
}

var defaultOCRModels = map[string]string{
	ProviderOpenAI: "gpt-4o-mini",
	ProviderGemini: "gemini-2.5-flash",
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		TelegramBotToken: getEnvOrDefault("TELEGRAM_BOT_TOKEN", os.Getenv("API_TOKEN")),
		LLMProvider:      strings.ToLower(getEnvOrDefault("LLM_PROVIDER", ProviderOpenAI)),
		LLMEndpoint:      os.Getenv("LLM_ENDPOINT"),
		LLMToken:         getEnvOrDefault("LLM_TOKEN", os.Getenv("OPENAI_API_KEY")),
		LLMModel:         os.Getenv("LLM_MODEL"),
		OCRProvider:      strings.ToLower(getEnvOrDefault("OCR_PROVIDER", OCRProviderVision)),
		OCRModel:         os.Getenv("OCR_MODEL"),
		OCRLanguage:      getEnvOrDefault("OCR_LANGUAGE", "en"),
		UpgradeURL:       getEnvOrDefault("UPGRADE_URL", consts.DefaultUpgradeURL),
		UpgradeQRPath:    getEnvOrDefault("UPGRADE_QR_PATH", consts.DefaultUpgradeQRPath),
		TempDir:          os.Getenv("TEMP_DIR"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		MetricsAddr:      os.Getenv("METRICS_ADDR"),
		LogLevel:         getEnvOrDefault("LOG_LEVEL", "info"),
		LogDir:           getEnvOrDefault("LOG_DIR", "logs"),
	}

	var err error
	if cfg.LLMTimeout, err = durationEnv("LLM_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.FreeLimit, err = intEnv("FREE_LIMIT", 5); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = intEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.CountFailedAnswers, err = boolEnv("COUNT_FAILED_ANSWERS", true); err != nil {
		return nil, err
	}

	if cfg.LLMModel == "" {
		cfg.LLMModel = defaultModels[cfg.LLMProvider]
	}
	if cfg.OCRModel == "" {
		cfg.OCRModel = defaultOCRModels[cfg.LLMProvider]
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	// Checked in order so the first missing secret is reported deterministically
	required := []struct {
		name  string
		value string
	}{
		{"TELEGRAM_BOT_TOKEN", c.TelegramBotToken},
		{"LLM_TOKEN", c.LLMToken},
	}

	for _, r := range required {
		if r.value == "" {
			return &MissingEnvError{Name: r.name}
		}
	}

	if _, ok := defaultModels[c.LLMProvider]; !ok {
		return &InvalidEnvError{Name: "LLM_PROVIDER", Value: c.LLMProvider, Err: errors.New("expected openai or gemini")}
	}

	if c.OCRProvider != OCRProviderVision && c.OCRProvider != OCRProviderTesseract {
		return &InvalidEnvError{Name: "OCR_PROVIDER", Value: c.OCRProvider, Err: errors.New("expected vision or tesseract")}
	}

	if c.FreeLimit <= 0 {
		return &InvalidEnvError{Name: "FREE_LIMIT", Value: strconv.Itoa(c.FreeLimit), Err: errors.New("must be positive")}
	}

	return nil
}

func (c *Config) HasRedisConfig() bool {
	return c.RedisAddr != ""
}

func (c *Config) HasMetricsConfig() bool {
	return c.MetricsAddr != ""
}

// getEnvOrDefault returns the environment variable value or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &InvalidEnvError{Name: key, Value: raw, Err: err}
	}
	return v, nil
}

func boolEnv(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, &InvalidEnvError{Name: key, Value: raw, Err: err}
	}
	return v, nil
}

func durationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, &InvalidEnvError{Name: key, Value: raw, Err: err}
	}
	return v, nil
}
