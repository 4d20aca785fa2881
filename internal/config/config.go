package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/alsolver/alsolver/internal/consts"
)

type Config struct {
	TelegramBotToken string `validate:"required"`
	WebhookURL       string `validate:"omitempty,url"`
	WebhookSecret    string
	Port             string `validate:"required,numeric"`

	// Text model used to solve questions
	LLMProvider    string  `validate:"required,oneof=groq openai gemini"`
	LLMEndpoint    string  `validate:"omitempty,url"`
	LLMToken       string
	LLMModel       string  `validate:"required"`
	LLMTemperature float32 `validate:"min=0,max=2"`

	// Gemini is used for the vision strategy and for LLM_PROVIDER=gemini
	GeminiAPIKey string
	GeminiModel  string

	OCRAPIKey   string
	OCREndpoint string `validate:"required,url"`
	OCRLanguage string `validate:"required"`

	PhotoStrategy string `validate:"required,oneof=ocr vision"`

	DailyFreeLimit     int  `validate:"min=1"`
	LimitTextQuestions bool // also charge text questions against the daily quota
	StrictQuota        bool // serialise check-and-increment per user

	PostgreDSN string

	LogLevel string
	LogDir   string

	HTTPTimeout time.Duration `validate:"min=1s"`
}

// Load reads configuration from an optional .env file and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		WebhookURL:       os.Getenv("WEBHOOK_URL"),
		WebhookSecret:    os.Getenv("WEBHOOK_SECRET"),
		Port:             getEnvOrDefault("PORT", "8080"),

		LLMProvider: strings.ToLower(getEnvOrDefault("LLM_PROVIDER", consts.ProviderGroq)),
		LLMEndpoint: getEnvOrDefault("LLM_ENDPOINT", "https://api.groq.com/openai/v1"),
		LLMToken:    os.Getenv("LLM_TOKEN"),
		LLMModel:    getEnvOrDefault("LLM_MODEL", "llama-3.1-70b-versatile"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),

		OCRAPIKey:   os.Getenv("OCR_SPACE_API_KEY"),
		OCREndpoint: getEnvOrDefault("OCR_ENDPOINT", "https://api.ocr.space/parse/image"),
		OCRLanguage: getEnvOrDefault("OCR_LANGUAGE", "eng"),

		PhotoStrategy: strings.ToLower(getEnvOrDefault("PHOTO_STRATEGY", consts.PhotoStrategyOCR)),

		PostgreDSN: os.Getenv("POSTGRE_DSN"),
		LogLevel:   getEnvOrDefault("LOG_LEVEL", "info"),
		LogDir:     getEnvOrDefault("LOG_DIR", "logs"),
	}

	var err error
	if cfg.LLMTemperature, err = getFloatOrDefault("LLM_TEMPERATURE", 0.2); err != nil {
		return nil, err
	}
	if cfg.DailyFreeLimit, err = getIntOrDefault("DAILY_FREE_LIMIT", consts.DefaultDailyFreeLimit); err != nil {
		return nil, err
	}
	if cfg.LimitTextQuestions, err = getBoolOrDefault("LIMIT_TEXT_QUESTIONS", false); err != nil {
		return nil, err
	}
	if cfg.StrictQuota, err = getBoolOrDefault("STRICT_QUOTA", false); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getDurationOrDefault("HTTP_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var validate = validator.New()

func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid configuration: field %s failed %q", verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	required := map[string]string{
		"TELEGRAM_BOT_TOKEN": c.TelegramBotToken,
	}
	if c.LLMProvider == consts.ProviderGemini {
		required["GEMINI_API_KEY"] = c.GeminiAPIKey
	} else {
		required["LLM_TOKEN"] = c.LLMToken
	}
	switch c.PhotoStrategy {
	case consts.PhotoStrategyOCR:
		required["OCR_SPACE_API_KEY"] = c.OCRAPIKey
	case consts.PhotoStrategyVision:
		required["GEMINI_API_KEY"] = c.GeminiAPIKey
	}

	for key, value := range required {
		if value == "" {
			return fmt.Errorf("required environment variable %s is not set", key)
		}
	}

	return nil
}

func (c *Config) HasDatabaseConfig() bool {
	return c.PostgreDSN != ""
}

func (c *Config) HasWebhookConfig() bool {
	return c.WebhookURL != ""
}

// getEnvOrDefault returns the environment variable value or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer: %w", key, err)
	}
	return n, nil
}

func getFloatOrDefault(key string, defaultValue float32) (float32, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 32)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be a number: %w", key, err)
	}
	return float32(f), nil
}

func getBoolOrDefault(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("environment variable %s must be a boolean: %w", key, err)
	}
	return b, nil
}

func getDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be a duration: %w", key, err)
	}
	return d, nil
}
