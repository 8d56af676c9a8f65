package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the configuration for the application.
type Config struct {
	Port         string
	DatabasePath string

	// LLM Config
	LLMProvider string // "openai", "openai-compatible", "google"
	LLMAPIKey   string
	LLMModel    string
	LLMBaseURL  string

	// Telegram Config
	TelegramBotToken   string
	TelegramWebhookURL string

	// Google OAuth (web login + calendar sync)
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Admin chat id for the /metrics report
	AdminTelegramID int64
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	provider := os.Getenv("LLM_PROVIDER")
	if provider == "" {
		return nil, fmt.Errorf("LLM_PROVIDER environment variable not set")
	}

	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY environment variable not set")
	}

	model := os.Getenv("LLM_MODEL")
	if model == "" {
		return nil, fmt.Errorf("LLM_MODEL environment variable not set")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/cookin.db"
	}

	var adminID int64
	if s := os.Getenv("ADMIN_TELEGRAM_ID"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is not a valid integer: %w", err)
		}
		adminID = id
	}

	return &Config{
		Port:               port,
		DatabasePath:       dbPath,
		LLMProvider:        provider,
		LLMAPIKey:          apiKey,
		LLMModel:           model,
		LLMBaseURL:         os.Getenv("LLM_BASE_URL"),
		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL: os.Getenv("TELEGRAM_WEBHOOK_URL"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
		AdminTelegramID:    adminID,
	}, nil
}
