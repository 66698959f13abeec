package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	StoreDriver    string
	DBSource       string
	Port           string
	Env            string
	GatewayBaseURL string
	GatewaySecret  string
	GatewayTimeout time.Duration
	WebhookSecret  string
	Currency       string
}

func Load() (*Config, error) {
	driver := os.Getenv("STORE_DRIVER")
	if driver == "" {
		driver = "postgres"
	}
	if driver != "postgres" && driver != "memory" {
		return nil, fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", driver)
	}

	dbSource := os.Getenv("DB_SOURCE")
	if driver == "postgres" && dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	gatewayURL := os.Getenv("GATEWAY_BASE_URL")
	if gatewayURL == "" {
		return nil, fmt.Errorf("GATEWAY_BASE_URL environment variable is required")
	}

	gatewaySecret := os.Getenv("GATEWAY_SECRET")
	if gatewaySecret == "" {
		return nil, fmt.Errorf("GATEWAY_SECRET environment variable is required")
	}

	gatewayTimeout := 10 * time.Second
	if raw := os.Getenv("GATEWAY_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid GATEWAY_TIMEOUT %q: %w", raw, err)
		}
		gatewayTimeout = d
	}

	webhookSecret := os.Getenv("WEBHOOK_SECRET")
	if webhookSecret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET environment variable is required")
	}

	currency := os.Getenv("WALLET_CURRENCY")
	if currency == "" {
		currency = "NGN"
	}

	return &Config{
		StoreDriver:    driver,
		DBSource:       dbSource,
		Port:           port,
		Env:            env,
		GatewayBaseURL: gatewayURL,
		GatewaySecret:  gatewaySecret,
		GatewayTimeout: gatewayTimeout,
		WebhookSecret:  webhookSecret,
		Currency:       currency,
	}, nil
}
