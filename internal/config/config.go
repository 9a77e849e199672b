// Package config loads order service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration.
type Config struct {
	Server   ServerConfig
	Tracing  TracingConfig
	Payment  PaymentConfig
	Messages MessagingConfig
	Orders   OrdersConfig
	Logging  LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// TracingConfig holds trace engine configuration.
type TracingConfig struct {
	ServiceName     string `envconfig:"SERVICE_NAME" default:"order-service"`
	RequestIDHeader string `envconfig:"REQUEST_ID_HEADER" default:"x-request-id"`
	HandlerWorkers  int    `envconfig:"SPAN_HANDLER_WORKERS" default:"4"`
	HandlerQueue    int    `envconfig:"SPAN_HANDLER_QUEUE" default:"1024"`
}

// PaymentConfig holds downstream payment service configuration.
type PaymentConfig struct {
	URL     string        `envconfig:"PAYMENT_URL" default:"http://localhost:8001/payment"`
	Timeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"5s"`
	Retries int           `envconfig:"HTTP_RETRIES" default:"0"`
}

// MessagingConfig holds event publishing configuration.
type MessagingConfig struct {
	OrderTopic string `envconfig:"ORDER_TOPIC" default:"reports-ms-dev01"`
}

// OrdersConfig tunes the simulated order store.
type OrdersConfig struct {
	SaveDelay       time.Duration `envconfig:"ORDER_SAVE_DELAY" default:"1s"`
	SaveFailureRate float64       `envconfig:"ORDER_SAVE_FAILURE_RATE" default:"0.1"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	if c.Tracing.RequestIDHeader == "" {
		return fmt.Errorf("invalid config: REQUEST_ID_HEADER must not be empty")
	}
	if c.Orders.SaveFailureRate < 0 || c.Orders.SaveFailureRate > 1 {
		return fmt.Errorf("invalid config: ORDER_SAVE_FAILURE_RATE %v outside [0,1]", c.Orders.SaveFailureRate)
	}
	if c.Tracing.HandlerWorkers < 0 || c.Tracing.HandlerQueue < 0 {
		return fmt.Errorf("invalid config: span handler workers and queue must not be negative")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
		},
		Tracing: TracingConfig{
			ServiceName:     "order-service",
			RequestIDHeader: "x-request-id",
			HandlerWorkers:  4,
			HandlerQueue:    1024,
		},
		Payment: PaymentConfig{
			URL:     "http://localhost:8001/payment",
			Timeout: 5 * time.Second,
		},
		Messages: MessagingConfig{
			OrderTopic: "reports-ms-dev01",
		},
		Orders: OrdersConfig{
			SaveDelay:       time.Second,
			SaveFailureRate: 0.1,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}
