// Package config содержит логику чтения конфигурации сервиса книжного магазина.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const defaultRunAddress = "localhost:8080"

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress             string `env:"RUN_ADDRESS"`
	DatabaseURI            string `env:"DATABASE_URI"`
	JWTSecret              string `env:"JWT_SECRET"`
	AMQPURL                string `env:"AMQP_URL"`
	RealtimeGatewayAddress string `env:"REALTIME_GATEWAY_ADDRESS"`

	MilestoneThreshold  int           `env:"MILESTONE_THRESHOLD" envDefault:"10"`
	MilestonePercentage int           `env:"MILESTONE_PERCENTAGE" envDefault:"10"`
	RedeliveryInterval  time.Duration `env:"REDELIVERY_INTERVAL" envDefault:"30s"`

	AdminLogin    string `env:"ADMIN_LOGIN"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Значения из окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envJWTSecret := cfg.JWTSecret
	envAMQPURL := cfg.AMQPURL
	envGatewayAddress := cfg.RealtimeGatewayAddress

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.JWTSecret, "s", "", "secret for signing auth tokens")
	flag.StringVar(&cfg.AMQPURL, "q", "", "RabbitMQ URL for live notifications")
	flag.StringVar(&cfg.RealtimeGatewayAddress, "g", "", "realtime gateway address for live notifications")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envJWTSecret != "" {
		cfg.JWTSecret = envJWTSecret
	}
	if envAMQPURL != "" {
		cfg.AMQPURL = envAMQPURL
	}
	if envGatewayAddress != "" {
		cfg.RealtimeGatewayAddress = envGatewayAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.MilestoneThreshold <= 0 {
		return errors.New("milestone threshold must be positive")
	}
	if c.MilestonePercentage <= 0 || c.MilestonePercentage > 100 {
		return errors.New("milestone percentage must be in range 1..100")
	}
	if c.RedeliveryInterval <= 0 {
		return errors.New("redelivery interval must be positive")
	}
	return nil
}
