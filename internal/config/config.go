// Package config содержит логику чтения конфигурации менеджера бонусов.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress   = "localhost:8080"
	defaultShareBaseURI = "https://wa.me"
	defaultAdminURL     = "/admin/"
)

// Config содержит параметры конфигурации менеджера бонусов.
type Config struct {
	RunAddress         string   `env:"RUN_ADDRESS"`
	DatabaseURI        string   `env:"DATABASE_URI"`
	RedisAddress       string   `env:"REDIS_ADDRESS"`
	SecretKey          string   `env:"SECRET_KEY"`
	ShareBaseURI       string   `env:"SHARE_BASE_URI"`
	AdminURL           string   `env:"ADMIN_URL"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for pending notices")
	flag.StringVar(&cfg.SecretKey, "k", "", "secret key for session cookies")
	flag.StringVar(&cfg.ShareBaseURI, "w", defaultShareBaseURI, "base URI of shareable message links")
	flag.StringVar(&cfg.AdminURL, "admin", defaultAdminURL, "administrative surface URL for privileged users")

	flag.Parse()

	override(&cfg.RunAddress, fromEnv.RunAddress)
	override(&cfg.DatabaseURI, fromEnv.DatabaseURI)
	override(&cfg.RedisAddress, fromEnv.RedisAddress)
	override(&cfg.SecretKey, fromEnv.SecretKey)
	override(&cfg.ShareBaseURI, fromEnv.ShareBaseURI)
	override(&cfg.AdminURL, fromEnv.AdminURL)

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.ShareBaseURI == "" {
		cfg.ShareBaseURI = defaultShareBaseURI
	}
	if cfg.AdminURL == "" {
		cfg.AdminURL = defaultAdminURL
	}

	return cfg, nil
}

func override(dst *string, envValue string) {
	if envValue != "" {
		*dst = envValue
	}
}

// AdminConfig содержит параметры административной утилиты.
type AdminConfig struct {
	DatabaseURI string `env:"DATABASE_URI"`
	// Имя подкоманды и её аргументы.
	Command string
	Args    []string
}

// ParseAdmin разбирает общие флаги административной утилиты.
// Переменные окружения имеют приоритет над флагами.
func ParseAdmin(args []string) (*AdminConfig, error) {
	cfg := &AdminConfig{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	fromEnv := cfg.DatabaseURI

	fs := flag.NewFlagSet("bonusadmin", flag.ContinueOnError)
	fs.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	override(&cfg.DatabaseURI, fromEnv)

	if cfg.DatabaseURI == "" {
		return nil, fmt.Errorf("database URI is required")
	}
	if fs.NArg() == 0 {
		return nil, fmt.Errorf("command is required")
	}

	cfg.Command = fs.Arg(0)
	cfg.Args = fs.Args()[1:]
	return cfg, nil
}
