package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Auth     AuthConfig
	RabbitMQ RabbitMQConfig
	Claims   ClaimsConfig
}

type ServerConfig struct {
	Host string `validate:"required"`
	Port int    `validate:"min=1,max=65535"`
}

type RedisConfig struct {
	Addr     string `validate:"required,hostname_port"`
	Password string
	DB       int `validate:"min=0"`
}

type PostgresConfig struct {
	User     string `validate:"required"`
	Password string `validate:"required"`
	Name     string `validate:"required"`
	Host     string `validate:"required"`
	Port     int    `validate:"min=1,max=65535"`
	SSLMode  string `validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns int32  `validate:"min=0"`
}

type AuthConfig struct {
	JWTSecret string `validate:"required,min=16"`
}

// RabbitMQConfig is optional; without a URL claim notifications are only logged.
type RabbitMQConfig struct {
	URL      string `validate:"omitempty,url"`
	Exchange string `validate:"required"`
}

type ClaimsConfig struct {
	DefaultOfferWindow time.Duration `validate:"min=1m"`
	SweepInterval      time.Duration `validate:"min=1s"`
	SweepBatch         int           `validate:"min=1"`
	RateLimit          int           `validate:"min=1"`
	RateWindow         time.Duration `validate:"min=1s"`
	IdempotencyTTL     time.Duration `validate:"min=1m"`
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	var (
		cfg  Config
		errs []error
	)

	cfg.Server = ServerConfig{
		Host: getenv("SERVER_HOST", "localhost"),
		Port: getInt("SERVER_PORT", 8080, &errs),
	}

	cfg.Postgres = PostgresConfig{
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Name:     os.Getenv("POSTGRES_DB"),
		Host:     getenv("POSTGRES_HOST", "localhost"),
		Port:     getInt("POSTGRES_PORT", 5432, &errs),
		SSLMode:  getenv("POSTGRES_SSLMODE", "disable"),
		MaxConns: int32(getInt("POSTGRES_MAX_CONNS", 0, &errs)),
	}

	cfg.Redis = RedisConfig{
		Addr:     getenv("REDIS_ADDR", "localhost:6380"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getInt("REDIS_DB", 0, &errs),
	}

	cfg.Auth = AuthConfig{
		JWTSecret: os.Getenv("JWT_SECRET"),
	}

	cfg.RabbitMQ = RabbitMQConfig{
		URL:      os.Getenv("RABBITMQ_URL"),
		Exchange: getenv("RABBITMQ_EXCHANGE", "openmic.claims"),
	}

	cfg.Claims = ClaimsConfig{
		DefaultOfferWindow: time.Duration(getInt("DEFAULT_OFFER_WINDOW_MINUTES", 120, &errs)) * time.Minute,
		SweepInterval:      getDuration("SWEEP_INTERVAL", time.Minute, &errs),
		SweepBatch:         getInt("SWEEP_BATCH", 100, &errs),
		RateLimit:          getInt("CLAIM_RATE_LIMIT", 10, &errs),
		RateWindow:         getDuration("CLAIM_RATE_WINDOW", time.Minute, &errs),
		IdempotencyTTL:     getDuration("IDEMPOTENCY_TTL", 2*time.Hour, &errs),
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%s: %w", op, errs[0])
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

// DSN is the libpq connection URL for the configured database.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Name,
		p.SSLMode,
	)
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}

	return n
}

func getDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}

	return d
}
