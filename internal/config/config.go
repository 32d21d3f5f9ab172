package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is built once in main and passed by reference to every
// component that needs it.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	LLM      LLMConfig
	Scoring  ScoringConfig
	Crypto   CryptoConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"call-scoring-go"`
	Env      string `envconfig:"ENVIRONMENT" default:"local"`
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type LLMConfig struct {
	APIURL  string        `envconfig:"LLM_API_URL"`
	Timeout time.Duration `envconfig:"LLM_TIMEOUT" default:"30s"`
	// MaxRetryTime bounds the backoff window around one scoring attempt.
	MaxRetryTime time.Duration `envconfig:"LLM_MAX_RETRY_TIME" default:"45s"`
	MockMode     bool          `envconfig:"USE_MOCK_LLM" default:"false"`
}

type ScoringConfig struct {
	// Workers bounds concurrent (call, dashboard type) scoring tasks.
	Workers      int           `envconfig:"SCORING_WORKERS" default:"4"`
	ScanInterval time.Duration `envconfig:"SCORING_SCAN_INTERVAL" default:"30s"`
	ScanLimit    int           `envconfig:"SCORING_SCAN_LIMIT" default:"50"`
}

type CryptoConfig struct {
	// 32 bytes for AES-256-GCM
	EncryptionKey string `envconfig:"ENCRYPTION_KEY" required:"true"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	return &cfg, nil
}
