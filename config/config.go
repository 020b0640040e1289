package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"

	EventsBackendRabbitMQ = "rabbitmq"
	EventsBackendPubSub   = "pubsub"

	ArchiveBackendMinio = "minio"
	ArchiveBackendGCS   = "gcs"
)

type Config struct {
	Env        string `env:"ENV"         envDefault:"production"`
	ServerPort int    `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel   string `env:"LOG_LEVEL"   envDefault:"info"`

	// JWTSecret signs and verifies every bearer token.
	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`

	// AuthRatePerMinute throttles register and login per client; 0 disables.
	AuthRatePerMinute int `env:"AUTH_RATE_LIMIT_PER_MINUTE" envDefault:"60"`

	StoreBackend string         `env:"STORE_BACKEND" envDefault:"postgres"`
	Database     DatabaseConfig `envPrefix:"DB_"`

	Events  EventsConfig
	Archive ArchiveConfig
}

type DatabaseConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"accounts"`
	Password string `env:"PASSWORD" envDefault:"password"`
	DBName   string `env:"NAME"     envDefault:"accounts_db"`
	UseSSL   bool   `env:"USE_SSL"  envDefault:"false"`
}

type EventsConfig struct {
	Backend  string `env:"EVENTS_BACKEND"`
	Channel  string `env:"EVENTS_CHANNEL" envDefault:"account-events"`
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL          string `env:"RABBITMQ_URL"`
	QueueDurable bool   `env:"RABBITMQ_QUEUE_DURABLE" envDefault:"true"`
}

type PubSubConfig struct {
	ProjectID       string `env:"PUBSUB_PROJECT_ID"`
	CredentialsFile string `env:"PUBSUB_CREDENTIALS_FILE"`
}

type ArchiveConfig struct {
	Backend string `env:"ARCHIVE_BACKEND"`
	Prefix  string `env:"ARCHIVE_PREFIX" envDefault:"account-events"`
	Minio   MinioConfig
	GCS     GCSConfig
}

type MinioConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET" envDefault:"account-audit"`
	UseSSL    bool   `env:"MINIO_USE_SSL"`
}

type GCSConfig struct {
	Bucket          string `env:"GCS_BUCKET"`
	ProjectID       string `env:"GCS_PROJECT_ID"`
	CredentialsFile string `env:"GCS_CREDENTIALS_FILE"`
}

// LoadConfig reads configuration from the environment. In dev, a local
// .env file is loaded first; variables already set take precedence.
func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case StoreBackendPostgres, StoreBackendMemory:
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.Events.Backend {
	case "", EventsBackendRabbitMQ, EventsBackendPubSub:
	default:
		return fmt.Errorf("unsupported EVENTS_BACKEND %q", c.Events.Backend)
	}
	switch c.Archive.Backend {
	case "", ArchiveBackendMinio, ArchiveBackendGCS:
	default:
		return fmt.Errorf("unsupported ARCHIVE_BACKEND %q", c.Archive.Backend)
	}
	if c.AuthRatePerMinute < 0 {
		return fmt.Errorf("AUTH_RATE_LIMIT_PER_MINUTE must not be negative")
	}
	return nil
}

// IsDev reports whether the process runs in local development mode.
func (c Config) IsDev() bool {
	return c.Env == "dev"
}
