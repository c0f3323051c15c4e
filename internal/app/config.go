package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (POS_ prefix), flags, a .env file, or YAML config
// files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address" validate:"required,hostname_port"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (POS_DATABASE_URL or DATABASE_URL)" flag:"database-url" validate:"required"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (POS_API_KEY_PEPPER)" flag:"api-key-pepper" validate:"required,min=16"`
	Timezone     string `default:"UTC" usage:"IANA timezone that defines calendar days for numbering and reports" validate:"timezone"`
	Redis        RedisConfig
	Events       EventsConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// RedisConfig controls the settings cache. An empty Addr disables it.
type RedisConfig struct {
	Addr        string        `usage:"Redis address for the settings cache" validate:"omitempty,hostname_port"`
	KeyPrefix   string        `default:"pos" usage:"Redis key prefix"`
	SettingsTTL time.Duration `default:"5m" usage:"Settings cache TTL" flag:"settings-ttl" validate:"gte=0"`
}

// EventsConfig selects the order event publisher.
type EventsConfig struct {
	Driver         string        `default:"none" usage:"Event publisher: none, kafka or amqp" validate:"oneof=none kafka amqp"`
	PublishTimeout time.Duration `default:"2s" usage:"Upper bound on one event publish" flag:"publish-timeout" validate:"gt=0"`
	Kafka          KafkaConfig
	AMQP           AMQPConfig
}

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka brokers" validate:"dive,hostname_port"`
	Topic   string   `default:"pos.orders" usage:"Kafka topic for order events"`
}

// AMQPConfig configures the RabbitMQ publisher.
type AMQPConfig struct {
	URL      string `usage:"AMQP connection URL" validate:"omitempty,url"`
	Exchange string `default:"pos.orders" usage:"Topic exchange for order events"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window" validate:"gt=0"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration" validate:"gt=0"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins" validate:"min=1"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// Location returns the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "load timezone %q", c.Timezone)
	}
	return loc, nil
}

// LoadConfig loads configuration from a .env file, environment variables
// and YAML config files, applies platform-specific defaults and validates
// the result.
func LoadConfig() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "POS",
		Files:     []string{"config.yaml", "/etc/pos/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	switch {
	case c.Events.Driver == "kafka" && len(c.Events.Kafka.Brokers) == 0:
		return errors.New("invalid config: events.kafka.brokers is required for the kafka driver")
	case c.Events.Driver == "amqp" && c.Events.AMQP.URL == "":
		return errors.New("invalid config: events.amqp.url is required for the amqp driver")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's POS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
