package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

const (
	QueueBackendMemory   = "memory"
	QueueBackendRabbitMQ = "rabbitmq"

	ChannelDriverChrome  = "chrome"
	ChannelDriverGateway = "gateway"
)

type Config struct {
	DatabaseDSN       string        `env:"DATABASE_DSN,required=true"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=10"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=2"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=1h"`
	DBSlowQuery       time.Duration `env:"DB_SLOW_QUERY,default=500ms"`

	APIPort      int    `env:"API_PORT,default=8080"`
	LogLevel     string `env:"LOG_LEVEL,default=info"`
	QueueBackend string `env:"QUEUE_BACKEND,default=memory"`
	RabbitMQURL  string `env:"RABBITMQ_URL"`
	RedisURL     string `env:"REDIS_URL"`

	ChannelDriver      string        `env:"CHANNEL_DRIVER,default=chrome"`
	ChannelBaseURL     string        `env:"CHANNEL_BASE_URL,default=https://web.whatsapp.com"`
	ChannelProfileDir  string        `env:"CHANNEL_PROFILE_DIR,default=./data/channel-profile"`
	ChannelHeadless    bool          `env:"CHANNEL_HEADLESS,default=false"`
	GatewayURL         string        `env:"GATEWAY_URL"`
	GatewayToken       string        `env:"GATEWAY_TOKEN"`
	SessionAuthTimeout time.Duration `env:"SESSION_AUTH_TIMEOUT,default=300s"`
	SendTimeout        time.Duration `env:"SEND_TIMEOUT,default=30s"`
	DispatchInterval   time.Duration `env:"DISPATCH_INTERVAL,default=1s"`
	ContactMinDigits   int           `env:"CONTACT_MIN_DIGITS,default=10"`
	ContactMaxDigits   int           `env:"CONTACT_MAX_DIGITS,default=15"`
	CountryCode        string        `env:"COUNTRY_CODE,default=20"`

	FailureLogPath     string `env:"FAILURE_LOG_PATH,default=./data/failed_deliveries.csv"`
	FailureRecordsPath string `env:"FAILURE_RECORDS_PATH,default=./data/failed_contacts.json"`

	AbsenceLookbackDays int    `env:"ABSENCE_LOOKBACK_DAYS,default=2"`
	SweepAt             string `env:"SWEEP_AT,default=20:00"`
	SweepEnabled        bool   `env:"SWEEP_ENABLED,default=false"`
	Timezone            string `env:"TIMEZONE,default=UTC"`
	MessageSignature    string `env:"MESSAGE_SIGNATURE,default=Attendance Office"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Location returns the zone used to decide calendar dates.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) validate() error {
	c.QueueBackend = strings.ToLower(strings.TrimSpace(c.QueueBackend))
	switch c.QueueBackend {
	case QueueBackendMemory:
	case QueueBackendRabbitMQ:
		if c.RabbitMQURL == "" {
			return fmt.Errorf("RABBITMQ_URL is required when QUEUE_BACKEND=%s", QueueBackendRabbitMQ)
		}
	default:
		return fmt.Errorf("unsupported QUEUE_BACKEND %q", c.QueueBackend)
	}

	c.ChannelDriver = strings.ToLower(strings.TrimSpace(c.ChannelDriver))
	switch c.ChannelDriver {
	case ChannelDriverChrome:
	case ChannelDriverGateway:
		if c.GatewayURL == "" {
			return fmt.Errorf("GATEWAY_URL is required when CHANNEL_DRIVER=%s", ChannelDriverGateway)
		}
	default:
		return fmt.Errorf("unsupported CHANNEL_DRIVER %q", c.ChannelDriver)
	}

	if c.ContactMinDigits <= 0 || c.ContactMaxDigits < c.ContactMinDigits {
		return fmt.Errorf("invalid contact digit range %d-%d", c.ContactMinDigits, c.ContactMaxDigits)
	}
	if c.AbsenceLookbackDays < 1 {
		return fmt.Errorf("ABSENCE_LOOKBACK_DAYS must be at least 1")
	}
	if _, err := time.Parse("15:04", c.SweepAt); err != nil {
		return fmt.Errorf("SWEEP_AT %q must be HH:MM", c.SweepAt)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("unknown TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}

// FailurePaths locates the failure store for tools that do not need the rest
// of the service configuration.
type FailurePaths struct {
	LogPath     string `env:"FAILURE_LOG_PATH,default=./data/failed_deliveries.csv"`
	RecordsPath string `env:"FAILURE_RECORDS_PATH,default=./data/failed_contacts.json"`
}

func LoadFailurePaths() (*FailurePaths, error) {
	var paths FailurePaths
	if _, err := env.UnmarshalFromEnviron(&paths); err != nil {
		return nil, fmt.Errorf("failed to load failure store paths: %w", err)
	}
	return &paths, nil
}
