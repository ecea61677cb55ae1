// Package config читает настройки сервиса из переменных окружения.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"

	"stockledger/internal/auth"
	"stockledger/internal/repository"
	"stockledger/internal/service"
)

// Prefix of every environment variable, e.g. STOCKLEDGER_ADMIN_SECRET.
const Prefix = "stockledger"

const StorageMemory = "memory"

type Config struct {
	HTTPAddr        string        `envconfig:"http_addr" default:":9091"`
	Storage         string        `envconfig:"storage" default:"memory"`
	DSN             string        `envconfig:"dsn"`
	AdminSecret     string        `envconfig:"admin_secret" required:"true"`
	PasswordScheme  string        `envconfig:"password_scheme" default:"plain"`
	TxDeleteMode    string        `envconfig:"tx_delete_mode" default:"reverse"`
	SeedFile        string        `envconfig:"seed_file"`
	LogLevel        string        `envconfig:"log_level" default:"info"`
	LogFormat       string        `envconfig:"log_format" default:"text"`
	ShutdownTimeout time.Duration `envconfig:"shutdown_timeout" default:"5s"`
}

// Load reads and validates the configuration.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case repository.DriverSQLite, repository.DriverMySQL:
		if c.DSN == "" {
			return errors.Errorf("storage %s requires a DSN", c.Storage)
		}
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}
	if c.AdminSecret == "" {
		return errors.New("admin secret must not be empty")
	}
	switch c.PasswordScheme {
	case auth.SchemePlain, auth.SchemeBcrypt:
	default:
		return errors.Errorf("unknown password scheme %q", c.PasswordScheme)
	}
	switch service.DeleteMode(c.TxDeleteMode) {
	case service.DeleteReverse, service.DeleteHard:
	default:
		return errors.Errorf("unknown transaction delete mode %q", c.TxDeleteMode)
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	return nil
}

// Persistent reports whether the configured storage survives restarts.
func (c *Config) Persistent() bool { return c.Storage != StorageMemory }
