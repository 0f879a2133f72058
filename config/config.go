/*
Package config loads the ledger engine configuration.

PURPOSE:
  One YAML file drives the server, the store backend, the normalizer's
  reserved titles, the danger threshold and the exchange-rate table.
  Every field has a default, so an empty or missing file is valid.

EXAMPLE:
  server:
    port: 8080
  store:
    driver: sqlite          # sqlite | mongo | memory
    path: ./data/ledger.db
  ledger:
    baseCurrency: CNY
    userTitle: 3998
    currencyTitle: 3999
    maxSpanDays: 20
  rates:
    base: CNY
    entries:
      - {currency: USD, date: 2024-01-01, rate: "7.1"}
  log:
    level: info
    development: false

SEE ALSO:
  - cli/serve.go: flags that override the file
*/
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/warp/ledger-engine/exchange"
	"github.com/warp/ledger-engine/ledger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

type Config struct {
	Server Server `yaml:"server"`
	Store  Store  `yaml:"store"`
	Ledger Ledger `yaml:"ledger"`
	Rates  Rates  `yaml:"rates"`
	Log    Log    `yaml:"log"`
}

type Server struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

type Store struct {
	Driver string `yaml:"driver"`

	// sqlite
	Path string `yaml:"path"`

	// mongo
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type Ledger struct {
	BaseCurrency  string `yaml:"baseCurrency"`
	UserTitle     int    `yaml:"userTitle"`
	CurrencyTitle int    `yaml:"currencyTitle"`
	IgnoredSuffix string `yaml:"ignoredSuffix"`
	Strict        bool   `yaml:"strict"`
	MaxSpanDays   int    `yaml:"maxSpanDays"`
}

type Rates struct {
	Base    string           `yaml:"base"`
	Entries []exchange.Entry `yaml:"entries"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	n := ledger.DefaultNormalizer()
	return Config{
		Server: Server{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Store: Store{
			Driver:     DriverSQLite,
			Path:       "ledger.db",
			Database:   "ledger",
			Collection: "vouchers",
		},
		Ledger: Ledger{
			BaseCurrency:  n.BaseCurrency,
			UserTitle:     n.UserTitle,
			CurrencyTitle: n.CurrencyTitle,
			IgnoredSuffix: n.IgnoredSuffix,
			MaxSpanDays:   ledger.DefaultSafety.MaxSpanDays,
		},
		Rates: Rates{Base: n.BaseCurrency},
		Log:   Log{Level: "info"},
	}
}

// Load decodes r over the defaults.
func Load(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads path. An empty path yields the defaults.
func LoadFile(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return errors.New("config: store.path is required for sqlite")
		}
	case DriverMongo:
		if c.Store.URI == "" || c.Store.Database == "" {
			return errors.New("config: store.uri and store.database are required for mongo")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	if c.Ledger.UserTitle == c.Ledger.CurrencyTitle {
		return errors.New("config: userTitle and currencyTitle must differ")
	}
	if c.Ledger.MaxSpanDays < 0 {
		return errors.New("config: maxSpanDays cannot be negative")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// =============================================================================
// BUILDERS - Turn sections into engine values
// =============================================================================

func (l Ledger) Normalizer() ledger.Normalizer {
	return ledger.Normalizer{
		BaseCurrency:  l.BaseCurrency,
		UserTitle:     l.UserTitle,
		CurrencyTitle: l.CurrencyTitle,
		IgnoredSuffix: l.IgnoredSuffix,
		Strict:        l.Strict,
	}
}

func (l Ledger) Safety() ledger.Safety {
	return ledger.Safety{MaxSpanDays: l.MaxSpanDays}
}

func (r Rates) Table() (*exchange.Table, error) {
	return exchange.FromEntries(r.Base, r.Entries)
}

// Logger builds a zap logger at the configured level.
func (l Log) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(l.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
