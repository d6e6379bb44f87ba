/*
Package config loads the server configuration from the environment.

ENVIRONMENT VARIABLES:
  required: values that differ between environments (port)
  default:  values common across environments (store driver, zones, intervals)

  PORT                     HTTP port
  STORE_DRIVER             memory | sqlite | postgres (default sqlite)
  SQLITE_PATH              SQLite file, ":memory:" for a throwaway database
  DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME, DB_SSL_MODE
                           PostgreSQL connection (STORE_DRIVER=postgres)
  LOG_LEVEL                debug | info | warn | error
  LOG_FORMAT               json | text
  ALLOW_MULTI_DAY          accept timed reservations spanning several days
  INTERNAL_EMAIL_DOMAINS   comma separated, attendees in these are employees
  BUILDING_ZONES           building:IANA zone pairs, e.g. HQ:Europe/Paris,NYC:America/New_York
  DEFAULT_TIME_ZONE        zone of buildings missing from BUILDING_ZONES
  CLOSE_INTERVAL           how often elapsed allocations are closed (0 disables)
  SEED_DEMO                load the demo catalog at startup
  CORS_ALLOW_ORIGINS       comma separated
*/
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kelseyhightower/envconfig"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	DB      DBConfig
	Log     LogConfig
	Booking BookingConfig
	CORS    CORSConfig
}

type ServerConfig struct {
	Port         string        `envconfig:"PORT" required:"true"`
	ReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
	SeedDemo     bool          `envconfig:"SEED_DEMO" default:"false"`
}

type StoreConfig struct {
	Driver     string `envconfig:"STORE_DRIVER" default:"sqlite"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"reservations.db"`
}

type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER"`
	Password string `envconfig:"DB_PASSWORD"`
	DBName   string `envconfig:"DB_NAME" default:"reservations"`
	SSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

type BookingConfig struct {
	AllowMultiDay        bool              `envconfig:"ALLOW_MULTI_DAY" default:"false"`
	InternalEmailDomains []string          `envconfig:"INTERNAL_EMAIL_DOMAINS"`
	BuildingZones        map[string]string `envconfig:"BUILDING_ZONES"`
	DefaultTimeZone      string            `envconfig:"DEFAULT_TIME_ZONE" default:"UTC"`
	CloseInterval        time.Duration     `envconfig:"CLOSE_INTERVAL" default:"1h"`
}

type CORSConfig struct {
	AllowOrigins []string `envconfig:"CORS_ALLOW_ORIGINS" default:"http://localhost:5173,http://localhost:8080"`
}

// BuildDSN returns the pgx connection string.
func (c *DBConfig) BuildDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// Validate checks cross-field rules envconfig cannot express.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.DB.User == "" {
			return errors.New("DB_USER is required for the postgres driver")
		}
	default:
		return errors.Newf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Booking.CloseInterval < 0 {
		return errors.Newf("negative CLOSE_INTERVAL %s", c.Booking.CloseInterval)
	}
	return nil
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func NewTestConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:         "8889",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		Store: StoreConfig{
			Driver:     DriverMemory,
			SQLitePath: ":memory:",
		},
		Log: LogConfig{
			Level:  "error",
			Format: "text",
		},
		Booking: BookingConfig{
			InternalEmailDomains: []string{"example.com"},
			DefaultTimeZone:      "UTC",
		},
	}
}
