// Package config loads service settings from the environment, an optional
// .env file and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every runtime setting.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string

	DatabaseDriver string
	DatabaseDSN    string
	StoreTimeout   time.Duration

	RedisAddr string

	JWTSecret   string
	JWTAudience string
	// AuthDisabled opens POST /scans to anonymous callers. An empty
	// JWTSecret without it makes serve refuse to start.
	AuthDisabled bool

	VisionTransport string
	VisionEndpoint  string
	VisionAPIKey    string
	VisionModel     string
	VisionTimeout   time.Duration
	MaxImageBytes   int

	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string
}

// Vision transports.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// Defaults applies the built-in defaults to v.
func Defaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("shutdown_timeout", 15*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("database_driver", "sqlite")
	v.SetDefault("database_dsn", "recycle-points.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON")
	v.SetDefault("store_timeout", 10*time.Second)
	v.SetDefault("redis_addr", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_audience", "")
	v.SetDefault("auth_disabled", false)
	v.SetDefault("vision_transport", TransportHTTP)
	v.SetDefault("vision_endpoint", "https://generativelanguage.googleapis.com")
	v.SetDefault("vision_api_key", "")
	v.SetDefault("vision_model", "gemini-1.5-flash")
	v.SetDefault("vision_timeout", 30*time.Second)
	v.SetDefault("max_image_bytes", 10<<20)
	v.SetDefault("mqtt_broker", "")
	v.SetDefault("mqtt_topic", "recycle/scans/recorded")
	v.SetDefault("mqtt_client_id", "recycle-points")
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	Defaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	return Read(New())
}

// Read loads an optional .env file into the environment and decodes v,
// which may carry bound command-line flags.
func Read(v *viper.Viper) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()
	return FromViper(v)
}

// FromViper decodes and validates settings from v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTPAddr:        v.GetString("http_addr"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		LogLevel:        strings.ToLower(v.GetString("log_level")),
		DatabaseDriver:  strings.ToLower(v.GetString("database_driver")),
		DatabaseDSN:     v.GetString("database_dsn"),
		StoreTimeout:    v.GetDuration("store_timeout"),
		RedisAddr:       v.GetString("redis_addr"),
		JWTSecret:       v.GetString("jwt_secret"),
		JWTAudience:     v.GetString("jwt_audience"),
		AuthDisabled:    v.GetBool("auth_disabled"),
		VisionTransport: strings.ToLower(v.GetString("vision_transport")),
		VisionEndpoint:  v.GetString("vision_endpoint"),
		VisionAPIKey:    v.GetString("vision_api_key"),
		VisionModel:     v.GetString("vision_model"),
		VisionTimeout:   v.GetDuration("vision_timeout"),
		MaxImageBytes:   v.GetInt("max_image_bytes"),
		MQTTBroker:      v.GetString("mqtt_broker"),
		MQTTTopic:       v.GetString("mqtt_topic"),
		MQTTClientID:    v.GetString("mqtt_client_id"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("HTTP_ADDR must not be empty"))
	}
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver))
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN must not be empty"))
	}
	switch c.VisionTransport {
	case TransportHTTP, TransportGRPC:
	default:
		errs = append(errs, fmt.Errorf("VISION_TRANSPORT must be http or grpc, got %q", c.VisionTransport))
	}
	if c.VisionEndpoint == "" {
		errs = append(errs, errors.New("VISION_ENDPOINT must not be empty"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel))
	}
	if c.VisionTimeout <= 0 {
		errs = append(errs, errors.New("VISION_TIMEOUT must be positive"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be positive"))
	}
	if c.MaxImageBytes <= 0 {
		errs = append(errs, errors.New("MAX_IMAGE_BYTES must be positive"))
	}
	return errors.Join(errs...)
}
