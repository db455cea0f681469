// Package config provides YAML-based configuration loading for servicetrack.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// TokenEnv overrides api.token when set.
const TokenEnv = "ST_API_TOKEN"

// Config is the top-level configuration, loaded from servicetrack.yaml.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Viewer   ViewerConfig   `yaml:"viewer"`
	Tracking TrackingConfig `yaml:"tracking"`
	Location LocationConfig `yaml:"location"`
	Store    StoreConfig    `yaml:"store"`
	Server   ServerConfig   `yaml:"server"`
}

// APIConfig holds connection settings for the service-request API.
type APIConfig struct {
	BaseURL    string `yaml:"base_url" validate:"required,url"`
	Token      string `yaml:"token"`
	TimeoutSec int    `yaml:"timeout_sec" validate:"gte=0"`
}

// ViewerConfig identifies the person using the client. When ID is empty it
// is derived from the API token.
type ViewerConfig struct {
	ID string `yaml:"id"`
}

// TrackingConfig controls the cadence of the session's periodic tasks.
type TrackingConfig struct {
	SnapshotPollSec int `yaml:"snapshot_poll_sec" validate:"gte=0"`
	ETADecaySec     int `yaml:"eta_decay_sec" validate:"gte=0"`
	ChatPollSec     int `yaml:"chat_poll_sec" validate:"gte=0"`
	NotificationCap int `yaml:"notification_cap" validate:"gte=0"`
}

// LocationConfig holds the regional fallback and geolocation request limits.
type LocationConfig struct {
	DefaultLat   float64 `yaml:"default_lat" validate:"gte=-90,lte=90"`
	DefaultLng   float64 `yaml:"default_lng" validate:"gte=-180,lte=180"`
	DefaultLabel string  `yaml:"default_label"`
	MaxAgeSec    int     `yaml:"max_age_sec" validate:"gte=0"`
	TimeoutSec   int     `yaml:"timeout_sec" validate:"gte=0"`
}

// StoreConfig selects the device-local database for the location cache.
type StoreConfig struct {
	Driver   string `yaml:"driver" validate:"omitempty,oneof=sqlite mysql"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"gte=0,lte=65535"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
}

// ServerConfig holds settings for the local view server.
type ServerConfig struct {
	Port int `yaml:"port" validate:"gte=0,lte=65535"`
}

// Defaults.
const (
	DefaultTimeoutSec      = 10
	DefaultSnapshotPollSec = 15
	DefaultETADecaySec     = 30
	DefaultChatPollSec     = 5
	DefaultNotificationCap = 50
	DefaultMaxAgeSec       = 60
	DefaultLocTimeoutSec   = 10
	DefaultStorePath       = "servicetrack.db"
	DefaultServerPort      = 8080

	// Bangalore city centre.
	DefaultLat   = 12.9716
	DefaultLng   = 77.5946
	DefaultLabel = "Bangalore"
)

// Load reads a YAML config file from path and returns a validated Config.
// The token environment variable takes precedence over the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if tok := os.Getenv(TokenEnv); tok != "" {
		cfg.API.Token = tok
	}
	return cfg, nil
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.API.TimeoutSec == 0 {
		c.API.TimeoutSec = DefaultTimeoutSec
	}
	if c.Tracking.SnapshotPollSec == 0 {
		c.Tracking.SnapshotPollSec = DefaultSnapshotPollSec
	}
	if c.Tracking.ETADecaySec == 0 {
		c.Tracking.ETADecaySec = DefaultETADecaySec
	}
	if c.Tracking.ChatPollSec == 0 {
		c.Tracking.ChatPollSec = DefaultChatPollSec
	}
	if c.Tracking.NotificationCap == 0 {
		c.Tracking.NotificationCap = DefaultNotificationCap
	}
	if c.Location.DefaultLat == 0 && c.Location.DefaultLng == 0 {
		c.Location.DefaultLat = DefaultLat
		c.Location.DefaultLng = DefaultLng
		if c.Location.DefaultLabel == "" {
			c.Location.DefaultLabel = DefaultLabel
		}
	}
	if c.Location.MaxAgeSec == 0 {
		c.Location.MaxAgeSec = DefaultMaxAgeSec
	}
	if c.Location.TimeoutSec == 0 {
		c.Location.TimeoutSec = DefaultLocTimeoutSec
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	if c.Store.Driver == "mysql" {
		if c.Store.Host == "" {
			c.Store.Host = "127.0.0.1"
		}
		if c.Store.Port == 0 {
			c.Store.Port = 3306
		}
		if c.Store.User == "" {
			c.Store.User = "root"
		}
		if c.Store.Database == "" {
			c.Store.Database = "servicetrack"
		}
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their YAML path rather than their Go name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validate checks struct tags and cross-field constraints, collecting every
// failure into a single error.
func (c *Config) validate() error {
	var errs []string
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: validate: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, describe(fe))
		}
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		errs = append(errs, "store.path is required for sqlite")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// describe renders a validator failure as "api.base_url is required".
func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "url":
		return field + " must be a URL"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param())
	}
}

// APITimeout returns the HTTP timeout.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSec) * time.Second
}

// SnapshotPoll returns the snapshot poll interval.
func (t TrackingConfig) SnapshotPoll() time.Duration {
	return time.Duration(t.SnapshotPollSec) * time.Second
}

// ETADecay returns the ETA decay tick interval.
func (t TrackingConfig) ETADecay() time.Duration {
	return time.Duration(t.ETADecaySec) * time.Second
}

// ChatPoll returns the chat poll interval.
func (t TrackingConfig) ChatPoll() time.Duration {
	return time.Duration(t.ChatPollSec) * time.Second
}

// MaxAge returns how old a cached device fix may be.
func (l LocationConfig) MaxAge() time.Duration {
	return time.Duration(l.MaxAgeSec) * time.Second
}

// Timeout returns the geolocation request timeout.
func (l LocationConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSec) * time.Second
}
