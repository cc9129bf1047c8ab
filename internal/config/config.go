// Package config loads autodomum settings.
//
// Sources, later ones winning: built-in defaults, a YAML file, .env files,
// AUTODOMUM_* environment variables. Command line flags are applied by the
// CLI on top of the result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/autodomum/autodomum/internal/daylight"
	"github.com/autodomum/autodomum/internal/holiday"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AUTODOMUM_"

// Driver kinds.
const (
	DriverNone    = "none"
	DriverTelldus = "telldus"
	DriverMQTT    = "mqtt"
)

// Config is the full application configuration.
type Config struct {
	Latitude    float64  `yaml:"latitude"`
	Longitude   float64  `yaml:"longitude"`
	Timezone    string   `yaml:"timezone"`
	PollTimeout Duration `yaml:"poll_timeout"`

	// RandomSeed makes rule jitter reproducible. Nil seeds from the clock.
	RandomSeed *uint64 `yaml:"random_seed,omitempty"`

	LampsFile  string `yaml:"lamps_file"`
	Database   string `yaml:"database"`
	RulesFile  string `yaml:"rules_file"`
	ListenAddr string `yaml:"listen_addr"`
	Holidays   string `yaml:"holidays"`

	Log    LogConfig    `yaml:"log"`
	Driver DriverConfig `yaml:"driver"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DriverConfig struct {
	Kind   string     `yaml:"kind"`
	Tdtool string     `yaml:"tdtool"`
	Repeat int        `yaml:"repeat"`
	Gap    Duration   `yaml:"gap"`
	MQTT   MQTTConfig `yaml:"mqtt"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Duration is a time.Duration written as "1.5s" in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in configuration: Stockholm, Swedish holidays,
// no device driver.
func Default() *Config {
	return &Config{
		Latitude:    daylight.Stockholm.Latitude,
		Longitude:   daylight.Stockholm.Longitude,
		Timezone:    "Europe/Stockholm",
		PollTimeout: Duration(time.Second),
		ListenAddr:  ":8080",
		Holidays:    "sweden",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Driver: DriverConfig{
			Kind:   DriverNone,
			Tdtool: "tdtool",
			Repeat: 3,
			Gap:    Duration(1500 * time.Millisecond),
			MQTT: MQTTConfig{
				Topic:    "autodomum/lamps",
				ClientID: "autodomum",
			},
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// empty), the given .env files (missing files are ignored) and the process
// environment. The result is validated.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		defer f.Close()
		if err := cfg.Decode(f); err != nil {
			return nil, err
		}
	}

	for _, name := range envFiles {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", name, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode overlays YAML from r onto c. Unknown keys are rejected.
func (c *Config) Decode(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return nil
}

// ApplyEnv overlays AUTODOMUM_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	var errs []error
	float := func(key string, dst *float64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = Duration(d)
		}
	}

	float("LATITUDE", &c.Latitude)
	float("LONGITUDE", &c.Longitude)
	str("TIMEZONE", &c.Timezone)
	duration("POLL_TIMEOUT", &c.PollTimeout)
	if v, ok := lookup(EnvPrefix + "RANDOM_SEED"); ok {
		seed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRANDOM_SEED: %w", EnvPrefix, err))
		} else {
			c.RandomSeed = &seed
		}
	}
	str("LAMPS_FILE", &c.LampsFile)
	str("DATABASE", &c.Database)
	str("RULES_FILE", &c.RulesFile)
	str("LISTEN_ADDR", &c.ListenAddr)
	str("HOLIDAYS", &c.Holidays)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("DRIVER_KIND", &c.Driver.Kind)
	str("DRIVER_TDTOOL", &c.Driver.Tdtool)
	integer("DRIVER_REPEAT", &c.Driver.Repeat)
	duration("DRIVER_GAP", &c.Driver.Gap)
	str("MQTT_BROKER", &c.Driver.MQTT.Broker)
	str("MQTT_TOPIC", &c.Driver.MQTT.Topic)
	str("MQTT_CLIENT_ID", &c.Driver.MQTT.ClientID)
	str("MQTT_USERNAME", &c.Driver.MQTT.Username)
	str("MQTT_PASSWORD", &c.Driver.MQTT.Password)

	return errors.Join(errs...)
}

// Validate checks every field, naming the offending key in the error.
func (c *Config) Validate() error {
	if err := c.Coordinate().Validate(); err != nil {
		return fmt.Errorf("latitude/longitude: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("poll_timeout: must be positive, got %s", c.PollTimeout.Std())
	}
	if _, ok := holiday.ByName(c.Holidays); !ok {
		return fmt.Errorf("holidays: unknown calendar %q", c.Holidays)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format)
	}

	switch c.Driver.Kind {
	case DriverNone, "":
	case DriverTelldus:
		if c.Driver.Tdtool == "" {
			return errors.New("driver.tdtool: required for the telldus driver")
		}
		if c.Driver.Repeat < 1 {
			return fmt.Errorf("driver.repeat: must be at least 1, got %d", c.Driver.Repeat)
		}
		if c.Driver.Gap < 0 {
			return fmt.Errorf("driver.gap: must not be negative, got %s", c.Driver.Gap.Std())
		}
	case DriverMQTT:
		if c.Driver.MQTT.Broker == "" {
			return errors.New("driver.mqtt.broker: required for the mqtt driver")
		}
	default:
		return fmt.Errorf("driver.kind: must be none, telldus or mqtt, got %q", c.Driver.Kind)
	}
	return nil
}

// Coordinate returns the configured location.
func (c *Config) Coordinate() daylight.Coordinate {
	return daylight.Coordinate{Latitude: c.Latitude, Longitude: c.Longitude}
}

// Location loads the configured time zone. Empty means time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// HolidayCalendar returns the configured holiday collection.
func (c *Config) HolidayCalendar() *holiday.Collection {
	cal, _ := holiday.ByName(c.Holidays)
	return cal
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level %q", s)
	}
}

// NewLogger builds a logger writing to w. verbose forces debug level.
func (c *Config) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level, _ := ParseLevel(c.Log.Level)
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if c.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
