package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, time.Second, cfg.PollTimeout.Std())
	assert.Equal(t, DriverNone, cfg.Driver.Kind)
	assert.Equal(t, 17, cfg.HolidayCalendar().Len())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Stockholm", loc.String())
}

func TestDecode(t *testing.T) {
	cfg := Default()
	err := cfg.Decode(strings.NewReader(`
latitude: 57.7
longitude: 11.97
timezone: UTC
poll_timeout: 250ms
random_seed: 42
rules_file: rules.yaml
holidays: none
log:
  level: debug
  format: json
driver:
  kind: telldus
  repeat: 5
  gap: 2s
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 57.7, cfg.Latitude)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 250*time.Millisecond, cfg.PollTimeout.Std())
	require.NotNil(t, cfg.RandomSeed)
	assert.Equal(t, uint64(42), *cfg.RandomSeed)
	assert.Equal(t, "rules.yaml", cfg.RulesFile)
	assert.Equal(t, 0, cfg.HolidayCalendar().Len())
	assert.Equal(t, DriverTelldus, cfg.Driver.Kind)
	assert.Equal(t, 5, cfg.Driver.Repeat)
	assert.Equal(t, 2*time.Second, cfg.Driver.Gap.Std())

	// Untouched keys keep their defaults.
	assert.Equal(t, "tdtool", cfg.Driver.Tdtool)
	assert.Equal(t, ":8080", cfg.ListenAddr)
}

func TestDecode_Empty(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Decode(strings.NewReader("  \n")))
	assert.Equal(t, Default(), cfg)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "lattitude: 1\n"},
		{"bad duration", "poll_timeout: soon\n"},
		{"wrong type", "latitude: north\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Default().Decode(strings.NewReader(tt.yaml))
			assert.ErrorContains(t, err, "failed to parse config YAML")
		})
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"AUTODOMUM_LATITUDE":     "55.6",
		"AUTODOMUM_TIMEZONE":     "UTC",
		"AUTODOMUM_RANDOM_SEED":  "7",
		"AUTODOMUM_DATABASE":     "/var/lib/autodomum.db",
		"AUTODOMUM_DRIVER_KIND":  "mqtt",
		"AUTODOMUM_MQTT_BROKER":  "tcp://localhost:1883",
		"AUTODOMUM_DRIVER_GAP":   "100ms",
		"AUTODOMUM_POLL_TIMEOUT": "2s",
		"AUTODOMUM_LOG_LEVEL":    "warn",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 55.6, cfg.Latitude)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, uint64(7), *cfg.RandomSeed)
	assert.Equal(t, "/var/lib/autodomum.db", cfg.Database)
	assert.Equal(t, DriverMQTT, cfg.Driver.Kind)
	assert.Equal(t, "tcp://localhost:1883", cfg.Driver.MQTT.Broker)
	assert.Equal(t, 100*time.Millisecond, cfg.Driver.Gap.Std())
	assert.Equal(t, 2*time.Second, cfg.PollTimeout.Std())
}

func TestApplyEnv_Errors(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"AUTODOMUM_LATITUDE":      "north",
		"AUTODOMUM_DRIVER_REPEAT": "many",
		"AUTODOMUM_RANDOM_SEED":   "-1",
	}))
	require.Error(t, err)
	assert.ErrorContains(t, err, "AUTODOMUM_LATITUDE")
	assert.ErrorContains(t, err, "AUTODOMUM_DRIVER_REPEAT")
	assert.ErrorContains(t, err, "AUTODOMUM_RANDOM_SEED")
}

func TestValidate_NamesKey(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"latitude", func(c *Config) { c.Latitude = 91 }, "latitude/longitude"},
		{"timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"poll timeout", func(c *Config) { c.PollTimeout = 0 }, "poll_timeout"},
		{"holidays", func(c *Config) { c.Holidays = "atlantis" }, "holidays"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"driver kind", func(c *Config) { c.Driver.Kind = "zigbee" }, "driver.kind"},
		{"mqtt broker", func(c *Config) { c.Driver.Kind = DriverMQTT }, "driver.mqtt.broker"},
		{"telldus repeat", func(c *Config) { c.Driver.Kind = DriverTelldus; c.Driver.Repeat = 0 }, "driver.repeat"},
		{"telldus tool", func(c *Config) { c.Driver.Kind = DriverTelldus; c.Driver.Tdtool = "" }, "driver.tdtool"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.HasPrefix(err.Error(), tt.key+":"), err.Error())
		})
	}
}

func TestLoad_FileAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "autodomum.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("timezone: UTC\nlisten_addr: \":9090\"\n"), 0o644))
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("AUTODOMUM_RULES_FILE=from-dotenv.yaml\n"), 0o644))

	t.Setenv("AUTODOMUM_LISTEN_ADDR", ":7070")
	// godotenv.Load sets process env; make sure the test restores it.
	t.Setenv("AUTODOMUM_RULES_FILE", "")
	os.Unsetenv("AUTODOMUM_RULES_FILE")

	cfg, err := Load(cfgPath, envPath, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, ":7070", cfg.ListenAddr, "environment beats file")
	assert.Equal(t, "from-dotenv.yaml", cfg.RulesFile)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("trace")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.Log.Format = "json"

	logger := cfg.NewLogger(&buf, false)
	logger.Debug("hidden")
	logger.Info("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":"v"`)

	buf.Reset()
	cfg.Log.Format = "text"
	cfg.NewLogger(&buf, true).Debug("verbose")
	assert.Contains(t, buf.String(), "msg=verbose")
}
