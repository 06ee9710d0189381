// Package config resolves service settings from defaults, .env files and
// the environment. Command line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"speed-service/internal/logger"
	"speed-service/internal/speed"
)

// Environment variables
const (
	EnvMode         = "SPEED_MODE"
	EnvInitialSpeed = "SPEED_INITIAL"
	EnvMinSpeed     = "SPEED_MIN"
	EnvEventTable   = "SPEED_EVENT_TABLE"
	EnvLogLevel     = "SPEED_LOG_LEVEL"
	EnvRedisAddr    = "SPEED_REDIS_ADDR"
	EnvJournal      = "SPEED_JOURNAL"
	EnvHTTPAddr     = "SPEED_HTTP_ADDR"
	EnvInputDevice  = "SPEED_INPUT_DEVICE"
)

type Config struct {
	Mode         string // empty means prompt for it
	InitialSpeed int
	MinSpeed     int
	EventTable   string // YAML file, empty for the built-in table
	LogLevel     logger.LogLevel

	RedisAddr   string // empty disables Redis
	Journal     string // empty disables the SQLite journal
	HTTPAddr    string // empty disables the status API
	InputDevice string // empty disables sensor inputs
}

func Default() Config {
	return Config{
		InitialSpeed: speed.DefaultInitialSpeed,
		MinSpeed:     speed.DefaultMinSpeed,
		LogLevel:     logger.LogLevelInfo,
	}
}

// Load applies the given .env files (missing files are skipped) and then
// the environment on top of the defaults. Variables already set in the
// environment win over .env values.
func Load(files ...string) (Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from defaults and lookup.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if v, ok := lookup(EnvMode); ok {
		cfg.Mode = v
	}
	if v, ok := lookup(EnvEventTable); ok {
		cfg.EventTable = v
	}
	if v, ok := lookup(EnvRedisAddr); ok {
		cfg.RedisAddr = v
	}
	if v, ok := lookup(EnvJournal); ok {
		cfg.Journal = v
	}
	if v, ok := lookup(EnvHTTPAddr); ok {
		cfg.HTTPAddr = v
	}
	if v, ok := lookup(EnvInputDevice); ok {
		cfg.InputDevice = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvInitialSpeed, &cfg.InitialSpeed},
		{EnvMinSpeed, &cfg.MinSpeed},
	}
	for _, i := range ints {
		v, ok := lookup(i.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", i.key, err)
		}
		*i.dst = n
	}

	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		lvl, err := logger.ParseLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvLogLevel, err)
		}
		cfg.LogLevel = lvl
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.MinSpeed < 0 {
		return fmt.Errorf("minimum speed %d is negative", c.MinSpeed)
	}
	if c.InitialSpeed < c.MinSpeed {
		return fmt.Errorf("initial speed %d is below minimum speed %d", c.InitialSpeed, c.MinSpeed)
	}
	if c.Mode != "" {
		if _, err := speed.ParseMode(c.Mode); err != nil {
			return err
		}
	}
	return nil
}

// EventTableOrDefault loads the configured table, or the built-in one.
func (c Config) EventTableOrDefault() (speed.EventTable, error) {
	if c.EventTable == "" {
		return speed.DefaultEventTable(), nil
	}
	return speed.LoadEventTable(c.EventTable)
}
