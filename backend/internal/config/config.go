package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Default configuration values
const (
	DefaultAddr          = ":8080"
	DefaultRecordTTL     = time.Hour
	DefaultSweepInterval = time.Minute
	DefaultWorkers       = 8
	DefaultQueueSize     = 256
	DefaultSendBuffer    = 256
)

// Config holds the relay configuration.
type Config struct {
	// Addr is the listen address of the HTTP server.
	Addr string

	// RecordTTL is the lifetime of connection and membership records.
	// Pongs from the client extend it.
	RecordTTL time.Duration

	// SweepInterval is how often expired records are dropped.
	SweepInterval time.Duration

	// Workers and QueueSize size the room sequencer.
	Workers   int
	QueueSize int

	// SendBuffer is the per-connection outbound buffer.
	SendBuffer int

	// AllowedOrigins restricts websocket upgrades. Empty allows every origin.
	AllowedOrigins []string
}

// Options carries command-line overrides. Zero values are ignored.
type Options struct {
	// Path is an optional TOML file.
	Path string

	Addr           string
	RecordTTL      time.Duration
	SweepInterval  time.Duration
	Workers        int
	QueueSize      int
	SendBuffer     int
	AllowedOrigins []string
}

// relaySection is the [relay] table of the config file.
type relaySection struct {
	Addr           string   `toml:"addr"`
	RecordTTL      string   `toml:"record_ttl"`
	SweepInterval  string   `toml:"sweep_interval"`
	Workers        int      `toml:"workers"`
	QueueSize      int      `toml:"queue_size"`
	SendBuffer     int      `toml:"send_buffer"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type fileConfig struct {
	Relay relaySection `toml:"relay"`
}

func loadFile(path string) (relaySection, error) {
	if path == "" {
		return relaySection{}, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return relaySection{}, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg fileConfig
	if err := toml.Unmarshal(content, &cfg); err != nil {
		return relaySection{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg.Relay, nil
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. The TOML file named by Options.Path
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	file, err := loadFile(opts.Path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Addr:          DefaultAddr,
		RecordTTL:     DefaultRecordTTL,
		SweepInterval: DefaultSweepInterval,
		Workers:       DefaultWorkers,
		QueueSize:     DefaultQueueSize,
		SendBuffer:    DefaultSendBuffer,
	}

	// Listen address: flag > env > file > default
	cfg.Addr = firstString(opts.Addr, os.Getenv("RELAY_ADDR"), file.Addr, cfg.Addr)

	if cfg.RecordTTL, err = pickDuration(opts.RecordTTL, "RELAY_RECORD_TTL", file.RecordTTL, cfg.RecordTTL); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = pickDuration(opts.SweepInterval, "RELAY_SWEEP_INTERVAL", file.SweepInterval, cfg.SweepInterval); err != nil {
		return nil, err
	}
	if cfg.Workers, err = pickInt(opts.Workers, "RELAY_WORKERS", file.Workers, cfg.Workers); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = pickInt(opts.QueueSize, "RELAY_QUEUE_SIZE", file.QueueSize, cfg.QueueSize); err != nil {
		return nil, err
	}
	if cfg.SendBuffer, err = pickInt(opts.SendBuffer, "RELAY_SEND_BUFFER", file.SendBuffer, cfg.SendBuffer); err != nil {
		return nil, err
	}

	switch {
	case len(opts.AllowedOrigins) > 0:
		cfg.AllowedOrigins = opts.AllowedOrigins
	case os.Getenv("RELAY_ALLOWED_ORIGINS") != "":
		cfg.AllowedOrigins = splitList(os.Getenv("RELAY_ALLOWED_ORIGINS"))
	default:
		cfg.AllowedOrigins = file.AllowedOrigins
	}

	return cfg, nil
}

// OriginAllowed reports whether a websocket upgrade from origin is accepted.
func (c *Config) OriginAllowed(origin string) bool {
	if len(c.AllowedOrigins) == 0 || origin == "" {
		return true
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func pickDuration(flag time.Duration, env, file string, def time.Duration) (time.Duration, error) {
	if flag > 0 {
		return flag, nil
	}
	for _, raw := range []string{os.Getenv(env), file} {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("invalid duration %q for %s", raw, env)
		}
		return d, nil
	}
	return def, nil
}

func pickInt(flag int, env string, file, def int) (int, error) {
	if flag > 0 {
		return flag, nil
	}
	if raw := os.Getenv(env); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid value %q for %s", raw, env)
		}
		return n, nil
	}
	if file > 0 {
		return file, nil
	}
	return def, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
