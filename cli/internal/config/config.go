package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/morichikawa/echa25/cli/internal/canvas"
)

// Default configuration values
const (
	DefaultServer             = "ws://localhost:8080/ws"
	DefaultSTUN               = "stun:stun.l.google.com:19302"
	DefaultNickname           = "guest"
	DefaultRetryInterval      = 5 * time.Second
	DefaultNegotiationTimeout = 10 * time.Second
	DefaultMaxBackoff         = 2 * time.Minute
)

// Config holds the participant configuration.
type Config struct {
	// ServerURL is the relay websocket endpoint.
	ServerURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	Nickname string
	Color    string
	Codec    string

	RetryInterval      time.Duration
	NegotiationTimeout time.Duration
	MaxBackoff         time.Duration
}

// Options for loading config with CLI flag overrides
type Options struct {
	ServerURL  string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
	Nickname   string
	Color      string
	Codec      string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	cfg := &Config{
		ServerURL:  pick(opts.ServerURL, "ECHA_SERVER", DefaultServer),
		STUNServer: pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer: pick(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:   pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:   pick(opts.TURNPass, "TURN_PASSWORD", ""),
		Nickname:   pick(opts.Nickname, "ECHA_NICKNAME", defaultNickname()),
		Color:      pick(opts.Color, "ECHA_COLOR", ""),
		Codec:      pick(opts.Codec, "ECHA_CODEC", canvas.CodecJSON),
	}

	cfg.ForceRelay = opts.ForceRelay
	if !cfg.ForceRelay {
		if v, ok := os.LookupEnv("ECHA_FORCE_RELAY"); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("invalid ECHA_FORCE_RELAY %q: %w", v, err)
			}
			cfg.ForceRelay = b
		}
	}

	var err error
	if cfg.RetryInterval, err = envDuration("ECHA_RETRY_INTERVAL", DefaultRetryInterval); err != nil {
		return nil, err
	}
	if cfg.NegotiationTimeout, err = envDuration("ECHA_NEGOTIATION_TIMEOUT", DefaultNegotiationTimeout); err != nil {
		return nil, err
	}
	if cfg.MaxBackoff, err = envDuration("ECHA_MAX_BACKOFF", DefaultMaxBackoff); err != nil {
		return nil, err
	}

	if cfg.Color == "" {
		cfg.Color = canvas.RandomColor()
	}
	if !canvas.ValidColor(cfg.Color) {
		return nil, fmt.Errorf("invalid color %q: want #RRGGBB", cfg.Color)
	}
	if _, err := canvas.CodecByName(cfg.Codec); err != nil {
		return nil, err
	}
	if _, err := cfg.RoomsURL(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

func envDuration(env string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(env)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", env, raw)
	}
	return d, nil
}

func defaultNickname() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return DefaultNickname
}

// RoomsURL derives the relay's room listing endpoint from ServerURL.
func (c *Config) RoomsURL() (string, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("invalid server URL %q: scheme must be ws or wss", c.ServerURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/ws") + "/rooms"
	u.RawQuery = ""
	return u.String(), nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured. A bare
// "turn:host" expands to the usual UDP, TCP and TLS endpoints.
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	if strings.Contains(strings.TrimPrefix(c.TURNServer, "turn:"), ":") {
		return []string{c.TURNServer}
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
