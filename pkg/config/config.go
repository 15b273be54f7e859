// Package config loads the relay configuration from defaults, an optional
// TOML file and the environment, in that order of precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrMissingAPIKey is returned when no provider secret is configured.
var ErrMissingAPIKey = errors.New("missing upstream API key")

// Environment variables read by Load.
const (
	EnvAPIKey         = "OPENAI_API_KEY"
	EnvAgentID        = "OPENAI_ASSISTANT_ID"
	EnvModel          = "OPENAI_MODEL"
	EnvBaseURL        = "OPENAI_BASE_URL"
	EnvListen         = "RELAY_LISTEN"
	EnvAllowedOrigins = "RELAY_ALLOWED_ORIGINS"
	EnvUpstreamTO     = "RELAY_UPSTREAM_TIMEOUT"
	EnvRequestTO      = "RELAY_REQUEST_TIMEOUT"
	EnvDebug          = "RELAY_DEBUG"
)

// Config is the full relay configuration.
type Config struct {
	Upstream Upstream `toml:"upstream"`
	Server   Server   `toml:"server"`
	Debug    bool     `toml:"debug"`
}

// Upstream is what the orchestrator needs for one request.
type Upstream struct {
	// APIKey is the provider secret. Never logged.
	APIKey string `toml:"api_key"`

	// AgentID selects the threaded protocol when set.
	AgentID string `toml:"agent_id"`

	// Model is used by the single-shot protocol only.
	Model string `toml:"model"`

	// BaseURL of the provider API (e.g., "https://api.openai.com/v1")
	BaseURL string `toml:"base_url"`

	// Timeout bounds each upstream HTTP call.
	Timeout Duration `toml:"timeout"`
}

// Server configures the HTTP transport.
type Server struct {
	// Address to listen on (e.g., ":8080")
	ListenAddr string `toml:"listen"`

	// AllowedOrigins for CORS. "*" allows any origin.
	AllowedOrigins []string `toml:"allowed_origins"`

	// RequestTimeout bounds a whole relayed request, polling included.
	RequestTimeout Duration `toml:"request_timeout"`
}

// Duration is a time.Duration written as "90s" in TOML and env vars.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LookupFunc reads an environment variable; os.LookupEnv in production.
type LookupFunc func(key string) (string, bool)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Upstream: Upstream{
			Timeout: Duration{2 * time.Minute},
		},
		Server: Server{
			ListenAddr:     ":8080",
			AllowedOrigins: []string{"*"},
			RequestTimeout: Duration{90 * time.Second},
		},
	}
}

// FromEnv loads the configuration from the process environment only.
func FromEnv() (*Config, error) {
	return Load("", os.LookupEnv)
}

// Load layers the TOML file at path (skipped when path is empty) and the
// variables visible through lookup over the defaults.
func Load(path string, lookup LookupFunc) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}

	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *Duration) error {
		if v, ok := lookup(key); ok && v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
		return nil
	}

	str(EnvAPIKey, &cfg.Upstream.APIKey)
	str(EnvAgentID, &cfg.Upstream.AgentID)
	str(EnvModel, &cfg.Upstream.Model)
	str(EnvBaseURL, &cfg.Upstream.BaseURL)
	str(EnvListen, &cfg.Server.ListenAddr)

	if v, ok := lookup(EnvAllowedOrigins); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.AllowedOrigins = origins
	}

	if err := dur(EnvUpstreamTO, &cfg.Upstream.Timeout); err != nil {
		return err
	}
	if err := dur(EnvRequestTO, &cfg.Server.RequestTimeout); err != nil {
		return err
	}

	if v, ok := lookup(EnvDebug); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDebug, err)
		}
		cfg.Debug = debug
	}

	return nil
}

// Validate reports configuration errors that must stop a request before
// any upstream call.
func (u Upstream) Validate() error {
	if strings.TrimSpace(u.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Stateful reports whether the threaded protocol is selected.
func (u Upstream) Stateful() bool {
	return u.AgentID != ""
}
