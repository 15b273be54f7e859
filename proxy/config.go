package proxy

import (
	"time"

	"github.com/papercomputeco/relay/pkg/config"
)

// Config is the proxy server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	ListenAddr string

	// AllowedOrigins for CORS; "*" allows any origin.
	AllowedOrigins []string

	// RequestTimeout bounds one relayed request, polling included.
	// Zero means no bound beyond the caller's.
	RequestTimeout time.Duration
}

// ConfigFrom extracts the server settings from a relay configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		ListenAddr:     cfg.Server.ListenAddr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout.Duration,
	}
}
