// Package handler is the serverless entry point. The platform routes
// /api/chat here and calls Handler once per request.
package handler

import (
	"encoding/json"
	"net/http"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/llm"
	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/pkg/relay"
	"github.com/papercomputeco/relay/proxy"
)

var (
	setupOnce sync.Once
	served    http.HandlerFunc
	setupErr  error
)

// setup runs on cold start. Configuration comes from the environment
// only; there is no file to watch in a function instance.
func setup() {
	cfg, err := config.FromEnv()
	if err != nil {
		setupErr = err
		return
	}

	log := logger.New(logger.Options{Debug: cfg.Debug, JSON: true, Writer: os.Stderr})
	if err := cfg.Upstream.Validate(); err != nil {
		log.Warn("chat requests will fail until an API key is configured", zap.Error(err))
	}

	p := proxy.New(proxy.ConfigFrom(cfg), config.NewStore(cfg), relay.New(relay.WithLogger(log)), log)
	served = p.Handler()
}

// Handler serves one request through the relay's fiber app.
func Handler(w http.ResponseWriter, r *http.Request) {
	setupOnce.Do(setup)

	if setupErr != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(llm.ErrorResponse{Error: setupErr.Error()})
		return
	}
	served(w, r)
}
