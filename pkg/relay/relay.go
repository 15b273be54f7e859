// Package relay is the entry point of the core: it picks the threaded or
// single-shot protocol for a request, runs it and normalizes the reply.
package relay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/llm"
	"github.com/papercomputeco/relay/pkg/normalize"
	"github.com/papercomputeco/relay/pkg/responses"
	"github.com/papercomputeco/relay/pkg/threads"
	"github.com/papercomputeco/relay/pkg/upstream"
)

// Driver names, as logged.
const (
	DriverThreads   = "threads"
	DriverResponses = "responses"
)

// Driver runs one upstream protocol.
type Driver interface {
	Converse(ctx context.Context, messages []llm.Message) (normalize.Payload, error)
}

// InternalError is any failure that is not an upstream stage failure:
// configuration errors, transport errors, undecodable bodies.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	return e.Err.Error()
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Relay orchestrates requests. It holds no per-request state and is safe
// for concurrent use.
type Relay struct {
	transport   http.RoundTripper
	logger      *zap.Logger
	threadsOpts threads.Options
}

// Option configures a Relay.
type Option func(*Relay)

// WithTransport sets the round tripper used for upstream calls.
func WithTransport(rt http.RoundTripper) Option {
	return func(r *Relay) {
		r.transport = rt
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithThreadsOptions overrides the threaded driver's clock and timings.
func WithThreadsOptions(opts threads.Options) Option {
	return func(r *Relay) {
		r.threadsOpts = opts
	}
}

// New creates a Relay.
func New(opts ...Option) *Relay {
	r := &Relay{
		transport: http.DefaultTransport,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Driver returns the driver cfg selects along with its name: the threaded
// protocol when an agent id is configured, single-shot otherwise.
func (r *Relay) Driver(client upstream.Caller, cfg config.Upstream) (Driver, string) {
	if cfg.Stateful() {
		return threads.New(client, cfg.AgentID, r.logger, r.threadsOpts), DriverThreads
	}
	return responses.New(client, cfg.Model, r.logger), DriverResponses
}

// Reply relays messages according to cfg and returns the normalized reply.
// Errors are either an *upstream.StageFailure, passed through as the driver
// returned it, or an *InternalError.
func (r *Relay) Reply(ctx context.Context, messages []llm.Message, cfg config.Upstream) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", &InternalError{Err: err}
	}

	client := upstream.NewClient(cfg.BaseURL, cfg.APIKey,
		upstream.WithHTTPClient(&http.Client{Transport: r.transport, Timeout: cfg.Timeout.Duration}),
		upstream.WithLogger(r.logger),
	)
	driver, name := r.Driver(client, cfg)
	log := r.logger.With(zap.String("driver", name))

	start := time.Now()
	payload, err := driver.Converse(ctx, messages)
	if err != nil {
		var sf *upstream.StageFailure
		if errors.As(err, &sf) {
			log.Warn("upstream stage failed",
				zap.String("stage", sf.Stage),
				zap.Int("status", sf.Status),
				zap.Duration("duration", time.Since(start)),
			)
			return "", sf
		}
		var ie *InternalError
		if errors.As(err, &ie) {
			return "", ie
		}
		log.Error("relay failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return "", &InternalError{Err: err}
	}

	reply := normalize.Reply(payload)
	log.Debug("reply normalized",
		zap.Int("reply_length", len(reply)),
		zap.Bool("placeholder", reply == normalize.Placeholder),
		zap.Duration("duration", time.Since(start)),
	)
	return reply, nil
}
