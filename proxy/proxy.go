// Package proxy is the HTTP face of the relay: it decodes chat requests,
// hands them to the orchestrator and encodes the reply or the failure.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/llm"
	"github.com/papercomputeco/relay/pkg/merkle"
	"github.com/papercomputeco/relay/pkg/relay"
	"github.com/papercomputeco/relay/pkg/upstream"
)

// HeaderConversationHash carries the fingerprint of the relayed conversation.
const HeaderConversationHash = "X-Conversation-Hash"

// ChatPath is the relay endpoint.
const ChatPath = "/api/chat"

// Proxy relays browser chat requests to the provider without exposing the
// API key. It is stateless: every request takes one configuration
// snapshot and creates its own upstream resources.
type Proxy struct {
	config Config
	source config.Source
	relay  *relay.Relay
	logger *zap.Logger
	server *fiber.App
}

// New creates a new Proxy.
func New(cfg Config, source config.Source, r *relay.Relay, logger *zap.Logger) *Proxy {
	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	p := &Proxy{
		config: cfg,
		source: source,
		relay:  r,
		logger: logger,
		server: app,
	}

	origins := strings.Join(cfg.AllowedOrigins, ",")
	if origins == "" {
		origins = "*"
	}

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: strings.Join([]string{fiber.MethodPost, fiber.MethodOptions}, ","),
		AllowHeaders: fiber.HeaderContentType,
	}))

	// Register routes
	app.Post(ChatPath, p.handleChat)
	app.Options(ChatPath, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.All(ChatPath, handleMethodNotAllowed)

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	return p
}

// App exposes the fiber app, e.g. for app.Test.
func (p *Proxy) App() *fiber.App {
	return p.server
}

// Handler adapts the app to net/http for serverless runtimes.
func (p *Proxy) Handler() http.HandlerFunc {
	return adaptor.FiberApp(p.server)
}

// Run starts the proxy server on the configured listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting relay server",
		zap.String("listen", p.config.ListenAddr),
		zap.Strings("allowed_origins", p.config.AllowedOrigins),
	)

	return p.server.Listen(p.config.ListenAddr)
}

// Shutdown stops the server, waiting for in-flight requests.
func (p *Proxy) Shutdown() error {
	return p.server.Shutdown()
}

// handleChat relays one conversation and answers with {"reply": ...}.
func (p *Proxy) handleChat(c *fiber.Ctx) error {
	startTime := time.Now()
	log := p.logger.With(zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)))

	// One snapshot for the whole request. Configuration errors take
	// precedence over input validation.
	up := p.source.Current().Upstream
	if err := up.Validate(); err != nil {
		log.Error("relay is not configured", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	var req llm.ChatRequest
	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			log.Error("failed to parse request", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "invalid request body: " + err.Error()})
		}
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	messages := req.Normalized()
	hash := merkle.HeadHash(messages)
	c.Set(HeaderConversationHash, hash)
	log = log.With(zap.String("conversation_hash", truncate(hash, 16)))

	log.Debug("received chat request",
		zap.Int("message_count", len(messages)),
		zap.Bool("stateful", up.Stateful()),
		zap.String("last_message_preview", truncate(messages[len(messages)-1].Content, 50)),
	)

	ctx := c.UserContext()
	if p.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.RequestTimeout)
		defer cancel()
	}

	reply, err := p.relay.Reply(ctx, messages, up)
	if err != nil {
		return p.writeFailure(c, log, err, startTime)
	}

	log.Info("chat relayed",
		zap.String("reply_preview", truncate(reply, 50)),
		zap.Duration("duration", time.Since(startTime)),
	)
	return c.JSON(llm.ChatResponse{Reply: reply})
}

// writeFailure forwards upstream stage failures verbatim and reports
// everything else as a 500.
func (p *Proxy) writeFailure(c *fiber.Ctx, log *zap.Logger, err error, startTime time.Time) error {
	var sf *upstream.StageFailure
	if errors.As(err, &sf) {
		log.Warn("forwarding upstream failure",
			zap.String("stage", sf.Stage),
			zap.Int("status", sf.Status),
			zap.Duration("duration", time.Since(startTime)),
		)
		if sf.ContentType != "" {
			c.Set(fiber.HeaderContentType, sf.ContentType)
		}
		return c.Status(sf.Status).Send(sf.Body)
	}

	log.Error("chat relay failed", zap.Error(err), zap.Duration("duration", time.Since(startTime)))
	return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: err.Error()})
}

func handleMethodNotAllowed(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAllow, "POST, OPTIONS")
	return c.Status(fiber.StatusMethodNotAllowed).JSON(llm.ErrorResponse{Error: "method not allowed"})
}

// errorHandler renders errors that escape handlers, recovered panics
// included, in the relay's error shape.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(llm.ErrorResponse{Error: err.Error()})
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
