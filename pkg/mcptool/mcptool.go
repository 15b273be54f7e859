// Package mcptool exposes the relay as an MCP "chat" tool so agents can
// reach the configured model without holding the provider key.
package mcptool

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/llm"
	"github.com/papercomputeco/relay/pkg/merkle"
	"github.com/papercomputeco/relay/pkg/relay"
	"github.com/papercomputeco/relay/pkg/upstream"
)

// ToolName is the registered tool name.
const ToolName = "chat"

// ChatInput is the tool's argument object.
type ChatInput struct {
	Messages []llm.Message `json:"messages,omitempty" jsonschema:"the conversation, oldest message first"`
	Prompt   string        `json:"prompt,omitempty" jsonschema:"a single user message, appended after messages"`
}

// ChatOutput is the tool's structured result.
type ChatOutput struct {
	Reply string `json:"reply" jsonschema:"the model's reply"`
}

type chatTool struct {
	source config.Source
	relay  *relay.Relay
	logger *zap.Logger
}

// NewServer builds an MCP server with the chat tool registered.
func NewServer(source config.Source, r *relay.Relay, logger *zap.Logger, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "relay",
		Version: version,
	}, nil)

	t := &chatTool{source: source, relay: r, logger: logger}
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolName,
		Description: "Send a conversation to the configured language model and return its reply.",
	}, t.handle)

	return server
}

// Conversation returns the messages the input describes, roles defaulted.
func (in ChatInput) Conversation() []llm.Message {
	msgs := append([]llm.Message(nil), in.Messages...)
	if in.Prompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.DefaultRole, Content: in.Prompt})
	}
	req := llm.ChatRequest{Messages: msgs}
	return req.Normalized()
}

func (t *chatTool) handle(ctx context.Context, _ *mcp.CallToolRequest, in ChatInput) (*mcp.CallToolResult, ChatOutput, error) {
	msgs := in.Conversation()
	if len(msgs) == 0 {
		return nil, ChatOutput{}, llm.ErrNoMessages
	}

	log := t.logger.With(zap.String("conversation_hash", merkle.HeadHash(msgs)))
	reply, err := t.relay.Reply(ctx, msgs, t.source.Current().Upstream)
	if err != nil {
		var sf *upstream.StageFailure
		if errors.As(err, &sf) {
			log.Warn("chat tool upstream failure", zap.String("stage", sf.Stage), zap.Int("status", sf.Status))
			return nil, ChatOutput{}, fmt.Errorf("upstream %s failed with status %d: %s", sf.Stage, sf.Status, string(sf.Body))
		}
		log.Error("chat tool failed", zap.Error(err))
		return nil, ChatOutput{}, err
	}

	log.Debug("chat tool replied", zap.Int("message_count", len(msgs)))
	return nil, ChatOutput{Reply: reply}, nil
}
