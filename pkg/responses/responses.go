// Package responses drives the provider's single-shot protocol: the whole
// conversation goes up in one call and the reply comes back in its body.
package responses

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/llm"
	"github.com/papercomputeco/relay/pkg/normalize"
	"github.com/papercomputeco/relay/pkg/upstream"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// StageCreateResponse names the single protocol step.
const StageCreateResponse = "create_response"

// Request is the upstream payload.
type Request struct {
	Model string      `json:"model"`
	Input []InputItem `json:"input"`
}

// InputItem is one conversation turn.
type InputItem struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart is a typed text block.
type ContentPart struct {
	Type string `json:"type"` // "input_text", or "output_text" for assistant turns
	Text string `json:"text"`
}

// Driver issues single-shot requests for one model.
type Driver struct {
	client upstream.Caller
	model  string
	logger *zap.Logger
}

// New creates a Driver. An empty model selects DefaultModel.
func New(client upstream.Caller, model string, logger *zap.Logger) *Driver {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{client: client, model: model, logger: logger}
}

// Model returns the model the driver sends.
func (d *Driver) Model() string {
	return d.model
}

// BuildRequest maps messages to the upstream payload, keeping their order
// and defaulting empty roles to "user".
func BuildRequest(model string, messages []llm.Message) Request {
	input := make([]InputItem, len(messages))
	for i, m := range messages {
		role := m.RoleOrDefault()
		input[i] = InputItem{
			Role:    role,
			Content: []ContentPart{{Type: partType(role), Text: m.Content}},
		}
	}
	return Request{Model: model, Input: input}
}

// The provider only accepts output_text for prior assistant turns.
func partType(role string) string {
	if role == "assistant" {
		return "output_text"
	}
	return "input_text"
}

// Converse sends messages and returns the response envelope. A non-2xx
// answer is returned as an *upstream.StageFailure.
func (d *Driver) Converse(ctx context.Context, messages []llm.Message) (normalize.Payload, error) {
	resp, err := d.client.Call(ctx, upstream.Request{
		Method: http.MethodPost,
		Path:   "/responses",
		Body:   BuildRequest(d.model, messages),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageCreateResponse, err)
	}
	if err := upstream.Check(StageCreateResponse, resp); err != nil {
		return nil, err
	}

	var env normalize.ResponseEnvelope
	if err := resp.Decode(&env); err != nil {
		return nil, fmt.Errorf("%s: %w", StageCreateResponse, err)
	}

	d.logger.Debug("response received",
		zap.String("model", d.model),
		zap.Int("output_items", len(env.Output)),
	)
	return env, nil
}
