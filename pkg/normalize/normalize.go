// Package normalize turns the provider's structurally different reply
// envelopes into one plain-text reply.
package normalize

import "strings"

// Placeholder is returned when no text can be extracted.
const Placeholder = "…"

// Payload is one of the known upstream reply shapes: ThreadContent,
// ResponseEnvelope or Unknown.
type Payload interface {
	payload()
}

// ThreadContent is the content of an assistant message on a thread.
type ThreadContent struct {
	Parts []ThreadPart
}

// ThreadPart is one content part of a thread message.
type ThreadPart struct {
	Type string      `json:"type"`
	Text *ThreadText `json:"text,omitempty"`
}

// ThreadText holds the text of a "text" part.
type ThreadText struct {
	Value string `json:"value"`
}

// ResponseEnvelope is a single-shot response body.
type ResponseEnvelope struct {
	OutputText *string      `json:"output_text,omitempty"`
	Output     []OutputItem `json:"output"`
}

// OutputItem is one item of a single-shot response's output list.
type OutputItem struct {
	Type    string       `json:"type"`
	Content []OutputPart `json:"content,omitempty"`
}

// OutputPart is one content part of an output item.
type OutputPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Unknown stands for a payload with no recognizable shape, e.g. a thread
// with no assistant message yet.
type Unknown struct{}

func (ThreadContent) payload()    {}
func (ResponseEnvelope) payload() {}
func (Unknown) payload()          {}

// Reply extracts the reply text from p. It never returns an empty string.
func Reply(p Payload) string {
	if text := FromThread(p); text != "" {
		return text
	}
	if text := FromResponse(p); text != "" {
		return text
	}
	return Placeholder
}

// FromThread joins the text parts of a thread message with newlines.
// It returns "" for any other payload.
func FromThread(p Payload) string {
	tc, ok := p.(ThreadContent)
	if !ok {
		return ""
	}

	var texts []string
	for _, part := range tc.Parts {
		if part.Type != "text" || part.Text == nil {
			continue
		}
		texts = append(texts, part.Text.Value)
	}
	return strings.TrimSpace(strings.Join(texts, "\n"))
}

// FromResponse prefers the precomputed output_text and otherwise
// concatenates the text parts of every output item. It returns "" for any
// other payload.
func FromResponse(p Payload) string {
	env, ok := p.(ResponseEnvelope)
	if !ok {
		return ""
	}

	if env.OutputText != nil {
		if text := strings.TrimSpace(*env.OutputText); text != "" {
			return text
		}
	}

	var b strings.Builder
	for _, item := range env.Output {
		for _, part := range item.Content {
			if isOutputText(part.Type) {
				b.WriteString(part.Text)
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func isOutputText(typ string) bool {
	return typ == "output_text" || typ == "text"
}
