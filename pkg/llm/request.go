package llm

// ChatRequest is the inbound conversation relayed upstream.
type ChatRequest struct {
	Messages []Message `json:"messages"` // Conversation history, oldest first
}

// Validate reports ErrNoMessages for an absent or empty message list.
func (r *ChatRequest) Validate() error {
	if r == nil || len(r.Messages) == 0 {
		return ErrNoMessages
	}
	return nil
}

// Normalized returns a copy of the messages with every role defaulted.
func (r *ChatRequest) Normalized() []Message {
	out := make([]Message, len(r.Messages))
	for i, m := range r.Messages {
		out[i] = Message{Role: m.RoleOrDefault(), Content: m.Content}
	}
	return out
}
