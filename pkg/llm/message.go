package llm

// DefaultRole is assigned to messages that arrive without a role.
const DefaultRole = "user"

// Message represents a single message in a conversation.
type Message struct {
	Role    string `json:"role,omitempty"` // "system", "user", "assistant"; empty means "user"
	Content string `json:"content"`        // The message content
}

// RoleOrDefault returns the message role, falling back to DefaultRole.
func (m Message) RoleOrDefault() string {
	if m.Role == "" {
		return DefaultRole
	}
	return m.Role
}
