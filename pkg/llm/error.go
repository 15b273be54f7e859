// Package llm provides the wire representations of relay chat requests and
// replies shared by the HTTP transport, the CLI and the MCP tool.
package llm

import "errors"

// ErrNoMessages is returned when a chat request carries no messages.
var ErrNoMessages = errors.New("messages must be a non-empty array")

// ErrorResponse is the body returned for validation and internal failures.
type ErrorResponse struct {
	Error string `json:"error"`
}
