// Package merkle fingerprints conversations as a content-addressed chain.
// Each message node hashes its role and content together with its parent's
// hash, so conversations sharing a prefix share hashes and the head hash
// identifies the whole history without revealing it.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/papercomputeco/relay/pkg/llm"
)

// Node represents a single message in a conversation chain
type Node struct {
	// Hash is the content-addressed identifier (SHA-256, hex-encoded)
	Hash string `json:"hash"`

	// ParentHash links to the previous message's hash.
	// This will be nil for the first message.
	ParentHash *string `json:"parent_hash"`

	// Message is the hashed message, with its role defaulted
	Message llm.Message `json:"message"`
}

// hashInput is the canonical form fed to the hash.
type hashInput struct {
	Parent  string `json:"parent,omitempty"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewNode creates a node for msg linked to parent.
func NewNode(msg llm.Message, parent *Node) *Node {
	n := &Node{
		Message: llm.Message{Role: msg.RoleOrDefault(), Content: msg.Content},
	}

	if parent != nil {
		n.ParentHash = &parent.Hash
	}

	n.Hash = n.computeHash()
	return n
}

func (n *Node) computeHash() string {
	i := hashInput{
		Role:    n.Message.Role,
		Content: n.Message.Content,
	}

	if n.ParentHash != nil {
		i.Parent = *n.ParentHash
	}

	// Struct field order makes the encoding deterministic
	data, err := json.Marshal(i)
	if err != nil {
		panic("failed to marshal hash input: " + err.Error())
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Chain links messages into nodes, first message first.
func Chain(messages []llm.Message) []*Node {
	nodes := make([]*Node, 0, len(messages))
	var parent *Node
	for _, msg := range messages {
		node := NewNode(msg, parent)
		nodes = append(nodes, node)
		parent = node
	}
	return nodes
}

// HeadHash returns the hash of the last node of the conversation's chain,
// or "" for an empty conversation.
func HeadHash(messages []llm.Message) string {
	nodes := Chain(messages)
	if len(nodes) == 0 {
		return ""
	}
	return nodes[len(nodes)-1].Hash
}
