package llm

// ChatResponse carries the single normalized reply.
type ChatResponse struct {
	Reply string `json:"reply"`
}
