package tgi

// CompletionResult is the outcome of a non-streaming generate call.
type CompletionResult struct {
	GeneratedText string   `json:"generated_text"`
	Details       *Details `json:"details,omitempty"`
}

// Details carries optional generation metadata returned by the server.
type Details struct {
	FinishReason    string  `json:"finish_reason"`
	GeneratedTokens int     `json:"generated_tokens"`
	Seed            *uint64 `json:"seed,omitempty"`
}

// Token is one generated token.
type Token struct {
	ID      int     `json:"id"`
	Text    string  `json:"text"`
	Logprob float64 `json:"logprob"`
	// Special marks control tokens (e.g. end-of-sequence) that must not be
	// shown to callers.
	Special bool `json:"special"`
}

// StreamResponse is one event of a generate_stream call. GeneratedText and
// Details are only set on the final event.
type StreamResponse struct {
	Token         Token    `json:"token"`
	GeneratedText *string  `json:"generated_text"`
	Details       *Details `json:"details"`
}

// generateRequest is the payload for /generate and /generate_stream.
type generateRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Stream     bool           `json:"stream"`
}

// errorPayload is how the server reports failures, both as a non-2xx body
// and as an SSE event.
type errorPayload struct {
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
}
