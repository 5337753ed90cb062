package types

// Job is one generation request handed to the worker.
type Job struct {
	// Job identifier. Generated by the server when omitted.
	// example: 6f1d2c3e-2b3a-4c5d-9e8f-0a1b2c3d4e5f
	ID string `json:"id,omitempty" example:"6f1d2c3e-2b3a-4c5d-9e8f-0a1b2c3d4e5f"`
	// Job input. Recognized keys: prompt (string, required), stream (bool),
	// generate_params (object of backend generation parameters).
	// example: {"prompt":"Write a haiku about the ocean.","stream":true,"generate_params":{"max_new_tokens":64}}
	Input map[string]any `json:"input"`
}

// Result is one output item of a job. Streaming jobs yield many, others one.
type Result struct {
	// Generated text fragment (streaming) or full completion.
	// example: Hello!
	Text string `json:"text" example:"Hello!"`
}

// RunResponse is returned by POST /runsync.
type RunResponse struct {
	// ID of the job.
	ID string `json:"id"`
	// Terminal status: COMPLETED or FAILED.
	// example: COMPLETED
	Status string `json:"status" example:"COMPLETED"`
	// Result items in production order.
	Output []Result `json:"output"`
	// Error message when Status is FAILED.
	Error string `json:"error,omitempty"`
}

// Job terminal statuses.
const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// StreamError is the last NDJSON line of a /stream response that failed
// after output had started.
type StreamError struct {
	// Error message.
	Error string `json:"error"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// IdleResponse is returned by GET /idle.
type IdleResponse struct {
	// True while any job is in flight; the autoscaler keeps the worker up.
	// example: false
	Active bool `json:"active" example:"false"`
	// In-flight job count at the time of the read.
	// example: 0
	Inflight int64 `json:"inflight" example:"0"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Backend base URL requests are forwarded to.
	// example: http://localhost:8080
	BaseURL string `json:"base_url" example:"http://localhost:8080"`
	// In-flight job count at the time of the read.
	Inflight int64 `json:"inflight"`
	// Default generation parameters applied to every job (after validation).
	DefaultParams map[string]any `json:"default_params"`
	// Parameter names accepted per backend operation.
	AcceptedParams map[string][]string `json:"accepted_params"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
