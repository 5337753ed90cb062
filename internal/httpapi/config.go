package httpapi

import (
	"time"

	"golang.org/x/sync/semaphore"
)

const defaultMaxBodyBytes int64 = 1 << 20

// maxBodyBytes caps job request bodies.
var maxBodyBytes = defaultMaxBodyBytes

// SetMaxBodyBytes configures the maximum job request body size.
// Non-positive values restore the 1 MiB default.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
		return
	}
	maxBodyBytes = n
}

// jobTimeout bounds a whole job (all backend calls plus response writing).
// Zero means the job runs until the client or the server goes away.
var jobTimeout time.Duration

// SetJobTimeoutSeconds sets the per-job timeout in seconds (0 disables).
func SetJobTimeoutSeconds(sec int64) {
	if sec < 0 {
		sec = 0
	}
	jobTimeout = time.Duration(sec) * time.Second
}

// admission limits concurrently admitted jobs. Nil admits everything.
var admission *semaphore.Weighted

// SetMaxConcurrency caps the number of jobs served at once. Jobs over the
// cap are refused with 429. Zero or less removes the cap.
func SetMaxConcurrency(n int64) {
	if n <= 0 {
		admission = nil
		return
	}
	admission = semaphore.NewWeighted(n)
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
