// Package worker runs the request lifecycle for one generation job at a time,
// many at once. It is structured into small files by concern:
//
//   - controller.go: Controller type, Handle (lifecycle), Collect, idle probes.
//   - config.go: ControllerConfig and NewController; defaults validation.
//   - input.go: job input parsing (prompt, stream, generate_params).
//   - errors.go: ValidationError and helpers.
//   - metrics.go: Prometheus collectors for lifecycles.
//
// Every lifecycle increments the shared in-flight counter before doing any
// work and decrements it exactly once on the way out, whatever the outcome.
package worker
