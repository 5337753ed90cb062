// Package tgi is the generation client facade over a text-generation-inference
// server. It is structured into small files by concern:
//
//   - client.go: Client interface and the HTTP implementation (HTTPClient).
//   - capabilities.go: static accepted-parameter tables per operation.
//   - types.go: wire types (CompletionResult, StreamResponse, Token).
//   - stream.go: pull-based SSE token stream (TokenStream).
//   - errors.go: BackendError, TimeoutError and classification helpers.
//
// Every call carries a context; the client applies its own request timeout on
// top of whatever deadline the caller already set. Streams are bounded per
// gap between lines rather than end to end.
package tgi
