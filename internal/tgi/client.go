package tgi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client is the capability surface the worker needs from an inference backend.
type Client interface {
	// Generate performs a single-shot generation and returns the full text.
	Generate(ctx context.Context, prompt string, params map[string]any) (CompletionResult, error)
	// GenerateStream starts a streaming generation. The returned stream must
	// be closed by the caller.
	GenerateStream(ctx context.Context, prompt string, params map[string]any) (TokenStream, error)
	// Capabilities lists the parameter names each operation accepts.
	Capabilities() Capabilities
}

// Defaults applied when corresponding ClientConfig fields are unset.
const (
	DefaultBaseURL        = "http://localhost:8080"
	defaultTimeout        = 10 * time.Second
	defaultConnectTimeout = 5 * time.Second
	maxErrorBody          = 4096
)

// ClientConfig encapsulates all tunables for HTTPClient construction.
type ClientConfig struct {
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
	// Timeout bounds each non-streaming call. For streams it bounds the wait
	// for headers and each gap between lines. Negative disables it.
	Timeout        time.Duration
	ConnectTimeout time.Duration
	Headers        map[string]string
	Logger         zerolog.Logger
	// HTTPClient overrides the transport, mostly for tests.
	HTTPClient *http.Client
}

// HTTPClient implements Client against a TGI HTTP server.
type HTTPClient struct {
	baseURL    string
	token      string
	timeout    time.Duration
	headers    map[string]string
	httpClient *http.Client
	caps       Capabilities
	log        zerolog.Logger
}

// NewHTTPClient constructs a client from cfg, applying package defaults.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:   cfg.Token,
		timeout: cfg.Timeout,
		headers: cfg.Headers,
		caps:    DefaultCapabilities(),
		log:     cfg.Logger.With().Str("component", "tgi").Logger(),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.timeout == 0 {
		c.timeout = defaultTimeout
	}
	if c.timeout < 0 {
		c.timeout = 0
	}
	if cfg.HTTPClient != nil {
		c.httpClient = cfg.HTTPClient
		return c
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Timeout=0: deadlines come from the per-call context so streams can
	// outlive a fixed client timeout when configured to.
	c.httpClient = &http.Client{Transport: tr, Timeout: 0}
	return c
}

// BaseURL returns the server location requests are sent to.
func (c *HTTPClient) BaseURL() string { return c.baseURL }

// Capabilities implements Client.
func (c *HTTPClient) Capabilities() Capabilities { return c.caps }

// withTimeout derives the per-call context.
func (c *HTTPClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

func (c *HTTPClient) newRequest(ctx context.Context, path string, payload generateRequest) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// Generate implements Client.
func (c *HTTPClient) Generate(ctx context.Context, prompt string, params map[string]any) (CompletionResult, error) {
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	c.log.Debug().Str("op", string(OpGenerate)).Int("params", len(params)).Msg("tgi request")
	req, err := c.newRequest(callCtx, "/generate", generateRequest{Inputs: prompt, Parameters: params})
	if err != nil {
		return CompletionResult{}, &BackendError{Op: OpGenerate, Kind: "request", Message: err.Error(), Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return CompletionResult{}, c.classify(ctx, OpGenerate, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CompletionResult{}, responseError(OpGenerate, resp)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		if cerr := callCtx.Err(); cerr != nil {
			err = cerr
		}
		return CompletionResult{}, c.classify(ctx, OpGenerate, err)
	}
	res, err := decodeCompletion(b)
	if err != nil {
		return CompletionResult{}, &BackendError{Op: OpGenerate, Status: resp.StatusCode, Kind: "malformed_response", Message: err.Error(), Err: err}
	}
	return res, nil
}

// decodeCompletion accepts both the object form returned by /generate and the
// single-element array form returned by the server root route.
func decodeCompletion(b []byte) (CompletionResult, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []CompletionResult
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return CompletionResult{}, err
		}
		if len(list) == 0 {
			return CompletionResult{}, errEmptyResponse
		}
		return list[0], nil
	}
	var res CompletionResult
	if err := json.Unmarshal(trimmed, &res); err != nil {
		return CompletionResult{}, err
	}
	return res, nil
}

// GenerateStream implements Client. The timeout bounds the wait for the
// response headers and every gap between stream lines, not the whole stream.
func (c *HTTPClient) GenerateStream(ctx context.Context, prompt string, params map[string]any) (TokenStream, error) {
	callCtx, cancel := context.WithCancel(ctx)
	s := &sseStream{client: c, parent: ctx, ctx: callCtx, cancel: cancel, idle: c.timeout}
	s.arm()

	c.log.Debug().Str("op", string(OpGenerateStream)).Int("params", len(params)).Msg("tgi request")
	req, err := c.newRequest(callCtx, "/generate_stream", generateRequest{Inputs: prompt, Parameters: params, Stream: true})
	if err != nil {
		s.release()
		return nil, &BackendError{Op: OpGenerateStream, Kind: "request", Message: err.Error(), Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		s.release()
		return nil, s.fail(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer s.release()
		defer resp.Body.Close()
		return nil, responseError(OpGenerateStream, resp)
	}
	s.body = resp.Body
	s.sc = newLineScanner(resp.Body)
	s.pause()
	return s, nil
}

// responseError builds a BackendError from a non-2xx response, decoding the
// server's error payload when present.
func responseError(op Operation, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	be := &BackendError{Op: op, Status: resp.StatusCode, Kind: "http", Message: strings.TrimSpace(string(b))}
	var ep errorPayload
	if err := json.Unmarshal(b, &ep); err == nil && ep.Error != "" {
		be.Message = ep.Error
		if ep.ErrorType != "" {
			be.Kind = ep.ErrorType
		}
	}
	if be.Message == "" {
		be.Message = resp.Status
	}
	return be
}

// Health probes the server's /health route. Any 2xx is healthy.
func (c *HTTPClient) Health(ctx context.Context) error {
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classify(ctx, "health", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &BackendError{Op: "health", Status: resp.StatusCode, Kind: "http", Message: resp.Status}
	}
	return nil
}
