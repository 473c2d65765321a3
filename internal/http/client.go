package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"
)

// DefaultMaxBodyBytes is how much of a response body is kept for checks.
// Anything past it is read and counted but discarded.
const DefaultMaxBodyBytes = 10 << 20

// DefaultUserAgent is sent when no User-Agent header is configured.
const DefaultUserAgent = "stampede/1.0"

// Config contains HTTP client configuration.
type Config struct {
	// Timeout for a whole request including the body read
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host (0 = unlimited)
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool

	// DisableCompression disables automatic decompression
	DisableCompression bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool

	// UserAgent overrides DefaultUserAgent
	UserAgent string

	// MaxBodyBytes caps the retained body (0 = DefaultMaxBodyBytes)
	MaxBodyBytes int64
}

// DefaultConfig returns sensible defaults for load testing.
func DefaultConfig() Config {
	return Config{
		Timeout:             60 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		UserAgent:           DefaultUserAgent,
		MaxBodyBytes:        DefaultMaxBodyBytes,
	}
}

// Client issues requests on behalf of virtual users. One Client is shared by
// every VU so connections are pooled.
type Client struct {
	httpClient   *http.Client
	headers      map[string]string
	userAgent    string
	maxBodyBytes int64
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// WithHeader adds a header sent with every request
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithHeaders adds several headers sent with every request
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// NewClient creates a client from cfg. Zero fields fall back to DefaultConfig.
func NewClient(cfg Config, options ...ClientOption) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = def.MaxIdleConnsPerHost
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
		DisableCompression:  cfg.DisableCompression,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via --insecure
	}

	client := &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		headers:      make(map[string]string),
		userAgent:    cfg.UserAgent,
		maxBodyBytes: cfg.MaxBodyBytes,
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// Get issues a GET request. It never returns an error: transport failures are
// reported in Result.Err.
func (c *Client) Get(ctx context.Context, url string) *Result {
	return c.Do(ctx, http.MethodGet, url)
}

// Do executes a body-less request and returns the result with phase timings.
func (c *Client) Do(ctx context.Context, method, url string) *Result {
	result := &Result{
		Method:    method,
		URL:       url,
		StartTime: time.Now(),
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		result.Err = &RequestError{Kind: ErrorKindInvalid, Op: "build", URL: url, Err: err}
		return result
	}

	req.Header.Set("User-Agent", c.userAgent)
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	tracer := newTracer(result.StartTime)
	req = req.WithContext(httptrace.WithClientTrace(ctx, tracer.clientTrace()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		result.Timings = tracer.timings(time.Now())
		result.Duration = result.Timings.Duration()
		result.Err = classify(ctx, "request", url, err)
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.Status = resp.Status
	result.Proto = resp.Proto
	result.Header = resp.Header

	body, n, readErr := readBody(resp.Body, c.maxBodyBytes)
	end := time.Now()

	result.Body = body
	result.Bytes = n
	result.BodyTruncated = n > int64(len(body))
	result.Timings = tracer.timings(end)
	result.Duration = result.Timings.Duration()

	if readErr != nil {
		result.Err = classify(ctx, "read body", url, readErr)
		return result
	}

	result.Success = resp.StatusCode >= 200 && resp.StatusCode < 400
	return result
}

// readBody keeps at most limit bytes and drains the rest so the connection
// can be reused. It returns the total number of bytes read.
func readBody(r io.Reader, limit int64) ([]byte, int64, error) {
	var buf bytes.Buffer
	kept, err := io.Copy(&buf, io.LimitReader(r, limit))
	if err != nil {
		return buf.Bytes(), kept, err
	}
	rest, err := io.Copy(io.Discard, r)
	return buf.Bytes(), kept + rest, err
}

// CloseIdleConnections closes pooled connections. Call it when the run ends.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}
