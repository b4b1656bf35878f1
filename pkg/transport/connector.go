// Package transport opens and holds the long-lived HTTP streams the
// configuration client consumes. It owns everything up to the raw byte
// stream: request construction, response status classification, and the
// read-idle watchdog that detects silently dead connections.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/configstream/configstream-go/pkg/streamerrors"
)

const (
	// DefaultReadTimeout is how long a stream may go without delivering a
	// single byte before the connection is declared dead. Servers are
	// expected to send comment keepalives well inside this window.
	DefaultReadTimeout = 90 * time.Second

	// DefaultConnectTimeout bounds the dial plus response-header wait
	DefaultConnectTimeout = 30 * time.Second

	// DefaultUserAgent identifies this client to the server
	DefaultUserAgent = "configstream-go/1.0"

	contentTypeEventStream = "text/event-stream"
)

// Stream is one open event stream. Reads return the raw response bytes;
// Close releases the underlying connection and is safe to call more than
// once.
type Stream interface {
	io.ReadCloser
}

// Connector opens a transport-level stream to an address. Implementations
// classify every failure into the structured error taxonomy so the retry
// loop can decide what to do without inspecting transport internals.
type Connector interface {
	Open(ctx context.Context, address string) (Stream, error)
}

// HTTPConnector opens event streams over a long-lived HTTP GET
type HTTPConnector struct {
	client      *http.Client
	headers     map[string]string
	userAgent   string
	readTimeout time.Duration
	mu          sync.Mutex
}

// ConnectorOption configures an HTTPConnector
type ConnectorOption func(*HTTPConnector)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(client *http.Client) ConnectorOption {
	return func(c *HTTPConnector) {
		if client != nil {
			c.client = client
		}
	}
}

// WithReadTimeout sets the idle window after which a silent stream is
// declared dead
func WithReadTimeout(d time.Duration) ConnectorOption {
	return func(c *HTTPConnector) {
		if d > 0 {
			c.readTimeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) ConnectorOption {
	return func(c *HTTPConnector) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHeader adds a header to every stream request
func WithHeader(key, value string) ConnectorOption {
	return func(c *HTTPConnector) {
		c.headers[key] = value
	}
}

// NewHTTPConnector creates a connector with the given options
func NewHTTPConnector(opts ...ConnectorOption) *HTTPConnector {
	c := &HTTPConnector{
		client: &http.Client{
			// No overall client timeout: the response body is a
			// long-lived stream. The header wait is bounded instead.
			Transport: &http.Transport{
				ResponseHeaderTimeout: DefaultConnectTimeout,
				Proxy:                 http.ProxyFromEnvironment,
			},
		},
		headers:     make(map[string]string),
		userAgent:   DefaultUserAgent,
		readTimeout: DefaultReadTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open performs the GET and hands back the response body as a Stream. The
// request carries ctx, so cancelling it unblocks any in-flight read. The
// returned stream is closed exactly once per successful Open; on every error
// path Open has already released the response.
func (c *HTTPConnector) Open(ctx context.Context, address string) (Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, streamerrors.Unreachable(address, err).
			WithContext(&streamerrors.Context{
				Component: "HTTPConnector",
				Operation: "build_request",
				Endpoint:  address,
			})
	}

	req.Header.Set("Accept", contentTypeEventStream)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", c.userAgent)

	c.mu.Lock()
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	c.mu.Unlock()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyDialError(address, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code := resp.StatusCode
		drainAndClose(resp.Body)
		return nil, streamerrors.HTTPStatus(address, code).
			WithContext(&streamerrors.Context{
				Component: "HTTPConnector",
				Operation: "connect",
				Endpoint:  address,
			})
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, contentTypeEventStream) {
		drainAndClose(resp.Body)
		return nil, streamerrors.BadContentType(address, contentType)
	}

	return newWatchdogStream(resp.Body, address, c.readTimeout), nil
}

// classifyDialError maps an http.Client error onto the failure taxonomy
func classifyDialError(address string, err error) streamerrors.StreamError {
	ctx := &streamerrors.Context{
		Component: "HTTPConnector",
		Operation: "connect",
		Endpoint:  address,
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return streamerrors.WrapError(err, streamerrors.CodeUnreachable,
			"connection cancelled", streamerrors.CategoryCancelled, streamerrors.SeverityInfo).
			WithContext(ctx)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return streamerrors.ConnectionTimeout(address, 0, err).WithContext(ctx)
	}

	var recordErr tls.RecordHeaderError
	var certErr *tls.CertificateVerificationError
	var unknownAuthErr x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	if errors.As(err, &recordErr) || errors.As(err, &certErr) ||
		errors.As(err, &unknownAuthErr) || errors.As(err, &hostnameErr) {
		return streamerrors.TLSFailure(address, err).WithContext(ctx)
	}

	return streamerrors.Unreachable(address, err).WithContext(ctx)
}

func drainAndClose(body io.ReadCloser) {
	// Drain a little so the connection can be reused, then close. Errors
	// here are irrelevant: the caller already has a better one.
	_, _ = io.CopyN(io.Discard, body, 4096)
	_ = body.Close()
}

// watchdogStream wraps a response body with an idle timer. If no bytes
// arrive within the timeout the body is closed out from under the reader,
// which surfaces the pending Read as a classified timeout error.
type watchdogStream struct {
	body    io.ReadCloser
	address string
	timeout time.Duration

	timer *time.Timer

	mu       sync.Mutex
	closed   bool
	timedOut bool
}

func newWatchdogStream(body io.ReadCloser, address string, timeout time.Duration) *watchdogStream {
	ws := &watchdogStream{
		body:    body,
		address: address,
		timeout: timeout,
	}
	ws.timer = time.AfterFunc(timeout, ws.onTimeout)
	return ws
}

func (ws *watchdogStream) Read(p []byte) (int, error) {
	n, err := ws.body.Read(p)
	if n > 0 {
		ws.mu.Lock()
		if !ws.closed {
			ws.timer.Reset(ws.timeout)
		}
		ws.mu.Unlock()
	}
	if err != nil {
		ws.mu.Lock()
		timedOut := ws.timedOut
		ws.mu.Unlock()
		if timedOut {
			return n, streamerrors.ConnectionTimeout(ws.address, ws.timeout, err)
		}
	}
	return n, err
}

func (ws *watchdogStream) Close() error {
	ws.mu.Lock()
	if ws.closed {
		ws.mu.Unlock()
		return nil
	}
	ws.closed = true
	ws.timer.Stop()
	ws.mu.Unlock()

	return ws.body.Close()
}

func (ws *watchdogStream) onTimeout() {
	ws.mu.Lock()
	if ws.closed {
		ws.mu.Unlock()
		return
	}
	ws.timedOut = true
	ws.closed = true
	ws.mu.Unlock()

	_ = ws.body.Close()
}
