package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	DefaultOpenTimeout       = 5 * time.Second
	DefaultCompletionTimeout = 10 * time.Minute
)

// ComfyClient talks to a single ComfyUI backend over HTTP and its event channel.
// It holds no per-job state and is safe for concurrent use.
type ComfyClient struct {
	baseURL           *url.URL
	apiKey            string
	httpclient        *http.Client
	dialer            *websocket.Dialer
	openTimeout       time.Duration
	completionTimeout time.Duration
	limiter           *rate.Limiter
}

// Option configures a ComfyClient
type Option func(*ComfyClient)

// WithAPIKey sends the key as a bearer token on every request and on the event channel handshake
func WithAPIKey(key string) Option {
	return func(c *ComfyClient) {
		c.apiKey = key
	}
}

// WithHTTPClient replaces the underlying http client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *ComfyClient) {
		if hc != nil {
			c.httpclient = hc
		}
	}
}

// WithOpenTimeout bounds how long opening the event channel may take
func WithOpenTimeout(d time.Duration) Option {
	return func(c *ComfyClient) {
		if d > 0 {
			c.openTimeout = d
		}
	}
}

// WithCompletionTimeout bounds how long Execute waits for a job to finish
func WithCompletionTimeout(d time.Duration) Option {
	return func(c *ComfyClient) {
		if d > 0 {
			c.completionTimeout = d
		}
	}
}

// WithSubmitLimit throttles prompt submissions. A non-positive rps disables throttling.
func WithSubmitLimit(rps float64, burst int) Option {
	return func(c *ComfyClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewComfyClient creates a client for the backend at baseURL, e.g. http://127.0.0.1:8188
func NewComfyClient(baseURL string, opts ...Option) (*ComfyClient, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q: missing host", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""

	retv := &ComfyClient{
		baseURL:           u,
		httpclient:        &http.Client{},
		dialer:            &websocket.Dialer{Proxy: http.ProxyFromEnvironment},
		openTimeout:       DefaultOpenTimeout,
		completionTimeout: DefaultCompletionTimeout,
	}
	for _, opt := range opts {
		opt(retv)
	}
	return retv, nil
}

// BaseURL returns the normalised backend base url
func (c *ComfyClient) BaseURL() string {
	return c.baseURL.String()
}

func (c *ComfyClient) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// eventChannelURL swaps the base scheme for its websocket equivalent
func (c *ComfyClient) eventChannelURL(clientID string) string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = c.baseURL.Path + "/ws"
	u.RawQuery = url.Values{"clientId": {clientID}}.Encode()
	return u.String()
}

func (c *ComfyClient) authHeader() http.Header {
	h := http.Header{}
	if c.apiKey != "" {
		h.Set("Authorization", "Bearer "+c.apiKey)
	}
	return h
}

// do performs the request and returns the body of a 2xx response.
// Any other status yields an *HTTPError carrying the body.
func (c *ComfyClient) do(ctx context.Context, method string, target string, body io.Reader) ([]byte, http.Header, error) {
	return c.doContent(ctx, method, target, "application/json", body)
}

func (c *ComfyClient) doContent(ctx context.Context, method string, target string, contentType string, body io.Reader) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, nil, err
	}
	for k, v := range c.authHeader() {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpclient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: read body: %w", method, target, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &HTTPError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}
	return data, resp.Header, nil
}

// HTTPError is a non-2xx response from the backend
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// IsStatus reports whether err is an *HTTPError with the given status code
func IsStatus(err error, code int) bool {
	var herr *HTTPError
	return errors.As(err, &herr) && herr.StatusCode == code
}
