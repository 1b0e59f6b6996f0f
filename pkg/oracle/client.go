// Package oracle is a client for the Oracle Gateway, the external service
// that executes the resolution pipeline stages.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Gateway paths.
const (
	PathPrompt       = "/step/prompt"
	PathCollect      = "/step/collect"
	PathAudit        = "/step/audit"
	PathJudge        = "/step/judge"
	PathBundle       = "/step/bundle"
	PathResolve      = "/step/resolve"
	PathCapabilities = "/capabilities"
)

const (
	defaultBaseURL      = "http://localhost:8000"
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 300 * time.Second

	accessCodeHeader = "X-Access-Code"
)

// Client executes pipeline steps against the gateway. The access code is
// supplied per call; the client holds no session state.
type Client interface {
	// Step runs one state-changing step and returns the decoded step
	// response body.
	Step(ctx context.Context, accessCode, path string, payload any) (json.RawMessage, error)
	// Capabilities lists the providers and collectors the gateway offers.
	Capabilities(ctx context.Context, accessCode string) (*Capabilities, error)
}

// Capabilities is the /capabilities response.
type Capabilities struct {
	Version         string          `json:"version,omitempty"`
	DefaultProvider string          `json:"default_provider,omitempty"`
	DefaultModel    string          `json:"default_model,omitempty"`
	Providers       []ProviderInfo  `json:"providers"`
	Collectors      []CollectorInfo `json:"collectors"`
}

// ProviderInfo is one LLM provider and its models.
type ProviderInfo struct {
	Name   string   `json:"name"`
	Models []string `json:"models"`
}

// CollectorInfo is one evidence collector.
type CollectorInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// HasCollector reports whether the gateway offers a collector with the id.
func (c *Capabilities) HasCollector(id string) bool {
	for _, col := range c.Collectors {
		if col.ID == id {
			return true
		}
	}
	return false
}

// envelope wraps every proxied request.
type envelope struct {
	Code     string `json:"code"`
	PostData string `json:"post_data"`
	Path     string `json:"path"`
	Method   string `json:"method"`
}

// envelopeResponse wraps every proxied response.
type envelopeResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		Result json.RawMessage `json:"result"`
	} `json:"data"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default gateway URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithDirect posts step payloads straight to <base><path> instead of
// wrapping them in the gateway envelope. Used against a local oracle.
func WithDirect(direct bool) Option {
	return func(c *httpClient) {
		c.direct = direct
	}
}

// WithTimeouts overrides the read-only and state-changing request timeouts.
// Zero values keep the defaults.
func WithTimeouts(read, write time.Duration) Option {
	return func(c *httpClient) {
		if read > 0 {
			c.readTimeout = read
		}
		if write > 0 {
			c.writeTimeout = write
		}
	}
}

// WithRateLimit paces outgoing requests. A non-positive rate disables pacing.
func WithRateLimit(perSec float64, burst int) Option {
	return func(c *httpClient) {
		if perSec <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

type httpClient struct {
	baseURL      string
	direct       bool
	readTimeout  time.Duration
	writeTimeout time.Duration
	limiter      *rate.Limiter
	http         *http.Client
}

// NewClient creates a gateway client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:      defaultBaseURL,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Step(ctx context.Context, accessCode, path string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrapf(err, "oracle: marshal %s payload", path)
	}
	return c.call(ctx, accessCode, http.MethodPost, path, body, c.writeTimeout)
}

func (c *httpClient) Capabilities(ctx context.Context, accessCode string) (*Capabilities, error) {
	raw, err := c.call(ctx, accessCode, http.MethodGet, PathCapabilities, nil, c.readTimeout)
	if err != nil {
		return nil, err
	}
	var caps Capabilities
	if err := json.Unmarshal(raw, &caps); err != nil {
		return nil, &TransportError{Err: eris.Wrap(err, "decode capabilities")}
	}
	return &caps, nil
}

func (c *httpClient) call(ctx context.Context, accessCode, method, path string, body []byte, timeout time.Duration) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, newTransportError(err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.newRequest(ctx, accessCode, method, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, newTransportError(err)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newTransportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: eris.New(snippet(respBody))}
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: eris.New("empty response body")}
	}

	if c.direct {
		if !json.Valid(respBody) {
			return nil, &TransportError{StatusCode: resp.StatusCode, Err: eris.New("malformed response body")}
		}
		return json.RawMessage(respBody), nil
	}
	return decodeEnvelope(respBody)
}

func (c *httpClient) newRequest(ctx context.Context, accessCode, method, path string, body []byte) (*http.Request, error) {
	if c.direct {
		var rdr io.Reader
		if method != http.MethodGet {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
		if err != nil {
			return nil, eris.Wrap(err, "oracle: create request")
		}
		if rdr != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if accessCode != "" {
			req.Header.Set(accessCodeHeader, accessCode)
		}
		return req, nil
	}

	env, err := json.Marshal(envelope{
		Code:     accessCode,
		PostData: string(body),
		Path:     path,
		Method:   method,
	})
	if err != nil {
		return nil, eris.Wrap(err, "oracle: marshal envelope")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(env))
	if err != nil {
		return nil, eris.Wrap(err, "oracle: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// decodeEnvelope unwraps {code, msg, data:{result}}. The result is normally
// a JSON-encoded string holding the step response; an inline object is
// accepted as well.
func decodeEnvelope(body []byte) (json.RawMessage, error) {
	var env envelopeResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &TransportError{Err: eris.Wrap(err, "decode envelope")}
	}
	switch env.Code {
	case CodeOK:
	case CodeInvalidAccess:
		return nil, &AuthError{Msg: env.Msg}
	default:
		return nil, &GatewayError{Code: env.Code, Msg: env.Msg}
	}

	if env.Data == nil || len(env.Data.Result) == 0 || string(env.Data.Result) == "null" {
		return nil, &TransportError{Err: eris.New("envelope has no result")}
	}

	result := env.Data.Result
	var inner string
	if err := json.Unmarshal(result, &inner); err == nil {
		result = json.RawMessage(inner)
	}
	if len(bytes.TrimSpace(result)) == 0 || !json.Valid(result) {
		return nil, &TransportError{Err: eris.New("malformed step result")}
	}
	return result, nil
}

func snippet(b []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
