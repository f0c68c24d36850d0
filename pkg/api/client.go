// Package api is the client for the tournament operations backend. It wraps
// net/http with the conventions every feature module shares: the anti-forgery
// token header, JSON/multipart body encoding, response normalization into a
// single typed error, and bounded retries for reads.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

const (
	csrfHeader     = "X-CSRF-Token"
	defaultTimeout = 10 * time.Second
	defaultBackoff = 250 * time.Millisecond
	loginPath      = "/login"
)

// Config holds client construction parameters.
type Config struct {
	BaseURL   string
	CSRFToken string
	Timeout   time.Duration
	// ReadRetries is the number of extra attempts for GET requests that fail
	// at the transport level. Mutating requests are never retried.
	ReadRetries  int
	RetryBackoff time.Duration
}

type Client struct {
	baseURL      string
	csrfToken    string
	httpClient   *http.Client
	readRetries  int
	retryBackoff time.Duration
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		csrfToken: cfg.CSRFToken,
		httpClient: &http.Client{
			Timeout: timeout,
			// Redirects to the login page must be visible to classification,
			// not transparently followed into an HTML body.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		readRetries:  cfg.ReadRetries,
		retryBackoff: backoff,
	}
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get issues a read and decodes the normalized payload into out. Reads are
// retried on transport failure up to the configured bound.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, out)
}

// Upload issues a multipart POST. The form supplies its own content type so
// the boundary is generated per request.
func (c *Client) Upload(ctx context.Context, path string, form *Form, out any) error {
	return c.do(ctx, http.MethodPost, path, form, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	payload, contentType, err := encodeBody(body)
	if err != nil {
		return &Error{Kind: KindBadResponse, Message: err.Error(), Err: err}
	}

	attempts := 1
	if method == http.MethodGet {
		attempts += c.readRetries
	}

	backoff := c.retryBackoff
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return networkError(ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return &Error{Kind: KindBadResponse, Message: fmt.Sprintf("invalid request: %v", err), Err: err}
		}
		req.Header.Set(csrfHeader, c.csrfToken)
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		return classify(resp, out)
	}
	return networkError(lastErr)
}

// encodeBody returns the serialized request body and its content type. A nil
// body yields no payload; a *Form yields multipart with a generated boundary;
// anything else is marshaled as JSON.
func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case *Form:
		r, contentType, err := b.encode()
		if err != nil {
			return nil, "", err
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, "", err
		}
		return data, contentType, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		return data, "application/json", nil
	}
}

// envelope is the backend's response shape. Fields are optional; presence
// drives classification.
type envelope struct {
	Success     *bool             `json:"success"`
	Error       string            `json:"error"`
	Message     string            `json:"message"`
	FieldErrors map[string]string `json:"field_errors"`
	Data        json.RawMessage   `json:"data"`
}

func classify(resp *http.Response, out any) error {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return badResponseError(resp.StatusCode)
	}

	if !isJSONResponse(resp) {
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return sessionExpiredError(resp.StatusCode)
		case isLoginRedirect(resp):
			return sessionExpiredError(resp.StatusCode)
		case resp.StatusCode == http.StatusForbidden:
			return permissionDeniedError(resp.StatusCode)
		default:
			return badResponseError(resp.StatusCode)
		}
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	// Only object bodies can carry the success/error envelope. List endpoints
	// return bare arrays; decode those straight into out.
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if !ok {
			return applicationError(resp.StatusCode, envelope{})
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return badResponseError(resp.StatusCode)
		}
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return badResponseError(resp.StatusCode)
	}

	// Transport success with an application-level failure flag is still a
	// failure; the two notions of success are never collapsed.
	if !ok || (env.Success != nil && !*env.Success) {
		return applicationError(resp.StatusCode, env)
	}

	if out == nil {
		return nil
	}
	// Some endpoints wrap the payload under "data", others return it flat.
	// Unwrap here so callers never have to check both.
	payload := raw
	if len(env.Data) > 0 && string(env.Data) != "null" {
		payload = env.Data
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return badResponseError(resp.StatusCode)
	}
	return nil
}

func applicationError(status int, env envelope) *Error {
	msg := env.Error
	if msg == "" {
		msg = env.Message
	}
	if msg == "" {
		msg = fmt.Sprintf("Request failed (status %d).", status)
	}
	kind := KindApplication
	switch status {
	case http.StatusUnauthorized:
		kind = KindSessionExpired
	case http.StatusForbidden:
		kind = KindPermissionDenied
	}
	return &Error{
		Kind:        kind,
		Status:      status,
		Message:     msg,
		FieldErrors: env.FieldErrors,
	}
}

func isJSONResponse(resp *http.Response) bool {
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}

func isLoginRedirect(resp *http.Response) bool {
	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return false
	}
	loc, err := resp.Location()
	if err != nil {
		return false
	}
	return strings.HasPrefix(loc.Path, loginPath)
}
