// Package client is the Go SDK for the ExGen API. Every call attaches a
// bearer token from the configured TokenProvider and retries exactly once
// with a forced refresh when the server answers 401.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/exgen-nl/exgen-api/pkg/models"
)

// TokenProvider supplies bearer tokens. Implementations own the credential
// exchange; force bypasses any provider-side cache and fetches a new token.
type TokenProvider interface {
	Token(ctx context.Context, force bool) (string, error)
}

// APIError is the single failure shape of the SDK. Network errors carry
// Status 0 and Code NETWORK so callers can branch without unwrapping.
type APIError struct {
	Status int    `json:"status"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("exgen client: %s: %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("exgen client: %d %s: %s", e.Status, e.Code, e.Detail)
}

// Tokens are cached shorter than the provider's five minute lifetime so a
// cached token is never handed out within seconds of expiring.
const tokenCacheTTL = 4 * time.Minute

// Client talks to one ExGen API deployment.
type Client struct {
	baseURL string
	httpc   *http.Client
	tokens  TokenProvider

	mu        sync.Mutex
	token     string
	fetchedAt time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// New creates a client rooted at baseURL, e.g. "https://api.exgen.nl/api".
func New(baseURL string, tokens TokenProvider, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) bearer(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !force && c.token != "" && time.Since(c.fetchedAt) < tokenCacheTTL {
		return c.token, nil
	}
	token, err := c.tokens.Token(ctx, force)
	if err != nil {
		return "", err
	}
	c.token = token
	c.fetchedAt = time.Now()
	return token, nil
}

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *APIError              `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

// wireError matches the server's error body.
type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func networkError(err error) *APIError {
	return &APIError{Status: 0, Code: "NETWORK", Detail: err.Error()}
}

// do performs one JSON round trip. A 401 triggers a forced token refresh and
// exactly one retry; a second 401 is returned to the caller.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) (*envelope, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, &APIError{Status: 0, Code: "ENCODE", Detail: err.Error()}
		}
	}
	return c.send(ctx, method, path, query, "application/json", payload, out)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, contentType string, payload []byte, out interface{}) (*envelope, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.bearer(ctx, attempt > 0)
		if err != nil {
			return nil, networkError(err)
		}

		target := c.baseURL + path
		if len(query) > 0 {
			target += "?" + query.Encode()
		}
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, networkError(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, networkError(err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			continue
		}

		env, apiErr := decodeResponse(resp, out)
		return env, errOrNil(apiErr)
	}
	return nil, &APIError{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Detail: "token refresh did not clear 401"}
}

func decodeResponse(resp *http.Response, out interface{}) (*envelope, *APIError) {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(err)
	}

	var env envelope
	if len(raw) > 0 {
		// Tolerate non-envelope bodies from proxies in front of the API.
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 400 {
			return nil, &APIError{Status: resp.StatusCode, Code: "DECODE", Detail: err.Error()}
		}
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Code: "HTTP_ERROR", Detail: http.StatusText(resp.StatusCode)}
		var wire struct {
			Error *wireError `json:"error"`
		}
		if json.Unmarshal(raw, &wire) == nil && wire.Error != nil {
			apiErr.Code = wire.Error.Code
			apiErr.Detail = wire.Error.Message
		}
		return &env, apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &env, &APIError{Status: resp.StatusCode, Code: "DECODE", Detail: err.Error()}
		}
	}
	return &env, nil
}

// errOrNil avoids a typed-nil error interface escaping to callers.
func errOrNil(err *APIError) error {
	if err == nil {
		return nil
	}
	return err
}

// uploadFile posts a file as multipart form data under the "file" field. The
// content is buffered so the 401 refresh-and-retry contract holds.
func (c *Client) uploadFile(ctx context.Context, path, filename string, content io.Reader, out interface{}) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return &APIError{Status: 0, Code: "ENCODE", Detail: err.Error()}
	}
	if _, err := io.Copy(part, content); err != nil {
		return &APIError{Status: 0, Code: "ENCODE", Detail: err.Error()}
	}
	if err := writer.Close(); err != nil {
		return &APIError{Status: 0, Code: "ENCODE", Detail: err.Error()}
	}

	_, sendErr := c.send(ctx, http.MethodPost, path, nil, writer.FormDataContentType(), buf.Bytes(), out)
	return sendErr
}
