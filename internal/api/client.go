package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Service is the remote-operation surface consumed by the client core.
// Splitting it from Client keeps the registry and controller testable with a
// scripted fake.
type Service interface {
	ListSchemes(ctx context.Context) ([]Scheme, error)
	CreateScheme(ctx context.Context, name string) (*Scheme, error)
	DeleteScheme(ctx context.Context, id int64) error
	StartDialog(ctx context.Context, schemeID *int64) (*DialogResponse, error)
	SubmitAnswer(ctx context.Context, text string) (*DialogResponse, error)
}

// TokenSource supplies the bearer token for a request, if one is stored.
type TokenSource func() (string, bool)

// StatusError is a non-success response from the service: status plus a
// message extracted from a JSON `detail` field or the raw body text.
type StatusError struct {
	Code    int
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Code, e.Status, e.Message)
}

// Client implements Service over HTTP. Under js/wasm net/http is fetch-backed,
// so the same client serves both the browser and the native CLI.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
	log     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTokenSource installs the bearer-token lookup.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}

// WithLogger installs a logger. The default is a nop.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListSchemes(ctx context.Context) ([]Scheme, error) {
	var schemes []Scheme
	if err := c.do(ctx, http.MethodGet, "/api/schemes", nil, nil, &schemes); err != nil {
		return nil, err
	}
	return schemes, nil
}

func (c *Client) CreateScheme(ctx context.Context, name string) (*Scheme, error) {
	q := url.Values{"name": {name}}
	var scheme Scheme
	if err := c.do(ctx, http.MethodPost, "/api/schemes", q, nil, &scheme); err != nil {
		return nil, err
	}
	return &scheme, nil
}

func (c *Client) DeleteScheme(ctx context.Context, id int64) error {
	path := "/api/schemes/" + strconv.FormatInt(id, 10)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) StartDialog(ctx context.Context, schemeID *int64) (*DialogResponse, error) {
	var q url.Values
	if schemeID != nil {
		q = url.Values{"scheme_id": {strconv.FormatInt(*schemeID, 10)}}
	}
	var resp DialogResponse
	if err := c.do(ctx, http.MethodPost, "/api/dialog/start", q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SubmitAnswer(ctx context.Context, text string) (*DialogResponse, error) {
	body := map[string]string{"answer": text}
	var resp DialogResponse
	if err := c.do(ctx, http.MethodPost, "/api/dialog/answer", nil, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do performs one JSON round-trip against the service.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if t, ok := c.token(); ok {
			req.Header.Set("Authorization", "Bearer "+t)
		}
	}

	c.log.Debug("api request", zap.String("method", method), zap.String("path", path))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			Code:    resp.StatusCode,
			Status:  http.StatusText(resp.StatusCode),
			Message: errorMessage(raw),
		}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
		}
	}
	return nil
}

// errorMessage pulls a human-readable message out of an error body: the JSON
// `detail` field when present, the raw text otherwise.
func errorMessage(raw []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return strings.TrimSpace(string(raw))
}

// Compile-time interface check
var _ Service = (*Client)(nil)
