package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ClientOption configures Client.
type ClientOption func(*Client)

// RequestOptions holds the parts of an API call.
type RequestOptions struct {
	Method  string
	Path    string
	Query   url.Values
	Headers map[string]string
	Body    interface{}
}

// Client calls a server that answers with the APIResponse envelope.
type Client struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client = &http.Client{Timeout: c.timeout}
	return c
}

// Get decodes the envelope data of GET path into dest.
func (c *Client) Get(ctx context.Context, path string, query url.Values, dest interface{}) error {
	return c.Do(ctx, &RequestOptions{Method: http.MethodGet, Path: path, Query: query}, dest)
}

// Post sends body as JSON and decodes the envelope data into dest.
func (c *Client) Post(ctx context.Context, path string, body, dest interface{}) error {
	return c.Do(ctx, &RequestOptions{Method: http.MethodPost, Path: path, Body: body}, dest)
}

// Do sends the request. A non-2xx answer is returned as *AppError carrying
// the first error the server reported.
func (c *Client) Do(ctx context.Context, opts *RequestOptions, dest interface{}) error {
	req, err := c.buildRequest(ctx, opts)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	var env struct {
		Status  int             `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return NewAppError("ERR_HTTP", "", fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(raw)), resp.StatusCode)
		}
		return fmt.Errorf("decode envelope: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, env.Message, env.Data)
	}
	if dest == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// decodeError rebuilds the server's error list; a non-envelope body
// becomes a single ERR_HTTP entry.
func decodeError(status int, message string, data json.RawMessage) error {
	var list Errors
	if err := json.Unmarshal(data, &list); err == nil && len(list) > 0 {
		for _, e := range list {
			e.Status = status
		}
		return list
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil && text != "" {
		message = text
	}
	return NewAppError("ERR_HTTP", "", message, status)
}

func (c *Client) buildRequest(ctx context.Context, opts *RequestOptions) (*http.Request, error) {
	u := c.baseURL + "/" + strings.TrimLeft(opts.Path, "/")
	if len(opts.Query) > 0 {
		u += "?" + opts.Query.Encode()
	}

	var body io.Reader
	if opts.Body != nil {
		b, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal json: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// WithTimeout sets client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}
