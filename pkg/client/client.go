// Package client provides the Go SDK for the fact log service: submitting
// facts, reading the log, and driving the commitment/extension-proof
// protocol from a verifier's side.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrUnavailable is returned when the service reports that no commitment
// or proof exists: the log is empty, or the supplied baseline is not a
// strict prefix of the current log.
var ErrUnavailable = errors.New("commitment or proof unavailable")

// Status is the log overview returned by GET /api/v1/log.
type Status struct {
	Enabled    bool   `json:"enabled"`
	Facts      int    `json:"facts"`
	Commitment string `json:"commitment,omitempty"`
}

// Receipt acknowledges a fact submission.
type Receipt struct {
	Stored  bool   `json:"stored"`
	Receipt string `json:"receipt,omitempty"`
}

// FactsPage is one page of stored facts.
type FactsPage struct {
	Order string            `json:"order"`
	Count int               `json:"count"`
	Facts []json.RawMessage `json:"facts"`
}

// Client talks to a fact log service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the operator token sent on gate-changing requests.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a Client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges the operator password for a token and remembers it for
// subsequent gate-changing calls.
func (c *Client) Login(ctx context.Context, subject, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"subject": subject, "password": password}, &resp)
	if err != nil {
		return "", err
	}
	c.token = resp.Token
	return resp.Token, nil
}

// Status returns the log overview.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.do(ctx, http.MethodGet, "/api/v1/log", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Enable turns fact collection on. Requires an operator token.
func (c *Client) Enable(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/log/enable", nil, nil)
}

// Disable turns fact collection off. Requires an operator token.
func (c *Client) Disable(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/log/disable", nil, nil)
}

// AppendFact submits a fact. Receipt.Stored is false when the log is
// disabled and the fact was dropped.
func (c *Client) AppendFact(ctx context.Context, fact any) (*Receipt, error) {
	var r Receipt
	if err := c.do(ctx, http.MethodPost, "/api/v1/facts", fact, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Facts returns a page of stored facts. order is "asc" or "desc"; limit
// zero uses the server default.
func (c *Client) Facts(ctx context.Context, order string, limit int) (*FactsPage, error) {
	q := url.Values{}
	if order != "" {
		q.Set("order", order)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/facts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var page FactsPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Commitment returns the bare root commitment of the current log, or
// ErrUnavailable on an empty log.
func (c *Client) Commitment(ctx context.Context) (string, error) {
	var resp struct {
		Commitment string `json:"commitment"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/log/commitment", nil, &resp); err != nil {
		return "", err
	}
	return resp.Commitment, nil
}

// ExtensionProof runs one step of the protocol. latest is the commitment
// reference from the previous step, or empty for the genesis commitment.
// ErrUnavailable means the log is empty or has not grown past the
// baseline.
func (c *Client) ExtensionProof(ctx context.Context, latest string) (string, error) {
	path := "/api/v1/log/extension-proof"
	if latest != "" {
		path += "?latest=" + url.QueryEscape(latest)
	}
	var resp struct {
		Proof string `json:"proof"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.Proof, nil
}

// Verify checks a previously issued commitment reference against the
// current log.
func (c *Client) Verify(ctx context.Context, reference string) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	path := "/api/v1/log/verify?reference=" + url.QueryEscape(reference)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Valid, nil
}

// do issues a JSON request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrUnavailable
	}
	if resp.StatusCode >= 400 {
		return parseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseError extracts the service's JSON error payload when present.
func parseError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("service error (%d): %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("service error (%d)", resp.StatusCode)
}
