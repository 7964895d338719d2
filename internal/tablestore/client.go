// Package tablestore is a small client for a hosted REST table store in the
// PostgREST style: one URL per relation, filters as col=op.value query
// parameters, and Prefer headers selecting the write semantics.
package tablestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// ErrNoRows is returned by a Single query that matched nothing.
var ErrNoRows = errors.New("tablestore: no rows in result")

// codeNoRows is the store's error code for a single-object request that matched zero rows.
const codeNoRows = "PGRST116"

// Error is an error response from the store.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tablestore: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("tablestore: %d: %s", e.Status, e.Message)
}

// Client talks to one table store endpoint.
type Client struct {
	baseURL string
	apiKey  string
	token   *oauth2.Token
	http    *http.Client
}

// New creates a client for baseURL (for example https://example.supabase.co/rest/v1).
// A nil httpClient uses http.DefaultClient.
func New(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
	}
}

// WithToken returns a copy of the client that acts as the token's user.
func (c *Client) WithToken(tok *oauth2.Token) *Client {
	cp := *c
	cp.token = tok
	return &cp
}

// From starts a query against table.
func (c *Client) From(table string) *Query {
	return &Query{c: c, table: table}
}

func (c *Client) do(ctx context.Context, method, rawURL string, body any, header http.Header, dst any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	req.Header.Set("apikey", c.apiKey)
	if c.token != nil && c.token.AccessToken != "" {
		c.token.SetAuthHeader(req)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call table store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if dst == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode table store response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	e := &Error{Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, e); err != nil || e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = http.StatusText(resp.StatusCode)
		}
	}
	if e.Code == codeNoRows {
		return fmt.Errorf("%w: %v", ErrNoRows, e)
	}
	return e
}
