// Package supabase provides the shared remote backend client: a PostgREST
// query layer, object storage uploads, and realtime row-change subscriptions.
// The client is constructed explicitly and passed to each access service;
// there is no package-level instance.
package supabase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/telegig/marketplace/pkg/errs"
)

// Client is a Supabase REST API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config holds client configuration. URL and AnonKey come from the process
// environment; their absence is a fatal startup condition.
type Config struct {
	URL        string
	AnonKey    string
	HTTPClient *http.Client
}

// New creates a Supabase client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errs.NewConfigurationError("SUPABASE_URL", "")
	}
	if cfg.AnonKey == "" {
		return nil, errs.NewConfigurationError("SUPABASE_ANON_KEY", "")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.AnonKey,
		httpClient: httpClient,
	}, nil
}

// BaseURL returns the project URL the client was configured with.
func (c *Client) BaseURL() string { return c.baseURL }

// From starts a query builder for a table.
func (c *Client) From(table string) *Query {
	return &Query{client: c, table: table}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

// response is the raw result of a REST call.
type response struct {
	status  int
	body    []byte
	headers http.Header
}

func (c *Client) do(req *http.Request) (*response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &response{status: resp.StatusCode, body: body, headers: resp.Header}, nil
}

// restError is the PostgREST error envelope.
type restError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// pgrstNoRows is the PostgREST code for "JSON object requested, multiple
// (or no) rows returned".
const pgrstNoRows = "PGRST116"

// pgUniqueViolation is the Postgres code for a unique constraint violation.
const pgUniqueViolation = "23505"

// checkError maps a failed REST response onto the error taxonomy. table and
// id give not-found errors a usable message; single marks queries that
// requested exactly one object.
func checkError(resp *response, table, id string, single bool) error {
	if resp.status < 400 {
		return nil
	}

	var re restError
	_ = json.Unmarshal(resp.body, &re)

	switch {
	case single && (resp.status == http.StatusNotAcceptable || re.Code == pgrstNoRows):
		return errs.NewNotFoundError(strings.TrimSuffix(table, "s"), id)
	case resp.status == http.StatusConflict || re.Code == pgUniqueViolation:
		return errs.NewConflictError(strings.TrimSuffix(table, "s"), re.Details, re.Message)
	}

	msg := re.Message
	if msg == "" {
		msg = strings.TrimSpace(string(resp.body))
	}
	return errs.NewRemoteError(resp.status, re.Code, msg)
}

func marshalBody(data any) (io.Reader, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	return bytes.NewReader(body), nil
}

func decodeInto(body []byte, dest any) error {
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
