// Package graphql runs raw GraphQL queries against the q/acc backend on top
// of hasura/go-graphql-client, adding bearer auth and error mapping.
package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gql "github.com/hasura/go-graphql-client"
)

const authRequiredMessage = "Authentication required."

// ErrAuthRequired is returned when the backend rejects an unauthenticated call.
var ErrAuthRequired = errors.New("Authentication required. Please sign in.")

// Error carries the messages of a GraphQL error response. StatusCode is set
// when the backend answered outside 2xx.
type Error struct {
	StatusCode int
	Messages   []string
}

func (e *Error) Error() string {
	msg := strings.Join(e.Messages, ", ")
	if e.StatusCode != 0 && !success(e.StatusCode) {
		if msg == "" {
			return fmt.Sprintf("graphql: status %d", e.StatusCode)
		}
		return fmt.Sprintf("graphql: status %d: %s", e.StatusCode, msg)
	}
	return msg
}

// Unwrap lets errors.Is(err, ErrAuthRequired) match.
func (e *Error) Unwrap() error {
	for _, m := range e.Messages {
		if strings.Contains(m, authRequiredMessage) {
			return ErrAuthRequired
		}
	}
	return nil
}

// TokenSource supplies the bearer token for authenticated requests.
type TokenSource interface {
	Token(ctx context.Context) (string, bool)
}

// StaticToken always returns the same token; empty means none.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, bool) {
	return string(s), s != ""
}

type tokenKey struct{}

// WithToken stores a bearer token in ctx for ContextToken.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// ContextToken reads the token set by WithToken and falls back to Fallback.
type ContextToken struct {
	Fallback TokenSource
}

func (c ContextToken) Token(ctx context.Context) (string, bool) {
	if t, ok := ctx.Value(tokenKey{}).(string); ok && t != "" {
		return t, true
	}
	if c.Fallback != nil {
		return c.Fallback.Token(ctx)
	}
	return "", false
}

type Client struct {
	endpoint   string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

func WithTokenSource(ts TokenSource) ClientOption {
	return func(c *Client) { c.tokens = ts }
}

func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	hc := *c.httpClient
	hc.Transport = statusTransport{next: hc.Transport}
	c.httpClient = &hc
	return c
}

type requestOptions struct {
	auth bool
	url  string
}

// RequestOption tweaks a single call.
type RequestOption func(*requestOptions)

// WithAuth attaches the bearer token, when one is available.
func WithAuth() RequestOption {
	return func(o *requestOptions) { o.auth = true }
}

// WithURL sends the request to another endpoint than the client default.
func WithURL(url string) RequestOption {
	return func(o *requestOptions) { o.url = url }
}

type statusKey struct{}

// statusTransport stores the response status in the *int carried by the
// request context under statusKey.
type statusTransport struct {
	next http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	resp, err := next.RoundTrip(req)
	if err == nil {
		if status, ok := req.Context().Value(statusKey{}).(*int); ok {
			*status = resp.StatusCode
		}
	}
	return resp, err
}

func success(status int) bool {
	return status >= 200 && status < 300
}

// Do runs query with variables and decodes the "data" field into out.
// out may be nil when the caller only cares about errors.
func (c *Client) Do(ctx context.Context, query string, variables map[string]any, out any, opts ...RequestOption) error {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}
	if variables == nil {
		variables = map[string]any{}
	}

	endpoint := c.endpoint
	if ro.url != "" {
		endpoint = ro.url
	}

	var token string
	if ro.auth && c.tokens != nil {
		token, _ = c.tokens.Token(ctx)
	}
	client := gql.NewClient(endpoint, c.httpClient).WithRequestModifier(func(req *http.Request) {
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set("authVersion", "2")
		}
	})

	status := new(int)
	data, err := client.ExecRaw(context.WithValue(ctx, statusKey{}, status), query, variables)

	switch {
	case *status == 0 && err != nil:
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("graphql request to %s: %w", endpoint, cerr)
		}
		return fmt.Errorf("graphql request to %s: %w", endpoint, err)
	case !success(*status):
		gerr := &Error{StatusCode: *status, Messages: messages(err)}
		c.logger.WarnContext(ctx, "GraphQL request failed",
			"endpoint", endpoint,
			"status_code", *status,
			"error", gerr.Error())
		return gerr
	case err != nil:
		var list gql.Errors
		if !errors.As(err, &list) || decodeFailure(list) {
			return fmt.Errorf("decode graphql response (status %d): %w", *status, err)
		}
		gerr := &Error{Messages: messages(list)}
		c.logger.WarnContext(ctx, "GraphQL request returned errors",
			"endpoint", endpoint,
			"status_code", *status,
			"errors", gerr.Error())
		if errors.Is(gerr, ErrAuthRequired) {
			return fmt.Errorf("%w (%s)", ErrAuthRequired, gerr.Error())
		}
		return gerr
	}

	if out == nil || len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode graphql data: %w", err)
	}
	return nil
}

// jsonDecodeCode is the extension code go-graphql-client puts on errors it
// raised itself while reading a body that is not JSON.
const jsonDecodeCode = "json_decode_error"

func decodeFailure(list gql.Errors) bool {
	for _, e := range list {
		if code, _ := e.Extensions["code"].(string); code == jsonDecodeCode {
			return true
		}
	}
	return false
}

func messages(err error) []string {
	if err == nil {
		return nil
	}
	var list gql.Errors
	if !errors.As(err, &list) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		out = append(out, e.Message)
	}
	return out
}
