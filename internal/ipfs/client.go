// Package ipfs pins files through the Kubo HTTP API.
package ipfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
)

var ErrEmptyCID = errors.New("ipfs returned no cid")

// ProgressFunc receives the bytes sent so far and the total, or -1 when the
// total is unknown.
type ProgressFunc func(sent, total int64)

type Client struct {
	apiURL     string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	sh         *shell.Shell
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sends Authorization: Bearer token to pinning services that need it.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(apiURL string, opts ...Option) *Client {
	c := &Client{
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	hc := *c.httpClient
	if c.token != "" {
		hc.Transport = bearerTransport{token: c.token, next: hc.Transport}
	}
	c.sh = shell.NewShellWithClient(c.apiURL, &hc)
	return c
}

type bearerTransport struct {
	token string
	next  http.RoundTripper
}

func (t bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return next.RoundTrip(req)
}

// Add streams r to the node, pins it and returns the CID. Cancelling ctx
// aborts the transfer.
func (c *Client) Add(ctx context.Context, name string, r io.Reader, size int64, progress ProgressFunc) (string, error) {
	src := r
	if progress != nil {
		src = &progressReader{r: r, total: size, fn: progress}
	}

	// The node answers with one JSON object per added entry; the file is the
	// only entry for a single upload.
	var out struct {
		Name string
		Hash string
		Size string
	}
	err := c.sh.Request("add").
		Option("pin", true).
		Option("cid-version", 1).
		FileBody(src).
		Exec(ctx, &out)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return "", fmt.Errorf("ipfs add %s: %w", name, cerr)
		}
		return "", fmt.Errorf("ipfs add %s: %w", name, err)
	}
	if out.Hash == "" {
		return "", ErrEmptyCID
	}

	c.logger.InfoContext(ctx, "Pinned file to IPFS", "filename", name, "cid", out.Hash, "size_bytes", size)
	return out.Hash, nil
}

// Unpin removes the pin for cid. Unknown pins are not an error.
func (c *Client) Unpin(ctx context.Context, cid string) error {
	err := c.sh.Request("pin/rm", cid).
		Option("recursive", true).
		Exec(ctx, nil)
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "not pinned") {
		return nil
	}
	return fmt.Errorf("ipfs unpin %s: %w", cid, err)
}

// GatewayURL is the public address of cid on gateway.
func GatewayURL(gateway, cid string) string {
	if cid == "" {
		return ""
	}
	return strings.TrimRight(gateway, "/") + "/ipfs/" + cid
}

type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		total := p.total
		if total <= 0 {
			total = -1
		}
		p.fn(p.sent, total)
	}
	return n, err
}
