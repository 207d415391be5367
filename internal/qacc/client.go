// Package qacc talks to the q/acc GraphQL backend and to the Squid token API.
package qacc

import (
	"errors"
	"log/slog"
	"time"

	"qacc/internal/cache"
	"qacc/internal/core"
	"qacc/internal/graphql"
)

const allRoundsCacheKey = "all_rounds"

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrTokenNotFound = errors.New("token not found")
)

// Client implements round.Fetcher, donations.Source and passport.UserSource
// on top of the q/acc GraphQL API.
type Client struct {
	gql    *graphql.Client
	rounds *cache.Loader[[]core.Round]
	logger *slog.Logger
}

type Option func(*Client)

// WithRoundCache caches the round list for ttl. Round records are never
// cached.
func WithRoundCache(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.rounds = cache.NewLoader[[]core.Round](cache.NewLRUCache[[]core.Round](1, ttl))
		}
	}
}

// WithRoundLoader shares an existing loader, e.g. one registered with a
// cache.Manager.
func WithRoundLoader(l *cache.Loader[[]core.Round]) Option {
	return func(c *Client) { c.rounds = l }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(gql *graphql.Client, opts ...Option) *Client {
	c := &Client{gql: gql, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
