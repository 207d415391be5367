package qacc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"qacc/internal/cache"
)

// PolygonChainID is the chain the POL reference price is read on.
const PolygonChainID = 137

const maxConcurrentPriceRequests = 4

// TokenKey identifies a token by chain and contract address.
type TokenKey struct {
	ChainID int
	Address string
}

func (k TokenKey) String() string {
	return strconv.Itoa(k.ChainID) + "-" + strings.ToLower(k.Address)
}

// TokenPrice is the Squid quote for one token.
type TokenPrice struct {
	USDPrice float64 `json:"usdPrice"`
	Symbol   string  `json:"symbol"`
	LogoURI  string  `json:"logoURI"`
}

// Prices reads token prices from the Squid token API.
type Prices struct {
	baseURL      string
	integratorID string
	wpolAddress  string
	httpClient   *http.Client
	cache        *cache.Loader[TokenPrice]
	logger       *slog.Logger
}

type PricesConfig struct {
	BaseURL      string
	IntegratorID string
	// WPOLAddress is the wrapped POL token on Polygon.
	WPOLAddress string
	TTL         time.Duration
	// Cache overrides the default LRU, e.g. to share one registered with a
	// cache.Manager. TTL is ignored when it is set.
	Cache      cache.Cache[TokenPrice]
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewPrices(cfg PricesConfig) *Prices {
	p := &Prices{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		integratorID: cfg.IntegratorID,
		wpolAddress:  cfg.WPOLAddress,
		httpClient:   cfg.HTTPClient,
		logger:       cfg.Logger,
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	switch {
	case cfg.Cache != nil:
		p.cache = cache.NewLoader(cfg.Cache)
	case cfg.TTL > 0:
		p.cache = cache.NewLoader[TokenPrice](cache.NewLRUCache[TokenPrice](256, cfg.TTL))
	}
	return p
}

// POLPrice returns the USD price of POL.
func (p *Prices) POLPrice(ctx context.Context) (float64, error) {
	tp, err := p.TokenPrice(ctx, TokenKey{ChainID: PolygonChainID, Address: p.wpolAddress})
	if err != nil {
		return 0, fmt.Errorf("pol price: %w", err)
	}
	return tp.USDPrice, nil
}

// TokenPrice returns the price of a single token.
func (p *Prices) TokenPrice(ctx context.Context, key TokenKey) (TokenPrice, error) {
	if p.cache == nil {
		return p.fetch(ctx, key)
	}
	return p.cache.Get(ctx, key.String(), func(ctx context.Context) (TokenPrice, error) {
		return p.fetch(ctx, key)
	})
}

// TokenPrices fetches every distinct key concurrently. Tokens Squid does not
// know are logged and left out of the result; only transport-level failures
// are returned.
func (p *Prices) TokenPrices(ctx context.Context, keys []TokenKey) (map[TokenKey]TokenPrice, error) {
	out := make(map[TokenKey]TokenPrice, len(keys))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPriceRequests)

	seen := make(map[TokenKey]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		k := k
		g.Go(func() error {
			tp, err := p.TokenPrice(ctx, k)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Warn("Token price unavailable", "token", k.String(), "error", err)
				return nil
			}
			mu.Lock()
			out[k] = tp
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Prices) fetch(ctx context.Context, key TokenKey) (TokenPrice, error) {
	q := url.Values{}
	q.Set("chainId", strconv.Itoa(key.ChainID))
	q.Set("address", key.Address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v2/tokens?"+q.Encode(), nil)
	if err != nil {
		return TokenPrice{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.integratorID != "" {
		req.Header.Set("x-integrator-id", p.integratorID)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return TokenPrice{}, fmt.Errorf("squid request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return TokenPrice{}, fmt.Errorf("squid status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var body struct {
		Tokens []struct {
			Address  string  `json:"address"`
			USDPrice float64 `json:"usdPrice"`
			Symbol   string  `json:"symbol"`
			LogoURI  string  `json:"logoURI"`
		} `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return TokenPrice{}, fmt.Errorf("decode squid response: %w", err)
	}

	for _, t := range body.Tokens {
		if strings.EqualFold(t.Address, key.Address) {
			return TokenPrice{USDPrice: t.USDPrice, Symbol: t.Symbol, LogoURI: t.LogoURI}, nil
		}
	}
	return TokenPrice{}, fmt.Errorf("token %s: %w", key, ErrTokenNotFound)
}
