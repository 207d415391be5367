// Package donations builds a user's donation history for one project.
package donations

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"qacc/internal/core"
	applog "qacc/internal/log"
	"qacc/internal/qacc"
)

// PerPage is the number of rows on one dashboard page.
const PerPage = 5

var ErrInvalidQuery = errors.New("invalid donations query")

type (
	// Source lists a project's donations.
	Source interface {
		ProjectDonations(ctx context.Context, projectID int) (qacc.DonationList, error)
	}

	// PriceSource quotes tokens in USD.
	PriceSource interface {
		POLPrice(ctx context.Context) (float64, error)
		TokenPrices(ctx context.Context, keys []qacc.TokenKey) (map[qacc.TokenKey]qacc.TokenPrice, error)
	}

	Config struct {
		// ScanURL is the block explorer base, e.g. https://polygonscan.com/.
		ScanURL string
		// NativeSymbol labels donations made without a swap.
		NativeSymbol string
		Now          func() time.Time
	}

	Query struct {
		ProjectID int
		UserID    string
		// Page is zero based.
		Page  int
		Order Order
		// TokenTicker labels reward token amounts.
		TokenTicker string
		// TotalContributions is the user's total in POL, shown in the summary.
		TotalContributions float64
	}

	Row struct {
		ID           string    `json:"id"`
		Date         time.Time `json:"date"`
		TxHash       string    `json:"txHash"`
		TxURL        string    `json:"txUrl"`
		Amount       float64   `json:"amount"`
		Symbol       string    `json:"symbol"`
		POLAmount    float64   `json:"polAmount"`
		IsSwap       bool      `json:"isSwap"`
		Status       string    `json:"status"`
		Tone         Tone      `json:"tone"`
		USDValue     *float64  `json:"usdValue,omitempty"`
		RoundNumber  int       `json:"roundNumber"`
		SeasonBadge  string    `json:"seasonBadge,omitempty"`
		RewardTokens *float64  `json:"rewardTokens,omitempty"`
		RewardLabel  string    `json:"rewardLabel"`
		// UnlockIn is the time left until the cliff ends, "-" without a stream.
		UnlockIn    string     `json:"unlockIn"`
		StreamStart *time.Time `json:"streamStart,omitempty"`
		StreamEnd   *time.Time `json:"streamEnd,omitempty"`
	}

	Summary struct {
		TotalPOL float64 `json:"totalPOL"`
		TotalUSD float64 `json:"totalUSD"`
	}

	Page struct {
		Rows       []Row   `json:"rows"`
		TotalCount int     `json:"totalCount"`
		Page       int     `json:"page"`
		PerPage    int     `json:"perPage"`
		TotalPages int     `json:"totalPages"`
		Order      Order   `json:"order"`
		Summary    Summary `json:"summary"`
	}
)

type Tone string

const (
	TonePending Tone = "pending"
	ToneFailed  Tone = "failed"
	ToneNeutral Tone = "neutral"
)

func toneOf(s core.DonationStatus) Tone {
	switch {
	case s.IsPending():
		return TonePending
	case s == core.DonationFailed:
		return ToneFailed
	default:
		return ToneNeutral
	}
}

type Service struct {
	source Source
	prices PriceSource
	cfg    Config
	logger *slog.Logger
}

func NewService(source Source, prices PriceSource, cfg Config, logger *slog.Logger) *Service {
	if cfg.NativeSymbol == "" {
		cfg.NativeSymbol = "POL"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source: source,
		prices: prices,
		cfg:    cfg,
		logger: logger.With(applog.FieldComponent, applog.ComponentDonations),
	}
}

// UserDonations returns one page of the user's donations to the project.
func (s *Service) UserDonations(ctx context.Context, q Query) (Page, error) {
	if q.ProjectID <= 0 {
		return Page{}, core.ErrInvalidProjectID
	}
	if strings.TrimSpace(q.UserID) == "" {
		return Page{}, fmt.Errorf("%w: user id required", ErrInvalidQuery)
	}
	if q.Page < 0 {
		return Page{}, fmt.Errorf("%w: page must not be negative", ErrInvalidQuery)
	}
	if q.Order == (Order{}) {
		q.Order = DefaultOrder()
	}

	var (
		list     qacc.DonationList
		polPrice float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		list, err = s.source.ProjectDonations(gctx, q.ProjectID)
		if err != nil {
			return fmt.Errorf("fetch donations for project %d: %w", q.ProjectID, err)
		}
		return nil
	})
	g.Go(func() error {
		p, err := s.prices.POLPrice(gctx)
		if err != nil {
			s.logger.WarnContext(gctx, "POL price unavailable", applog.FieldError, err)
			return nil
		}
		polPrice = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return Page{}, err
	}

	mine := make([]core.Donation, 0, len(list.Donations))
	for _, d := range list.Donations {
		if d.UserID == q.UserID {
			mine = append(mine, d)
		}
	}
	sortDonations(mine, q.Order)

	page := Page{
		TotalCount: len(mine),
		Page:       q.Page,
		PerPage:    PerPage,
		TotalPages: (len(mine) + PerPage - 1) / PerPage,
		Order:      q.Order,
		Summary: Summary{
			TotalPOL: q.TotalContributions,
			TotalUSD: q.TotalContributions * polPrice,
		},
		Rows: []Row{},
	}

	start := q.Page * PerPage
	if start >= len(mine) {
		return page, nil
	}
	end := min(start+PerPage, len(mine))
	pageDonations := mine[start:end]

	tokenPrices := s.tokenPrices(ctx, pageDonations)
	now := s.cfg.Now()
	for _, d := range pageDonations {
		page.Rows = append(page.Rows, s.row(d, q.TokenTicker, polPrice, tokenPrices, now))
	}

	s.logger.DebugContext(ctx, "Built donation page",
		applog.FieldProjectID, q.ProjectID,
		applog.FieldUserID, q.UserID,
		"page", q.Page,
		"rows", len(page.Rows),
		"total", page.TotalCount)
	return page, nil
}

// UniqueTokens returns the distinct swap source tokens of the donations,
// in first-seen order.
func UniqueTokens(ds []core.Donation) []qacc.TokenKey {
	var keys []qacc.TokenKey
	seen := make(map[string]struct{})
	for _, d := range ds {
		st := d.SwapTransaction
		if st == nil || st.FromChainID == 0 || st.FromTokenAddress == "" {
			continue
		}
		k := qacc.TokenKey{ChainID: st.FromChainID, Address: st.FromTokenAddress}
		if _, ok := seen[k.String()]; ok {
			continue
		}
		seen[k.String()] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

func (s *Service) tokenPrices(ctx context.Context, ds []core.Donation) map[qacc.TokenKey]qacc.TokenPrice {
	keys := UniqueTokens(ds)
	if len(keys) == 0 {
		return nil
	}
	prices, err := s.prices.TokenPrices(ctx, keys)
	if err != nil {
		s.logger.WarnContext(ctx, "Token prices unavailable", applog.FieldError, err, "tokens", len(keys))
		return nil
	}
	return prices
}

func (s *Service) row(d core.Donation, ticker string, polPrice float64, prices map[qacc.TokenKey]qacc.TokenPrice, now time.Time) Row {
	r := Row{
		ID:          d.ID,
		Date:        d.CreatedAt,
		TxHash:      d.TransactionID,
		TxURL:       TxURL(s.cfg.ScanURL, d.TransactionID),
		Amount:      d.DisplayAmount(),
		Symbol:      s.cfg.NativeSymbol,
		POLAmount:   d.Amount,
		IsSwap:      d.IsSwap,
		Status:      string(d.Status),
		Tone:        toneOf(d.Status),
		RoundNumber: d.RoundNumber(),
		RewardLabel: "-",
		UnlockIn:    "-",
		StreamEnd:   d.RewardStreamEnd,
	}
	if d.QfRound != nil && d.QfRound.SeasonNumber > 0 {
		r.SeasonBadge = "Season " + strconv.Itoa(d.QfRound.SeasonNumber)
	}

	usd, priced := 0.0, false
	if st := d.SwapTransaction; st != nil {
		if st.FromTokenSymbol != "" {
			r.Symbol = st.FromTokenSymbol
		}
		if tp, ok := prices[qacc.TokenKey{ChainID: st.FromChainID, Address: st.FromTokenAddress}]; ok {
			usd, priced = r.Amount*tp.USDPrice, true
		}
	}
	if !priced && polPrice > 0 {
		usd, priced = d.Amount*polPrice, true
	}
	if priced {
		r.USDValue = &usd
	}

	if d.RewardTokenAmount != nil && *d.RewardTokenAmount != 0 {
		reward := math.Round(*d.RewardTokenAmount*100) / 100
		r.RewardTokens = &reward
		r.RewardLabel = strconv.FormatFloat(reward, 'f', -1, 64)
		if ticker != "" {
			r.RewardLabel += " " + ticker
		}
	}

	if d.RewardStreamStart != nil {
		unlock := d.RewardStreamStart.Add(d.Cliff)
		r.UnlockIn = Remaining(now, unlock)
		if d.RewardStreamEnd != nil {
			r.StreamStart = &unlock
		}
	}
	return r
}

// TxURL links a transaction hash on the block explorer.
func TxURL(scanURL, hash string) string {
	if hash == "" || scanURL == "" {
		return ""
	}
	return strings.TrimRight(scanURL, "/") + "/tx/" + hash
}

// Remaining renders the time from now until t as "N months, M days",
// "N days" or "Unlocked" once t has passed.
func Remaining(now, t time.Time) string {
	if !t.After(now) {
		return "Unlocked"
	}
	months := 0
	cursor := now
	for {
		next := cursor.AddDate(0, 1, 0)
		if next.After(t) {
			break
		}
		cursor = next
		months++
	}
	days := int(t.Sub(cursor).Hours() / 24)

	switch {
	case months > 0 && days > 0:
		return plural(months, "month") + ", " + plural(days, "day")
	case months > 0:
		return plural(months, "month")
	case days > 0:
		return plural(days, "day")
	default:
		return "Less than a day"
	}
}

func plural(n int, unit string) string {
	s := strconv.Itoa(n) + " " + unit
	if n != 1 {
		s += "s"
	}
	return s
}

func sortDonations(ds []core.Donation, o Order) {
	key := func(a, b core.Donation) int {
		switch o.By {
		case ByRound:
			return cmp.Compare(a.RoundNumber(), b.RoundNumber())
		case ByAmount:
			return cmp.Compare(a.Amount, b.Amount)
		case ByTokens:
			return cmp.Compare(rewardOf(a), rewardOf(b))
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	slices.SortStableFunc(ds, func(a, b core.Donation) int {
		if o.Direction == Asc {
			return key(a, b)
		}
		return key(b, a)
	})
}

func rewardOf(d core.Donation) float64 {
	if d.RewardTokenAmount == nil {
		return 0
	}
	return *d.RewardTokenAmount
}
