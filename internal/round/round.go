// Package round computes per-project donation caps for q/acc rounds.
package round

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"qacc/internal/core"
)

// Fetcher is the remote source of round definitions and project records.
type Fetcher interface {
	FetchAllRoundDetails(ctx context.Context) ([]core.Round, error)
	FetchProjectRoundRecords(ctx context.Context, projectID int, qfRoundNumber, earlyAccessRoundNumber *int) ([]core.RoundRecord, error)
}

// Kind names a round variant in queries: "qf" or "early".
type Kind string

const (
	KindQf    Kind = "qf"
	KindEarly Kind = "early"
)

var ErrRoundNotFound = errors.New("round not found")

// ParseKind accepts qf/early and the backend type names.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "qf", "QfRound":
		return KindQf, nil
	case "early", "earlyAccess", "EarlyAccessRound":
		return KindEarly, nil
	default:
		return "", fmt.Errorf("%w: unknown round type %q", core.ErrInvalidRound, s)
	}
}

// Options is the immutable configuration of a Calculator.
type Options struct {
	// Decimals is how many decimals results are truncated to.
	Decimals int
	// Now is the clock used to decide which rounds have ended.
	Now func() time.Time
	Logger *slog.Logger
}

// DefaultOptions truncates to cents and uses the wall clock.
func DefaultOptions() Options {
	return Options{
		Decimals: 2,
		Now:      time.Now,
		Logger:   slog.Default(),
	}
}

type Calculator struct {
	fetcher Fetcher
	opts    Options
}

func NewCalculator(fetcher Fetcher, opts Options) *Calculator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Decimals < 0 {
		opts.Decimals = 0
	}
	return &Calculator{fetcher: fetcher, opts: opts}
}

// MostRecentEnded returns the round with the latest end date strictly before
// now, or nil when no round has ended yet.
func (c *Calculator) MostRecentEnded(ctx context.Context) (core.Round, error) {
	rounds, err := c.fetcher.FetchAllRoundDetails(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch rounds: %w", err)
	}
	return SelectMostRecentEnded(rounds, c.opts.Now()), nil
}

// FindRound returns the round of the given kind and number.
func (c *Calculator) FindRound(ctx context.Context, kind Kind, number int) (core.Round, error) {
	rounds, err := c.fetcher.FetchAllRoundDetails(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch rounds: %w", err)
	}
	for _, r := range rounds {
		if r == nil || r.Info().RoundNumber != number {
			continue
		}
		qf, early, err := roundNumbers(r)
		if err != nil {
			continue
		}
		if (kind == KindQf && qf != nil) || (kind == KindEarly && early != nil) {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s round %d", ErrRoundNotFound, kind, number)
}

// SelectMostRecentEnded picks the latest round ending strictly before now.
// The input slice is not modified.
func SelectMostRecentEnded(rounds []core.Round, now time.Time) core.Round {
	ended := make([]core.Round, 0, len(rounds))
	for _, r := range rounds {
		if r != nil && r.Info().EndedBefore(now) {
			ended = append(ended, r)
		}
	}
	if len(ended) == 0 {
		return nil
	}
	sort.SliceStable(ended, func(i, j int) bool {
		return ended[i].Info().EndDate.After(ended[j].Info().EndDate)
	})
	return ended[0]
}

// CalculateCap returns the cap and running total for a project. A nil
// active round falls back to the most recently ended one; when nothing has
// ended the result is zero.
//
// With includeCumulative set, past-round donations are deducted from the cap
// instead of being added to the running total.
func (c *Calculator) CalculateCap(ctx context.Context, active core.Round, projectID int, includeCumulative bool) (core.CapResult, error) {
	if projectID <= 0 {
		return core.CapResult{}, core.ErrInvalidProjectID
	}

	if active == nil {
		r, err := c.MostRecentEnded(ctx)
		if err != nil {
			return core.CapResult{}, err
		}
		if r == nil {
			return core.CapResult{}, nil
		}
		active = r
	}

	info := active.Info()
	baseCap, ok := info.BaseCap()
	if !ok {
		c.opts.Logger.WarnContext(ctx, "Round has no cap, using zero",
			"round_number", info.RoundNumber,
			"project_id", projectID)
	}

	qfNumber, earlyNumber, err := roundNumbers(active)
	if err != nil {
		return core.CapResult{}, err
	}

	records, err := c.fetcher.FetchProjectRoundRecords(ctx, projectID, qfNumber, earlyNumber)
	if err != nil {
		return core.CapResult{}, fmt.Errorf("fetch round records for project %d: %w", projectID, err)
	}

	if len(records) == 0 {
		return core.CapResult{
			CapAmount:                  c.truncate(baseCap),
			TotalDonationAmountInRound: 0,
		}, nil
	}

	first := records[0]
	cumulative, reported := first.CumulativeAmount()

	total := first.TotalDonationAmount
	if !includeCumulative {
		total += cumulative
	}

	capAmount := baseCap
	if includeCumulative && reported {
		capAmount = baseCap - cumulative
	}

	return core.CapResult{
		CapAmount:                  c.truncate(capAmount),
		TotalDonationAmountInRound: c.truncate(total),
	}, nil
}

func (c *Calculator) truncate(v float64) float64 {
	if v < 0 {
		v = 0
	}
	return core.Truncate(v, c.opts.Decimals)
}

// roundNumbers maps the round variant onto the record query's filter keys.
func roundNumbers(r core.Round) (qf, early *int, err error) {
	switch v := r.(type) {
	case core.QfRound:
		n := v.RoundNumber
		return &n, nil, nil
	case *core.QfRound:
		n := v.RoundNumber
		return &n, nil, nil
	case core.EarlyAccessRound:
		n := v.RoundNumber
		return nil, &n, nil
	case *core.EarlyAccessRound:
		n := v.RoundNumber
		return nil, &n, nil
	default:
		return nil, nil, fmt.Errorf("%w: unsupported round type %T", core.ErrInvalidRound, r)
	}
}
