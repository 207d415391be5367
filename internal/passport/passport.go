// Package passport decides whether a wallet passes Gitcoin Passport
// verification.
package passport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"qacc/internal/core"
	applog "qacc/internal/log"
)

type Status int

const (
	NotChecked Status = iota
	AnalysisPass
	ScorerPass
	LowScore
)

var statusNames = [...]string{
	NotChecked:   "not_checked",
	AnalysisPass: "analysis_pass",
	ScorerPass:   "scorer_pass",
	LowScore:     "low_score",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// Passed reports whether either score cleared its threshold.
func (s Status) Passed() bool {
	return s == AnalysisPass || s == ScorerPass
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Thresholds are the minimum scores for each check.
type Thresholds struct {
	Analysis float64
	Scorer   float64
}

// Evaluate maps scores to a status. The analysis score wins over the scorer
// score. A wallet below both thresholds is LowScore only once it has been
// checked explicitly.
func Evaluate(analysis, passport float64, th Thresholds, afterCheck bool) Status {
	switch {
	case analysis >= th.Analysis:
		return AnalysisPass
	case passport >= th.Scorer:
		return ScorerPass
	case afterCheck:
		return LowScore
	default:
		return NotChecked
	}
}

// Result is what the API reports for a wallet.
type Result struct {
	Status        Status  `json:"status"`
	PassportScore float64 `json:"passportScore"`
	AnalysisScore float64 `json:"analysisScore"`
	Passed        bool    `json:"passed"`
}

// UserSource loads users and refreshes their scores upstream.
type UserSource interface {
	UserByAddress(ctx context.Context, address string) (core.User, error)
	RefreshUserScores(ctx context.Context, address string) (core.User, error)
}

type Verifier struct {
	users      UserSource
	thresholds Thresholds
	logger     *slog.Logger
}

func NewVerifier(users UserSource, th Thresholds, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		users:      users,
		thresholds: th,
		logger:     logger.With(applog.FieldComponent, applog.ComponentPassport),
	}
}

// Status evaluates the scores the backend already holds.
func (v *Verifier) Status(ctx context.Context, address string) (Result, error) {
	u, err := v.users.UserByAddress(ctx, address)
	if err != nil {
		return Result{}, fmt.Errorf("load user %s: %w", address, err)
	}
	return v.result(ctx, address, u, false), nil
}

// CheckScore refreshes the wallet's scores and evaluates them.
func (v *Verifier) CheckScore(ctx context.Context, address string) (Result, error) {
	u, err := v.users.RefreshUserScores(ctx, address)
	if err != nil {
		return Result{}, fmt.Errorf("refresh scores for %s: %w", address, err)
	}
	return v.result(ctx, address, u, true), nil
}

func (v *Verifier) result(ctx context.Context, address string, u core.User, afterCheck bool) Result {
	analysis, score := u.Scores()
	status := Evaluate(analysis, score, v.thresholds, afterCheck)

	v.logger.InfoContext(ctx, "Passport evaluated",
		applog.FieldAddress, address,
		"status", status.String(),
		"analysis_score", analysis,
		"passport_score", score,
		"after_check", afterCheck)

	return Result{
		Status:        status,
		PassportScore: score,
		AnalysisScore: analysis,
		Passed:        status.Passed(),
	}
}
