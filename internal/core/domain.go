package core

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

type (
	// Round is a time-boxed donation-matching period. The only
	// implementations are QfRound and EarlyAccessRound.
	Round interface {
		Info() RoundInfo
		isRound()
	}

	// RoundInfo carries the fields shared by every round variant.
	RoundInfo struct {
		RoundNumber int
		EndDate     time.Time
		// RoundPOLCloseCapPerProject is the close-out cap, preferred when set.
		RoundPOLCloseCapPerProject *float64
		// CumulativePOLCapPerProject is the rolling cap across rounds.
		CumulativePOLCapPerProject *float64
	}

	QfRound struct {
		RoundInfo
		SeasonNumber int
	}

	EarlyAccessRound struct {
		RoundInfo
	}

	// RoundRecord is a project's donation snapshot within a round.
	RoundRecord struct {
		TotalDonationAmount float64
		// CumulativePastRoundsDonationAmounts is nil when the backend did not
		// report it, and 0 when the project had no prior donations.
		CumulativePastRoundsDonationAmounts *float64
	}

	// CapResult is the outcome of a cap calculation.
	CapResult struct {
		CapAmount                  float64 `json:"capAmount"`
		TotalDonationAmountInRound float64 `json:"totalDonationAmountInRound"`
	}
)

var (
	ErrInvalidProjectID = errors.New("invalid project id")
	ErrInvalidRound     = errors.New("invalid round")
)

func (r QfRound) Info() RoundInfo          { return r.RoundInfo }
func (r EarlyAccessRound) Info() RoundInfo { return r.RoundInfo }

func (QfRound) isRound()          {}
func (EarlyAccessRound) isRound() {}

// BaseCap returns the close-out cap when present, otherwise the cumulative
// cap. ok is false when the round carries neither.
func (ri RoundInfo) BaseCap() (float64, bool) {
	if ri.RoundPOLCloseCapPerProject != nil {
		return *ri.RoundPOLCloseCapPerProject, true
	}
	if ri.CumulativePOLCapPerProject != nil {
		return *ri.CumulativePOLCapPerProject, true
	}
	return 0, false
}

// EndedBefore reports whether the round ended strictly before t.
func (ri RoundInfo) EndedBefore(t time.Time) bool {
	return ri.EndDate.Before(t)
}

// CumulativeAmount returns the past-rounds amount and whether it was reported.
func (rr RoundRecord) CumulativeAmount() (float64, bool) {
	if rr.CumulativePastRoundsDonationAmounts == nil {
		return 0, false
	}
	return *rr.CumulativePastRoundsDonationAmounts, true
}

// Truncate drops everything past the given number of decimals, towards zero.
// It works on the shortest decimal representation of v, so 0.29 stays 0.29
// instead of falling to 0.28 through binary scaling.
//
// Examples:
//
//	Truncate(10.129, 2) -> 10.12
//	Truncate(-1.239, 2) -> -1.23
func Truncate(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	if decimals < 0 {
		decimals = 0
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	dot := strings.IndexByte(s, '.')
	if dot < 0 || len(s)-dot-1 <= decimals {
		return v
	}
	if decimals == 0 {
		s = s[:dot]
	} else {
		s = s[:dot+1+decimals]
	}
	t, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.Trunc(v*math.Pow10(decimals)) / math.Pow10(decimals)
	}
	return t
}

// Float is a convenience for building optional amounts.
func Float(v float64) *float64 {
	return &v
}
