package core

import "time"

const (
	DonationPending     DonationStatus = "pending"
	DonationSwapPending DonationStatus = "swap_pending"
	DonationFailed      DonationStatus = "failed"
	DonationVerified    DonationStatus = "verified"
)

type (
	DonationStatus string

	Donation struct {
		ID                string
		TransactionID     string
		Status            DonationStatus
		Amount            float64
		FromTokenAmount   *float64
		RewardTokenAmount *float64
		RewardStreamStart *time.Time
		RewardStreamEnd   *time.Time
		// Cliff is the vesting cliff length.
		Cliff            time.Duration
		IsSwap           bool
		CreatedAt        time.Time
		UserID           string
		QfRound          *QfRound
		EarlyAccessRound *EarlyAccessRound
		SwapTransaction  *SwapTransaction
	}

	// SwapTransaction describes a cross-chain donation routed through Squid.
	SwapTransaction struct {
		FromChainID      int
		FromTokenAddress string
		FromTokenSymbol  string
	}

	// Project is the part of a project the dashboard needs.
	Project struct {
		ID          int
		Title       string
		TokenTicker string
	}
)

// IsPending reports whether the donation is waiting on chain or on a swap.
func (s DonationStatus) IsPending() bool {
	return s == DonationPending || s == DonationSwapPending
}

// RoundNumber returns the number of whichever round the donation belongs to.
func (d Donation) RoundNumber() int {
	switch {
	case d.QfRound != nil:
		return d.QfRound.RoundNumber
	case d.EarlyAccessRound != nil:
		return d.EarlyAccessRound.RoundNumber
	default:
		return 0
	}
}

// DisplayAmount is the amount the donor sent, in the token they sent.
func (d Donation) DisplayAmount() float64 {
	if d.FromTokenAmount != nil && *d.FromTokenAmount != 0 {
		return *d.FromTokenAmount
	}
	return d.Amount
}
