package qacc

import (
	"context"
	"fmt"
	"time"

	"qacc/internal/core"
)

// DonationPageSize is how many donations are pulled per project in one call.
const DonationPageSize = 1000

const donationsByProjectQuery = `
query ($take: Int, $skip: Int, $projectId: Int!) {
  donationsByProjectId(take: $take, skip: $skip, projectId: $projectId) {
    donations {
      id
      transactionId
      amount
      fromTokenAmount
      rewardTokenAmount
      rewardStreamStart
      rewardStreamEnd
      cliff
      status
      isSwap
      createdAt
      user { id }
      qfRound { roundNumber seasonNumber }
      earlyAccessRound { roundNumber }
      swapTransaction { fromChainId fromTokenAddress fromTokenSymbol }
    }
    totalCount
  }
}`

// DonationList is one page of a project's donations.
type DonationList struct {
	Donations  []core.Donation
	TotalCount int
}

type wireDonation struct {
	ID                string     `json:"id"`
	TransactionID     string     `json:"transactionId"`
	Amount            float64    `json:"amount"`
	FromTokenAmount   *float64   `json:"fromTokenAmount"`
	RewardTokenAmount *float64   `json:"rewardTokenAmount"`
	RewardStreamStart *time.Time `json:"rewardStreamStart"`
	RewardStreamEnd   *time.Time `json:"rewardStreamEnd"`
	// Cliff is in milliseconds.
	Cliff     *float64  `json:"cliff"`
	Status    string    `json:"status"`
	IsSwap    bool      `json:"isSwap"`
	CreatedAt time.Time `json:"createdAt"`
	User      *struct {
		ID string `json:"id"`
	} `json:"user"`
	QfRound *struct {
		RoundNumber  int  `json:"roundNumber"`
		SeasonNumber *int `json:"seasonNumber"`
	} `json:"qfRound"`
	EarlyAccessRound *struct {
		RoundNumber int `json:"roundNumber"`
	} `json:"earlyAccessRound"`
	SwapTransaction *struct {
		FromChainID      int    `json:"fromChainId"`
		FromTokenAddress string `json:"fromTokenAddress"`
		FromTokenSymbol  string `json:"fromTokenSymbol"`
	} `json:"swapTransaction"`
}

func (w wireDonation) toDonation() core.Donation {
	d := core.Donation{
		ID:                w.ID,
		TransactionID:     w.TransactionID,
		Status:            core.DonationStatus(w.Status),
		Amount:            w.Amount,
		FromTokenAmount:   w.FromTokenAmount,
		RewardTokenAmount: w.RewardTokenAmount,
		RewardStreamStart: w.RewardStreamStart,
		RewardStreamEnd:   w.RewardStreamEnd,
		IsSwap:            w.IsSwap,
		CreatedAt:         w.CreatedAt,
	}
	if w.Cliff != nil {
		d.Cliff = time.Duration(*w.Cliff * float64(time.Millisecond))
	}
	if w.User != nil {
		d.UserID = w.User.ID
	}
	if w.QfRound != nil {
		r := &core.QfRound{RoundInfo: core.RoundInfo{RoundNumber: w.QfRound.RoundNumber}}
		if w.QfRound.SeasonNumber != nil {
			r.SeasonNumber = *w.QfRound.SeasonNumber
		}
		d.QfRound = r
	}
	if w.EarlyAccessRound != nil {
		d.EarlyAccessRound = &core.EarlyAccessRound{RoundInfo: core.RoundInfo{RoundNumber: w.EarlyAccessRound.RoundNumber}}
	}
	if w.SwapTransaction != nil {
		d.SwapTransaction = &core.SwapTransaction{
			FromChainID:      w.SwapTransaction.FromChainID,
			FromTokenAddress: w.SwapTransaction.FromTokenAddress,
			FromTokenSymbol:  w.SwapTransaction.FromTokenSymbol,
		}
	}
	return d
}

// ProjectDonations returns up to DonationPageSize donations of the project.
func (c *Client) ProjectDonations(ctx context.Context, projectID int) (DonationList, error) {
	if projectID <= 0 {
		return DonationList{}, core.ErrInvalidProjectID
	}
	vars := map[string]any{
		"projectId": projectID,
		"take":      DonationPageSize,
		"skip":      0,
	}

	var data struct {
		Result struct {
			Donations  []wireDonation `json:"donations"`
			TotalCount int            `json:"totalCount"`
		} `json:"donationsByProjectId"`
	}
	if err := c.gql.Do(ctx, donationsByProjectQuery, vars, &data); err != nil {
		return DonationList{}, fmt.Errorf("query donationsByProjectId: %w", err)
	}

	list := DonationList{
		Donations:  make([]core.Donation, len(data.Result.Donations)),
		TotalCount: data.Result.TotalCount,
	}
	for i, w := range data.Result.Donations {
		list.Donations[i] = w.toDonation()
	}
	return list, nil
}
