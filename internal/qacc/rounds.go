package qacc

import (
	"context"
	"fmt"
	"time"

	"qacc/internal/core"
)

const allRoundsQuery = `
query {
  allRounds {
    __typename
    ... on EarlyAccessRound {
      roundNumber
      startDate
      endDate
      roundPOLCloseCapPerProject
      cumulativePOLCapPerProject
    }
    ... on QfRound {
      roundNumber
      seasonNumber
      beginDate
      endDate
      roundPOLCloseCapPerProject
      cumulativePOLCapPerProject
    }
  }
}`

const projectRoundRecordsQuery = `
query ($projectId: Int!, $qfRoundNumber: Int, $earlyAccessRoundNumber: Int) {
  getProjectRoundRecords(
    projectId: $projectId
    qfRoundNumber: $qfRoundNumber
    earlyAccessRoundNumber: $earlyAccessRoundNumber
  ) {
    totalDonationAmount
    cumulativePastRoundsDonationAmounts
  }
}`

const (
	typeQfRound          = "QfRound"
	typeEarlyAccessRound = "EarlyAccessRound"
)

type wireRound struct {
	Typename                   string    `json:"__typename"`
	RoundNumber                int       `json:"roundNumber"`
	SeasonNumber               *int      `json:"seasonNumber"`
	EndDate                    time.Time `json:"endDate"`
	RoundPOLCloseCapPerProject *float64  `json:"roundPOLCloseCapPerProject"`
	CumulativePOLCapPerProject *float64  `json:"cumulativePOLCapPerProject"`
}

// toRound decodes the GraphQL union member into the matching variant.
func (w wireRound) toRound() (core.Round, error) {
	info := core.RoundInfo{
		RoundNumber:                w.RoundNumber,
		EndDate:                    w.EndDate,
		RoundPOLCloseCapPerProject: w.RoundPOLCloseCapPerProject,
		CumulativePOLCapPerProject: w.CumulativePOLCapPerProject,
	}
	switch w.Typename {
	case typeQfRound:
		r := core.QfRound{RoundInfo: info}
		if w.SeasonNumber != nil {
			r.SeasonNumber = *w.SeasonNumber
		}
		return r, nil
	case typeEarlyAccessRound:
		return core.EarlyAccessRound{RoundInfo: info}, nil
	default:
		return nil, fmt.Errorf("%w: unknown round type %q", core.ErrInvalidRound, w.Typename)
	}
}

// FetchAllRoundDetails returns every round the backend knows about.
func (c *Client) FetchAllRoundDetails(ctx context.Context) ([]core.Round, error) {
	if c.rounds != nil {
		return c.rounds.Get(ctx, allRoundsCacheKey, c.fetchAllRounds)
	}
	return c.fetchAllRounds(ctx)
}

func (c *Client) fetchAllRounds(ctx context.Context) ([]core.Round, error) {
	var data struct {
		AllRounds []wireRound `json:"allRounds"`
	}
	if err := c.gql.Do(ctx, allRoundsQuery, nil, &data); err != nil {
		return nil, fmt.Errorf("query allRounds: %w", err)
	}

	rounds := make([]core.Round, 0, len(data.AllRounds))
	for _, w := range data.AllRounds {
		r, err := w.toRound()
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	c.logger.DebugContext(ctx, "Fetched rounds", "count", len(rounds))
	return rounds, nil
}

// FetchProjectRoundRecords returns the project's records, filtered by
// whichever round number is set.
func (c *Client) FetchProjectRoundRecords(ctx context.Context, projectID int, qfRoundNumber, earlyAccessRoundNumber *int) ([]core.RoundRecord, error) {
	vars := map[string]any{"projectId": projectID}
	if qfRoundNumber != nil {
		vars["qfRoundNumber"] = *qfRoundNumber
	}
	if earlyAccessRoundNumber != nil {
		vars["earlyAccessRoundNumber"] = *earlyAccessRoundNumber
	}

	var data struct {
		Records []struct {
			TotalDonationAmount                 float64  `json:"totalDonationAmount"`
			CumulativePastRoundsDonationAmounts *float64 `json:"cumulativePastRoundsDonationAmounts"`
		} `json:"getProjectRoundRecords"`
	}
	if err := c.gql.Do(ctx, projectRoundRecordsQuery, vars, &data); err != nil {
		return nil, fmt.Errorf("query getProjectRoundRecords: %w", err)
	}

	records := make([]core.RoundRecord, len(data.Records))
	for i, r := range data.Records {
		records[i] = core.RoundRecord{
			TotalDonationAmount:                 r.TotalDonationAmount,
			CumulativePastRoundsDonationAmounts: r.CumulativePastRoundsDonationAmounts,
		}
	}
	return records, nil
}
