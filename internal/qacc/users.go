package qacc

import (
	"context"
	"fmt"
	"strings"

	"qacc/internal/core"
	"qacc/internal/graphql"
)

const userFields = `
    id
    fullName
    email
    username
    avatar
    walletAddress
    url
    location
    likedProjectsCount
    donationsCount
    totalDonated
    projectsCount
    passportScore
    passportStamps
    analysisScore
    hasEnoughGitcoinPassportScore
    hasEnoughGitcoinAnalysisScore
    privadoVerified
    acceptedToS
    skipVerification
`

const userByAddressQuery = `
query ($address: String!) {
  userByAddress(address: $address) {` + userFields + `  }
}`

const refreshUserScoresQuery = `
query ($address: String!) {
  refreshUserScores(address: $address) {` + userFields + `  }
}`

const projectUserDonationCapQuery = `
query ($projectId: Int!) {
  projectUserDonationCapKyc(projectId: $projectId) {
    qAccCap
    gitcoinPassport { unusedCap }
    zkId { unusedCap }
  }
}`

// UserByAddress returns the user registered for a wallet.
func (c *Client) UserByAddress(ctx context.Context, address string) (core.User, error) {
	return c.queryUser(ctx, userByAddressQuery, "userByAddress", address)
}

// RefreshUserScores asks the backend to recompute the wallet's Gitcoin
// scores and returns the updated user.
func (c *Client) RefreshUserScores(ctx context.Context, address string) (core.User, error) {
	return c.queryUser(ctx, refreshUserScoresQuery, "refreshUserScores", address)
}

func (c *Client) queryUser(ctx context.Context, query, field, address string) (core.User, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return core.User{}, fmt.Errorf("%s: empty address", field)
	}

	var data map[string]*core.User
	if err := c.gql.Do(ctx, query, map[string]any{"address": address}, &data, graphql.WithAuth()); err != nil {
		return core.User{}, fmt.Errorf("query %s: %w", field, err)
	}
	u := data[field]
	if u == nil {
		return core.User{}, fmt.Errorf("query %s: %w", field, ErrUserNotFound)
	}
	u.IsSignedIn = true
	return *u, nil
}

// ProjectUserDonationCap returns how much the signed-in user may still
// donate to the project.
func (c *Client) ProjectUserDonationCap(ctx context.Context, projectID int) (core.ProjectUserDonationCapKyc, error) {
	if projectID <= 0 {
		return core.ProjectUserDonationCapKyc{}, core.ErrInvalidProjectID
	}
	var data struct {
		Cap core.ProjectUserDonationCapKyc `json:"projectUserDonationCapKyc"`
	}
	if err := c.gql.Do(ctx, projectUserDonationCapQuery, map[string]any{"projectId": projectID}, &data, graphql.WithAuth()); err != nil {
		return core.ProjectUserDonationCapKyc{}, fmt.Errorf("query projectUserDonationCapKyc: %w", err)
	}
	return data.Cap, nil
}
