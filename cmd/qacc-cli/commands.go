package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"qacc/internal/core"
	"qacc/internal/donations"
	"qacc/internal/passport"
	"qacc/internal/qacc"
	"qacc/internal/round"
)

var (
	capRoundType   string
	capRoundNumber int
	capCumulative  bool

	donationsPage      int
	donationsOrderBy   string
	donationsDirection string
	donationsTicker    string

	passportCheck bool

	priceChainID int
)

// recentRoundCmd prints the most recently ended round
var recentRoundCmd = &cobra.Command{
	Use:   "recent-round",
	Short: "Show the most recently ended round",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := appFrom(cmd)
		r, err := newCalculator(a).MostRecentEnded(cmd.Context())
		if err != nil {
			return err
		}
		if r == nil {
			return printJSON(cmd.OutOrStdout(), map[string]any{"round": nil})
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"round": round.NewView(r)})
	},
}

// capCmd prints a project's remaining cap
var capCmd = &cobra.Command{
	Use:   "cap <projectID>",
	Short: "Calculate the remaining donation cap of a project",
	Long: `Calculate how much a project can still receive in a round.

Without --round-type the most recently ended round is used. With
--cumulative, donations from past rounds are deducted from the cap.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseProjectID(args[0])
		if err != nil {
			return err
		}
		a := appFrom(cmd)
		calc := newCalculator(a)

		var active core.Round
		if capRoundType != "" {
			kind, err := round.ParseKind(capRoundType)
			if err != nil {
				return err
			}
			if active, err = calc.FindRound(cmd.Context(), kind, capRoundNumber); err != nil {
				return err
			}
		}

		res, err := calc.CalculateCap(cmd.Context(), active, projectID, capCumulative)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

// donationCapCmd prints per-user caps by identity check
var donationCapCmd = &cobra.Command{
	Use:   "donation-cap <projectID>",
	Short: "Show how much the signed-in user may still donate to a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseProjectID(args[0])
		if err != nil {
			return err
		}
		c, err := appFrom(cmd).backend.ProjectUserDonationCap(cmd.Context(), projectID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), c)
	},
}

// donationsCmd prints one page of a user's donations to a project
var donationsCmd = &cobra.Command{
	Use:   "donations <projectID> <userID>",
	Short: "List a user's donations to a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseProjectID(args[0])
		if err != nil {
			return err
		}
		order, err := donations.ParseOrder(donationsOrderBy, donationsDirection)
		if err != nil {
			return err
		}
		a := appFrom(cmd)
		svc := donations.NewService(a.backend.Client, a.backend.Prices, donations.Config{
			ScanURL:      a.cfg.ScanURL,
			NativeSymbol: a.cfg.ERCTokenSymbol,
		}, a.logger.Logger)

		page, err := svc.UserDonations(cmd.Context(), donations.Query{
			ProjectID:   projectID,
			UserID:      args[1],
			Page:        donationsPage,
			Order:       order,
			TokenTicker: donationsTicker,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), page)
	},
}

// passportCmd prints a wallet's Gitcoin passport status
var passportCmd = &cobra.Command{
	Use:   "passport <address>",
	Short: "Show the Gitcoin passport status of a wallet",
	Long: `Show the Gitcoin passport status of a wallet.

With --check the backend recomputes the scores first, which needs an
authenticated token.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := appFrom(cmd)
		v := passport.NewVerifier(a.backend.Client, passport.Thresholds{
			Analysis: a.cfg.GPAnalysisScoreThreshold,
			Scorer:   a.cfg.GPScorerScoreThreshold,
		}, a.logger.Logger)

		check := v.Status
		if passportCheck {
			check = v.CheckScore
		}
		res, err := check(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

// priceCmd prints USD prices for tokens
var priceCmd = &cobra.Command{
	Use:   "price [tokenAddress...]",
	Short: "Show USD token prices, POL when no address is given",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := appFrom(cmd)
		prices := a.backend.Prices
		if len(args) == 0 {
			p, err := prices.POLPrice(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]float64{"POL": p})
		}

		if _, ok := a.cfg.ChainByID(priceChainID); !ok {
			return fmt.Errorf("chain %d is not supported", priceChainID)
		}
		keys := make([]qacc.TokenKey, 0, len(args))
		for _, addr := range args {
			keys = append(keys, qacc.TokenKey{ChainID: priceChainID, Address: addr})
		}
		found, err := prices.TokenPrices(cmd.Context(), keys)
		if err != nil {
			return err
		}
		out := make(map[string]qacc.TokenPrice, len(found))
		for k, p := range found {
			out[k.String()] = p
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	capCmd.Flags().StringVar(&capRoundType, "round-type", "", "round type: qf or early")
	capCmd.Flags().IntVar(&capRoundNumber, "round-number", 0, "round number, used with --round-type")
	capCmd.Flags().BoolVar(&capCumulative, "cumulative", false, "deduct past-round donations from the cap")

	donationsCmd.Flags().IntVar(&donationsPage, "page", 0, "zero-based page")
	donationsCmd.Flags().StringVar(&donationsOrderBy, "order-by", "", "Date, Round, Amount or Tokens")
	donationsCmd.Flags().StringVar(&donationsDirection, "direction", "", "ASC or DESC")
	donationsCmd.Flags().StringVar(&donationsTicker, "ticker", "", "reward token ticker")

	passportCmd.Flags().BoolVar(&passportCheck, "check", false, "refresh the scores upstream before evaluating")

	priceCmd.Flags().IntVar(&priceChainID, "chain", qacc.PolygonChainID, "chain id of the token addresses")
}

func newCalculator(a *app) *round.Calculator {
	opts := round.DefaultOptions()
	opts.Logger = a.logger.Logger
	return round.NewCalculator(a.backend.Client, opts)
}

func parseProjectID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidProjectID, s)
	}
	return id, nil
}
