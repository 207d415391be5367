package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"qacc/internal/cli"
	"qacc/internal/config"
	"qacc/internal/graphql"
	applog "qacc/internal/log"
)

var (
	tokenFlag string
	envFlag   bool
)

type appKey struct{}

// rootCmd queries the q/acc backend from the terminal
var rootCmd = &cobra.Command{
	Use:   "qacc-cli",
	Short: "Query q/acc rounds, caps, donations and passport scores",
	Long: `qacc-cli talks to the q/acc GraphQL backend with the same configuration
as the server (environment variables or a .env file) and prints JSON.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFlag {
			cli.LoadEnvFile()
		}
		logger := cli.SetupLogger("cli")

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if tokenFlag != "" {
			ctx = graphql.WithToken(ctx, tokenFlag)
		}
		ctx = applog.NewContext(ctx, logger)
		ctx = context.WithValue(ctx, appKey{}, &app{cfg: cfg, backend: cli.NewBackend(cfg, logger.Logger), logger: logger})
		cmd.SetContext(ctx)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "bearer token for authenticated queries (defaults to QACC_API_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&envFlag, "env", true, "load a .env file from the working directory")

	rootCmd.AddCommand(recentRoundCmd, capCmd, donationCapCmd, donationsCmd, passportCmd, priceCmd)
}

type app struct {
	cfg     *config.Config
	backend *cli.Backend
	logger  *applog.Logger
}

func appFrom(cmd *cobra.Command) *app {
	return cmd.Context().Value(appKey{}).(*app)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
