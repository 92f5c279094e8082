package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/tools/loadgen"
)

func main() {
	var cfg loadgen.Config
	cmd := &cobra.Command{
		Use:          "loadgen",
		Short:        "Generate API traffic for a named profile",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := loadgen.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&cfg.BaseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.Flags().StringVar(&cfg.Profile, "profile", loadgen.ProfileMixed, "mixed, auth, scrape or health")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", 10*time.Second, "run duration")
	cmd.Flags().IntVar(&cfg.RPS, "rps", 10, "requests per second")
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", 4, "concurrent workers")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", 42, "random seed")
	cmd.Flags().StringVar(&cfg.Email, "email", "", "login target for the auth profile")
	cmd.Flags().StringVar(&cfg.Token, "token", os.Getenv("LOADGEN_TOKEN"), "bearer token for the scrape profile")
	cmd.Flags().Int64Var(&cfg.MaxRequests, "max-requests", 0, "stop after this many requests")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
