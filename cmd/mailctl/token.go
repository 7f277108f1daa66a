package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/DevNectorFoods/Email-Automation/internal/config"
	"github.com/DevNectorFoods/Email-Automation/internal/util"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cfg.JWT.Secret == "" {
			return fmt.Errorf("jwt secret is not configured")
		}

		token, err := util.GenerateJWT(tokenSubject, cfg.JWT.Secret, tokenTTL)
		if err != nil {
			return fmt.Errorf("mint token: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "ops", "caller name recorded in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
