package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DevNectorFoods/Email-Automation/internal/config"
	"github.com/DevNectorFoods/Email-Automation/pkg/secrets"
)

var sealCmd = &cobra.Command{
	Use:   "seal <password>",
	Short: "Seal a mailbox password with the configured key",
	Long:  "Seals a credential for manual database inserts. POST /accounts does this automatically.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		box, err := secrets.NewBox(cfg.Secrets.Key)
		if err != nil {
			return err
		}

		sealed, err := box.Seal(args[0])
		if err != nil {
			return fmt.Errorf("seal credential: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), sealed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sealCmd)
}
