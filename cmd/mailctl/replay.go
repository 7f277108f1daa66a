package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/DevNectorFoods/Email-Automation/internal/config"
	"github.com/DevNectorFoods/Email-Automation/pkg/db"
	"github.com/DevNectorFoods/Email-Automation/pkg/logger"
	"github.com/DevNectorFoods/Email-Automation/pkg/mq"
	"github.com/DevNectorFoods/Email-Automation/pkg/outbox"
)

var (
	replayEventID int64
	replayLimit   int
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Republish outbox events that exhausted their retries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		log := logger.NewLogger()
		defer log.Sync()

		dbConn, err := db.NewConnection(cfg.DB, log)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer dbConn.Close()

		publisher, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			return fmt.Errorf("connect mq: %w", err)
		}
		defer publisher.Close()

		replayer := outbox.NewReplayService(outbox.NewRepository(dbConn), publisher)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if replayEventID > 0 {
			if err := replayer.ReplayEvent(ctx, replayEventID); err != nil {
				return fmt.Errorf("replay event %d: %w", replayEventID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "event %d republished\n", replayEventID)
			return nil
		}

		count, err := replayer.ReplayFailedEvents(ctx, replayLimit)
		if err != nil {
			return fmt.Errorf("replay failed events: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d event(s) republished\n", count)
		return nil
	},
}

func init() {
	replayCmd.Flags().Int64Var(&replayEventID, "event", 0, "replay a single event by id")
	replayCmd.Flags().IntVar(&replayLimit, "limit", 50, "max failed events to replay")
	rootCmd.AddCommand(replayCmd)
}
