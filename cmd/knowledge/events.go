package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/aihub/knowledge-qa/internal/events"
	"github.com/aihub/knowledge-qa/internal/logger"
	"github.com/spf13/cobra"
)

func newEventsCmd(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect document ingestion events",
	}

	var (
		group      string
		fromOldest bool
	)
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Print document events from Kafka until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kcfg := state.app.Config.Kafka
			if !kcfg.Enabled {
				return fmt.Errorf("kafka is not enabled")
			}

			out := cmd.OutOrStdout()
			consumer, err := events.NewConsumer(kcfg.Brokers, group, kcfg.Topic, fromOldest,
				func(ctx context.Context, event events.DocumentEvent) error {
					return writeJSON(out, event)
				}, logger.Named("events"))
			if err != nil {
				return err
			}
			defer consumer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return consumer.Run(ctx)
		},
	}
	tailCmd.Flags().StringVar(&group, "group", "knowledge-events-tail", "consumer group id")
	tailCmd.Flags().BoolVar(&fromOldest, "from-beginning", false, "start from the oldest retained event")

	cmd.AddCommand(tailCmd)
	return cmd
}
