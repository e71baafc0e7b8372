package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aihub/knowledge-qa/internal/database"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type healthReport struct {
	Database database.HealthCheckResult `json:"database"`
	Redis    string                     `json:"redis,omitempty"`
	Index    string                     `json:"vector_index,omitempty"`
}

func newHealthCmd(state *cliState) *cobra.Command {
	var (
		wait       time.Duration
		timeout    time.Duration
		checkIndex bool
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check database, cache and vector index connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			report := healthReport{}
			var failed bool

			err := state.app.Invoke(func(checker *database.HealthChecker, redisClient *redis.Client) {
				if timeout > 0 {
					checker.SetTimeout(timeout)
				}
				var dbErr error
				if wait > 0 {
					waitCtx, cancel := context.WithTimeout(ctx, wait)
					dbErr = checker.WaitForHealthy(waitCtx, time.Second)
					cancel()
				} else {
					dbErr = checker.Check(ctx)
				}
				report.Database = checker.GetHealthResult()
				failed = failed || dbErr != nil

				if redisClient != nil {
					report.Redis = "ok"
					if err := redisClient.Ping(ctx).Err(); err != nil {
						report.Redis = err.Error()
						failed = true
					}
				}
			})
			if err != nil {
				return err
			}

			if checkIndex {
				svc, err := state.knowledgeService()
				if err != nil {
					return err
				}
				report.Index = "ok"
				if err := svc.EnsureIndex(ctx); err != nil {
					report.Index = describeError(err)
					failed = true
				}
			}

			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if failed {
				return fmt.Errorf("health check failed")
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "keep retrying the database until healthy or the duration elapses")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-ping timeout (default 5s)")
	cmd.Flags().BoolVar(&checkIndex, "index", false, "also verify the vector collection can be loaded")
	return cmd
}
