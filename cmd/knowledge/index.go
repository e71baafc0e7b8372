package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCmd(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the vector collection",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create, index and load the vector collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := state.knowledgeService()
			if err != nil {
				return err
			}
			if err := svc.EnsureIndex(cmd.Context()); err != nil {
				return fmt.Errorf("%s", describeError(err))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "vector collection ready")
			return err
		},
	}

	cmd.AddCommand(initCmd)
	return cmd
}
