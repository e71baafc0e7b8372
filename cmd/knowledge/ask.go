package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd(state *cliState) *cobra.Command {
	var (
		topK   int
		asJSON bool
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "ask QUESTION...",
		Short: "Answer a question with the most similar stored paragraph",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			svc, err := state.knowledgeService()
			if err != nil {
				return err
			}

			if all {
				passages, err := svc.Retrieve(cmd.Context(), question, topK)
				if err != nil {
					return fmt.Errorf("%s", describeError(err))
				}
				return writeJSON(cmd.OutOrStdout(), passages)
			}

			answer, err := svc.Answer(cmd.Context(), question)
			if err != nil {
				return fmt.Errorf("%s", describeError(err))
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"question": question, "answer": answer})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), answer)
			return err
		},
	}

	cmd.Flags().BoolVar(&all, "passages", false, "print every resolved passage instead of the single answer")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of passages with --passages (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
