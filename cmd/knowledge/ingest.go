package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newIngestCmd(state *cliState) *cobra.Command {
	var (
		title       string
		contentType string
	)

	cmd := &cobra.Command{
		Use:   "ingest [FILE|-]",
		Short: "Ingest a text document",
		Long: `Store a document, split it into paragraphs and index every paragraph.
Reads from standard input when FILE is "-" or omitted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var reader io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer f.Close()
				reader = f
				if title == "" {
					title = args[0]
				}
			}

			svc, err := state.knowledgeService()
			if err != nil {
				return err
			}

			doc, err := svc.IngestReader(cmd.Context(), reader, title, contentType)
			if err != nil {
				return fmt.Errorf("%s", describeError(err))
			}
			return writeJSON(cmd.OutOrStdout(), doc)
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "document title (defaults to the file name)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "declared content type (default text/plain)")
	return cmd
}
