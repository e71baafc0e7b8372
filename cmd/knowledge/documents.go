package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newDocumentsCmd(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Inspect stored documents",
	}

	var asJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := state.knowledgeService()
			if err != nil {
				return err
			}
			docs, err := svc.ListDocuments(cmd.Context())
			if err != nil {
				return fmt.Errorf("%s", describeError(err))
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), docs)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tTYPE\tSTATUS\tCREATED")
			for _, doc := range docs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", doc.ID, doc.Title, doc.FileType, doc.Status,
					doc.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
	listCmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")

	getCmd := &cobra.Command{
		Use:   "get ID",
		Short: "Show a document and its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid document id %q", args[0])
			}
			svc, err := state.knowledgeService()
			if err != nil {
				return err
			}
			doc, err := svc.GetDocument(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("%s", describeError(err))
			}
			return writeJSON(cmd.OutOrStdout(), doc)
		},
	}

	cmd.AddCommand(listCmd, getCmd)
	return cmd
}
