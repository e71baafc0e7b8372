package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aihub/knowledge-qa/app/bootstrap"
	apperrors "github.com/aihub/knowledge-qa/internal/errors"
	"github.com/aihub/knowledge-qa/internal/services"
	"github.com/spf13/cobra"
)

type cliState struct {
	cfgFile string
	app     *bootstrap.App
}

func newRootCmd(state *cliState) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Document ingestion and question answering over a vector index",
		Long: `knowledge splits documents into paragraphs, embeds them into a Milvus
collection and answers questions with the most similar stored paragraph.

Example usage:
  knowledge migrate up
  knowledge index init
  knowledge ingest --title "FAQ" faq.txt
  knowledge ask "how long do refunds take?"`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if state.cfgFile != "" {
				if err := os.Setenv("CONFIG_FILE", state.cfgFile); err != nil {
					return err
				}
			}
			app, err := bootstrap.Init()
			if err != nil {
				return fmt.Errorf("failed to bootstrap: %w", err)
			}
			state.app = app
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&state.cfgFile, "config", "", "config file (overrides CONFIG_FILE)")

	rootCmd.AddCommand(
		newIngestCmd(state),
		newAskCmd(state),
		newDocumentsCmd(state),
		newIndexCmd(state),
		newMigrateCmd(state),
		newHealthCmd(state),
		newEventsCmd(state),
	)
	return rootCmd
}

// knowledgeService 从容器获取服务，并在退出时关闭
func (s *cliState) knowledgeService() (*services.KnowledgeService, error) {
	var svc *services.KnowledgeService
	if err := s.app.Invoke(func(ks *services.KnowledgeService) {
		svc = ks
	}); err != nil {
		return nil, err
	}
	s.app.AddCleanup(svc.Close)
	return svc, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describeError 输出错误码，便于脚本判断
func describeError(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return fmt.Sprintf("%s: %s", appErr.Code, err.Error())
	}
	return err.Error()
}
