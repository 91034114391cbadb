package cli

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/crm-insights/server/internal/agent/conversations"
	"github.com/crm-insights/server/internal/server"
	logx "github.com/crm-insights/server/pkg/logger"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard and chat HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := opts.cfg
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			gin.SetMode(cfg.Environment.GinMode())

			ds, err := loadDataset(ctx, cfg)
			if err != nil {
				return err
			}

			agent, err := newAgent(ctx, cfg, ds)
			if err != nil {
				return err
			}

			transcripts, closeRepo, err := newTranscriptRepo(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeRepo()

			h := server.NewHandler(ds, agent, conversations.NewMessagesManager(transcripts, cfg.Conversation))
			logx.Info().
				Str("environment", cfg.Environment.String()).
				Str("model", cfg.Chat.Model).
				Msg("Starting server")
			return server.New(cfg.HTTP, h).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}
