package cli

import (
	"context"

	"github.com/spf13/cobra"

	corecmd "github.com/maximcoj/teleblog/core/cmd"
	coreconfig "github.com/maximcoj/teleblog/core/config"
	"github.com/maximcoj/teleblog/internal/app"
)

// NewServeCommand runs the bot and the web API.
func NewServeCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the public API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return corecmd.Run(runnerOptions(root))
		},
	}
}

func runnerOptions(root *RootOptions) corecmd.Options {
	return corecmd.Options{
		ConfigPath:        root.ConfigPath,
		DefaultConfigPath: "config.yaml",
		Bootstrap: func(ctx context.Context, cfg *coreconfig.Config) (corecmd.TelegramApp, error) {
			return app.New(ctx, cfg)
		},
	}
}
