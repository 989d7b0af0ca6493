package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	coreconfig "github.com/maximcoj/teleblog/core/config"
	"github.com/maximcoj/teleblog/internal/storage"
)

// NewMigrateCommand prepares the configured durable backend: Postgres schema
// migrations or MongoDB indexes.
func NewMigrateCommand(root *RootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply storage schema and indexes, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := runnerOptions(root).ResolveConfigPath()
			if err != nil {
				return err
			}
			cfg, err := coreconfig.Load(path)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := storage.Prepare(ctx, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s storage is ready\n", cfg.Storage.Driver)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall time limit")
	return cmd
}
