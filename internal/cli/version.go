package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maximcoj/teleblog/core/buildinfo"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "teleblog "+buildinfo.String())
			return err
		},
	}
}
