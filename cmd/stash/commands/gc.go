package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newGCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Rewrite the packs, dropping entries outside the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.app.GC(cmd.Context())
		},
	}
}
