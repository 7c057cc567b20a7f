package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.trai.ch/stash/internal/app"
	"go.trai.ch/stash/internal/ui/style"
)

func (c *CLI) newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the cache state and persisted packs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := c.app.Status(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}

			renderStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Emit machine-readable JSON")
	return cmd
}

func renderStatus(w io.Writer, status *app.Status) {
	ok := lipgloss.NewStyle().Foreground(style.Green)
	bad := lipgloss.NewStyle().Foreground(style.Red)

	_, _ = fmt.Fprintln(w, style.Header.Render("cache "+status.Name))
	_, _ = fmt.Fprintln(w, style.Dim.Render("  dir: "+status.CacheDir))

	if !status.Persistent {
		_, _ = fmt.Fprintln(w, style.Dim.Render("  persistence: disabled"))
		return
	}
	if len(status.Packs) == 0 {
		_, _ = fmt.Fprintln(w, style.Dim.Render("  no packs on disk"))
		return
	}

	for _, pack := range status.Packs {
		icon := ok.Render(style.Check)
		if !pack.Valid {
			icon = bad.Render(style.Cross)
		}
		_, _ = fmt.Fprintf(w, "  %s %s  %d entries  version %s  %s\n",
			icon,
			filepath.Base(pack.Path),
			pack.Entries,
			pack.Version,
			pack.CreatedAt.Format(time.RFC3339),
		)
	}
}
