package cmdline

import (
	"fmt"

	"github.com/edgeandnode/ampup/internal/versionmanager"
	"github.com/spf13/cobra"
)

func newListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.layout()
			if err != nil {
				return err
			}
			entries, err := versionmanager.New(l).List()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no versions installed")
				return nil
			}
			for _, e := range entries {
				marker := "  "
				if e.Active {
					marker = "* "
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", marker, e.Version)
			}
			return nil
		},
	}
}
