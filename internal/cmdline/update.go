package cmdline

import (
	"github.com/spf13/cobra"
)

// newUpdateCommand is equivalent to `install` with no version pinned,
// which resolves to the latest release.
func newUpdateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Install the latest released version and activate it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd, a, "")
		},
	}
}
