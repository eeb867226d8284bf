package cmdline

import (
	"fmt"

	"github.com/edgeandnode/ampup/internal/versionmanager"
	"github.com/spf13/cobra"
)

func newUninstallCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall VERSION",
		Short: "Remove an installed version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.layout()
			if err != nil {
				return err
			}
			vm := versionmanager.New(l)

			if !vm.IsInstalled(args[0]) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s is not installed\n", args[0])
				return nil
			}

			if err := vm.Uninstall(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uninstalled %s\n", args[0])
			return nil
		},
	}
}
