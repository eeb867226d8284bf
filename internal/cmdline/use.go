package cmdline

import (
	"fmt"

	"github.com/edgeandnode/ampup/internal/versionmanager"
	"github.com/spf13/cobra"
)

func newUseCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "use [VERSION]",
		Short: "Activate an installed version",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.layout()
			if err != nil {
				return err
			}
			vm := versionmanager.New(l)

			version := ""
			if len(args) == 1 {
				version = args[0]
			} else {
				entries, err := vm.List()
				if err != nil {
					return err
				}
				version, err = a.versionPrompt.Choose(entries)
				if err != nil {
					return err
				}
			}

			if err := vm.Activate(version); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "now using %s\n", version)
			return nil
		},
	}
}
