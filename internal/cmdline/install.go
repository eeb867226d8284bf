package cmdline

import (
	"fmt"

	"github.com/edgeandnode/ampup/internal/installer"
	"github.com/edgeandnode/ampup/internal/release"
	"github.com/edgeandnode/ampup/internal/versionmanager"
	"github.com/spf13/cobra"
)

func newInstallCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install [VERSION]",
		Short: "Install a released version of ampd/ampctl and activate it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var version string
			if len(args) == 1 {
				version = args[0]
			}
			return runInstall(cmd, a, version)
		},
	}
	return cmd
}

func runInstall(cmd *cobra.Command, a *app, version string) error {
	l, err := a.layout()
	if err != nil {
		return err
	}
	client := a.releaseClient()
	vm := versionmanager.New(l)

	rel, err := client.ResolveRelease(cmd.Context(), version)
	if err != nil {
		return err
	}

	if vm.IsInstalled(rel.Tag) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is already installed, activating\n", rel.Tag)
		if err := vm.Activate(rel.Tag); err != nil {
			return err
		}
		return a.pathEditor.EnsureOnPath(l.BinDir())
	}

	asset, err := release.SelectAsset(rel, l.AssetSuffix())
	if err != nil {
		return err
	}

	in := installer.New(l, client, &a.log)
	onProgress := func(downloaded, total int64) {
		if total > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "\rdownloading %s: %d/%d bytes", asset.Name, downloaded, total)
		}
	}
	if err := in.Install(cmd.Context(), rel.Tag, asset, onProgress); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout())

	if err := vm.Activate(rel.Tag); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "installed and activated %s\n", rel.Tag)
	return a.pathEditor.EnsureOnPath(l.BinDir())
}
