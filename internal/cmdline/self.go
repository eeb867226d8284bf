package cmdline

import (
	"errors"
	"fmt"

	"github.com/edgeandnode/ampup/internal/selfupdate"
	"github.com/spf13/cobra"
)

func newSelfCommand(a *app) *cobra.Command {
	self := &cobra.Command{
		Use:   "self",
		Short: "Manage the ampup manager binary itself",
	}
	self.AddCommand(newSelfUpdateCommand(a), newSelfVersionCommand(a))
	return self
}

func newSelfUpdateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Update ampup itself to the latest version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.layout()
			if err != nil {
				return err
			}
			client := a.releaseClient()
			updater := selfupdate.New(l, client, ManagerVersion)

			onProgress := func(downloaded, total int64) {
				if total > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "\rdownloading ampup: %d/%d bytes", downloaded, total)
				}
			}

			result, err := updater.Update(cmd.Context(), "", onProgress)
			if err != nil {
				var restart *selfupdate.RestartRequiredError
				if errors.As(err, &restart) {
					fmt.Fprintln(cmd.OutOrStdout())
					fmt.Fprintf(cmd.OutOrStdout(), "%v\n", restart)
					return nil
				}
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout())
			if result.AlreadyUpToDate {
				fmt.Fprintf(cmd.OutOrStdout(), "no update needed, already at %s\n", result.Version)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated ampup to %s\n", result.Version)
			return nil
		},
	}
}

func newSelfVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print ampup's own version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), ManagerVersion)
			return nil
		},
	}
}
