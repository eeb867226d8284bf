package cmdline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// newInitCommand bootstraps a fresh install root: places ampup's own
// executable at R/bin/ampup, optionally installs the latest release,
// and optionally hands off to the PATH editor. It is hidden because
// it is meant to be invoked once by the bootstrap installer, not
// typed by users directly.
func newInitCommand(a *app) *cobra.Command {
	var noModifyPath, noInstallLatest bool

	cmd := &cobra.Command{
		Use:    "init",
		Short:  "Initialize the install root and copy ampup into it",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.layout()
			if err != nil {
				return err
			}

			if err := os.MkdirAll(l.BinDir(), 0o755); err != nil {
				return err
			}
			if err := copySelfInto(l.ManagerPath()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", l.Root())

			if !noInstallLatest {
				installApp := a
				if noModifyPath {
					quiet := *a
					quiet.pathEditor = NoopPathEditor{Out: io.Discard}
					installApp = &quiet
				}
				if err := runInstall(cmd, installApp, ""); err != nil {
					return err
				}
			}

			if !noModifyPath {
				return a.pathEditor.EnsureOnPath(l.BinDir())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noModifyPath, "no-modify-path", false, "skip PATH setup")
	cmd.Flags().BoolVar(&noInstallLatest, "no-install-latest", false, "skip installing the latest release")
	return cmd
}

// copySelfInto copies the currently running executable to dest, unless
// dest already is that executable.
func copySelfInto(dest string) error {
	self, err := os.Executable()
	if err != nil {
		return err
	}
	self, err = filepath.EvalSymlinks(self)
	if err != nil {
		return err
	}

	if existing, err := filepath.EvalSymlinks(dest); err == nil && existing == self {
		return nil
	}

	in, err := os.Open(self)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dest + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, dest)
}
