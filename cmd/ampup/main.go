// Command ampup is a version manager for the ampd and ampctl companion
// binaries: install, list, use, uninstall, build-from-source, and
// self-update.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/edgeandnode/ampup/internal/cmdline"
	"github.com/spf13/cobra"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmdline.ManagerVersion = version

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := cmdline.NewRootCommand()
	root.Version = version

	if err := root.ExecuteContext(ctx); err != nil {
		reportRootError(root, err)
		os.Exit(1)
	}
}

func reportRootError(root *cobra.Command, err error) {
	root.PrintErrln("\033[31m✗ " + err.Error() + "\033[0m")
}
