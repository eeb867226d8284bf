// Package cmdline wires the command surface described in the external
// interfaces section onto the six core components, one file per
// command, mirroring a conventional cobra command tree.
package cmdline

import (
	"os"

	"github.com/edgeandnode/ampup/internal/layout"
	"github.com/edgeandnode/ampup/internal/logging"
	"github.com/edgeandnode/ampup/internal/release"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// DefaultRepo is used when neither --repo nor AMP_REPO is set.
const DefaultRepo = "edgeandnode/amp"

// ManagerVersion is assigned by cmd/ampup from its build-time version
// string (main.version, set via -ldflags).
var ManagerVersion = "dev"

// app bundles everything a command needs: resolved layout, a
// lazily-built release client, and the ambient collaborators.
type app struct {
	installDir  string
	osOverride  string
	archOverride string
	repo        string
	githubToken string
	logLevel    string
	jsonLogs    bool

	pathEditor    PathEditor
	versionPrompt VersionPrompt
	log           zerolog.Logger

	// apiBaseOverride points the release client at a test server
	// instead of the real release host; empty in production.
	apiBaseOverride string
}

func (a *app) layout() (*layout.Layout, error) {
	return layout.Resolve(
		layout.WithInstallDir(a.installDir),
		layout.WithOSOverride(a.osOverride),
		layout.WithArchOverride(a.archOverride),
	)
}

func (a *app) repoOrDefault() string {
	if a.repo != "" {
		return a.repo
	}
	if v := os.Getenv("AMP_REPO"); v != "" {
		return v
	}
	return DefaultRepo
}

func (a *app) releaseClient() *release.Client {
	return release.NewClient(release.Config{
		Repo:    a.repoOrDefault(),
		Token:   a.githubToken,
		APIBase: a.apiBaseOverride,
		Log:     &a.log,
	})
}

// NewRootCommand builds the full ampup command tree.
func NewRootCommand() *cobra.Command {
	a := &app{
		pathEditor:    NoopPathEditor{Out: os.Stdout},
		versionPrompt: FirstMatchPrompt{},
	}

	root := &cobra.Command{
		Use:           "ampup",
		Short:         "Install, run, and manage versions of ampd and ampctl",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.log = logging.New(logging.Options{Level: a.logLevel, JSON: a.jsonLogs})
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.installDir, "install-dir", "", "override the install root")
	root.PersistentFlags().StringVar(&a.osOverride, "platform", "", "override the detected platform")
	root.PersistentFlags().StringVar(&a.archOverride, "arch", "", "override the detected architecture")
	root.PersistentFlags().StringVar(&a.repo, "repo", "", "owner/name of the source repository")
	root.PersistentFlags().StringVar(&a.githubToken, "github-token", os.Getenv("GITHUB_TOKEN"), "bearer token for the release API")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "trace, debug, info, warn, error")
	root.PersistentFlags().BoolVar(&a.jsonLogs, "log-json", false, "emit ND-JSON logs instead of a console format")

	root.AddCommand(
		newInstallCommand(a),
		newListCommand(a),
		newUseCommand(a),
		newUninstallCommand(a),
		newBuildCommand(a),
		newUpdateCommand(a),
		newSelfCommand(a),
		newInitCommand(a),
	)

	return root
}
