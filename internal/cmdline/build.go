package cmdline

import (
	"fmt"

	"github.com/edgeandnode/ampup/internal/builder"
	"github.com/edgeandnode/ampup/internal/release"
	"github.com/edgeandnode/ampup/internal/versionmanager"
	"github.com/spf13/cobra"
)

func newBuildCommand(a *app) *cobra.Command {
	var branch, commit, path string
	var pr int
	var name string
	var jobs int

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile ampd/ampctl from source and activate the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := sourceRefFromFlags(a.repoOrDefault(), branch, commit, path, pr)
			if err != nil {
				return err
			}

			l, err := a.layout()
			if err != nil {
				return err
			}
			client := a.releaseClient()
			b := builder.New(l, client, &a.log)

			version, err := b.Build(cmd.Context(), builder.Options{
				Source:      ref,
				CustomName:  name,
				Parallelism: jobs,
			})
			if err != nil {
				return err
			}

			if err := versionmanager.New(l).Activate(version); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "built and activated %s\n", version)
			return nil
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "", "build a branch")
	cmd.Flags().StringVar(&commit, "commit", "", "build a specific commit")
	cmd.Flags().IntVar(&pr, "pr", 0, "build a pull request's head commit")
	cmd.Flags().StringVar(&path, "path", "", "build a local source directory")
	cmd.Flags().StringVar(&name, "name", "", "custom name for the resulting version slot")
	cmd.Flags().IntVar(&jobs, "jobs", 0, "parallel build jobs (0 = build tool default)")
	cmd.MarkFlagsMutuallyExclusive("branch", "commit", "pr", "path")

	return cmd
}

func sourceRefFromFlags(repo, branch, commit, path string, pr int) (release.SourceRef, error) {
	switch {
	case branch != "":
		return release.SourceRef{Kind: release.SourceBranch, Branch: branch, Repo: repo}, nil
	case commit != "":
		return release.SourceRef{Kind: release.SourceCommit, Commit: commit, Repo: repo}, nil
	case pr != 0:
		return release.SourceRef{Kind: release.SourcePR, PR: pr, Repo: repo}, nil
	case path != "":
		return release.SourceRef{Kind: release.SourcePath, Path: path}, nil
	default:
		return release.SourceRef{Kind: release.SourceDefault, Repo: repo}, nil
	}
}
