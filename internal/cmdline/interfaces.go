package cmdline

import (
	"fmt"
	"io"

	"github.com/edgeandnode/ampup/internal/versionmanager"
)

// PathEditor appends ampup's bin/ directory to a shell's PATH. The
// default implementation only prints what a real editor would do.
type PathEditor interface {
	EnsureOnPath(binDir string) error
}

// NoopPathEditor reports the PATH line a user would need, without
// touching any shell configuration file.
type NoopPathEditor struct {
	Out io.Writer
}

func (e NoopPathEditor) EnsureOnPath(binDir string) error {
	fmt.Fprintf(e.Out, "note: add %s to your PATH to use ampd/ampctl directly\n", binDir)
	return nil
}

// VersionPrompt picks a version interactively when `use` is run with
// no version argument.
type VersionPrompt interface {
	Choose(entries []versionmanager.Entry) (string, error)
}

// FirstMatchPrompt picks the active version if there is one, otherwise
// the first installed version, deterministically, without requiring an
// interactive terminal. A real interactive picker
// is an external collaborator, not this type's job.
type FirstMatchPrompt struct{}

func (FirstMatchPrompt) Choose(entries []versionmanager.Entry) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("no versions installed; run `ampup install` first")
	}
	for _, e := range entries {
		if e.Active {
			return e.Version, nil
		}
	}
	return entries[0].Version, nil
}
