// Package builder clones a source reference (or uses a local source
// directory in place), compiles it
// with the upstream build tool, derives a version name, and promotes
// the result into a new version slot — the build-from-source mirror
// of package installer.
package builder

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/edgeandnode/ampup/internal/layout"
	"github.com/edgeandnode/ampup/internal/release"
	"github.com/edgeandnode/ampup/internal/stage"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// GitError wraps a failure cloning or checking out the source.
type GitError struct{ Cause error }

func (e *GitError) Error() string { return fmt.Sprintf("git operation failed: %v", e.Cause) }
func (e *GitError) Unwrap() error { return e.Cause }

// BuildFailedError reports a non-zero exit from the upstream build
// tool, carrying the last lines of its combined output.
type BuildFailedError struct {
	ExitErr error
	Tail    string
}

func (e *BuildFailedError) Error() string {
	return fmt.Sprintf("build failed: %v\n%s", e.ExitErr, e.Tail)
}
func (e *BuildFailedError) Unwrap() error { return e.ExitErr }

// BuildOutputMissingError reports that the build tool's conventional
// output directory doesn't contain an expected binary.
type BuildOutputMissingError struct {
	Name string
}

func (e *BuildOutputMissingError) Error() string {
	return fmt.Sprintf("build output is missing expected binary %q", e.Name)
}

// InvalidVersionNameError reports an unsafe derived or custom version name.
type InvalidVersionNameError struct {
	Name string
}

func (e *InvalidVersionNameError) Error() string {
	return fmt.Sprintf("invalid version name %q", e.Name)
}

// Options configures one build-from-source invocation.
type Options struct {
	Source      release.SourceRef
	CustomName  string
	Parallelism int
}

// Builder compiles a SourceRef and promotes the result to a version slot.
type Builder struct {
	layout *layout.Layout
	client *release.Client
	log    *zerolog.Logger
}

// New builds a Builder bound to a Layout and ReleaseClient (used for
// PR/branch/default source-ref resolution).
func New(l *layout.Layout, client *release.Client, log *zerolog.Logger) *Builder {
	if log == nil {
		discard := zerolog.Nop()
		log = &discard
	}
	return &Builder{layout: l, client: client, log: log}
}

// Build resolves opts.Source, clones it into a staging workspace (a
// local path is compiled in place, not copied), compiles it, derives
// a version name, and promotes the
// staged binaries to a new version slot. It returns the chosen name.
func (b *Builder) Build(ctx context.Context, opts Options) (version string, err error) {
	resolved, err := b.client.ResolveSource(ctx, opts.Source)
	if err != nil {
		return "", err
	}

	suffix, err := randomSuffix()
	if err != nil {
		return "", err
	}
	stagingDir := b.layout.StagingDir(suffix)
	if err := stage.New(stagingDir); err != nil {
		return "", err
	}
	defer func() {
		if rmErr := stage.Remove(stagingDir); rmErr != nil && err == nil {
			err = rmErr
		}
	}()

	workDir := filepath.Join(stagingDir, "src")
	if resolved.IsLocal() {
		workDir = resolved.Path
	} else if err := b.prepareWorkspace(ctx, resolved, workDir); err != nil {
		return "", err
	}

	if err := b.compile(ctx, workDir, opts.Parallelism); err != nil {
		return "", err
	}

	outputDir := filepath.Join(workDir, "target", "release")
	if err := verifyBuildOutputs(outputDir); err != nil {
		return "", err
	}

	version, err = b.determineVersion(ctx, outputDir, opts.CustomName, resolved)
	if err != nil {
		return "", err
	}

	unpackedDir := filepath.Join(stagingDir, "unpacked")
	if err := stageBinaries(outputDir, unpackedDir); err != nil {
		return "", err
	}

	if err := stage.Promote(unpackedDir, b.layout.SlotDir(version)); err != nil {
		return "", err
	}

	return version, nil
}

// prepareWorkspace clones resolved's repository with full history (the
// clone is not shallow) and checks out its resolved commit or branch
// into srcDir. Only called for remote
// refs; a local path is used directly by the caller.
func (b *Builder) prepareWorkspace(ctx context.Context, resolved *release.ResolvedSource, srcDir string) error {
	if err := runGit(ctx, "", "clone", "--quiet", resolved.CloneURL, srcDir); err != nil {
		return &GitError{Cause: err}
	}

	ref := resolved.Commit
	if ref == "" {
		ref = resolved.Branch
	}
	if ref != "" {
		if err := runGit(ctx, srcDir, "checkout", "--quiet", ref); err != nil {
			return &GitError{Cause: err}
		}
	}
	return nil
}

func runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// compile invokes the upstream build tool in release mode, draining
// stdout and stderr concurrently (bounded by an errgroup) so neither
// pipe's buffer can fill and deadlock the child process, and returns
// *BuildFailedError with the captured tail of output on failure.
func (b *Builder) compile(ctx context.Context, workDir string, parallelism int) error {
	args := []string{"build", "--release"}
	if parallelism > 0 {
		args = append(args, "-j", fmt.Sprintf("%d", parallelism))
	}

	cmd := exec.CommandContext(ctx, "cargo", args...)
	cmd.Dir = workDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	var tail tailBuffer
	if err := cmd.Start(); err != nil {
		return &BuildFailedError{ExitErr: err}
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { return drainInto(&tail, stdout) })
	g.Go(func() error { return drainInto(&tail, stderr) })
	drainErr := g.Wait()

	waitErr := cmd.Wait()
	if waitErr != nil {
		return &BuildFailedError{ExitErr: waitErr, Tail: tail.String()}
	}
	return drainErr
}

func drainInto(tail *tailBuffer, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		tail.add(scanner.Text())
	}
	return scanner.Err()
}

// tailBuffer keeps the last N lines of build output for error reporting.
type tailBuffer struct {
	lines []string
}

const tailLines = 40

func (t *tailBuffer) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > tailLines {
		t.lines = t.lines[len(t.lines)-tailLines:]
	}
}

func (t *tailBuffer) String() string { return strings.Join(t.lines, "\n") }

func verifyBuildOutputs(outputDir string) error {
	for _, name := range layout.TargetBinaries {
		info, err := os.Stat(filepath.Join(outputDir, name))
		if err != nil || !info.Mode().IsRegular() {
			return &BuildOutputMissingError{Name: name}
		}
	}
	return nil
}

var versionWordPattern = regexp.MustCompile(`v?\d+\.\d+\.\d+`)

// determineVersion picks the slot name in priority order: a supplied
// custom name, the primary binary's --version output, then a
// synthesized name from the resolved commit's short SHA.
func (b *Builder) determineVersion(ctx context.Context, outputDir, customName string, resolved *release.ResolvedSource) (string, error) {
	if customName != "" {
		if err := layout.SanitizeVersionName(customName); err != nil {
			return "", &InvalidVersionNameError{Name: customName}
		}
		return customName, nil
	}

	if v, ok := probeVersion(ctx, filepath.Join(outputDir, layout.TargetBinaries[0])); ok {
		return v, nil
	}

	if len(resolved.Commit) >= 7 {
		return resolved.Commit[:7], nil
	}

	return "", &InvalidVersionNameError{Name: ""}
}

func probeVersion(ctx context.Context, binPath string) (string, bool) {
	cmd := exec.CommandContext(ctx, binPath, "--version")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", false
	}

	match := versionWordPattern.FindString(out.String())
	if match == "" {
		return "", false
	}
	if layout.SanitizeVersionName(match) != nil {
		return "", false
	}
	return match, true
}

func stageBinaries(outputDir, unpackedDir string) error {
	if err := os.MkdirAll(unpackedDir, 0o755); err != nil {
		return err
	}
	for _, name := range layout.TargetBinaries {
		src := filepath.Join(outputDir, name)
		dst := filepath.Join(unpackedDir, name)
		if err := copyExecutable(src, dst); err != nil {
			return err
		}
	}
	return nil
}

func copyExecutable(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return nil
}

func randomSuffix() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
