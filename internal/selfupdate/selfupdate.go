// Package selfupdate replaces ampup's own running executable with a
// newer release, atomically and without breaking the current process.
package selfupdate

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/edgeandnode/ampup/internal/layout"
	"github.com/edgeandnode/ampup/internal/release"
	goupdate "github.com/inconshreveable/go-update"
)

// VersionMismatchError reports that the staged binary reported a
// different --version than the one that was requested.
type VersionMismatchError struct {
	Want, Got string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("staged binary reports version %q, expected %q", e.Got, e.Want)
}

// StagedBinaryInvalidError reports that the staged download is empty
// or not marked executable.
type StagedBinaryInvalidError struct {
	Reason string
}

func (e *StagedBinaryInvalidError) Error() string {
	return fmt.Sprintf("staged binary is invalid: %s", e.Reason)
}

// RestartRequiredError signals the Windows-like path: the running
// executable could not be swapped in place and the staged binary is
// left at SidecarPath. No swap is scheduled; the running executable
// stays as it was.
type RestartRequiredError struct {
	SidecarPath string
}

func (e *RestartRequiredError) Error() string {
	return fmt.Sprintf("update staged at %s; the running ampup executable was not replaced", e.SidecarPath)
}

// Result reports what SelfUpdater.Update actually did.
type Result struct {
	Updated         bool
	AlreadyUpToDate bool
	Version         string
}

// SelfUpdater fetches a newer manager binary and swaps it into place.
type SelfUpdater struct {
	layout         *layout.Layout
	client         *release.Client
	currentVersion string
}

// New builds a SelfUpdater bound to a Layout, ReleaseClient, and the
// version string of the currently running manager.
func New(l *layout.Layout, client *release.Client, currentVersion string) *SelfUpdater {
	return &SelfUpdater{layout: l, client: client, currentVersion: currentVersion}
}

// Update resolves targetVersion (empty means "latest"), short-circuits
// if it already matches the running version, otherwise downloads,
// verifies, and atomically replaces R/bin/ampup.
func (s *SelfUpdater) Update(ctx context.Context, targetVersion string, onProgress release.ProgressFunc) (*Result, error) {
	rel, err := s.client.ResolveRelease(ctx, targetVersion)
	if err != nil {
		return nil, err
	}

	if rel.Tag == s.currentVersion {
		return &Result{AlreadyUpToDate: true, Version: rel.Tag}, nil
	}

	managerRel := &release.Release{Tag: rel.Tag}
	for _, a := range rel.Assets {
		if strings.HasPrefix(a.Name, layout.ManagerBinary+"-") {
			managerRel.Assets = append(managerRel.Assets, a)
		}
	}
	asset, err := release.SelectAsset(managerRel, managerAssetSuffix(s.layout))
	if err != nil {
		return nil, err
	}

	stagedPath, err := s.download(ctx, asset, onProgress)
	if err != nil {
		return nil, err
	}

	if err := verifyStagedBinary(stagedPath); err != nil {
		os.Remove(stagedPath)
		return nil, err
	}

	if err := verifyStagedVersion(ctx, stagedPath, rel.Tag); err != nil {
		os.Remove(stagedPath)
		return nil, err
	}

	if err := s.apply(stagedPath); err != nil {
		var restart *RestartRequiredError
		if !errors.As(err, &restart) {
			os.Remove(stagedPath)
		}
		return nil, err
	}
	os.Remove(stagedPath)

	return &Result{Updated: true, Version: rel.Tag}, nil
}

// managerAssetSuffix is the manager's own asset suffix, identical in
// shape to a target-binary asset suffix (<os>-<arch>), distinguished
// by the asset name prefix ("ampup-" vs the target binaries' name).
func managerAssetSuffix(l *layout.Layout) string { return l.AssetSuffix() }

func (s *SelfUpdater) download(ctx context.Context, asset *release.Asset, onProgress release.ProgressFunc) (string, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return "", err
	}
	stagedPath := filepath.Join(s.layout.BinDir(), ".ampup.new-"+suffix)

	if err := os.MkdirAll(s.layout.BinDir(), 0o755); err != nil {
		return "", err
	}

	f, err := os.OpenFile(stagedPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := s.client.Download(ctx, asset, f, onProgress); err != nil {
		os.Remove(stagedPath)
		return "", err
	}
	return stagedPath, nil
}

func verifyStagedBinary(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return &StagedBinaryInvalidError{Reason: "file is empty"}
	}
	if info.Mode().Perm()&0o111 == 0 {
		return &StagedBinaryInvalidError{Reason: "file is not executable"}
	}
	return nil
}

func verifyStagedVersion(ctx context.Context, path, want string) error {
	cmd := exec.CommandContext(ctx, path, "--version")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		// the staged binary may not support --version; treat as
		// unverifiable rather than fatal, matching the "optional" probe.
		return nil
	}

	got := out.String()
	if want != "" && !bytes.Contains(out.Bytes(), []byte(want)) {
		return &VersionMismatchError{Want: want, Got: got}
	}
	return nil
}

// apply atomically swaps the staged binary over the live manager path.
// On POSIX this is a single rename, handled internally by go-update;
// on Windows-like systems where an open executable can't be renamed
// over, it reports RestartRequiredError and leaves the staged file in
// place without scheduling any later swap.
func (s *SelfUpdater) apply(stagedPath string) error {
	f, err := os.Open(stagedPath)
	if err != nil {
		return err
	}
	defer f.Close()

	target := s.layout.ManagerPath()
	err = goupdate.Apply(f, goupdate.Options{TargetPath: target})
	if err == nil {
		return nil
	}

	if rerr := goupdate.RollbackError(err); rerr != nil {
		return fmt.Errorf("update failed: %v, rollback failed: %v", err, rerr)
	}
	if runtime.GOOS == "windows" {
		return &RestartRequiredError{SidecarPath: stagedPath}
	}
	return fmt.Errorf("update failed: %w", err)
}

func randomSuffix() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
