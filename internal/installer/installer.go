// Package installer places a downloaded release asset into a new
// versioned slot: stage, download, extract, verify, promote.
package installer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/edgeandnode/ampup/internal/archive"
	"github.com/edgeandnode/ampup/internal/layout"
	"github.com/edgeandnode/ampup/internal/release"
	"github.com/edgeandnode/ampup/internal/stage"
	"github.com/rs/zerolog"
)

// IncompleteAssetError reports that extraction succeeded but a required
// target binary is missing from the unpacked tree.
type IncompleteAssetError struct {
	Name string
}

func (e *IncompleteAssetError) Error() string {
	return fmt.Sprintf("extracted asset is missing required binary %q", e.Name)
}

// AlreadyInstalledError reports that the destination slot already
// existed at promotion time.
type AlreadyInstalledError struct {
	Version string
}

func (e *AlreadyInstalledError) Error() string {
	return fmt.Sprintf("version %q is already installed", e.Version)
}

// DownloadError wraps a failure streaming the asset to staging.
type DownloadError struct{ Cause error }

func (e *DownloadError) Error() string { return fmt.Sprintf("download failed: %v", e.Cause) }
func (e *DownloadError) Unwrap() error { return e.Cause }

// ArchiveError wraps a failure extracting the downloaded archive.
type ArchiveError struct{ Cause error }

func (e *ArchiveError) Error() string { return fmt.Sprintf("archive extraction failed: %v", e.Cause) }
func (e *ArchiveError) Unwrap() error { return e.Cause }

// Installer fetches a release asset and promotes it into a version slot.
type Installer struct {
	layout *layout.Layout
	client *release.Client
	log    *zerolog.Logger
}

// New builds an Installer bound to a Layout and a ReleaseClient.
func New(l *layout.Layout, client *release.Client, log *zerolog.Logger) *Installer {
	if log == nil {
		discard := zerolog.Nop()
		log = &discard
	}
	return &Installer{layout: l, client: client, log: log}
}

// Install fetches asset for version and promotes the extracted binaries
// to layout.SlotDir(version). Progress is forwarded from the download.
// The staging directory is always removed, success or failure, and no
// directory other than the final slot is left behind on success.
func (in *Installer) Install(ctx context.Context, version string, asset *release.Asset, onProgress release.ProgressFunc) (err error) {
	if sanErr := layout.SanitizeVersionName(version); sanErr != nil {
		return sanErr
	}

	stagingDir, sufErr := randomSuffix()
	if sufErr != nil {
		return sufErr
	}
	stagingDir = in.layout.StagingDir(stagingDir)

	if err := stage.New(stagingDir); err != nil {
		return err
	}
	defer func() {
		if rmErr := stage.Remove(stagingDir); rmErr != nil && err == nil {
			err = rmErr
		}
	}()

	format, err := archive.DetectFormat(asset.Name)
	if err != nil {
		return err
	}

	archivePath := filepath.Join(stagingDir, "archive"+archiveSuffix(asset.Name))
	if err := in.downloadAsset(ctx, asset, archivePath, onProgress); err != nil {
		return &DownloadError{Cause: err}
	}

	unpackedDir := filepath.Join(stagingDir, "unpacked")
	if err := archive.Extract(archivePath, format, unpackedDir); err != nil {
		return &ArchiveError{Cause: err}
	}

	if err := verifyTargetBinaries(unpackedDir); err != nil {
		return err
	}

	dest := in.layout.SlotDir(version)
	if err := stage.Promote(unpackedDir, dest); err != nil {
		return mapPromoteErr(err, version)
	}

	return nil
}

func (in *Installer) downloadAsset(ctx context.Context, asset *release.Asset, dest string, onProgress release.ProgressFunc) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	return in.client.Download(ctx, asset, f, onProgress)
}

func verifyTargetBinaries(unpackedDir string) error {
	for _, name := range layout.TargetBinaries {
		info, err := os.Stat(filepath.Join(unpackedDir, name))
		if err != nil || !info.Mode().IsRegular() {
			return &IncompleteAssetError{Name: name}
		}
	}
	return nil
}

func mapPromoteErr(err error, version string) error {
	var exists *stage.AlreadyExistsError
	if errors.As(err, &exists) {
		return &AlreadyInstalledError{Version: version}
	}
	return err
}

func randomSuffix() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func archiveSuffix(name string) string {
	for _, ext := range []string{".tar.gz", ".tgz", ".tar", ".zip"} {
		if len(name) >= len(ext) && name[len(name)-len(ext):] == ext {
			return ext
		}
	}
	return ""
}
