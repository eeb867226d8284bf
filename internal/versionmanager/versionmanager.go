// Package versionmanager owns the on-disk version lifecycle: listing
// installed slots, activating one (symlink swap + marker write), and
// uninstalling.
package versionmanager

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"unicode/utf8"

	"github.com/edgeandnode/ampup/internal/layout"
	"golang.org/x/sys/unix"
)

// NotInstalledError reports an activate/use of a version with no slot.
type NotInstalledError struct {
	Version string
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("version %q is not installed", e.Version)
}

// Entry is one version known to VersionManager.
type Entry struct {
	Version string
	Active  bool
}

// Manager mediates every read/write of versions/, bin/, and .version.
type Manager struct {
	layout *layout.Layout
}

// New builds a Manager bound to a Layout.
func New(l *layout.Layout) *Manager {
	return &Manager{layout: l}
}

// List returns every installed version, sorted lexically for a stable
// order across calls, each tagged with whether it is currently active.
func (m *Manager) List() ([]Entry, error) {
	versionsDir := m.layout.VersionsDir()
	dirEntries, err := os.ReadDir(versionsDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	active, _ := m.Active()

	var names []string
	for _, de := range dirEntries {
		if !de.IsDir() || isStagingName(de.Name()) {
			continue
		}
		if !hasAnyTargetBinary(filepath.Join(versionsDir, de.Name())) {
			continue
		}
		names = append(names, de.Name())
	}
	sort.Strings(names)

	entries := make([]Entry, len(names))
	for i, name := range names {
		entries[i] = Entry{Version: name, Active: name == active}
	}
	return entries, nil
}

func isStagingName(name string) bool {
	return len(name) > 0 && name[0] == '.'
}

func hasAnyTargetBinary(slotDir string) bool {
	for _, name := range layout.TargetBinaries {
		if info, err := os.Stat(filepath.Join(slotDir, name)); err == nil && info.Mode().IsRegular() {
			return true
		}
	}
	return false
}

// IsInstalled reports whether versions/<V> exists as a directory; its
// contents are not inspected.
func (m *Manager) IsInstalled(version string) bool {
	info, err := os.Stat(m.layout.SlotDir(version))
	return err == nil && info.IsDir()
}

// Active returns the currently active version name, or "" if none is
// active. A marker naming a non-existent slot is treated as no active
// version, per the documented "treat as no-active for reads" policy.
func (m *Manager) Active() (string, error) {
	data, err := os.ReadFile(m.layout.VersionMarkerPath())
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	name := sanitizeMarkerContents(data)
	if name == "" || !m.IsInstalled(name) {
		return "", nil
	}
	return name, nil
}

// sanitizeMarkerContents trims the marker file and rejects contents
// that aren't a clean single-line version name, including non-UTF-8
// bytes, per the documented "corrupted marker reads as no active
// version" resolution.
func sanitizeMarkerContents(data []byte) string {
	if !utf8.Valid(data) {
		return ""
	}
	for _, b := range data {
		if b == 0 {
			return ""
		}
	}
	s := string(data)
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	s = trimSpace(s)
	if layout.SanitizeVersionName(s) != nil {
		return ""
	}
	return s
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}

// Activate makes version the active one: it creates R/bin/<name> links
// for every target binary (symlink, falling back to a hardlink when
// the filesystem rejects symlinks) pointing into versions/<version>/,
// then atomically writes .version. Links are created before the
// marker so a reader observing .version=V always sees links resolved
// into versions/V/.
func (m *Manager) Activate(version string) error {
	if !m.IsInstalled(version) {
		return &NotInstalledError{Version: version}
	}

	if err := os.MkdirAll(m.layout.BinDir(), 0o755); err != nil {
		return err
	}

	for _, name := range layout.TargetBinaries {
		linkPath := m.layout.BinPath(name)
		target := filepath.Join(m.layout.SlotDir(version), name)

		if err := os.Remove(linkPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := linkInto(target, linkPath); err != nil {
			return err
		}
	}

	return m.writeMarker(version)
}

// linkInto creates linkPath pointing at target, preferring a symlink
// and falling back to a hardlink when the filesystem doesn't support
// symlinks (e.g. noexec/case-insensitive mounts rejecting with EPERM
// or ENOTSUP). No further fallback is attempted.
func linkInto(target, linkPath string) error {
	err := os.Symlink(target, linkPath)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return err
	}

	var errno syscall.Errno
	if !errors.As(linkErr.Err, &errno) {
		return err
	}
	if errno != unix.EPERM && errno != unix.ENOTSUP && errno != unix.EINVAL {
		return err
	}

	return os.Link(target, linkPath)
}

// writeMarker stores version in .version atomically: write to a
// sibling temp file, then rename over the marker.
func (m *Manager) writeMarker(version string) error {
	markerPath := m.layout.VersionMarkerPath()
	tmpPath := markerPath + ".tmp"

	if err := os.WriteFile(tmpPath, []byte(version+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, markerPath)
}

// clearMarker removes .version; absence is not an error.
func (m *Manager) clearMarker() error {
	err := os.Remove(m.layout.VersionMarkerPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Uninstall removes versions/<version>, deactivating first if it is
// the active version. Uninstalling an absent version is not an error.
func (m *Manager) Uninstall(version string) error {
	if !m.IsInstalled(version) {
		return nil
	}

	active, err := m.Active()
	if err != nil {
		return err
	}
	if active == version {
		if err := m.deactivate(); err != nil {
			return err
		}
	}

	return os.RemoveAll(m.layout.SlotDir(version))
}

// deactivate removes the target binary links from bin/ (leaving
// bin/ampup) and clears the active marker.
func (m *Manager) deactivate() error {
	for _, name := range layout.TargetBinaries {
		if err := os.Remove(m.layout.BinPath(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return m.clearMarker()
}

// Use is an alias for Activate, matching the command-level vocabulary.
func (m *Manager) Use(version string) error { return m.Activate(version) }
