package versionmanager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/edgeandnode/ampup/internal/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *layout.Layout) {
	t.Helper()
	l, err := layout.Resolve(layout.WithInstallDir(t.TempDir()), layout.WithOSOverride("linux"), layout.WithArchOverride("x86_64"))
	require.NoError(t, err)
	return New(l), l
}

func installFakeSlot(t *testing.T, l *layout.Layout, version string) {
	t.Helper()
	dir := l.SlotDir(version)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range layout.TargetBinaries {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("binary"), 0o755))
	}
}

func TestListOrderedAndEmpty(t *testing.T) {
	m, l := newTestManager(t)

	entries, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, entries)

	installFakeSlot(t, l, "v1.3.0")
	installFakeSlot(t, l, "v1.2.3")

	entries, err = m.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "v1.2.3", entries[0].Version)
	assert.Equal(t, "v1.3.0", entries[1].Version)
}

func TestActivateThenListMarksActive(t *testing.T) {
	m, l := newTestManager(t)
	installFakeSlot(t, l, "v1.2.3")

	require.NoError(t, m.Activate("v1.2.3"))

	entries, err := m.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Active)

	active, err := m.Active()
	require.NoError(t, err)
	assert.Equal(t, "v1.2.3", active)

	for _, name := range layout.TargetBinaries {
		target, err := os.Readlink(l.BinPath(name))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(l.SlotDir("v1.2.3"), name), target)
	}
}

func TestActivateNotInstalled(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.Activate("v9.9.9")
	var notInstalled *NotInstalledError
	require.ErrorAs(t, err, &notInstalled)
}

func TestActivateIsIdempotent(t *testing.T) {
	m, l := newTestManager(t)
	installFakeSlot(t, l, "v1.2.3")

	require.NoError(t, m.Activate("v1.2.3"))
	require.NoError(t, m.Activate("v1.2.3"))

	active, err := m.Active()
	require.NoError(t, err)
	assert.Equal(t, "v1.2.3", active)
}

func TestSwitchActivation(t *testing.T) {
	m, l := newTestManager(t)
	installFakeSlot(t, l, "v1.2.3")
	installFakeSlot(t, l, "v1.3.0")

	require.NoError(t, m.Activate("v1.2.3"))
	require.NoError(t, m.Activate("v1.3.0"))

	active, err := m.Active()
	require.NoError(t, err)
	assert.Equal(t, "v1.3.0", active)

	for _, name := range layout.TargetBinaries {
		target, err := os.Readlink(l.BinPath(name))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(l.SlotDir("v1.3.0"), name), target)
	}
}

func TestUninstallActiveDeactivatesFirst(t *testing.T) {
	m, l := newTestManager(t)
	installFakeSlot(t, l, "v1.3.0")
	require.NoError(t, os.MkdirAll(l.BinDir(), 0o755))
	require.NoError(t, os.WriteFile(l.ManagerPath(), []byte("ampup"), 0o755))
	require.NoError(t, m.Activate("v1.3.0"))

	require.NoError(t, m.Uninstall("v1.3.0"))

	_, err := os.Stat(l.SlotDir("v1.3.0"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(l.VersionMarkerPath())
	assert.True(t, os.IsNotExist(err))
	for _, name := range layout.TargetBinaries {
		_, err := os.Lstat(l.BinPath(name))
		assert.True(t, os.IsNotExist(err))
	}
	_, err = os.Stat(l.ManagerPath())
	assert.NoError(t, err, "bin/ampup must survive uninstall")
}

func TestUninstallAbsentIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Uninstall("v9.9.9"))
	require.NoError(t, m.Uninstall("v9.9.9"))
}

func TestCorruptedMarkerReadsAsNoActiveVersion(t *testing.T) {
	m, l := newTestManager(t)
	installFakeSlot(t, l, "v1.2.3")
	require.NoError(t, os.WriteFile(l.VersionMarkerPath(), []byte{0xff, 0x00, 0xfe}, 0o644))

	active, err := m.Active()
	require.NoError(t, err)
	assert.Equal(t, "", active)
}

func TestStaleMarkerReadsAsNoActiveVersion(t *testing.T) {
	m, l := newTestManager(t)
	require.NoError(t, os.WriteFile(l.VersionMarkerPath(), []byte("v9.9.9\n"), 0o644))

	active, err := m.Active()
	require.NoError(t, err)
	assert.Equal(t, "", active)
}
