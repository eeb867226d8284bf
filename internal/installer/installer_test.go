package installer

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/edgeandnode/ampup/internal/layout"
	"github.com/edgeandnode/ampup/internal/release"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTarGz(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func newTestLayout(t *testing.T) *layout.Layout {
	t.Helper()
	l, err := layout.Resolve(layout.WithInstallDir(t.TempDir()), layout.WithOSOverride("linux"), layout.WithArchOverride("x86_64"))
	require.NoError(t, err)
	return l
}

func TestInstallHappyPath(t *testing.T) {
	payload := buildTarGz(t, map[string]string{
		"ampd":   "ampd-binary",
		"ampctl": "ampctl-binary",
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	l := newTestLayout(t)
	client := release.NewClient(release.Config{Repo: "acme/amp", APIBase: srv.URL})
	in := New(l, client, nil)

	asset := &release.Asset{Name: "amp-linux-x86_64.tar.gz", DownloadURL: srv.URL + "/asset"}
	err := in.Install(context.Background(), "v1.2.3", asset, nil)
	require.NoError(t, err)

	slot := l.SlotDir("v1.2.3")
	for _, name := range layout.TargetBinaries {
		info, statErr := os.Stat(filepath.Join(slot, name))
		require.NoError(t, statErr)
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	}

	entries, err := os.ReadDir(l.VersionsDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no staging directory should remain")
}

func TestInstallIncompleteAssetLeavesNoSlot(t *testing.T) {
	payload := buildTarGz(t, map[string]string{
		"ampd": "ampd-binary",
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	l := newTestLayout(t)
	client := release.NewClient(release.Config{Repo: "acme/amp", APIBase: srv.URL})
	in := New(l, client, nil)

	asset := &release.Asset{Name: "amp-linux-x86_64.tar.gz", DownloadURL: srv.URL + "/asset"}
	err := in.Install(context.Background(), "v1.2.3", asset, nil)

	var incomplete *IncompleteAssetError
	require.ErrorAs(t, err, &incomplete)

	_, statErr := os.Stat(l.SlotDir("v1.2.3"))
	assert.True(t, os.IsNotExist(statErr))

	entries, _ := os.ReadDir(l.VersionsDir())
	assert.Len(t, entries, 0, "staging must be cleaned up on failure")
}

func TestInstallAlreadyExistingSlotFails(t *testing.T) {
	payload := buildTarGz(t, map[string]string{"ampd": "a", "ampctl": "b"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write(payload) }))
	t.Cleanup(srv.Close)

	l := newTestLayout(t)
	require.NoError(t, os.MkdirAll(l.SlotDir("v1.2.3"), 0o755))

	client := release.NewClient(release.Config{Repo: "acme/amp", APIBase: srv.URL})
	in := New(l, client, nil)

	asset := &release.Asset{Name: "amp-linux-x86_64.tar.gz", DownloadURL: srv.URL + "/asset"}
	err := in.Install(context.Background(), "v1.2.3", asset, nil)

	var already *AlreadyInstalledError
	require.ErrorAs(t, err, &already)
}
