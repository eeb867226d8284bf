package cmdline

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

	"github.com/edgeandnode/ampup/internal/release"
	"github.com/edgeandnode/ampup/internal/versionmanager"
	"github.com/rs/zerolog"
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

func newTestApp(installDir, apiBase string) *app {
	return &app{
		installDir:      installDir,
		osOverride:      "linux",
		archOverride:    "x86_64",
		repo:            "acme/amp",
		apiBaseOverride: apiBase,
		pathEditor:      NoopPathEditor{Out: os.Stdout},
		versionPrompt:   FirstMatchPrompt{},
		log:             testLogger(),
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func fakeReleaseServer(t *testing.T, tag string, payload []byte) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()

	releaseBody := func() []byte {
		return []byte(`{"tag_name":"` + tag + `","assets":[{"name":"amp-linux-x86_64.tar.gz","browser_download_url":"` + srv.URL + `/asset"}]}`)
	}

	mux.HandleFunc("/repos/acme/amp/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Write(releaseBody())
	})
	mux.HandleFunc("/repos/acme/amp/releases/tags/", func(w http.ResponseWriter, r *http.Request) {
		requested := r.URL.Path[len("/repos/acme/amp/releases/tags/"):]
		if requested != tag {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(releaseBody())
	})
	mux.HandleFunc("/asset", func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFreshInstallOfLatestRelease(t *testing.T) {
	payload := buildTarGz(t, map[string]string{"ampd": "d", "ampctl": "c"})
	srv := fakeReleaseServer(t, "v1.2.3", payload)

	installDir := t.TempDir()
	a := newTestApp(installDir, srv.URL)

	cmd := newInstallCommand(a)
	cmd.SetContext(context.Background())
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.RunE(cmd, nil))

	l, err := a.layout()
	require.NoError(t, err)

	vm := versionmanager.New(l)
	active, err := vm.Active()
	require.NoError(t, err)
	assert.Equal(t, "v1.2.3", active)

	for _, name := range []string{"ampd", "ampctl"} {
		_, err := os.Readlink(l.BinPath(name))
		require.NoError(t, err)
	}
}

func TestSwitchBetweenInstalledVersions(t *testing.T) {
	installDir := t.TempDir()
	a := newTestApp(installDir, "")

	l, err := a.layout()
	require.NoError(t, err)
	vm := versionmanager.New(l)

	for _, v := range []string{"v1.2.3", "v1.3.0"} {
		dir := l.SlotDir(v)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "ampd"), []byte("d"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "ampctl"), []byte("c"), 0o755))
	}
	require.NoError(t, vm.Activate("v1.2.3"))

	useCmd := newUseCommand(a)
	useCmd.SetContext(context.Background())
	var out bytes.Buffer
	useCmd.SetOut(&out)
	require.NoError(t, useCmd.RunE(useCmd, []string{"v1.3.0"}))

	active, err := vm.Active()
	require.NoError(t, err)
	assert.Equal(t, "v1.3.0", active)
}

func TestUninstallActiveViaCommand(t *testing.T) {
	installDir := t.TempDir()
	a := newTestApp(installDir, "")

	l, err := a.layout()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(l.SlotDir("v1.3.0"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(l.SlotDir("v1.3.0"), "ampd"), []byte("d"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(l.SlotDir("v1.3.0"), "ampctl"), []byte("c"), 0o755))
	require.NoError(t, os.MkdirAll(l.BinDir(), 0o755))
	require.NoError(t, os.WriteFile(l.ManagerPath(), []byte("ampup"), 0o755))
	require.NoError(t, versionmanager.New(l).Activate("v1.3.0"))

	cmd := newUninstallCommand(a)
	cmd.SetContext(context.Background())
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, cmd.RunE(cmd, []string{"v1.3.0"}))

	entries, err := versionmanager.New(l).List()
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, statErr := os.Stat(l.ManagerPath())
	assert.NoError(t, statErr)
}

func TestUninstallAbsentVersionWarnsButSucceeds(t *testing.T) {
	installDir := t.TempDir()
	a := newTestApp(installDir, "")

	cmd := newUninstallCommand(a)
	cmd.SetContext(context.Background())
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	require.NoError(t, cmd.RunE(cmd, []string{"v9.9.9"}))
	assert.Contains(t, errOut.String(), "not installed")
}

func TestSourceRefFromFlags(t *testing.T) {
	ref, err := sourceRefFromFlags("acme/amp", "main", "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, release.SourceBranch, ref.Kind)

	ref, err = sourceRefFromFlags("acme/amp", "", "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, release.SourceDefault, ref.Kind)

	ref, err = sourceRefFromFlags("acme/amp", "", "", "", 42)
	require.NoError(t, err)
	assert.Equal(t, release.SourcePR, ref.Kind)
	assert.Equal(t, 42, ref.PR)
}

func TestFirstMatchPromptPrefersActive(t *testing.T) {
	entries := []versionmanager.Entry{
		{Version: "v1.0.0"},
		{Version: "v1.1.0", Active: true},
	}
	chosen, err := FirstMatchPrompt{}.Choose(entries)
	require.NoError(t, err)
	assert.Equal(t, "v1.1.0", chosen)
}

func TestFirstMatchPromptFailsWhenNothingInstalled(t *testing.T) {
	_, err := FirstMatchPrompt{}.Choose(nil)
	require.Error(t, err)
}
