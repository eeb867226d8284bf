package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTarGz(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
}

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	defer zw.Close()

	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
}

func TestDetectFormat(t *testing.T) {
	cases := map[string]Format{
		"amp-linux-x86_64.tar.gz": FormatTarGz,
		"amp-linux-x86_64.tgz":    FormatTarGz,
		"amp-linux-x86_64.tar":    FormatTar,
		"amp-linux-x86_64.zip":    FormatZip,
	}
	for name, want := range cases {
		got, err := DetectFormat(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}

	_, err := DetectFormat("amp-linux-x86_64.rar")
	var unrecognized *UnrecognizedFormatError
	assert.ErrorAs(t, err, &unrecognized)
}

func TestExtractTarGzFlattensTopLevelDir(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "asset.tar.gz")
	writeTarGz(t, archivePath, map[string]string{
		"amp-v1.2.3/ampd":   "ampd-binary",
		"amp-v1.2.3/ampctl": "ampctl-binary",
	})

	dest := filepath.Join(dir, "unpacked")
	require.NoError(t, Extract(archivePath, FormatTarGz, dest))

	assertExecutableFile(t, filepath.Join(dest, "ampd"), "ampd-binary")
	assertExecutableFile(t, filepath.Join(dest, "ampctl"), "ampctl-binary")
}

func TestExtractTarGzTopLevelFiles(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "asset.tar.gz")
	writeTarGz(t, archivePath, map[string]string{
		"ampd":   "ampd-binary",
		"ampctl": "ampctl-binary",
	})

	dest := filepath.Join(dir, "unpacked")
	require.NoError(t, Extract(archivePath, FormatTarGz, dest))

	assertExecutableFile(t, filepath.Join(dest, "ampd"), "ampd-binary")
	assertExecutableFile(t, filepath.Join(dest, "ampctl"), "ampctl-binary")
}

func TestExtractZipFlattensTopLevelDir(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "asset.zip")
	writeZip(t, archivePath, map[string]string{
		"amp-v1.2.3/ampd":   "ampd-binary",
		"amp-v1.2.3/ampctl": "ampctl-binary",
	})

	dest := filepath.Join(dir, "unpacked")
	require.NoError(t, Extract(archivePath, FormatZip, dest))

	assertExecutableFile(t, filepath.Join(dest, "ampd"), "ampd-binary")
	assertExecutableFile(t, filepath.Join(dest, "ampctl"), "ampctl-binary")
}

func TestExtractRejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.tar.gz")
	writeTarGz(t, archivePath, map[string]string{
		"../escape": "nope",
	})

	dest := filepath.Join(dir, "unpacked")
	err := Extract(archivePath, FormatTarGz, dest)
	require.Error(t, err)
	var malformed *MalformedArchiveError
	assert.ErrorAs(t, err, &malformed)
}

func assertExecutableFile(t *testing.T, path, wantContent string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, wantContent, string(got))
}
