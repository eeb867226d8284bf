// Package archive extracts the closed set of archive formats ampup
// release assets ship in: gzip-compressed tar, plain tar, and zip.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// execMode is applied to every extracted regular file so downloaded
// binaries are runnable regardless of what mode bits the archive recorded.
const execMode = 0o755

// Format is the closed set of archive containers Installer can unpack.
type Format int

const (
	FormatTarGz Format = iota
	FormatTar
	FormatZip
)

// UnrecognizedFormatError reports a file name without one of the
// recognized archive extensions.
type UnrecognizedFormatError struct {
	Name string
}

func (e *UnrecognizedFormatError) Error() string {
	return fmt.Sprintf("unrecognized archive format for %q (expected .tar.gz, .tgz, .tar, or .zip)", e.Name)
}

// MalformedArchiveError wraps a low-level decode failure.
type MalformedArchiveError struct {
	Cause error
}

func (e *MalformedArchiveError) Error() string { return fmt.Sprintf("malformed archive: %v", e.Cause) }
func (e *MalformedArchiveError) Unwrap() error { return e.Cause }

// DetectFormat maps an asset name to its Format by extension.
func DetectFormat(name string) (Format, error) {
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(name, ".tar"):
		return FormatTar, nil
	case strings.HasSuffix(name, ".zip"):
		return FormatZip, nil
	default:
		return 0, &UnrecognizedFormatError{Name: name}
	}
}

// Extract unpacks archivePath (in the given Format) into destDir.
//
// Both of the shapes an asset may use are flattened: every entry found
// directly at the archive root, or every entry found inside a single
// top-level directory, lands as a direct child of destDir. Regular
// files are written with execMode so extracted binaries are runnable.
func Extract(archivePath string, format Format, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	switch format {
	case FormatTarGz:
		return extractTarGz(archivePath, destDir)
	case FormatTar:
		return extractTar(archivePath, destDir)
	case FormatZip:
		return extractZip(archivePath, destDir)
	default:
		return fmt.Errorf("unknown archive format %d", format)
	}
}

func extractTarGz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return &MalformedArchiveError{Cause: err}
	}
	defer gz.Close()

	return extractTarReader(tar.NewReader(gz), destDir)
}

func extractTar(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	return extractTarReader(tar.NewReader(f), destDir)
}

// stripRoot computes the flattened destination path for a raw archive
// entry name. Whether the whole archive shares one top-level directory
// is decided once, from the first entry, and root/rootDecided carry
// that decision across the remaining calls.
func stripRoot(name string, root *string, rootDecided *bool) string {
	dirEntry := strings.HasSuffix(filepath.ToSlash(name), "/")
	name = filepath.ToSlash(filepath.Clean(name))
	parts := strings.SplitN(name, "/", 2)

	if !*rootDecided {
		*rootDecided = true
		switch {
		case len(parts) == 2 && parts[0] != "" && parts[0] != "..":
			*root = parts[0]
		case len(parts) == 1 && dirEntry && parts[0] != "." && parts[0] != "..":
			// the first entry is the top-level directory itself
			*root = parts[0]
		default:
			*root = ""
		}
	}

	if *root != "" && name == *root {
		return ""
	}
	if *root != "" && len(parts) == 2 && parts[0] == *root {
		return parts[1]
	}
	if *root != "" {
		// A later entry doesn't share the assumed root after all —
		// both shapes can't coexist in one well-formed asset, so fall
		// back to the entry's own name rather than guess further.
		return name
	}
	return name
}

func extractTarReader(tr *tar.Reader, destDir string) error {
	var root string
	var rootDecided bool

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &MalformedArchiveError{Cause: err}
		}

		rel := stripRoot(hdr.Name, &root, &rootDecided)
		if rel == "" || rel == "." {
			continue
		}
		target := filepath.Join(destDir, rel)
		if err := ensureWithinDest(destDir, target); err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := writeExtractedFile(target, tr); err != nil {
				return err
			}
		default:
			// symlinks and other special types are not part of the
			// supported asset shape; skip rather than fail the install.
		}
	}
}

func extractZip(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return &MalformedArchiveError{Cause: err}
	}
	defer zr.Close()

	var root string
	var rootDecided bool

	for _, f := range zr.File {
		rel := stripRoot(f.Name, &root, &rootDecided)
		if rel == "" || rel == "." {
			continue
		}
		target := filepath.Join(destDir, rel)
		if err := ensureWithinDest(destDir, target); err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return &MalformedArchiveError{Cause: err}
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			rc.Close()
			return err
		}
		err = writeExtractedFile(target, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeExtractedFile(target string, r io.Reader) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, execMode)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return err
	}
	return out.Chmod(execMode)
}

func ensureWithinDest(destDir, target string) error {
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return &MalformedArchiveError{Cause: fmt.Errorf("entry escapes destination: %s", target)}
	}
	return nil
}
