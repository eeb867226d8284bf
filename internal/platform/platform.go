// Package platform detects the running operating system and CPU
// architecture and maps them onto the closed set ampup supports.
package platform

import (
	"fmt"
	"runtime"
)

// OS is one of the operating systems ampup can install onto.
type OS string

const (
	Linux  OS = "linux"
	Darwin OS = "darwin"
)

// Arch is one of the CPU architectures ampup can install onto.
type Arch string

const (
	X86_64  Arch = "x86_64"
	Aarch64 Arch = "aarch64"
)

// UnsupportedOSError reports a running or requested OS outside the closed set.
type UnsupportedOSError struct {
	Detected string
}

func (e *UnsupportedOSError) Error() string {
	return fmt.Sprintf("unsupported platform %q (supported: linux, darwin)", e.Detected)
}

// UnsupportedArchError reports a running or requested architecture outside the closed set.
type UnsupportedArchError struct {
	Detected string
}

func (e *UnsupportedArchError) Error() string {
	return fmt.Sprintf("unsupported architecture %q (supported: x86_64, aarch64)", e.Detected)
}

// DetectOS returns the OS ampup is currently running on.
func DetectOS() (OS, error) {
	return ParseOS(runtime.GOOS)
}

// DetectArch returns the CPU architecture ampup is currently running on.
func DetectArch() (Arch, error) {
	return ParseArch(runtime.GOARCH)
}

// ParseOS validates an OS override (e.g. from --platform), accepting
// both ampup's canonical names and the Go runtime spellings.
func ParseOS(s string) (OS, error) {
	switch s {
	case "linux":
		return Linux, nil
	case "darwin", "macos":
		return Darwin, nil
	default:
		return "", &UnsupportedOSError{Detected: s}
	}
}

// ParseArch validates an architecture override (e.g. from --arch),
// accepting both ampup's canonical names and the Go runtime spellings.
func ParseArch(s string) (Arch, error) {
	switch s {
	case "x86_64", "amd64":
		return X86_64, nil
	case "aarch64", "arm64":
		return Aarch64, nil
	default:
		return "", &UnsupportedArchError{Detected: s}
	}
}

// AssetSuffix is the "<os>-<arch>" token release assets are keyed on.
func AssetSuffix(os OS, arch Arch) string {
	return fmt.Sprintf("%s-%s", os, arch)
}
