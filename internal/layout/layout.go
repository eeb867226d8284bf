// Package layout resolves the ampup install root and the fixed
// directory shape beneath it, and exposes the platform/arch pair
// every other component keys its behavior on.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/edgeandnode/ampup/internal/platform"
)

// TargetBinaries are the companion executables every version slot must contain.
var TargetBinaries = []string{"ampd", "ampctl"}

// ManagerBinary is the name of ampup's own executable inside bin/.
const ManagerBinary = "ampup"

// versionMarker is the file beneath the root naming the active slot.
const versionMarker = ".version"

// ConfigError reports a Layout that could not resolve an install root.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("could not resolve install root: %s", e.Reason)
}

// InvalidVersionNameError reports a version identifier unsafe to use as a path component.
type InvalidVersionNameError struct {
	Name string
}

func (e *InvalidVersionNameError) Error() string {
	return fmt.Sprintf("invalid version name %q: must not contain path separators or start with a dot", e.Name)
}

// Layout is the resolved install root plus the detected platform/arch pair.
// It performs no I/O beyond reading environment variables at construction.
type Layout struct {
	root string
	os   platform.OS
	arch platform.Arch
}

// Option customizes Resolve.
type Option func(*resolveConfig)

type resolveConfig struct {
	installDir  string
	osOverride  string
	archOverride string
	env         func(string) (string, bool)
}

// WithInstallDir sets the --install-dir flag value, which takes priority
// over every environment-derived root.
func WithInstallDir(dir string) Option {
	return func(c *resolveConfig) { c.installDir = dir }
}

// WithOSOverride sets an explicit --platform override, still validated
// against the supported matrix.
func WithOSOverride(os string) Option {
	return func(c *resolveConfig) { c.osOverride = os }
}

// WithArchOverride sets an explicit --arch override, still validated
// against the supported matrix.
func WithArchOverride(arch string) Option {
	return func(c *resolveConfig) { c.archOverride = arch }
}

// withEnv is test-only: it substitutes os.LookupEnv with a fake.
func withEnv(fn func(string) (string, bool)) Option {
	return func(c *resolveConfig) { c.env = fn }
}

// Resolve computes the install root in priority order — --install-dir,
// $AMP_DIR, $XDG_CONFIG_HOME/.amp, $HOME/.amp — and detects platform/arch,
// applying any overrides. It performs no filesystem I/O.
func Resolve(opts ...Option) (*Layout, error) {
	cfg := resolveConfig{env: lookupEnv}
	for _, opt := range opts {
		opt(&cfg)
	}

	root, err := resolveRoot(cfg)
	if err != nil {
		return nil, err
	}

	detectedOS, err := resolveOS(cfg)
	if err != nil {
		return nil, err
	}

	detectedArch, err := resolveArch(cfg)
	if err != nil {
		return nil, err
	}

	return &Layout{root: root, os: detectedOS, arch: detectedArch}, nil
}

func lookupEnv(key string) (string, bool) { return os.LookupEnv(key) }

func resolveRoot(cfg resolveConfig) (string, error) {
	if cfg.installDir != "" {
		return cfg.installDir, nil
	}
	if v, ok := cfg.env("AMP_DIR"); ok && v != "" {
		return v, nil
	}
	if v, ok := cfg.env("XDG_CONFIG_HOME"); ok && v != "" {
		return filepath.Join(v, ".amp"), nil
	}
	if v, ok := cfg.env("HOME"); ok && v != "" {
		return filepath.Join(v, ".amp"), nil
	}
	return "", &ConfigError{Reason: "none of --install-dir, $AMP_DIR, $XDG_CONFIG_HOME, $HOME are set"}
}

func resolveOS(cfg resolveConfig) (platform.OS, error) {
	if cfg.osOverride != "" {
		return platform.ParseOS(cfg.osOverride)
	}
	return platform.DetectOS()
}

func resolveArch(cfg resolveConfig) (platform.Arch, error) {
	if cfg.archOverride != "" {
		return platform.ParseArch(cfg.archOverride)
	}
	return platform.DetectArch()
}

// Root returns the resolved install root R.
func (l *Layout) Root() string { return l.root }

// OS returns the detected or overridden operating system.
func (l *Layout) OS() platform.OS { return l.os }

// Arch returns the detected or overridden architecture.
func (l *Layout) Arch() platform.Arch { return l.arch }

// AssetSuffix returns the "<os>-<arch>" token asset names are matched against.
func (l *Layout) AssetSuffix() string { return platform.AssetSuffix(l.os, l.arch) }

// BinDir returns R/bin, the directory on PATH.
func (l *Layout) BinDir() string { return filepath.Join(l.root, "bin") }

// VersionsDir returns R/versions, the parent of every slot.
func (l *Layout) VersionsDir() string { return filepath.Join(l.root, "versions") }

// SlotDir returns R/versions/<version>.
func (l *Layout) SlotDir(version string) string { return filepath.Join(l.VersionsDir(), version) }

// BinPath returns R/bin/<name>.
func (l *Layout) BinPath(name string) string { return filepath.Join(l.BinDir(), name) }

// ManagerPath returns R/bin/ampup, the manager's own executable path.
func (l *Layout) ManagerPath() string { return l.BinPath(ManagerBinary) }

// VersionMarkerPath returns R/.version.
func (l *Layout) VersionMarkerPath() string { return filepath.Join(l.root, versionMarker) }

// StagingDir returns a staging directory name under R/versions built
// from the caller-supplied random suffix. It does not create anything.
func (l *Layout) StagingDir(suffix string) string {
	return filepath.Join(l.VersionsDir(), ".staging-"+suffix)
}

// SanitizeVersionName validates a version identifier is safe to use as a
// single path component: no path separators, no leading dot.
func SanitizeVersionName(name string) error {
	if name == "" {
		return &InvalidVersionNameError{Name: name}
	}
	if name != filepath.Base(name) {
		return &InvalidVersionNameError{Name: name}
	}
	if strings.HasPrefix(name, ".") {
		return &InvalidVersionNameError{Name: name}
	}
	if name == "." || name == ".." {
		return &InvalidVersionNameError{Name: name}
	}
	return nil
}
