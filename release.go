package deltapkg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const (
	packageExt  = ".nupkg"
	fullSuffix  = "-full"
	deltaSuffix = "-delta"
)

// ReleasePackage identifies a release archive on disk and its version.
type ReleasePackage struct {
	Version *semver.Version
	Path    string
}

// NewReleasePackage parses the version from a package file name of the
// form <id>-<version>[-full|-delta].nupkg.
func NewReleasePackage(path string) (ReleasePackage, error) {
	_, version, err := ParsePackageName(filepath.Base(path))
	if err != nil {
		return ReleasePackage{}, err
	}
	return ReleasePackage{Version: version, Path: path}, nil
}

// NewReleasePackageWithVersion pairs path with an explicit version.
func NewReleasePackageWithVersion(path, version string) (ReleasePackage, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return ReleasePackage{}, fmt.Errorf("parse version %q: %w", version, err)
	}
	return ReleasePackage{Version: v, Path: path}, nil
}

// ParsePackageName splits a package file name into its id and version.
func ParsePackageName(name string) (id string, version *semver.Version, err error) {
	if !strings.EqualFold(filepath.Ext(name), packageExt) {
		return "", nil, fmt.Errorf("%w: %s: missing %s extension", ErrInvalidPackageName, name, packageExt)
	}
	stem := name[:len(name)-len(packageExt)]
	lower := strings.ToLower(stem)
	switch {
	case strings.HasSuffix(lower, fullSuffix):
		stem = stem[:len(stem)-len(fullSuffix)]
	case strings.HasSuffix(lower, deltaSuffix):
		stem = stem[:len(stem)-len(deltaSuffix)]
	}

	for i := 0; i < len(stem)-1; i++ {
		if stem[i] != '-' || stem[i+1] < '0' || stem[i+1] > '9' {
			continue
		}
		v, parseErr := semver.NewVersion(stem[i+1:])
		if parseErr == nil && i > 0 {
			return stem[:i], v, nil
		}
	}
	return "", nil, fmt.Errorf("%w: %s: no version", ErrInvalidPackageName, name)
}

// IsDelta reports whether the file name marks a delta package.
func (p ReleasePackage) IsDelta() bool {
	name := strings.ToLower(filepath.Base(p.Path))
	return strings.HasSuffix(name, deltaSuffix+packageExt)
}

func (p ReleasePackage) String() string {
	if p.Version == nil {
		return p.Path
	}
	return fmt.Sprintf("%s (%s)", p.Path, p.Version)
}

// checkExists reports ErrPackageNotFound unless p names a regular file.
func (p ReleasePackage) checkExists(role string) error {
	if p.Path == "" {
		return fmt.Errorf("%w: %s package has no path", ErrPackageNotFound, role)
	}
	info, err := os.Stat(p.Path)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s package %s", ErrPackageNotFound, role, p.Path)
	}
	return nil
}

// checkOutput reports ErrOutputExists if something is already at path.
func checkOutput(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty output path", ErrOutputExists)
	}
	if _, err := os.Lstat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrOutputExists, path)
	}
	return nil
}
