// Package deltacodec encodes and decodes single-file deltas.
//
// A file in a delta package is represented by exactly one Strategy. The
// set is closed: Unchanged (zero-length sentinel), Structural (bsdiff,
// tuned for executables), ByteLevel (zstd with the old file as a raw
// dictionary) and Verbatim (the new bytes as-is). Every encode or decode
// attempt reports an explicit Status instead of failing through panics, so
// callers can walk an attempt list and fall back deterministically.
package deltacodec

import (
	"slices"
	"strings"
)

// Strategy identifies how one file is represented in a delta package.
type Strategy uint8

const (
	Unchanged Strategy = iota
	Structural
	ByteLevel
	Verbatim
)

// Artifact suffixes.
const (
	SuffixDiff    = ".diff"
	SuffixBsdiff  = ".bsdiff"
	SuffixSidecar = ".shasum"
)

// PlaceholderContent is written to the legacy .diff next to a .bsdiff. It
// is not a valid structural delta.
const PlaceholderContent = "1"

// DefaultStructuralExtensions lists the extensions that get a structural
// delta attempt.
var DefaultStructuralExtensions = []string{".exe", ".dll", ".node"}

func (s Strategy) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case Structural:
		return "structural"
	case ByteLevel:
		return "byte-level"
	case Verbatim:
		return "verbatim"
	default:
		return "unknown"
	}
}

// Suffix returns the artifact suffix for s. Unchanged files use the
// structural suffix for their zero-length sentinel.
func (s Strategy) Suffix() string {
	switch s {
	case Unchanged, Structural:
		return SuffixDiff
	case ByteLevel:
		return SuffixBsdiff
	default:
		return ""
	}
}

// IsStructuralExt reports whether ext is in exts, ignoring case.
func IsStructuralExt(ext string, exts []string) bool {
	return slices.ContainsFunc(exts, func(e string) bool {
		return strings.EqualFold(e, ext)
	})
}

// Plan returns the ordered strategies to attempt for a file present in both
// packages. Identical files are Unchanged. Changed files try Structural
// first when ext is a structural extension, then ByteLevel.
func Plan(ext string, equal bool, structuralExts []string) []Strategy {
	if equal {
		return []Strategy{Unchanged}
	}
	if IsStructuralExt(ext, structuralExts) {
		return []Strategy{Structural, ByteLevel}
	}
	return []Strategy{ByteLevel}
}

// StrategyForArtifact maps a delta artifact name to the strategy that
// decodes it. Names without a diff suffix are Verbatim.
func StrategyForArtifact(name string) Strategy {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, SuffixBsdiff):
		return ByteLevel
	case strings.HasSuffix(lower, SuffixDiff):
		return Structural
	default:
		return Verbatim
	}
}

// TrimArtifactSuffix strips a trailing .diff or .bsdiff, ignoring case.
func TrimArtifactSuffix(name string) string {
	lower := strings.ToLower(name)
	for _, suffix := range []string{SuffixBsdiff, SuffixDiff} {
		if strings.HasSuffix(lower, suffix) {
			return name[:len(name)-len(suffix)]
		}
	}
	return name
}
