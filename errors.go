package deltapkg

import (
	"errors"
	"fmt"

	"github.com/meigma/deltapkg/internal/checksum"
	"github.com/meigma/deltapkg/internal/deltacodec"
)

// Configuration errors. An operation that returns one of these has not
// touched the filesystem.
var (
	// ErrVersionOrder is returned when the base package is newer than the
	// target package.
	ErrVersionOrder = errors.New("deltapkg: base package is newer than target package")

	// ErrOutputExists is returned when the output archive already exists.
	ErrOutputExists = errors.New("deltapkg: output already exists")

	// ErrPackageNotFound is returned when an input archive does not exist.
	ErrPackageNotFound = errors.New("deltapkg: package not found")

	// ErrInvalidPackageName is returned when a version cannot be parsed
	// from a package file name.
	ErrInvalidPackageName = errors.New("deltapkg: invalid package file name")
)

// Operation errors.
var (
	// ErrDiff is returned when no delta strategy could encode a file.
	ErrDiff = errors.New("deltapkg: diff failed")

	// ErrDecode is returned when a delta artifact cannot be decoded.
	ErrDecode = errors.New("deltapkg: decode failed")

	// ErrChecksumMismatch is returned when a reconstructed file does not
	// match its sidecar record.
	ErrChecksumMismatch = errors.New("deltapkg: checksum mismatch")

	// ErrEmptyArtifact is reported when a delta strategy produces no bytes
	// for a changed file.
	ErrEmptyArtifact = errors.New("deltapkg: empty delta artifact")

	// ErrBaseFileMissing is returned when the delta marks a file unchanged
	// but the base package does not contain it.
	ErrBaseFileMissing = errors.New("deltapkg: base file missing")
)

// Errors re-exported from internal packages.
var (
	// ErrMalformedRecord is returned when a sidecar cannot be parsed.
	ErrMalformedRecord = checksum.ErrMalformedRecord

	// ErrEmptyRecord is returned when a sidecar that must hold a record is
	// empty.
	ErrEmptyRecord = checksum.ErrEmptyRecord
)

// ChecksumError describes a reconstructed file that failed verification.
type ChecksumError struct {
	// Path is the package-relative path of the file.
	Path string
	// Field is "size" or "sha1".
	Field    string
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("deltapkg: checksum mismatch for %s: %s expected %s, got %s", e.Path, e.Field, e.Expected, e.Actual)
}

// Unwrap makes ChecksumError match ErrChecksumMismatch.
func (e *ChecksumError) Unwrap() error {
	return ErrChecksumMismatch
}

// DecodeError describes a delta artifact the codec rejected.
type DecodeError struct {
	Path     string
	Strategy deltacodec.Strategy
	Status   deltacodec.Status
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("deltapkg: decode %s (%s): %s: %v", e.Path, e.Strategy, e.Status, e.Err)
}

// Unwrap returns both ErrDecode and the codec error.
func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}

// DiffError describes a file for which every delta strategy failed.
type DiffError struct {
	Path string
	// Attempts holds the result of each strategy tried, in order.
	Attempts []deltacodec.Result
}

func (e *DiffError) Error() string {
	msg := "deltapkg: diff " + e.Path
	for _, a := range e.Attempts {
		msg += fmt.Sprintf("; %s: %s", a.Strategy, a.Status)
		if a.Err != nil {
			msg += fmt.Sprintf(" (%v)", a.Err)
		}
	}
	return msg
}

// Unwrap makes DiffError match ErrDiff.
func (e *DiffError) Unwrap() error {
	return ErrDiff
}
