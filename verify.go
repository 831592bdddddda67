package deltapkg

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/meigma/deltapkg/internal/checksum"
)

// verify checks the reconstructed file at path against the checksum record
// in sidecarPath. Size is compared before the digest.
func (b *Builder) verify(rel, sidecarPath, path string) error {
	expected, err := checksum.ReadFile(sidecarPath)
	if err != nil {
		return fmt.Errorf("read checksum for %s: %w", rel, err)
	}
	actual, err := checksum.FromFile(path, expected.Name)
	if err != nil {
		return fmt.Errorf("checksum %s: %w", rel, err)
	}

	if expected.Matches(actual) {
		return nil
	}

	mismatch := &ChecksumError{
		Path:     rel,
		Field:    "sha1",
		Expected: expected.HexSHA1(),
		Actual:   actual.HexSHA1(),
	}
	if expected.Size != actual.Size {
		mismatch.Field = "size"
		mismatch.Expected = strconv.FormatUint(expected.Size, 10)
		mismatch.Actual = strconv.FormatUint(actual.Size, 10)
	}

	b.recorder.IncChecksumMismatch()
	b.logger.Warn("checksum mismatch",
		slog.String("path", rel),
		slog.String("field", mismatch.Field),
		slog.String("expected", mismatch.Expected),
		slog.String("actual", mismatch.Actual))
	return mismatch
}
