package deltacodec

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math/bits"
	"os"

	"github.com/gabstv/go-bsdiff/pkg/bsdiff"
	"github.com/gabstv/go-bsdiff/pkg/bspatch"
	"github.com/klauspost/compress/zstd"
)

const (
	// DefaultMaxStructuralSize bounds the inputs of a structural delta.
	// bsdiff holds both files and a suffix array in memory.
	DefaultMaxStructuralSize = 64 << 20

	// dictID tags byte-level frames that use the old file as dictionary.
	dictID uint32 = 0x44_4c_54_31

	// maxWindow is the largest window the zstd encoder accepts.
	maxWindow = 1 << 29
)

var (
	bsdiffMagic = []byte("BSDIFF40")
	zstdMagic   = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Codec encodes and decodes single-file deltas.
type Codec struct {
	maxStructuralSize int64
	level             zstd.EncoderLevel
}

// Option configures a Codec.
type Option func(*Codec)

// WithMaxStructuralSize sets the largest old or new file for which a
// structural delta is attempted. Larger files report StatusTooLarge.
// Zero or negative disables the limit.
func WithMaxStructuralSize(limit int64) Option {
	return func(c *Codec) {
		c.maxStructuralSize = limit
	}
}

// WithLevel sets the zstd level used for byte-level deltas.
func WithLevel(level zstd.EncoderLevel) Option {
	return func(c *Codec) {
		c.level = level
	}
}

// New creates a Codec.
func New(opts ...Option) *Codec {
	c := &Codec{
		maxStructuralSize: DefaultMaxStructuralSize,
		level:             zstd.SpeedBetterCompression,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode writes the delta that turns oldPath into newPath using strategy s.
// Unchanged writes nothing.
func (c *Codec) Encode(s Strategy, oldPath, newPath string, w io.Writer) Result {
	switch s {
	case Unchanged:
		return ok(s)
	case Verbatim:
		return c.encodeVerbatim(newPath, w)
	case Structural:
		return c.encodeStructural(oldPath, newPath, w)
	case ByteLevel:
		return c.encodeByteLevel(oldPath, newPath, w)
	default:
		return fail(s, StatusFailed, fmt.Errorf("%w: %d", ErrUnknownStrategy, s))
	}
}

// Decode reconstructs a file from basePath and the delta stream read from
// artifact, writing the result to w.
func (c *Codec) Decode(s Strategy, basePath string, artifact io.Reader, w io.Writer) Result {
	switch s {
	case Unchanged:
		return ok(s)
	case Verbatim:
		if _, err := io.Copy(w, artifact); err != nil {
			return fail(s, StatusIOError, err)
		}
		return ok(s)
	case Structural:
		return c.decodeStructural(basePath, artifact, w)
	case ByteLevel:
		return c.decodeByteLevel(basePath, artifact, w)
	default:
		return fail(s, StatusFailed, fmt.Errorf("%w: %d", ErrUnknownStrategy, s))
	}
}

func (c *Codec) encodeVerbatim(newPath string, w io.Writer) Result {
	f, err := os.Open(newPath) //nolint:gosec // caller controls path
	if err != nil {
		return fail(Verbatim, StatusIOError, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fail(Verbatim, StatusIOError, err)
	}
	return ok(Verbatim)
}

func (c *Codec) exceedsStructuralLimit(paths ...string) (bool, error) {
	if c.maxStructuralSize <= 0 {
		return false, nil
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return false, err
		}
		if info.Size() > c.maxStructuralSize {
			return true, nil
		}
	}
	return false, nil
}

func (c *Codec) encodeStructural(oldPath, newPath string, w io.Writer) Result {
	tooLarge, err := c.exceedsStructuralLimit(oldPath, newPath)
	if err != nil {
		return fail(Structural, StatusIOError, err)
	}
	if tooLarge {
		return fail(Structural, StatusTooLarge, fmt.Errorf("input exceeds %d bytes", c.maxStructuralSize))
	}

	oldData, err := os.ReadFile(oldPath) //nolint:gosec // caller controls path
	if err != nil {
		return fail(Structural, StatusIOError, err)
	}
	newData, err := os.ReadFile(newPath) //nolint:gosec // caller controls path
	if err != nil {
		return fail(Structural, StatusIOError, err)
	}

	if len(oldData) == 0 {
		return fail(Structural, StatusFailed, fmt.Errorf("empty base file"))
	}
	if len(newData) == 0 {
		return fail(Structural, StatusFailed, fmt.Errorf("empty target file"))
	}

	patch, err := safeCall(func() ([]byte, error) { return bsdiff.Bytes(oldData, newData) })
	if err != nil {
		return fail(Structural, StatusFailed, err)
	}
	if _, err := w.Write(patch); err != nil {
		return fail(Structural, StatusIOError, err)
	}
	return ok(Structural)
}

func (c *Codec) decodeStructural(basePath string, artifact io.Reader, w io.Writer) Result {
	patch, err := io.ReadAll(artifact)
	if err != nil {
		return fail(Structural, StatusIOError, err)
	}
	if !bytes.HasPrefix(patch, bsdiffMagic) {
		return fail(Structural, StatusBadHeader, fmt.Errorf("missing %s header", bsdiffMagic))
	}
	base, err := os.ReadFile(basePath) //nolint:gosec // caller controls path
	if err != nil {
		return fail(Structural, StatusIOError, err)
	}

	out, err := safeCall(func() ([]byte, error) { return bspatch.Bytes(base, patch) })
	if err != nil {
		return fail(Structural, StatusFailed, err)
	}
	if _, err := w.Write(out); err != nil {
		return fail(Structural, StatusIOError, err)
	}
	return ok(Structural)
}

// safeCall runs a bsdiff routine, turning a panic on malformed input into
// an error.
func safeCall(fn func() ([]byte, error)) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bsdiff: %v", r)
		}
	}()
	return fn()
}

// windowFor returns the smallest zstd window covering span bytes, so that
// matches can reach back over the whole dictionary.
func windowFor(span int64) int {
	if span >= maxWindow {
		return maxWindow
	}
	w := zstd.MinWindowSize
	if span > int64(w) {
		w = 1 << bits.Len64(uint64(span-1)) //nolint:gosec // span > 0
	}
	return w
}

func (c *Codec) encodeByteLevel(oldPath, newPath string, w io.Writer) Result {
	dict, err := os.ReadFile(oldPath) //nolint:gosec // caller controls path
	if err != nil {
		return fail(ByteLevel, StatusIOError, err)
	}
	src, err := os.Open(newPath) //nolint:gosec // caller controls path
	if err != nil {
		return fail(ByteLevel, StatusIOError, err)
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return fail(ByteLevel, StatusIOError, err)
	}

	opts := []zstd.EOption{
		zstd.WithEncoderLevel(c.level),
		zstd.WithEncoderConcurrency(1),
		zstd.WithZeroFrames(true),
		zstd.WithWindowSize(windowFor(int64(len(dict)) + info.Size())),
	}
	if len(dict) > 0 {
		opts = append(opts, zstd.WithEncoderDictRaw(dictID, dict))
	}
	enc, err := zstd.NewWriter(w, opts...)
	if err != nil {
		return fail(ByteLevel, StatusFailed, err)
	}
	if _, err := io.Copy(enc, src); err != nil {
		_ = enc.Close()
		return fail(ByteLevel, StatusIOError, err)
	}
	if err := enc.Close(); err != nil {
		return fail(ByteLevel, StatusFailed, err)
	}
	return ok(ByteLevel)
}

func (c *Codec) decodeByteLevel(basePath string, artifact io.Reader, w io.Writer) Result {
	br := bufio.NewReader(artifact)
	header, err := br.Peek(len(zstdMagic))
	if err != nil || !bytes.Equal(header, zstdMagic) {
		return fail(ByteLevel, StatusBadHeader, fmt.Errorf("missing zstd frame header"))
	}

	dict, err := os.ReadFile(basePath) //nolint:gosec // caller controls path
	if err != nil {
		return fail(ByteLevel, StatusIOError, err)
	}
	opts := []zstd.DOption{
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxWindow(maxWindow),
	}
	if len(dict) > 0 {
		// Frames without a dictionary ID still see the base as history.
		opts = append(opts,
			zstd.WithDecoderDictRaw(dictID, dict),
			zstd.WithDecoderDictRaw(0, dict),
		)
	}
	dec, err := zstd.NewReader(br, opts...)
	if err != nil {
		return fail(ByteLevel, StatusFailed, err)
	}
	defer dec.Close()

	if _, err := dec.WriteTo(w); err != nil {
		return fail(ByteLevel, StatusFailed, err)
	}
	return ok(ByteLevel)
}
