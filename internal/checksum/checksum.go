// Package checksum implements the checksum record stored in sidecar files
// and release manifests: a file size, a SHA-1 digest and a file name,
// serialized as a single text line.
package checksum

import (
	"bufio"
	"bytes"
	"crypto/sha1" //nolint:gosec // SHA-1 is fixed by the on-disk manifest format
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Sentinel errors for record parsing.
var (
	// ErrEmptyRecord is returned when a line contains no record.
	ErrEmptyRecord = errors.New("checksum: empty record")

	// ErrMalformedRecord is returned when a line cannot be parsed.
	ErrMalformedRecord = errors.New("checksum: malformed record")
)

// Size of a SHA-1 digest in bytes.
const Size = sha1.Size

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Record describes the expected content of a file.
type Record struct {
	Size uint64
	SHA1 [Size]byte
	Name string
}

// FromReader computes a Record by streaming r to EOF.
func FromReader(r io.Reader, name string) (Record, error) {
	ch := newCountingHasher(r, sha1.New()) //nolint:gosec // see import
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(io.Discard, ch, buf); err != nil {
		return Record{}, fmt.Errorf("checksum %s: %w", name, err)
	}
	rec := Record{Size: ch.n, Name: name}
	copy(rec.SHA1[:], ch.h.Sum(nil))
	return rec, nil
}

// FromFile computes a Record for the file at path, recording name as the
// file name.
func FromFile(path, name string) (Record, error) {
	f, err := os.Open(path) //nolint:gosec // caller controls path
	if err != nil {
		return Record{}, err
	}
	defer f.Close()
	return FromReader(f, name)
}

// HexSHA1 returns the digest as upper-case hex, the manifest encoding.
func (r Record) HexSHA1() string {
	return strings.ToUpper(hex.EncodeToString(r.SHA1[:]))
}

// String encodes the record as "<SHA1> <name> <size>".
func (r Record) String() string {
	return r.HexSHA1() + " " + escapeName(r.Name) + " " + strconv.FormatUint(r.Size, 10)
}

// escapeName percent-encodes the bytes that would break the line into
// fields, and '%' itself. Everything else is written raw.
func escapeName(name string) string {
	if !strings.ContainsFunc(name, needsEscape) {
		return name
	}
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		if needsEscape(rune(c)) {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func needsEscape(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f', '%':
		return true
	default:
		return false
	}
}

// Matches reports whether other describes the same content. Names are
// ignored.
func (r Record) Matches(other Record) bool {
	return r.Size == other.Size && r.SHA1 == other.SHA1
}

// Parse decodes a single record line. A leading UTF-8 byte order mark,
// surrounding whitespace and a trailing carriage return are tolerated.
func Parse(line string) (Record, error) {
	line = strings.TrimPrefix(line, string(utf8BOM))
	line = strings.TrimSpace(line)
	if line == "" {
		return Record{}, ErrEmptyRecord
	}

	fields := strings.Fields(line)
	if len(fields) != 3 {
		return Record{}, fmt.Errorf("%w: want 3 fields, got %d", ErrMalformedRecord, len(fields))
	}

	var rec Record
	if len(fields[0]) != hex.EncodedLen(Size) {
		return Record{}, fmt.Errorf("%w: digest %q", ErrMalformedRecord, fields[0])
	}
	if _, err := hex.Decode(rec.SHA1[:], []byte(fields[0])); err != nil {
		return Record{}, fmt.Errorf("%w: digest %q: %v", ErrMalformedRecord, fields[0], err)
	}

	name, err := url.PathUnescape(fields[1])
	if err != nil {
		return Record{}, fmt.Errorf("%w: name %q: %v", ErrMalformedRecord, fields[1], err)
	}
	rec.Name = name

	size, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: size %q: %v", ErrMalformedRecord, fields[2], err)
	}
	rec.Size = size
	return rec, nil
}

// ReadFile parses the first record in the sidecar file at path.
func ReadFile(path string) (Record, error) {
	data, err := os.ReadFile(path) //nolint:gosec // caller controls path
	if err != nil {
		return Record{}, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		return Parse(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return Record{}, err
	}
	return Record{}, ErrEmptyRecord
}

// WriteFile writes rec to path as a single line without a trailing newline.
func WriteFile(path string, rec Record) error {
	return os.WriteFile(path, []byte(rec.String()), 0o644) //nolint:gosec // package files are world-readable
}
