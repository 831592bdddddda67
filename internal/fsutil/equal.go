package fsutil

import (
	"bytes"
	"io"
	"os"
)

// compareBufferSize bounds the memory used by FilesEqual.
const compareBufferSize = 64 << 10

// FilesEqual reports whether two files have identical contents. Files are
// compared in fixed-size chunks so memory use does not depend on file size.
func FilesEqual(a, b string) (bool, error) {
	fa, err := os.Open(a) //nolint:gosec // caller controls path
	if err != nil {
		return false, err
	}
	defer fa.Close()
	fb, err := os.Open(b) //nolint:gosec // caller controls path
	if err != nil {
		return false, err
	}
	defer fb.Close()

	ia, err := fa.Stat()
	if err != nil {
		return false, err
	}
	ib, err := fb.Stat()
	if err != nil {
		return false, err
	}
	if ia.Size() != ib.Size() {
		return false, nil
	}
	return ReadersEqual(fa, fb)
}

// ReadersEqual reports whether two readers yield identical bytes.
func ReadersEqual(a, b io.Reader) (bool, error) {
	bufA := make([]byte, compareBufferSize)
	bufB := make([]byte, compareBufferSize)
	for {
		na, errA := io.ReadFull(a, bufA)
		nb, errB := io.ReadFull(b, bufB)
		if errA != nil && errA != io.EOF && errA != io.ErrUnexpectedEOF {
			return false, errA
		}
		if errB != nil && errB != io.EOF && errB != io.ErrUnexpectedEOF {
			return false, errB
		}
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		if na < len(bufA) {
			return true, nil
		}
	}
}
