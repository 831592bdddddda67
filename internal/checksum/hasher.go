package checksum

import (
	"hash"
	"io"
)

// countingHasher wraps an io.Reader and hashes and counts all data read.
type countingHasher struct {
	r io.Reader
	h hash.Hash
	n uint64
}

func newCountingHasher(r io.Reader, h hash.Hash) *countingHasher {
	return &countingHasher{r: r, h: h}
}

// Read implements io.Reader.
func (c *countingHasher) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		_, _ = c.h.Write(p[:n]) //nolint:errcheck // hash writes never fail
		c.n += uint64(n)        //nolint:gosec // n is non-negative per io.Reader contract
	}
	return n, err
}
