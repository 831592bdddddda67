package fsutil

import (
	"context"
	"io"
	"os"
)

const copyBufferSize = 32 << 10

// ctxReader fails reads once its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// CopyWithContext copies src to dst, giving up between reads once ctx is
// done. buf may be nil. It returns the number of bytes written.
func CopyWithContext(ctx context.Context, dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	if len(buf) == 0 {
		buf = make([]byte, copyBufferSize)
	}
	return io.CopyBuffer(dst, ctxReader{ctx: ctx, r: src}, buf)
}

// CopyFile copies the regular file at src to dst, creating parent
// directories of dst and replacing any existing file. dst is written through
// a temporary file and only replaced once the copy is complete.
func CopyFile(ctx context.Context, src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // caller controls path
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := NewTempFile(dst)
	if err != nil {
		return err
	}
	defer tmp.Release()
	if _, err := CopyWithContext(ctx, tmp, in, nil); err != nil {
		return err
	}
	return tmp.Commit()
}
