package fsutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestFilesEqual(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	big := bytes.Repeat([]byte("abcdefgh"), compareBufferSize/4)
	flipped := bytes.Clone(big)
	flipped[len(flipped)-1] ^= 0xff

	tests := []struct {
		name string
		a, b []byte
		want bool
	}{
		{"both empty", nil, nil, true},
		{"identical small", []byte("same"), []byte("same"), true},
		{"identical multi chunk", big, bytes.Clone(big), true},
		{"different size", []byte("short"), []byte("longer"), false},
		{"last byte differs", big, flipped, false},
		{"exact chunk boundary", make([]byte, compareBufferSize), make([]byte, compareBufferSize), true},
	}

	for i, tt := range tests {
		a := filepath.Join(dir, tt.name, "a")
		b := filepath.Join(dir, tt.name, "b")
		writeFile(t, a, tt.a)
		writeFile(t, b, tt.b)
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := FilesEqual(a, b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got, "case %d", i)
		})
	}
}

func TestFilesEqualMissing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	writeFile(t, a, []byte("x"))

	_, err := FilesEqual(a, filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestCopyWithContext(t *testing.T) {
	t.Parallel()

	var dst bytes.Buffer
	n, err := CopyWithContext(context.Background(), &dst, strings.NewReader("payload"), make([]byte, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "payload", dst.String())
}

func TestCopyWithContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var dst bytes.Buffer
	_, err := CopyWithContext(ctx, &dst, strings.NewReader("data"), nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, dst.Len())
}

func TestCopyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	writeFile(t, src, []byte("payload"))

	dst := filepath.Join(dir, "nested", "deeper", "dst.bin")
	require.NoError(t, CopyFile(context.Background(), src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	writeFile(t, src, []byte("v2"))
	require.NoError(t, CopyFile(context.Background(), src, dst))
	got, err = os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got), "existing destination must be replaced")
}

func TestTempDirRelease(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	td, err := NewTempDir(filepath.Join(parent, "scratch"), "work-*")
	require.NoError(t, err)

	writeFile(t, filepath.Join(td.Path, "sub", "file.txt"), []byte("x"))
	require.NoError(t, os.Chmod(filepath.Join(td.Path, "sub", "file.txt"), 0o444))

	require.NoError(t, td.Release())
	_, err = os.Stat(td.Path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, td.Release(), "release must be idempotent")
}

func TestTempFileCommit(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dest := filepath.Join(dir, "lib", "app.exe")
	writeFile(t, dest, []byte("old"))

	tf, err := NewTempFile(dest)
	require.NoError(t, err)
	defer tf.Release()

	_, err = tf.WriteString("new")
	require.NoError(t, err)
	require.NoError(t, tf.Commit())

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files may remain after commit")
}

func TestTempFileReleaseWithoutCommit(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dest := filepath.Join(dir, "new", "file.dll")

	tf, err := NewTempFile(dest)
	require.NoError(t, err)
	_, err = tf.WriteString("partial")
	require.NoError(t, err)
	tf.Release()

	_, err = os.Stat(tf.Name())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(dest)
	assert.True(t, os.IsNotExist(err), "destination must never appear without commit")
}

func TestRemoveHarderMissing(t *testing.T) {
	t.Parallel()

	require.NoError(t, RemoveHarder(filepath.Join(t.TempDir(), "does-not-exist")))
}
