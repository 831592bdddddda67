package deltapkg

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/deltapkg/internal/checksum"
	"github.com/meigma/deltapkg/internal/deltacodec"
	"github.com/meigma/deltapkg/internal/testutil"
)

type fixture struct {
	dir    string
	base   testutil.Files
	target testutil.Files
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	app := testutil.RandomBytes(1000, 1)
	return &fixture{
		dir: t.TempDir(),
		base: testutil.Files{
			"lib/net45/app.exe":   app,
			"lib/net45/data.dll":  testutil.RandomBytes(700, 2),
			"lib/net45/notes.txt": []byte(strings.Repeat("release notes for version one\n", 20)),
			"meta.nuspec":         []byte("<version>1.0.0</version>"),
		},
		target: testutil.Files{
			"lib/net45/app.exe":    testutil.Mutate(app, 50, 3),
			"lib/net45/data.dll":   testutil.RandomBytes(700, 2),
			"lib/net45/plugin.dll": testutil.RandomBytes(300, 4),
			"lib/net45/notes.txt":  []byte(strings.Repeat("release notes for version two\n", 20)),
			"meta.nuspec":          []byte("<version>2.0.0</version>"),
		},
	}
}

func (f *fixture) pkg(t *testing.T, name string, files testutil.Files) ReleasePackage {
	t.Helper()
	path := filepath.Join(f.dir, name)
	testutil.WriteZip(t, path, files)
	p, err := NewReleasePackage(path)
	require.NoError(t, err)
	return p
}

func (f *fixture) packages(t *testing.T) (ReleasePackage, ReleasePackage) {
	t.Helper()
	return f.pkg(t, "MyApp-1.0.0-full.nupkg", f.base), f.pkg(t, "MyApp-2.0.0-full.nupkg", f.target)
}

func (f *fixture) out(name string) string {
	return filepath.Join(f.dir, name)
}

// rezip rewrites the package at p with edit applied to its files.
func rezip(t *testing.T, p ReleasePackage, name string, edit func(testutil.Files)) ReleasePackage {
	t.Helper()
	files := testutil.ReadZip(t, p.Path)
	edit(files)
	path := filepath.Join(filepath.Dir(p.Path), name)
	testutil.WriteZip(t, path, files)
	return ReleasePackage{Version: p.Version, Path: path}
}

func TestCreateAndApply(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	base, target := f.packages(t)
	b := New()

	delta, err := b.CreateDeltaPackage(context.Background(), base, target, f.out("MyApp-2.0.0-delta.nupkg"))
	require.NoError(t, err)
	assert.Equal(t, target.Version, delta.Version)
	assert.True(t, delta.IsDelta())

	files := testutil.ReadZip(t, delta.Path)
	assert.NotContains(t, files, "lib/net45/app.exe")
	assert.NotEmpty(t, files["lib/net45/app.exe.diff"])
	assert.True(t, bytes.HasPrefix(files["lib/net45/app.exe.diff"], []byte("BSDIFF40")))
	assert.NotContains(t, files, "lib/net45/app.exe.bsdiff")

	rec, err := checksum.Parse(string(files["lib/net45/app.exe.shasum"]))
	require.NoError(t, err)
	assert.Equal(t, uint64(1050), rec.Size)
	assert.Equal(t, "app.exe.shasum", rec.Name)

	assert.Contains(t, files, "lib/net45/data.dll.diff")
	assert.Empty(t, files["lib/net45/data.dll.diff"])
	assert.Empty(t, files["lib/net45/data.dll.shasum"])
	assert.NotContains(t, files, "lib/net45/data.dll")

	assert.NotEmpty(t, files["lib/net45/notes.txt.bsdiff"])
	assert.Equal(t, []byte(deltacodec.PlaceholderContent), files["lib/net45/notes.txt.diff"])

	assert.Equal(t, f.target["lib/net45/plugin.dll"], files["lib/net45/plugin.dll"])
	assert.Equal(t, f.target["meta.nuspec"], files["meta.nuspec"])

	out, err := b.ApplyDeltaPackage(context.Background(), base, delta, f.out("MyApp-2.0.0-full-rebuilt.nupkg"))
	require.NoError(t, err)
	assert.Equal(t, target.Version, out.Version)
	assert.Equal(t, f.target, testutil.ReadZip(t, out.Path))
}

func TestApplyRemovesDeletedFiles(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	delete(f.target, "lib/net45/data.dll")
	f.base["lib/net45/Legacy.DLL"] = []byte("legacy")
	f.base["tools/install.ps1"] = []byte("kept")
	base, target := f.packages(t)

	delta, err := CreateDeltaPackage(context.Background(), base, target, f.out("delta.nupkg"))
	require.NoError(t, err)
	assert.NotContains(t, testutil.ReadZip(t, delta.Path), "lib/net45/data.dll.diff")

	out, err := ApplyDeltaPackage(context.Background(), base, delta, f.out("rebuilt.nupkg"))
	require.NoError(t, err)

	got := testutil.ReadZip(t, out.Path)
	assert.NotContains(t, got, "lib/net45/data.dll")
	assert.NotContains(t, got, "lib/net45/Legacy.DLL")
	assert.Equal(t, []byte("kept"), got["tools/install.ps1"])
	delete(got, "tools/install.ps1")
	assert.Equal(t, f.target, got)
}

func TestApplyKeepsVisitedFilesRegardlessOfCase(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.base["LIB/net45/Upper.dll"] = []byte("same")
	f.target["LIB/net45/Upper.dll"] = []byte("same")
	base, target := f.packages(t)

	delta, err := CreateDeltaPackage(context.Background(), base, target, f.out("delta.nupkg"))
	require.NoError(t, err)
	out, err := ApplyDeltaPackage(context.Background(), base, delta, f.out("rebuilt.nupkg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("same"), testutil.ReadZip(t, out.Path)["LIB/net45/Upper.dll"])
}

func TestCreatePreconditions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	base, target := f.packages(t)
	b := New()
	ctx := context.Background()

	t.Run("version order", func(t *testing.T) {
		out := f.out("backwards.nupkg")
		_, err := b.CreateDeltaPackage(ctx, target, base, out)
		require.ErrorIs(t, err, ErrVersionOrder)
		assert.NoFileExists(t, out)
	})

	t.Run("same version", func(t *testing.T) {
		out := f.out("same.nupkg")
		_, err := b.CreateDeltaPackage(ctx, base, base, out)
		require.NoError(t, err)
		assert.FileExists(t, out)
	})

	t.Run("missing package", func(t *testing.T) {
		missing := ReleasePackage{Version: target.Version, Path: f.out("MyApp-3.0.0-full.nupkg")}
		_, err := b.CreateDeltaPackage(ctx, base, missing, f.out("missing.nupkg"))
		require.ErrorIs(t, err, ErrPackageNotFound)
	})

	t.Run("output exists", func(t *testing.T) {
		out := f.out("exists.nupkg")
		require.NoError(t, os.WriteFile(out, []byte("keep"), 0o644))
		_, err := b.CreateDeltaPackage(ctx, base, target, out)
		require.ErrorIs(t, err, ErrOutputExists)
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, []byte("keep"), data)
	})

	t.Run("missing version", func(t *testing.T) {
		_, err := b.CreateDeltaPackage(ctx, ReleasePackage{Path: base.Path}, target, f.out("nover.nupkg"))
		require.ErrorIs(t, err, ErrInvalidPackageName)
	})
}

func TestApplyPreconditions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	base, target := f.packages(t)
	ctx := context.Background()

	_, err := ApplyDeltaPackage(ctx, base, ReleasePackage{Path: f.out("none.nupkg")}, f.out("a.nupkg"))
	require.ErrorIs(t, err, ErrPackageNotFound)

	_, err = ApplyDeltaPackage(ctx, base, target, base.Path)
	require.ErrorIs(t, err, ErrOutputExists)
}

func TestCreateFallsBackToByteLevel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	base, target := f.packages(t)
	rec := &countingRecorder{}
	b := New(WithMaxStructuralSize(1), WithRecorder(rec))

	delta, err := b.CreateDeltaPackage(context.Background(), base, target, f.out("delta.nupkg"))
	require.NoError(t, err)

	files := testutil.ReadZip(t, delta.Path)
	assert.NotEmpty(t, files["lib/net45/app.exe.bsdiff"])
	assert.Equal(t, []byte(deltacodec.PlaceholderContent), files["lib/net45/app.exe.diff"])
	assert.NotEmpty(t, files["lib/net45/app.exe.shasum"])
	assert.Equal(t, 1, rec.count("fallback:structural:too-large"))

	out, err := b.ApplyDeltaPackage(context.Background(), base, delta, f.out("rebuilt.nupkg"))
	require.NoError(t, err)
	assert.Equal(t, f.target, testutil.ReadZip(t, out.Path))
}

func TestCreateWithWorkers(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for i := range 8 {
		name := "lib/net45/extra" + string(rune('a'+i)) + ".dll"
		data := testutil.RandomBytes(400, uint64(10+i))
		f.base[name] = data
		f.target[name] = testutil.Mutate(data, 10, uint64(20+i))
	}
	base, target := f.packages(t)

	serial, err := New().CreateDeltaPackage(context.Background(), base, target, f.out("serial.nupkg"))
	require.NoError(t, err)
	parallel, err := New(WithWorkers(4)).CreateDeltaPackage(context.Background(), base, target, f.out("parallel.nupkg"))
	require.NoError(t, err)
	assert.Equal(t, testutil.ReadZip(t, serial.Path), testutil.ReadZip(t, parallel.Path))

	out, err := ApplyDeltaPackage(context.Background(), base, parallel, f.out("rebuilt.nupkg"))
	require.NoError(t, err)
	assert.Equal(t, f.target, testutil.ReadZip(t, out.Path))
}

func TestApplyChecksumMismatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	base, target := f.packages(t)
	delta, err := CreateDeltaPackage(context.Background(), base, target, f.out("delta.nupkg"))
	require.NoError(t, err)

	corrupt := rezip(t, delta, "corrupt.nupkg", func(files testutil.Files) {
		sidecar := files["lib/net45/app.exe.shasum"]
		if sidecar[0] == '0' {
			sidecar[0] = '1'
		} else {
			sidecar[0] = '0'
		}
	})

	rec := &countingRecorder{}
	out := f.out("rebuilt.nupkg")
	_, err = New(WithRecorder(rec)).ApplyDeltaPackage(context.Background(), base, corrupt, out)
	require.ErrorIs(t, err, ErrChecksumMismatch)

	var mismatch *ChecksumError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "lib/net45/app.exe", mismatch.Path)
	assert.Equal(t, "sha1", mismatch.Field)
	assert.Equal(t, 1, rec.count("mismatch"))
	assert.NoFileExists(t, out)
}

func TestApplySizeMismatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	base, target := f.packages(t)
	delta, err := CreateDeltaPackage(context.Background(), base, target, f.out("delta.nupkg"))
	require.NoError(t, err)

	corrupt := rezip(t, delta, "corrupt.nupkg", func(files testutil.Files) {
		files["lib/net45/plugin.dll.shasum"] = []byte(checksum.Record{Size: 1, Name: "plugin.dll.shasum"}.String())
	})

	_, err = ApplyDeltaPackage(context.Background(), base, corrupt, f.out("rebuilt.nupkg"))
	var mismatch *ChecksumError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "size", mismatch.Field)
	assert.Equal(t, "1", mismatch.Expected)
	assert.Equal(t, "300", mismatch.Actual)
}

func TestApplyCorruptByteLevelHeader(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	base, target := f.packages(t)
	b := New(WithMaxStructuralSize(1))
	delta, err := b.CreateDeltaPackage(context.Background(), base, target, f.out("delta.nupkg"))
	require.NoError(t, err)

	corrupt := rezip(t, delta, "corrupt.nupkg", func(files testutil.Files) {
		files["lib/net45/app.exe.bsdiff"] = []byte("this is not a delta")
	})

	out := f.out("rebuilt.nupkg")
	_, err = b.ApplyDeltaPackage(context.Background(), base, corrupt, out)
	require.ErrorIs(t, err, ErrDecode)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, deltacodec.ByteLevel, decodeErr.Strategy)
	assert.Equal(t, deltacodec.StatusBadHeader, decodeErr.Status)
	assert.NoFileExists(t, out)
}

func TestApplyCorruptStructuralDelta(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	base, target := f.packages(t)
	delta, err := CreateDeltaPackage(context.Background(), base, target, f.out("delta.nupkg"))
	require.NoError(t, err)

	corrupt := rezip(t, delta, "corrupt.nupkg", func(files testutil.Files) {
		files["lib/net45/app.exe.diff"] = []byte("garbage")
	})

	_, err = ApplyDeltaPackage(context.Background(), base, corrupt, f.out("rebuilt.nupkg"))
	require.ErrorIs(t, err, ErrDecode)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, deltacodec.Structural, decodeErr.Strategy)
}

func TestApplyMissingBaseFile(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	base, target := f.packages(t)
	delta, err := CreateDeltaPackage(context.Background(), base, target, f.out("delta.nupkg"))
	require.NoError(t, err)

	stripped := rezip(t, base, "MyApp-1.0.0-stripped.nupkg", func(files testutil.Files) {
		delete(files, "lib/net45/data.dll")
	})
	_, err = ApplyDeltaPackage(context.Background(), stripped, delta, f.out("rebuilt.nupkg"))
	require.ErrorIs(t, err, ErrBaseFileMissing)
}

func TestCreateRegistersContentTypes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	manifest := []byte(`<?xml version="1.0" encoding="utf-8"?>` +
		`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
		`<Default Extension="nuspec" ContentType="application/octet" />` +
		`</Types>`)
	f.base["[Content_Types].xml"] = manifest
	f.target["[Content_Types].xml"] = manifest
	base, target := f.packages(t)

	delta, err := CreateDeltaPackage(context.Background(), base, target, f.out("delta.nupkg"))
	require.NoError(t, err)

	got := string(testutil.ReadZip(t, delta.Path)["[Content_Types].xml"])
	for _, ext := range []string{"nuspec", "diff", "bsdiff", "shasum", "exe", "dll", "pdb"} {
		assert.Equal(t, 1, strings.Count(got, `Extension="`+ext+`"`), ext)
	}
}

func TestCreateWithoutManagedDir(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	base, target := f.packages(t)

	delta, err := New(WithManagedDir("app")).CreateDeltaPackage(context.Background(), base, target, f.out("delta.nupkg"))
	require.NoError(t, err)
	assert.Equal(t, f.target, testutil.ReadZip(t, delta.Path))
}

func TestCreateCanceled(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	base, target := f.packages(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := f.out("delta.nupkg")
	_, err := CreateDeltaPackage(ctx, base, target, out)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, out)
}

func TestScratchDirectoriesReleased(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	base, target := f.packages(t)
	scratch := t.TempDir()
	b := New(WithTempDir(scratch))

	delta, err := b.CreateDeltaPackage(context.Background(), base, target, f.out("delta.nupkg"))
	require.NoError(t, err)
	_, err = b.ApplyDeltaPackage(context.Background(), base, delta, f.out("rebuilt.nupkg"))
	require.NoError(t, err)

	_, err = b.CreateDeltaPackage(context.Background(), target, base, f.out("bad.nupkg"))
	require.Error(t, err)

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// countingRecorder counts recorder events by key.
type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) inc(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[key]++
}

func (r *countingRecorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

func (r *countingRecorder) IncFiles(operation, strategy string) {
	r.inc("files:" + operation + ":" + strategy)
}

func (r *countingRecorder) IncFallback(strategy, status string) {
	r.inc("fallback:" + strategy + ":" + status)
}

func (r *countingRecorder) IncChecksumMismatch() {
	r.inc("mismatch")
}

func (r *countingRecorder) ObserveDuration(operation string, _ time.Duration, success bool) {
	if success {
		r.inc("ok:" + operation)
		return
	}
	r.inc("failed:" + operation)
}

func TestCreateAndApplyFileEmptied(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.base["lib/net45/a.txt"] = []byte("hello world")
	f.target["lib/net45/a.txt"] = []byte{}
	f.target["lib/net45/app.exe"] = []byte{}
	base, target := f.packages(t)

	delta, err := CreateDeltaPackage(context.Background(), base, target, f.out("delta.nupkg"))
	require.NoError(t, err)

	files := testutil.ReadZip(t, delta.Path)
	for _, name := range []string{"lib/net45/a.txt", "lib/net45/app.exe"} {
		assert.NotEmpty(t, files[name+".bsdiff"], name)
		assert.Equal(t, []byte(deltacodec.PlaceholderContent), files[name+".diff"], name)
		rec, err := checksum.Parse(string(files[name+".shasum"]))
		require.NoError(t, err, name)
		assert.Zero(t, rec.Size, name)
	}

	out, err := ApplyDeltaPackage(context.Background(), base, delta, f.out("rebuilt.nupkg"))
	require.NoError(t, err)
	got := testutil.ReadZip(t, out.Path)
	assert.Empty(t, got["lib/net45/a.txt"])
	assert.Empty(t, got["lib/net45/app.exe"])
	assert.Equal(t, f.target, got)
}

func TestApplyCaseOnlyRename(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.base["lib/net45/Foo.dll"] = []byte("foo library")
	f.target["lib/net45/foo.dll"] = []byte("foo library")
	base, target := f.packages(t)

	delta, err := CreateDeltaPackage(context.Background(), base, target, f.out("delta.nupkg"))
	require.NoError(t, err)
	out, err := ApplyDeltaPackage(context.Background(), base, delta, f.out("rebuilt.nupkg"))
	require.NoError(t, err)

	got := testutil.ReadZip(t, out.Path)
	assert.NotContains(t, got, "lib/net45/Foo.dll")
	assert.Equal(t, f.target, got)
}

// stubCodec replaces the encoder of one strategy and delegates the rest.
type stubCodec struct {
	fileCodec
	strategy deltacodec.Strategy
	encode   func(w io.Writer) deltacodec.Result
}

func (c stubCodec) Encode(s deltacodec.Strategy, oldPath, newPath string, w io.Writer) deltacodec.Result {
	if s == c.strategy {
		return c.encode(w)
	}
	return c.fileCodec.Encode(s, oldPath, newPath, w)
}

func TestCreateAbortsWhenEveryStrategyFails(t *testing.T) {
	t.Parallel()

	encodeErr := errors.New("encoder rejected input")
	tests := []struct {
		name    string
		encode  func(w io.Writer) deltacodec.Result
		wantErr error
	}{
		{
			name: "codec failure",
			encode: func(io.Writer) deltacodec.Result {
				return deltacodec.Result{Strategy: deltacodec.ByteLevel, Status: deltacodec.StatusFailed, Err: encodeErr}
			},
			wantErr: encodeErr,
		},
		{
			name: "empty artifact",
			encode: func(io.Writer) deltacodec.Result {
				return deltacodec.Result{Strategy: deltacodec.ByteLevel, Status: deltacodec.StatusOK}
			},
			wantErr: ErrEmptyArtifact,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			f.target["lib/net45/notes.txt"] = f.base["lib/net45/notes.txt"]
			base, target := f.packages(t)
			scratch := t.TempDir()
			b := New(WithMaxStructuralSize(1), WithTempDir(scratch))
			b.codec = stubCodec{fileCodec: b.codec, strategy: deltacodec.ByteLevel, encode: tt.encode}

			out := f.out("delta.nupkg")
			_, err := b.CreateDeltaPackage(context.Background(), base, target, out)
			require.ErrorIs(t, err, ErrDiff)

			var diffErr *DiffError
			require.ErrorAs(t, err, &diffErr)
			assert.Equal(t, "lib/net45/app.exe", diffErr.Path)
			require.Len(t, diffErr.Attempts, 2)
			assert.Equal(t, deltacodec.Structural, diffErr.Attempts[0].Strategy)
			assert.Equal(t, deltacodec.StatusTooLarge, diffErr.Attempts[0].Status)
			assert.Equal(t, deltacodec.ByteLevel, diffErr.Attempts[1].Strategy)
			assert.Equal(t, deltacodec.StatusFailed, diffErr.Attempts[1].Status)
			require.ErrorIs(t, diffErr.Attempts[1].Err, tt.wantErr)

			assert.NoFileExists(t, out)
			entries, err := os.ReadDir(scratch)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}
