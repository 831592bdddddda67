// Package deltapkg builds and applies delta update packages.
//
// A release package is a zip archive holding a directory tree. Files under
// the managed directory ("lib" by default) are diffed; every other file is
// package metadata and is always shipped whole. Given an old and a new
// release, [Builder.CreateDeltaPackage] writes a delta package that holds,
// for each managed file of the new release, exactly one of:
//
//   - the file itself, when the old release lacks it;
//   - a zero-length <name>.diff and zero-length <name>.shasum, when the
//     file is unchanged;
//   - a bsdiff <name>.diff and <name>.shasum, for executables and
//     libraries;
//   - a zstd <name>.bsdiff (using the old file as dictionary), a one-byte
//     placeholder <name>.diff and <name>.shasum, for everything else and
//     whenever the bsdiff attempt fails.
//
// The placeholder makes patchers that only understand .diff fail
// verification instead of silently dropping the file.
//
// [Builder.ApplyDeltaPackage] reverses the process: it reconstructs each
// file into a working copy of the old release, verifies it against its
// .shasum record, deletes managed files the new release no longer has,
// replaces metadata, and writes the result as a full package. Any failure
// aborts the operation without producing output.
//
// # Quick Start
//
//	oldPkg, _ := deltapkg.NewReleasePackage("MyApp-1.0.0-full.nupkg")
//	newPkg, _ := deltapkg.NewReleasePackage("MyApp-1.1.0-full.nupkg")
//
//	b := deltapkg.New(deltapkg.WithLogger(slog.Default()))
//	delta, err := b.CreateDeltaPackage(ctx, oldPkg, newPkg, "MyApp-1.1.0-delta.nupkg")
//	if err != nil {
//	    return err
//	}
//	full, err := b.ApplyDeltaPackage(ctx, oldPkg, delta, "MyApp-1.1.0-full.nupkg")
package deltapkg
