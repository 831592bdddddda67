package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// removeRetries is the number of extra attempts made by RemoveHarder.
const removeRetries = 4

// RemoveHarder removes path and everything below it, retrying with
// exponential backoff while the removal fails. Read-only entries are made
// writable before each retry. A missing path is not an error.
func RemoveHarder(path string) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = time.Second
	policy.MaxElapsedTime = 5 * time.Second

	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			makeWritable(path)
		}
		err := os.RemoveAll(path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return backoff.Retry(op, backoff.WithMaxRetries(policy, removeRetries))
}

// makeWritable clears read-only bits under path so removal can proceed.
func makeWritable(path string) {
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error { //nolint:errcheck // best effort
		if err != nil {
			return nil //nolint:nilerr // keep walking what we can
		}
		mode := os.FileMode(0o644)
		if d.IsDir() {
			mode = 0o755
		}
		_ = os.Chmod(p, mode) //nolint:errcheck // best effort
		return nil
	})
}
