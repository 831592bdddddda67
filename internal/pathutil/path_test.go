package pathutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsManaged(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rel  string
		want bool
	}{
		{"lib/net45/app.exe", true},
		{"LIB/net45/app.exe", true},
		{"Lib/a.dll", true},
		{"lib", false},
		{"library.txt", false},
		{"libs/a.dll", false},
		{"meta.nuspec", false},
		{"_rels/.rels", false},
		{"package/services/lib/x", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsManaged(tt.rel, "lib"), "IsManaged(%q)", tt.rel)
	}
}

func TestFirstComponent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "lib", FirstComponent("lib/a/b"))
	assert.Equal(t, "file.txt", FirstComponent("file.txt"))
	assert.Empty(t, FirstComponent(""))
}

func TestKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Key("lib/App.EXE"), Key("LIB/app.exe"))
}

func TestRelJoin(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	p := Join(root, "lib/net45/app.exe")
	assert.Equal(t, filepath.Join(root, "lib", "net45", "app.exe"), p)

	rel, err := Rel(root, p)
	require.NoError(t, err)
	assert.Equal(t, "lib/net45/app.exe", rel)
}
