package deltapkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	files := []treeFile{
		{Rel: "meta.nuspec", Size: 10},
		{Rel: "lib/a.exe.diff", Size: 120},
		{Rel: "lib/a.exe.shasum", Size: 60},
		{Rel: "lib/b.dll.diff", Size: 0},
		{Rel: "lib/b.dll.shasum", Size: 0},
		{Rel: "lib/c.txt.bsdiff", Size: 40},
		{Rel: "lib/c.txt.diff", Size: 1},
		{Rel: "lib/c.txt.shasum", Size: 60},
		{Rel: "lib/d.txt.BSDIFF", Size: 0},
		{Rel: "Lib/new.dll", Size: 300},
		{Rel: "lib", Size: 3},
		{Rel: "tools/x.diff", Size: 5},
	}

	want := map[string]struct {
		kind   EntryKind
		target string
	}{
		"meta.nuspec":      {KindMetadata, "meta.nuspec"},
		"lib/a.exe.diff":   {KindStructural, "lib/a.exe"},
		"lib/a.exe.shasum": {KindSidecar, "lib/a.exe"},
		"lib/b.dll.diff":   {KindUnchanged, "lib/b.dll"},
		"lib/b.dll.shasum": {KindSidecar, "lib/b.dll"},
		"lib/c.txt.bsdiff": {KindByteLevel, "lib/c.txt"},
		"lib/c.txt.diff":   {KindPlaceholder, "lib/c.txt"},
		"lib/c.txt.shasum": {KindSidecar, "lib/c.txt"},
		"lib/d.txt.BSDIFF": {KindUnchanged, "lib/d.txt"},
		"Lib/new.dll":      {KindNew, "Lib/new.dll"},
		"lib":              {KindMetadata, "lib"},
		"tools/x.diff":     {KindMetadata, "tools/x.diff"},
	}

	got := classify(files, "lib")
	assert.Len(t, got, len(files))
	for i, e := range got {
		if i > 0 {
			assert.Less(t, got[i-1].Rel, e.Rel)
		}
		w, ok := want[e.Rel]
		if !assert.True(t, ok, e.Rel) {
			continue
		}
		assert.Equal(t, w.kind, e.Kind, e.Rel)
		assert.Equal(t, w.target, e.Target, e.Rel)
	}
}

func TestEntryKindDispatched(t *testing.T) {
	t.Parallel()

	for _, k := range []EntryKind{KindNew, KindUnchanged, KindStructural, KindByteLevel} {
		assert.True(t, k.dispatched(), k.String())
	}
	for _, k := range []EntryKind{KindPlaceholder, KindSidecar, KindMetadata} {
		assert.False(t, k.dispatched(), k.String())
	}
	assert.Equal(t, "kind(42)", EntryKind(42).String())
}
