package deltapkg

import (
	"fmt"
	"sort"
	"strings"

	"github.com/meigma/deltapkg/internal/deltacodec"
	"github.com/meigma/deltapkg/internal/pathutil"
)

// EntryKind classifies a file inside a delta package.
type EntryKind uint8

const (
	// KindNew is a managed file absent from the base package, stored
	// verbatim.
	KindNew EntryKind = iota
	// KindUnchanged is a zero-length artifact marking an identical file.
	KindUnchanged
	// KindStructural is a structural delta (.diff).
	KindStructural
	// KindByteLevel is a byte-level delta (.bsdiff).
	KindByteLevel
	// KindPlaceholder is a legacy .diff stored next to a .bsdiff. It is
	// never decoded.
	KindPlaceholder
	// KindSidecar is a checksum record (.shasum).
	KindSidecar
	// KindMetadata is a file outside the managed directory.
	KindMetadata
)

func (k EntryKind) String() string {
	switch k {
	case KindNew:
		return "new"
	case KindUnchanged:
		return "unchanged"
	case KindStructural:
		return "structural"
	case KindByteLevel:
		return "byte-level"
	case KindPlaceholder:
		return "placeholder"
	case KindSidecar:
		return "sidecar"
	case KindMetadata:
		return "metadata"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// dispatched reports whether entries of this kind produce a managed file
// in the reconstructed package.
func (k EntryKind) dispatched() bool {
	switch k {
	case KindNew, KindUnchanged, KindStructural, KindByteLevel:
		return true
	default:
		return false
	}
}

// strategy returns the codec strategy that reconstructs entries of kind k.
func (k EntryKind) strategy() deltacodec.Strategy {
	switch k {
	case KindUnchanged:
		return deltacodec.Unchanged
	case KindStructural:
		return deltacodec.Structural
	case KindByteLevel:
		return deltacodec.ByteLevel
	default:
		return deltacodec.Verbatim
	}
}

// classifiedEntry is one file of a delta package with its classification.
type classifiedEntry struct {
	Rel  string
	Size int64
	Kind EntryKind
	// Target is the package path the entry reconstructs, with any artifact
	// suffix removed.
	Target string
}

// classifyArtifact classifies a managed file that is not a sidecar.
func classifyArtifact(f treeFile, keys map[string]struct{}) (EntryKind, string) {
	target := deltacodec.TrimArtifactSuffix(f.Rel)
	switch deltacodec.StrategyForArtifact(f.Rel) {
	case deltacodec.ByteLevel:
		if f.Size == 0 {
			return KindUnchanged, target
		}
		return KindByteLevel, target
	case deltacodec.Structural:
		if _, ok := keys[pathutil.Key(target+deltacodec.SuffixBsdiff)]; ok {
			return KindPlaceholder, target
		}
		if f.Size == 0 {
			return KindUnchanged, target
		}
		return KindStructural, target
	default:
		return KindNew, f.Rel
	}
}

// classify assigns a kind to every file of a delta package. The result is
// sorted by Rel.
func classify(files []treeFile, managedDir string) []classifiedEntry {
	keys := make(map[string]struct{}, len(files))
	for _, f := range files {
		keys[pathutil.Key(f.Rel)] = struct{}{}
	}

	entries := make([]classifiedEntry, 0, len(files))
	for _, f := range files {
		e := classifiedEntry{Rel: f.Rel, Size: f.Size, Target: f.Rel}
		lower := strings.ToLower(f.Rel)
		switch {
		case !pathutil.IsManaged(f.Rel, managedDir):
			e.Kind = KindMetadata
		case strings.HasSuffix(lower, deltacodec.SuffixSidecar):
			e.Kind = KindSidecar
			e.Target = f.Rel[:len(f.Rel)-len(deltacodec.SuffixSidecar)]
		default:
			e.Kind, e.Target = classifyArtifact(f, keys)
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Rel < entries[j].Rel
	})
	return entries
}
