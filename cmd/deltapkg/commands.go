package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/meigma/deltapkg"
)

// CreateCmd implements the 'create' command.
type CreateCmd struct {
	Base          string `arg:"" help:"Full package of the previous release" type:"existingfile"`
	Target        string `arg:"" help:"Full package of the new release" type:"existingfile"`
	Output        string `short:"o" required:"" help:"Path of the delta package to write" type:"path"`
	BaseVersion   string `name:"base-version" help:"Version of the base package when the file name has none"`
	TargetVersion string `name:"target-version" help:"Version of the target package when the file name has none"`
}

func (c *CreateCmd) Run(g *Global) error {
	base, err := releasePackage(c.Base, c.BaseVersion)
	if err != nil {
		return err
	}
	target, err := releasePackage(c.Target, c.TargetVersion)
	if err != nil {
		return err
	}

	delta, err := g.Builder.CreateDeltaPackage(g.Ctx, base, target, c.Output)
	if err != nil {
		return err
	}
	g.Logger.Info("delta package written", slog.String("path", delta.Path), slog.String("version", delta.Version.String()))
	return nil
}

// ApplyCmd implements the 'apply' command.
type ApplyCmd struct {
	Base         string `arg:"" help:"Full package the delta was built against" type:"existingfile"`
	Delta        string `arg:"" help:"Delta package" type:"existingfile"`
	Output       string `short:"o" required:"" help:"Path of the full package to write" type:"path"`
	DeltaVersion string `name:"delta-version" help:"Version of the delta package when the file name has none"`
}

func (c *ApplyCmd) Run(g *Global) error {
	base := deltapkg.ReleasePackage{Path: c.Base}
	if p, err := deltapkg.NewReleasePackage(c.Base); err == nil {
		base = p
	}
	delta, err := releasePackage(c.Delta, c.DeltaVersion)
	if err != nil {
		return err
	}

	full, err := g.Builder.ApplyDeltaPackage(g.Ctx, base, delta, c.Output)
	if err != nil {
		return err
	}
	g.Logger.Info("full package written", slog.String("path", full.Path))
	return nil
}

// InspectCmd implements the 'inspect' command.
type InspectCmd struct {
	Package string `arg:"" help:"Delta package to inspect" type:"existingfile"`
	Summary bool   `short:"s" help:"Print only the number of entries per kind"`
}

func (c *InspectCmd) Run(g *Global) error {
	entries, err := g.Builder.Inspect(g.Ctx, c.Package)
	if err != nil {
		return err
	}
	if c.Summary {
		return writeSummary(os.Stdout, deltapkg.Summarize(entries))
	}
	return writeEntries(os.Stdout, entries)
}

// releasePackage parses the version from the file name unless version is
// given explicitly.
func releasePackage(path, version string) (deltapkg.ReleasePackage, error) {
	if version != "" {
		return deltapkg.NewReleasePackageWithVersion(path, version)
	}
	p, err := deltapkg.NewReleasePackage(path)
	if err != nil {
		return deltapkg.ReleasePackage{}, fmt.Errorf("%w (pass the version explicitly)", err)
	}
	return p, nil
}

func writeEntries(w io.Writer, entries []deltapkg.EntryInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tSIZE\tDIGEST\tPATH")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.Kind, e.Size, e.Digest.Encoded()[:12], e.Path)
	}
	return tw.Flush()
}

func writeSummary(w io.Writer, counts map[deltapkg.EntryKind]int) error {
	kinds := make([]deltapkg.EntryKind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, k := range kinds {
		fmt.Fprintf(tw, "%s\t%d\n", k, counts[k])
	}
	return tw.Flush()
}
