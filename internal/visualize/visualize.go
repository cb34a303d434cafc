// Package visualize renders a lineage graph as GraphViz DOT, SVG, or
// a static HTML report. It consumes sidecar lineage records; it never
// produces them.
package visualize

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/starford/othala/internal/lineage"
	"github.com/starford/othala/internal/sidecar"
)

// Visualizer accumulates sidecar lineage records into one graph.
type Visualizer struct {
	graph *lineage.Graph
}

// New returns a Visualizer over an empty graph.
func New() *Visualizer {
	return &Visualizer{graph: lineage.NewGraph()}
}

// Graph exposes the accumulated graph.
func (v *Visualizer) Graph() *lineage.Graph { return v.graph }

// nodeKey derives the graph key for a sidecar: its vault_id when
// present, the file's base name (sidecar suffix trimmed) otherwise.
func nodeKey(rec *sidecar.Record, path string) string {
	if rec.VaultID != "" {
		return rec.VaultID
	}
	return strings.TrimSuffix(filepath.Base(path), sidecar.Suffix)
}

// ParseSidecar reads one sidecar file and merges its node and lineage
// edges into the graph.
func (v *Visualizer) ParseSidecar(path string) error {
	rec, err := sidecar.Load(path)
	if err != nil {
		return err
	}

	id := nodeKey(rec, path)
	n := v.graph.AddNode(id)
	n.SetMetadata("vault_id", rec.VaultID)
	n.SetMetadata("checksum", rec.ChecksumSHA256)
	n.SetMetadata("version", rec.Version)
	n.SetMetadata("timestamp", rec.Timestamp)

	for _, pred := range rec.Lineage.Predecessors {
		v.graph.AddEdge(pred, id)
	}
	for _, succ := range rec.Lineage.Successors {
		v.graph.AddEdge(id, succ)
	}
	return nil
}

// ScanResult summarizes a directory scan.
type ScanResult struct {
	Parsed  int
	Skipped []string // sidecar paths that failed to parse
}

// ScanDirectory walks dir recursively, merging every sidecar file it
// can parse. Unparsable sidecars are skipped and reported, not fatal.
func (v *Visualizer) ScanDirectory(dir string) (ScanResult, error) {
	var res ScanResult
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), sidecar.Suffix) {
			return nil
		}
		if perr := v.ParseSidecar(path); perr != nil {
			res.Skipped = append(res.Skipped, path)
			return nil
		}
		res.Parsed++
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("visualize: scan %s: %w", dir, err)
	}
	return res, nil
}

func inCycle(id string, cycles [][]string) bool {
	for _, cycle := range cycles {
		for _, member := range cycle {
			if member == id {
				return true
			}
		}
	}
	return false
}

func edgeInCycle(from, to string, cycles [][]string) bool {
	for _, cycle := range cycles {
		var hasFrom, hasTo bool
		for _, member := range cycle {
			if member == from {
				hasFrom = true
			}
			if member == to {
				hasTo = true
			}
		}
		if hasFrom && hasTo {
			return true
		}
	}
	return false
}

// DOT renders the accumulated graph; see RenderDOT.
func (v *Visualizer) DOT() string {
	return RenderDOT(v.graph)
}

// RenderDOT renders a lineage graph in GraphViz DOT form. Roots are
// green, leaves blue, cycle members orange (cycle wins); cycle edges
// are red and thick, broken links dashed red.
func RenderDOT(g *lineage.Graph) string {
	cycles := g.DetectCycles()
	broken := g.DetectBrokenLinks()

	var b strings.Builder
	b.WriteString("digraph Lineage {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, style=rounded];\n\n")

	for _, id := range g.NodeIDs() {
		n := g.Node(id)

		labelParts := []string{id}
		if ver := n.Metadata["version"]; ver != "" {
			labelParts = append(labelParts, "v"+ver)
		}
		if sum := n.Metadata["checksum"]; sum != "" {
			short := sum
			if len(short) > 8 {
				short = short[:8]
			}
			labelParts = append(labelParts, "["+short+"]")
		}
		label := strings.Join(labelParts, `\n`)

		fillcolor := "lightgray"
		if len(n.Predecessors) == 0 {
			fillcolor = "lightgreen"
		}
		if len(n.Successors) == 0 {
			fillcolor = "lightblue"
		}
		if inCycle(id, cycles) {
			fillcolor = "orange"
		}

		fmt.Fprintf(&b, "  %q [label=\"%s\", fillcolor=%s, style=filled];\n", id, label, fillcolor)
	}

	b.WriteString("\n")
	for _, id := range g.NodeIDs() {
		for _, succ := range g.Node(id).Successors {
			style := ""
			if edgeInCycle(id, succ, cycles) {
				style = " [color=red, penwidth=2]"
			}
			fmt.Fprintf(&b, "  %q -> %q%s;\n", id, succ, style)
		}
	}
	for _, bl := range broken {
		fmt.Fprintf(&b, "  %q -> %q [style=dashed, color=red, label=\"broken\"];\n", bl.From, bl.To)
	}

	b.WriteString("}\n")
	return b.String()
}

// ErrDotUnavailable means the GraphViz dot binary is not on PATH.
var ErrDotUnavailable = errors.New("visualize: graphviz dot not found on PATH")

// SVG pipes the DOT rendering through the GraphViz dot binary.
func (v *Visualizer) SVG() ([]byte, error) {
	if _, err := exec.LookPath("dot"); err != nil {
		return nil, ErrDotUnavailable
	}
	cmd := exec.Command("dot", "-Tsvg")
	cmd.Stdin = strings.NewReader(v.DOT())
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("visualize: dot -Tsvg: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out.Bytes(), nil
}

// WriteFile writes a rendering to path.
func WriteFile(path string, content []byte) error {
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("visualize: write %s: %w", path, err)
	}
	return nil
}
