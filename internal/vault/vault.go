// Package vault writes a network tree as an Obsidian vault.
package vault

// vault.go — Converts a tree.Result into Obsidian notes.
//
// Vault layout:
//   index.md                       — the whole tree as a nested list of wiki links
//   networks/<seg>/.../<name>.md   — one note per namespaced network
//   uncategorized/<name>.md        — one note per single-segment network
//
// Folders map to directories. A network that is also a folder gets both
// <path>.md and a <path>/ directory.

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"agentnav/internal/network"
	"agentnav/internal/tree"
)

const (
	indexPage        = "index.md"
	networksDir      = "networks"
	uncategorizedDir = "uncategorized"

	networkTag = "agent-network"
	indexTag   = "agentnav/index"
)

// Bundle holds generated page content (path → markdown). Paths are relative
// to the vault root and use forward slashes.
type Bundle struct {
	pages map[string]string
}

// Paths returns every page path in sorted order.
func (b *Bundle) Paths() []string {
	paths := make([]string, 0, len(b.pages))
	for p := range b.pages {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// Page returns the content of the page at p.
func (b *Bundle) Page(p string) (string, bool) {
	c, ok := b.pages[p]
	return c, ok
}

// Generate builds all vault pages from res. No files are written.
func Generate(res *tree.Result) (*Bundle, error) {
	pages := make(map[string]string)
	parents := res.Parents()

	var genErr error
	res.Walk(func(n *tree.Node, _ int) bool {
		p, ok := parents[n]
		if !ok {
			return true
		}
		rec, ok := res.Lookup(n.ID)
		if !ok {
			return true
		}
		note, err := buildNetworkNote(n, rec, p.IsUncategorized())
		if err != nil {
			genErr = fmt.Errorf("note %q: %w", n.ID, err)
			return false
		}
		pages[notePath(n, p.IsUncategorized())+".md"] = note
		return true
	})
	if genErr != nil {
		return nil, genErr
	}

	index, err := buildIndex(res, parents)
	if err != nil {
		return nil, err
	}
	pages[indexPage] = index
	return &Bundle{pages: pages}, nil
}

// Write writes every page of bundle under dir in sorted path order.
// Existing files are overwritten; the same bundle always yields the same
// bytes.
func Write(bundle *Bundle, dir string) error {
	for _, p := range bundle.Paths() {
		abs := filepath.Join(dir, filepath.FromSlash(p))
		if err := writeNote(abs, bundle.pages[p]); err != nil {
			return err
		}
	}
	return nil
}

// Export generates the vault for res and writes it under dir.
func Export(res *tree.Result, dir string) (*Bundle, error) {
	bundle, err := Generate(res)
	if err != nil {
		return nil, err
	}
	if err := Write(bundle, dir); err != nil {
		return nil, err
	}
	return bundle, nil
}

// ---------------------------------------------------------------------------
// Page builders
// ---------------------------------------------------------------------------

// notePath returns the vault path of n without the .md extension.
func notePath(n *tree.Node, uncategorized bool) string {
	if uncategorized {
		return path.Join(uncategorizedDir, sanitizeSegment(n.Label))
	}
	segs := strings.Split(n.ID, network.Separator)
	for i, s := range segs {
		segs[i] = sanitizeSegment(s)
	}
	return networksDir + "/" + strings.Join(segs, "/")
}

func buildNetworkNote(n *tree.Node, rec network.Record, uncategorized bool) (string, error) {
	tags := []string{networkTag}
	for _, t := range rec.Tags {
		if s := sanitizeTag(t); s != "" {
			tags = append(tags, s)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", n.Label)
	if rec.Description != "" {
		b.WriteString(rec.Description + "\n\n")
	}
	fmt.Fprintf(&b, "**Network**: `%s`\n", rec.AgentName)
	if !uncategorized {
		if i := strings.LastIndex(n.ID, network.Separator); i >= 0 {
			fmt.Fprintf(&b, "**Folder**: %s\n", strings.ReplaceAll(n.ID[:i], network.Separator, " / "))
		}
	}
	if len(n.Children) > 0 {
		b.WriteString("\n## Contains\n\n")
		for _, c := range n.Children {
			b.WriteString("- " + c.Label + "\n")
		}
	}

	return encodeNote(NoteMeta{
		AgentName:   rec.AgentName,
		Description: rec.Description,
		Tags:        tags,
	}, b.String())
}

// buildIndex renders the tree as a nested list. Networks are wiki links,
// pure folders are bold.
func buildIndex(res *tree.Result, parents map[*tree.Node]*tree.Node) (string, error) {
	var b strings.Builder
	b.WriteString("# Agent Networks\n\n")
	if len(res.Roots) == 0 {
		b.WriteString("_No networks._\n")
	}

	type entry struct {
		node  *tree.Node
		depth int
	}
	stack := make([]entry, 0, len(res.Roots))
	for _, n := range slices.Backward(res.Roots) {
		stack = append(stack, entry{n, 0})
	}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		indent := strings.Repeat("  ", e.depth)
		p, hasParent := parents[e.node]
		if _, ok := res.Lookup(e.node.ID); ok && hasParent {
			link := notePath(e.node, p.IsUncategorized())
			fmt.Fprintf(&b, "%s- [[%s|%s]]\n", indent, link, e.node.Label)
		} else {
			fmt.Fprintf(&b, "%s- **%s**\n", indent, e.node.Label)
		}

		for _, c := range slices.Backward(e.node.Children) {
			stack = append(stack, entry{c, e.depth + 1})
		}
	}

	return encodeNote(NoteMeta{Tags: []string{indexTag}}, b.String())
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// sanitizeSegment makes one path segment safe as a file or directory name.
// Characters Obsidian or common filesystems reject become "-"; empty, "."
// and ".." segments become "_".
func sanitizeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\\', ':', '*', '?', '"', '<', '>', '|', '#', '^', '[', ']':
			return '-'
		}
		if r < 0x20 {
			return '-'
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// sanitizeTag turns a tag into an Obsidian tag: no spaces, no leading #.
func sanitizeTag(t string) string {
	t = strings.TrimPrefix(strings.TrimSpace(t), "#")
	return strings.Join(strings.Fields(t), "-")
}

// writeNote writes content to p, creating parent directories as needed.
func writeNote(p, content string) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(p), err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	return nil
}
