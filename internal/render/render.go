// Package render draws a network tree for the terminal.
package render

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"agentnav/internal/network"
	"agentnav/internal/tree"
)

// palette is the fixed set of colours handed out to tags.
var palette = []lipgloss.Color{
	"#7FB3D5", // light accent
	"#5DADE2",
	"#48C9B0",
	"#117A65",
	"#27AE60",
	"#E67E22",
	"#EC407A",
	"#6C757D",
	"#F4D03F",
}

// TagPalette assigns palette colours to tags in first-seen order so that a
// tag keeps its colour for as long as the palette lives.
type TagPalette struct {
	colors map[string]lipgloss.Color
}

// NewTagPalette returns an empty palette.
func NewTagPalette() *TagPalette {
	return &TagPalette{colors: make(map[string]lipgloss.Color)}
}

// Color returns the colour of tag, assigning the next one on first use.
func (p *TagPalette) Color(tag string) lipgloss.Color {
	if c, ok := p.colors[tag]; ok {
		return c
	}
	c := palette[len(p.colors)%len(palette)]
	p.colors[tag] = c
	return c
}

// Styles used by the renderer.
var (
	folderStyle     = lipgloss.NewStyle().Bold(true)
	networkStyle    = lipgloss.NewStyle()
	enumeratorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	chipStyle       = lipgloss.NewStyle().Padding(0, 1)
)

// Branch glyphs, matching lipgloss's rounded tree enumerator.
const (
	branchMid  = "├── "
	branchLast = "╰── "
	indentBar  = "│   "
	indentNone = "    "
)

// MaxIndent is the deepest level drawn with full guides. Deeper lines keep
// the first MaxIndent guides and then show how many levels were elided, so
// a line never grows with the depth of the tree.
const MaxIndent = 32

// Options controls rendering.
type Options struct {
	// Pretty shows labels start-cased ("retail_demo" → "Retail Demo").
	Pretty bool
	// HideTags leaves tag chips out.
	HideTags bool
}

// Renderer renders trees. The zero value is not usable; use New.
type Renderer struct {
	opts Options
	tags *TagPalette
}

// New returns a Renderer with its own tag palette.
func New(opts Options) *Renderer {
	return &Renderer{opts: opts, tags: NewTagPalette()}
}

// Render returns res drawn as a tree, one root after another.
//
// Lines are produced depth-first from an explicit stack; only the guide
// prefix and the label of each line are styled.
func (r *Renderer) Render(res *tree.Result) string {
	if len(res.Roots) == 0 {
		return ""
	}

	type frame struct {
		node  *tree.Node
		depth int
		last  bool
	}
	stack := make([]frame, 0, len(res.Roots))
	for i, n := range slices.Backward(res.Roots) {
		stack = append(stack, frame{n, 0, i == len(res.Roots)-1})
	}

	var b strings.Builder
	// lasts[d] reports whether the open node at depth d is its parent's last
	// child, which decides the guide drawn in column d.
	var lasts []bool
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		lasts = append(lasts[:f.depth], f.last)

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(enumeratorStyle.Render(Guides(lasts)))
		if f.node.IsLeaf() {
			b.WriteString(networkStyle.Render(r.withTags(res, f.node)))
			continue
		}
		b.WriteString(folderStyle.Render(r.folder(res, f.node)))
		for i, c := range slices.Backward(f.node.Children) {
			stack = append(stack, frame{c, f.depth + 1, i == len(f.node.Children)-1})
		}
	}
	return b.String()
}

// Guides returns the prefix drawn before a node whose ancestors, from the
// root down to the node itself, are last children as reported by lasts.
func Guides(lasts []bool) string {
	if len(lasts) == 0 {
		return ""
	}
	depth := len(lasts) - 1
	var b strings.Builder
	shown := min(depth, MaxIndent)
	for _, last := range lasts[:shown] {
		if last {
			b.WriteString(indentNone)
		} else {
			b.WriteString(indentBar)
		}
	}
	if depth > shown {
		fmt.Fprintf(&b, "┄%d┄ ", depth-shown)
	}
	if lasts[depth] {
		b.WriteString(branchLast)
	} else {
		b.WriteString(branchMid)
	}
	return b.String()
}

func (r *Renderer) label(n *tree.Node) string {
	if r.opts.Pretty && !n.IsUncategorized() {
		if pretty := network.DisplayName(n.Label); pretty != "" {
			return pretty
		}
	}
	return n.Label
}

// folder renders a node with children. A folder that is also a network
// carries the network's tags.
func (r *Renderer) folder(res *tree.Result, n *tree.Node) string {
	if n.IsUncategorized() {
		return r.label(n)
	}
	return r.withTags(res, n)
}

func (r *Renderer) withTags(res *tree.Result, n *tree.Node) string {
	label := r.label(n)
	if r.opts.HideTags {
		return label
	}
	rec, ok := res.Lookup(n.ID)
	if !ok || len(rec.Tags) == 0 {
		return label
	}
	return label + " " + r.Chips(rec.Tags)
}

// Chips renders tags as coloured chips separated by spaces.
func (r *Renderer) Chips(tags []string) string {
	chips := make([]string, len(tags))
	for i, t := range tags {
		chips[i] = chipStyle.Foreground(r.tags.Color(t)).Render("#" + t)
	}
	return strings.Join(chips, " ")
}
