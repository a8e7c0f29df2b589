package render

// graph.go — Draws the agent graph of one network.

import (
	"github.com/charmbracelet/lipgloss"
	ltree "github.com/charmbracelet/lipgloss/tree"

	"agentnav/internal/network"
)

var (
	agentStyle = lipgloss.NewStyle().Bold(true)
	toolStyle  = lipgloss.NewStyle()
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// repeatMark follows an agent that is already drawn elsewhere in the graph.
const repeatMark = "↺"

// Graph draws agents as trees rooted at the network's entry points. Each
// agent's tools hang below it. An agent is expanded once, at its shallowest
// occurrence; later references are marked instead, so cycles terminate.
// Agents unreachable from an entry point get trees of their own.
func (r *Renderer) Graph(agents []network.Agent) string {
	if len(agents) == 0 {
		return ""
	}
	byOrigin := make(map[string]network.Agent, len(agents))
	for _, a := range agents {
		if _, ok := byOrigin[a.Origin]; !ok {
			byOrigin[a.Origin] = a
		}
	}

	forest := graphStyle(ltree.New())
	expanded := make(map[string]bool)

	type pending struct {
		name   string
		parent *ltree.Tree
	}
	var queue []pending
	drain := func() {
		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]

			a, known := byOrigin[p.name]
			label := p.name
			if a.DisplayAs != "" {
				label += " " + dimStyle.Render("("+a.DisplayAs+")")
			}
			switch {
			case expanded[p.name]:
				p.parent.Child(label + " " + dimStyle.Render(repeatMark))
			case !known || len(a.Tools) == 0:
				expanded[p.name] = true
				p.parent.Child(label)
			default:
				expanded[p.name] = true
				sub := graphStyle(ltree.Root(label))
				p.parent.Child(sub)
				for _, t := range a.Tools {
					queue = append(queue, pending{t, sub})
				}
			}
		}
	}

	roots := network.Entrypoints(agents)
	for _, a := range agents {
		roots = append(roots, a.Origin)
	}
	for _, name := range roots {
		if expanded[name] {
			continue
		}
		queue = append(queue, pending{name, forest})
		drain()
	}
	return forest.String()
}

func graphStyle(t *ltree.Tree) *ltree.Tree {
	return t.
		Enumerator(ltree.RoundedEnumerator).
		EnumeratorStyle(enumeratorStyle.MarginRight(1)).
		RootStyle(agentStyle).
		ItemStyle(toolStyle)
}
