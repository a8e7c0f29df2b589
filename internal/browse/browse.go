// Package browse is an interactive terminal browser for a network tree.
//
// Folders expand and collapse, a filter narrows the tree to matching
// networks, and choosing a network ends the program with that network
// selected.
package browse

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"agentnav/internal/network"
	"agentnav/internal/render"
	"agentnav/internal/tree"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5DADE2")).
			MarginBottom(1)

	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#117A65"))

	folderStyle = lipgloss.NewStyle().Bold(true)

	detailStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#48C9B0")).
			Padding(0, 1).
			MarginTop(1)

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Expand   key.Binding
	Collapse key.Binding
	Toggle   key.Binding
	Select   key.Binding
	Filter   key.Binding
	Inspect  key.Binding
	Clear    key.Binding
	Help     key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Expand: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→/l", "expand"),
	),
	Collapse: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←/h", "collapse"),
	),
	Toggle: key.NewBinding(
		key.WithKeys(" ", "space"),
		key.WithHelp("space", "toggle"),
	),
	Select: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "select"),
	),
	Filter: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "filter"),
	),
	Inspect: key.NewBinding(
		key.WithKeys("i"),
		key.WithHelp("i", "agents"),
	),
	Clear: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "clear filter"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "more"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Toggle, k.Select, k.Filter, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Expand, k.Collapse},
		{k.Toggle, k.Select, k.Filter, k.Clear},
		{k.Inspect},
		{k.Help, k.Quit},
	}
}

// row is one visible line of the tree.
type row struct {
	node  *tree.Node
	depth int
}

// Model is the bubbletea model of the browser.
type Model struct {
	title    string
	res      *tree.Result
	parents  map[*tree.Node]*tree.Node
	expanded map[*tree.Node]bool
	rows     []row
	cursor   int

	filter    textinput.Model
	filtering bool

	help     help.Model
	renderer *render.Renderer
	height   int

	inspect  Inspector
	inspects map[string]inspection

	selected string
	quitting bool
}

// defaultHeight stands in for the terminal height until the first
// tea.WindowSizeMsg arrives.
const defaultHeight = 24

// Inspector fetches the agent graph of a network.
type Inspector func(ctx context.Context, name string) (network.Inspection, error)

// inspection is the state of one network's agent graph in the detail pane.
type inspection struct {
	loading bool
	result  network.Inspection
	err     error
}

// inspectedMsg carries the answer of an Inspector back to Update.
type inspectedMsg struct {
	id     string
	result network.Inspection
	err    error
}

// Option configures a Model.
type Option func(*Model)

// WithInspector lets the user load a network's agent graph into the detail
// pane. Without one the key does nothing.
func WithInspector(fn Inspector) Option {
	return func(m *Model) { m.inspect = fn }
}

// New returns a browser over res with every root expanded.
func New(title string, res *tree.Result, opts ...Option) Model {
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "filter networks"
	ti.CharLimit = 256

	m := Model{
		title:    title,
		res:      res,
		parents:  res.Parents(),
		expanded: make(map[*tree.Node]bool),
		filter:   ti,
		help:     help.New(),
		renderer: render.New(render.Options{}),
		inspects: make(map[string]inspection),
	}
	for _, opt := range opts {
		opt(&m)
	}
	for _, n := range res.Roots {
		m.expanded[n] = true
	}
	m.refresh()
	return m
}

// Selected returns the ID of the chosen network, or "" if the user quit
// without choosing.
func (m Model) Selected() string {
	return m.selected
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(msg)
		}
		return m.updateTree(msg)
	case inspectedMsg:
		m.inspects[msg.id] = inspection{result: msg.result, err: msg.err}
		return m, nil
	}
	return m, nil
}

func (m Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, keys.Clear):
		m.filtering = false
		m.filter.Blur()
		m.filter.SetValue("")
		m.refresh()
		return m, nil
	case key.Matches(msg, keys.Select):
		m.filtering = false
		m.filter.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.cursor = 0
	m.refresh()
	return m, cmd
}

func (m Model) updateTree(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.Expand):
		if n := m.current(); n != nil && !n.IsLeaf() {
			m.expanded[n] = true
			m.refresh()
		}
	case key.Matches(msg, keys.Collapse):
		m.collapse()
	case key.Matches(msg, keys.Toggle):
		m.toggle()
	case key.Matches(msg, keys.Select):
		n := m.current()
		if n == nil {
			break
		}
		if _, ok := m.networkAt(n); ok {
			m.selected = n.ID
			m.quitting = true
			return m, tea.Quit
		}
		m.toggle()
	case key.Matches(msg, keys.Filter):
		m.filtering = true
		cmd := m.filter.Focus()
		return m, tea.Batch(cmd, textinput.Blink)
	case key.Matches(msg, keys.Inspect):
		return m, m.startInspect()
	case key.Matches(msg, keys.Clear):
		if m.filter.Value() != "" {
			m.filter.SetValue("")
			m.refresh()
		}
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

// startInspect returns a command fetching the agent graph of the highlighted
// network, unless one is already loaded or loading.
func (m Model) startInspect() tea.Cmd {
	n := m.current()
	if m.inspect == nil || n == nil {
		return nil
	}
	if _, ok := m.networkAt(n); !ok {
		return nil
	}
	if st, ok := m.inspects[n.ID]; ok && (st.loading || st.err == nil) {
		return nil
	}
	m.inspects[n.ID] = inspection{loading: true}
	id, fn := n.ID, m.inspect
	return func() tea.Msg {
		res, err := fn(context.Background(), id)
		return inspectedMsg{id: id, result: res, err: err}
	}
}

func (m Model) current() *tree.Node {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return nil
	}
	return m.rows[m.cursor].node
}

// networkAt returns the record behind n. Roots are always folders or the
// Uncategorized bucket: single-segment networks live under Uncategorized.
func (m Model) networkAt(n *tree.Node) (network.Record, bool) {
	if m.parents[n] == nil {
		return network.Record{}, false
	}
	return m.res.Lookup(n.ID)
}

func (m *Model) toggle() {
	n := m.current()
	if n == nil || n.IsLeaf() {
		return
	}
	m.expanded[n] = !m.expanded[n]
	m.refresh()
}

// collapse folds the current folder, or jumps to the parent when the cursor
// is on a leaf or an already collapsed folder.
func (m *Model) collapse() {
	n := m.current()
	if n == nil {
		return
	}
	if !n.IsLeaf() && m.expanded[n] {
		m.expanded[n] = false
		m.refresh()
		return
	}
	if p := m.parents[n]; p != nil {
		for i, r := range m.rows {
			if r.node == p {
				m.cursor = i
				break
			}
		}
	}
}

// refresh rebuilds the visible rows. With a filter, only networks whose ID
// contains the query (case-insensitively) are shown, with their ancestors
// forced open.
func (m *Model) refresh() {
	var keep map[*tree.Node]bool
	if q := strings.ToLower(strings.TrimSpace(m.filter.Value())); q != "" {
		keep = make(map[*tree.Node]bool)
		m.res.Walk(func(n *tree.Node, _ int) bool {
			if _, ok := m.networkAt(n); !ok || !strings.Contains(strings.ToLower(n.ID), q) {
				return true
			}
			for cur := n; cur != nil && !keep[cur]; cur = m.parents[cur] {
				keep[cur] = true
			}
			return true
		})
	}

	rows := make([]row, 0, len(m.rows))
	stack := make([]row, 0, len(m.res.Roots))
	for _, n := range slices.Backward(m.res.Roots) {
		stack = append(stack, row{n, 0})
	}
	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if keep != nil && !keep[r.node] {
			continue
		}
		rows = append(rows, r)
		open := m.expanded[r.node] || (keep != nil && keep[r.node])
		if !open {
			continue
		}
		for _, c := range slices.Backward(r.node.Children) {
			stack = append(stack, row{c, r.depth + 1})
		}
	}

	m.rows = rows
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")

	if m.filtering || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n")
	}

	if len(m.rows) == 0 {
		b.WriteString(dimStyle.Render("no networks"))
		b.WriteString("\n")
	}
	first, last := m.window()
	for i := first; i < last; i++ {
		b.WriteString(m.renderRow(i))
		b.WriteString("\n")
	}

	if n := m.current(); n != nil {
		if rec, ok := m.networkAt(n); ok {
			b.WriteString(m.renderDetail(rec))
			b.WriteString("\n")
		}
	}

	b.WriteString(m.help.View(keys))
	return b.String()
}

// window returns the range of rows that fit on screen around the cursor.
func (m Model) window() (int, int) {
	height := m.height
	if height <= 0 {
		height = defaultHeight
	}
	visible := height - 10
	if visible >= len(m.rows) {
		return 0, len(m.rows)
	}
	if visible < 1 {
		visible = 1
	}
	first := m.cursor - visible/2
	if first < 0 {
		first = 0
	}
	last := first + visible
	if last > len(m.rows) {
		last = len(m.rows)
		first = last - visible
	}
	return first, last
}

func (m Model) renderRow(i int) string {
	r := m.rows[i]
	marker := "  "
	if !r.node.IsLeaf() {
		if m.expanded[r.node] || m.filter.Value() != "" {
			marker = "▾ "
		} else {
			marker = "▸ "
		}
	}
	label := r.node.Label
	if !r.node.IsLeaf() {
		label = folderStyle.Render(label)
	}
	line := indent(r.depth) + marker + label
	if i == m.cursor {
		return cursorStyle.Render(line)
	}
	return line
}

func (m Model) renderDetail(rec network.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", folderStyle.Render(rec.AgentName))
	if rec.Description != "" {
		fmt.Fprintf(&b, "\n%s", rec.Description)
	}
	if len(rec.Tags) > 0 {
		fmt.Fprintf(&b, "\n%s", m.renderer.Chips(rec.Tags))
	}
	if st, ok := m.inspects[rec.AgentName]; ok {
		switch {
		case st.loading:
			fmt.Fprintf(&b, "\n\n%s", dimStyle.Render("loading agents…"))
		case st.err != nil:
			fmt.Fprintf(&b, "\n\n%s", dimStyle.Render("agents unavailable: "+st.err.Error()))
		default:
			if st.result.Function != "" {
				fmt.Fprintf(&b, "\n\n%s", st.result.Function)
			}
			if g := m.renderer.Graph(st.result.Agents); g != "" {
				fmt.Fprintf(&b, "\n\n%s", g)
			}
		}
	}
	return detailStyle.Render(b.String())
}

// indent returns the leading space of a row at depth, capped at
// render.MaxIndent levels.
func indent(depth int) string {
	if depth <= render.MaxIndent {
		return strings.Repeat("  ", depth)
	}
	return strings.Repeat("  ", render.MaxIndent) + dimStyle.Render(fmt.Sprintf("┄%d┄ ", depth-render.MaxIndent))
}

// Run starts the browser on the terminal and returns the selected network
// ID, or "" when the user quit without choosing one.
func Run(title string, res *tree.Result, opts ...Option) (string, error) {
	p := tea.NewProgram(New(title, res, opts...), tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return "", err
	}
	final, ok := result.(Model)
	if !ok {
		return "", fmt.Errorf("browse: unexpected model %T", result)
	}
	return final.Selected(), nil
}
