package browse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"agentnav/internal/network"
	"agentnav/internal/tree"
)

func sample() *tree.Result {
	return tree.Build([]network.Record{
		{AgentName: "industry/retail/macys", Description: "Department store assistant", Tags: []string{"retail"}},
		{AgentName: "industry/telco/orch"},
		{AgentName: "standalone"},
	})
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "space":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func press(t *testing.T, m Model, ks ...string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range ks {
		var next tea.Model
		next, cmd = m.Update(keyMsg(k))
		m = next.(Model)
	}
	return m, cmd
}

func visible(m Model) []string {
	out := make([]string, len(m.rows))
	for i, r := range m.rows {
		out[i] = r.node.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNew_RootsExpanded(t *testing.T) {
	m := New("networks", sample())
	want := []string{"industry", "industry/retail", "industry/telco", tree.UncategorizedID, "standalone"}
	if got := visible(m); !equal(got, want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
}

func TestExpandCollapse(t *testing.T) {
	m := New("networks", sample())

	m, _ = press(t, m, "down", "right")
	want := []string{"industry", "industry/retail", "industry/retail/macys", "industry/telco", tree.UncategorizedID, "standalone"}
	if got := visible(m); !equal(got, want) {
		t.Fatalf("after expand rows = %v", got)
	}

	// On a leaf, left jumps to the parent; a second left folds it.
	m, _ = press(t, m, "down", "left")
	if m.current().ID != "industry/retail" {
		t.Fatalf("cursor on %q, want industry/retail", m.current().ID)
	}
	m, _ = press(t, m, "left")
	if got := visible(m); len(got) != 5 {
		t.Errorf("expected retail folded, rows = %v", got)
	}

	m, _ = press(t, m, "space")
	if got := visible(m); len(got) != 6 {
		t.Errorf("space should toggle open, rows = %v", got)
	}
}

func TestCursorBounds(t *testing.T) {
	m := New("networks", sample())
	m, _ = press(t, m, "up", "k")
	if m.cursor != 0 {
		t.Errorf("cursor = %d, want 0", m.cursor)
	}
	m, _ = press(t, m, "down", "down", "down", "down", "down", "j", "j")
	if m.cursor != len(m.rows)-1 {
		t.Errorf("cursor = %d, want %d", m.cursor, len(m.rows)-1)
	}
}

func TestSelectNetwork(t *testing.T) {
	m := New("networks", sample())
	// Cursor to "standalone" (last row).
	m, _ = press(t, m, "down", "down", "down", "down")
	m, cmd := press(t, m, "enter")
	if m.Selected() != "standalone" {
		t.Fatalf("Selected = %q", m.Selected())
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if m.View() != "" {
		t.Error("view should be empty after quitting")
	}
}

func TestEnterOnFolderToggles(t *testing.T) {
	m := New("networks", sample())
	m, _ = press(t, m, "enter")
	if m.Selected() != "" {
		t.Fatalf("folder must not be selectable, got %q", m.Selected())
	}
	if got := visible(m); !equal(got, []string{"industry", tree.UncategorizedID, "standalone"}) {
		t.Errorf("rows = %v", got)
	}
}

func TestUncategorizedBucketNotSelectable(t *testing.T) {
	m := New("networks", sample())
	m, _ = press(t, m, "down", "down", "down")
	if m.current().ID != tree.UncategorizedID {
		t.Fatalf("cursor on %q", m.current().ID)
	}
	m, _ = press(t, m, "enter")
	if m.Selected() != "" {
		t.Errorf("bucket selected as %q", m.Selected())
	}
}

func TestFilter(t *testing.T) {
	m := New("networks", sample())
	m, _ = press(t, m, "/", "m", "a", "c")
	if !m.filtering {
		t.Fatal("expected filter mode")
	}
	want := []string{"industry", "industry/retail", "industry/retail/macys"}
	if got := visible(m); !equal(got, want) {
		t.Fatalf("filtered rows = %v, want %v", got, want)
	}

	// Enter leaves filter mode but keeps the filter.
	m, _ = press(t, m, "enter")
	if m.filtering {
		t.Fatal("enter should leave filter mode")
	}
	if got := visible(m); !equal(got, want) {
		t.Errorf("rows changed after enter: %v", got)
	}

	// Esc in tree mode clears it.
	m, _ = press(t, m, "esc")
	if got := visible(m); len(got) != 5 {
		t.Errorf("rows after clear = %v", got)
	}
}

func TestFilterNoMatch(t *testing.T) {
	m := New("networks", sample())
	m, _ = press(t, m, "/", "z", "z", "z")
	if len(m.rows) != 0 {
		t.Fatalf("expected no rows, got %v", visible(m))
	}
	if !strings.Contains(m.View(), "no networks") {
		t.Error("expected empty-state message")
	}
	m, _ = press(t, m, "esc")
	if m.filtering || len(m.rows) != 5 {
		t.Errorf("esc should clear filter: filtering=%v rows=%v", m.filtering, visible(m))
	}
}

func TestViewShowsDetail(t *testing.T) {
	m := New("networks", sample())
	m, _ = press(t, m, "down", "right", "down")
	view := m.View()
	for _, want := range []string{"networks", "macys", "Department store assistant", "#retail"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestQuit(t *testing.T) {
	m := New("networks", sample())
	m, cmd := press(t, m, "q")
	if cmd == nil || m.Selected() != "" {
		t.Fatalf("q should quit without selection")
	}
}

func TestWindow(t *testing.T) {
	var recs []network.Record
	for _, c := range "abcdefghijklmnopqrstuvwxyz" {
		recs = append(recs, network.Record{AgentName: "f/" + string(c)})
	}
	m := New("networks", tree.Build(recs))
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 15})
	m = next.(Model)
	first, last := m.window()
	if last-first != 5 || first != 0 {
		t.Errorf("window = [%d,%d)", first, last)
	}
	for i := 0; i < 20; i++ {
		m, _ = press(t, m, "down")
	}
	first, last = m.window()
	if m.cursor < first || m.cursor >= last {
		t.Errorf("cursor %d outside window [%d,%d)", m.cursor, first, last)
	}
}

func TestFirstFrameUsesDefaultHeight(t *testing.T) {
	var recs []network.Record
	for i := range 500 {
		recs = append(recs, network.Record{AgentName: fmt.Sprintf("f/n%03d", i)})
	}
	m := New("networks", tree.Build(recs))
	first, last := m.window()
	if last-first != defaultHeight-10 {
		t.Errorf("window before any resize = [%d,%d), want %d rows", first, last, defaultHeight-10)
	}
	if lines := strings.Count(m.View(), "\n"); lines > defaultHeight*2 {
		t.Errorf("first frame has %d lines", lines)
	}
}

func TestDeepRowsStayNarrow(t *testing.T) {
	const depth = 10000
	res := tree.Build([]network.Record{{AgentName: strings.Repeat("n/", depth-1) + "leaf"}})
	m := New("networks", res)
	res.Walk(func(n *tree.Node, _ int) bool {
		m.expanded[n] = true
		return true
	})
	m.refresh()
	if len(m.rows) != depth {
		t.Fatalf("expected %d rows, got %d", depth, len(m.rows))
	}
	m.cursor = len(m.rows) - 1

	view := m.View()
	if len(view) > 64<<10 {
		t.Fatalf("view is %d bytes", len(view))
	}
	if !strings.Contains(view, "leaf") {
		t.Error("deepest row not shown")
	}
}

func TestInspect(t *testing.T) {
	calls := 0
	inspector := func(_ context.Context, name string) (network.Inspection, error) {
		calls++
		if name != "industry/retail/macys" {
			return network.Inspection{}, errors.New("unexpected network " + name)
		}
		return network.Inspection{
			Function: "Helps shoppers",
			Agents: []network.Agent{
				{Origin: "concierge", Tools: []string{"stock_checker"}},
				{Origin: "stock_checker"},
			},
		}, nil
	}
	m := New("networks", sample(), WithInspector(inspector))
	m, _ = press(t, m, "down", "right", "down")

	m, cmd := press(t, m, "i")
	if cmd == nil {
		t.Fatal("i on a network should start loading its agents")
	}
	if !strings.Contains(m.View(), "loading agents") {
		t.Errorf("expected loading state:\n%s", m.View())
	}
	if _, again := press(t, m, "i"); again != nil {
		t.Error("a second i while loading must not fetch again")
	}

	next, _ := m.Update(cmd())
	m = next.(Model)
	view := m.View()
	for _, want := range []string{"Helps shoppers", "concierge", "stock_checker"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if calls != 1 {
		t.Errorf("inspector called %d times, want 1", calls)
	}
}

func TestInspect_FailureCanRetry(t *testing.T) {
	inspector := func(context.Context, string) (network.Inspection, error) {
		return network.Inspection{}, errors.New("server down")
	}
	m := New("networks", sample(), WithInspector(inspector))
	m, _ = press(t, m, "down", "right", "down")
	m, cmd := press(t, m, "i")
	next, _ := m.Update(cmd())
	m = next.(Model)
	if !strings.Contains(m.View(), "agents unavailable: server down") {
		t.Errorf("expected error in detail pane:\n%s", m.View())
	}
	if _, retry := press(t, m, "i"); retry == nil {
		t.Error("i after a failure should retry")
	}
}

func TestInspect_Ignored(t *testing.T) {
	m := New("networks", sample())
	m, _ = press(t, m, "down", "right", "down")
	if _, cmd := press(t, m, "i"); cmd != nil {
		t.Error("without an inspector i does nothing")
	}

	called := false
	m = New("networks", sample(), WithInspector(func(context.Context, string) (network.Inspection, error) {
		called = true
		return network.Inspection{}, nil
	}))
	if _, cmd := press(t, m, "i"); cmd != nil {
		t.Error("i on a folder does nothing")
	}
	if called {
		t.Error("inspector called for a folder")
	}
}
