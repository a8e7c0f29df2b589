package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentnav/internal/network"
	"agentnav/internal/tree"
)

func sampleResult() *tree.Result {
	return tree.Build([]network.Record{
		{AgentName: "industry/retail/macys", Description: "Retail assistant", Tags: []string{"retail", "customer service"}},
		{AgentName: "industry/telco/orch", Tags: []string{"#telco"}},
		{AgentName: "industry/telco"},
		{AgentName: "hello_world", Description: "Greets"},
	})
}

func TestGenerate_Layout(t *testing.T) {
	bundle, err := Generate(sampleResult())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"index.md",
		"networks/industry/retail/macys.md",
		"networks/industry/telco.md",
		"networks/industry/telco/orch.md",
		"uncategorized/hello_world.md",
	}, bundle.Paths())
}

func TestGenerate_NetworkNote(t *testing.T) {
	bundle, err := Generate(sampleResult())
	require.NoError(t, err)

	page, ok := bundle.Page("networks/industry/retail/macys.md")
	require.True(t, ok)

	meta, body, err := ParseNote([]byte(page))
	require.NoError(t, err)
	assert.Equal(t, "industry/retail/macys", meta.AgentName)
	assert.Equal(t, "Retail assistant", meta.Description)
	assert.Equal(t, []string{"agent-network", "customer-service", "retail"}, meta.Tags)

	s := string(body)
	assert.True(t, strings.HasPrefix(s, "# macys\n"), "body: %q", s)
	assert.Contains(t, s, "Retail assistant")
	assert.Contains(t, s, "**Network**: `industry/retail/macys`")
	assert.Contains(t, s, "**Folder**: industry / retail")
}

func TestGenerate_NetworkThatIsAlsoAFolder(t *testing.T) {
	bundle, err := Generate(sampleResult())
	require.NoError(t, err)

	page, ok := bundle.Page("networks/industry/telco.md")
	require.True(t, ok)
	assert.Contains(t, page, "## Contains\n\n- orch\n")

	orch, _ := bundle.Page("networks/industry/telco/orch.md")
	meta, _, err := ParseNote([]byte(orch))
	require.NoError(t, err)
	assert.Equal(t, []string{"agent-network", "telco"}, meta.Tags)
}

func TestGenerate_UncategorizedNote(t *testing.T) {
	bundle, err := Generate(sampleResult())
	require.NoError(t, err)

	page, ok := bundle.Page("uncategorized/hello_world.md")
	require.True(t, ok)
	assert.NotContains(t, page, "**Folder**")
	assert.Contains(t, page, "Greets")
}

func TestGenerate_Index(t *testing.T) {
	bundle, err := Generate(sampleResult())
	require.NoError(t, err)

	page, _ := bundle.Page("index.md")
	meta, body, err := ParseNote([]byte(page))
	require.NoError(t, err)
	assert.Equal(t, []string{indexTag}, meta.Tags)

	want := strings.Join([]string{
		"# Agent Networks",
		"",
		"- **industry**",
		"  - **retail**",
		"    - [[networks/industry/retail/macys|macys]]",
		"  - [[networks/industry/telco|telco]]",
		"    - [[networks/industry/telco/orch|orch]]",
		"- **Uncategorized**",
		"  - [[uncategorized/hello_world|hello_world]]",
		"",
	}, "\n")
	assert.Equal(t, want, string(body))
}

func TestGenerate_Empty(t *testing.T) {
	bundle, err := Generate(tree.Build(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"index.md"}, bundle.Paths())
	page, _ := bundle.Page("index.md")
	assert.Contains(t, page, "_No networks._")
}

func TestGenerate_FolderNamedUncategorized(t *testing.T) {
	res := tree.Build([]network.Record{{AgentName: "uncategorized/x"}, {AgentName: "x"}})
	bundle, err := Generate(res)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"index.md",
		"networks/uncategorized/x.md",
		"uncategorized/x.md",
	}, bundle.Paths())
}

func TestExport_WritesAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	res := sampleResult()

	first, err := Export(res, dir)
	require.NoError(t, err)

	read := func() map[string]string {
		out := make(map[string]string)
		for _, p := range first.Paths() {
			data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(p)))
			require.NoError(t, err)
			out[p] = string(data)
		}
		return out
	}
	before := read()
	for _, p := range first.Paths() {
		want, _ := first.Page(p)
		assert.Equal(t, want, before[p], p)
	}

	_, err = Export(res, dir)
	require.NoError(t, err)
	assert.Equal(t, before, read())
}

func TestSanitizeSegment(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"", "_"},
		{".", "_"},
		{"..", "_"},
		{"a:b", "a-b"},
		{"what?", "what-"},
		{"[x]", "-x-"},
		{"héllo", "héllo"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, sanitizeSegment(tc.in), tc.in)
	}
}

func TestGenerate_DegenerateNamesStayInsideVault(t *testing.T) {
	res := tree.Build([]network.Record{{AgentName: "../../etc/passwd"}, {AgentName: ".."}})
	bundle, err := Generate(res)
	require.NoError(t, err)
	for _, p := range bundle.Paths() {
		assert.NotContains(t, p, "..", p)
	}
	assert.Contains(t, bundle.Paths(), "networks/_/_/etc/passwd.md")
	assert.Contains(t, bundle.Paths(), "uncategorized/_.md")
}

func TestParseNote_Errors(t *testing.T) {
	_, _, err := ParseNote([]byte("no frontmatter"))
	assert.Error(t, err)
	_, _, err = ParseNote([]byte("---\ntags: []\n"))
	assert.Error(t, err)
}
