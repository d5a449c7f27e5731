package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/network-cli/internal/store"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadEdges_CSV(t *testing.T) {
	path := writeFile(t, "edges.csv", strings.Join([]string{
		"from_id,to_id,trust,strength,last_interaction",
		"alice,bob,0.9,0.8,2026-01-15T10:00:00Z",
		"bob,carol,0.8,0.7,",
		"carol,dave,0.85,0.6,2026-02-01T09:30:00Z",
	}, "\n"))

	st := store.NewMemory()
	summary, err := LoadEdges(context.Background(), st, path)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Imported)
	assert.Zero(t, summary.Skipped)

	edges, err := st.Edges(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.InDelta(t, 0.9, edges[0].Trust, 1e-9)
	assert.Equal(t, 2026, edges[0].LastInteraction.Year())
}

func TestLoadEdges_SkipsMalformedRows(t *testing.T) {
	path := writeFile(t, "edges.csv", strings.Join([]string{
		"alice,bob,0.9,0.8",
		"bad,row,not-a-number,0.5",
		"self,self,0.5,0.5",
		"carol,dave,1.7,0.5", // trust out of range
		"bob,carol,0.6,0.5",
	}, "\n"))

	st := store.NewMemory()
	summary, err := LoadEdges(context.Background(), st, path)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Imported)
	assert.Equal(t, 3, summary.Skipped)
}

func TestLoadEdges_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("edges")
	require.NoError(t, err)
	for _, rowData := range [][]string{
		{"from_id", "to_id", "trust", "strength"},
		{"alice", "bob", "0.9", "0.8"},
		{"bob", "alice", "0.7", "0.8"},
	} {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "edges.xlsx")
	require.NoError(t, f.Save(path))

	st := store.NewMemory()
	summary, err := LoadEdges(context.Background(), st, path)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Imported)
}

func TestLoadEdges_UnsupportedExtension(t *testing.T) {
	path := writeFile(t, "edges.txt", "alice,bob,0.9,0.8")
	_, err := LoadEdges(context.Background(), store.NewMemory(), path)
	assert.Error(t, err)
}

func TestLoadProfiles(t *testing.T) {
	path := writeFile(t, "profiles.json", `[
		{
			"participant_id": "alice",
			"needs": {"explicit": [{"text": "seed funding", "category": "funding", "priority": "high"}]},
			"offerings": {"explicit": [{"text": "ml consulting", "category": "expertise", "capacity": "moderate"}]}
		},
		{
			"participant_id": "",
			"needs": {"explicit": [{"text": "x", "category": "other", "priority": "low"}]},
			"offerings": {"explicit": [{"text": "y", "category": "other", "capacity": "limited"}]}
		}
	]`)

	st := store.NewMemory()
	summary, err := LoadProfiles(context.Background(), st, path)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Imported)
	assert.Equal(t, 1, summary.Skipped)

	p, err := st.Profile(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "seed funding", p.Needs.Explicit[0].Text)
}

func TestLoadProfiles_BadJSON(t *testing.T) {
	path := writeFile(t, "profiles.json", `{not json`)
	_, err := LoadProfiles(context.Background(), store.NewMemory(), path)
	assert.Error(t, err)
}

func TestStreamCSV_HeaderChannel(t *testing.T) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("a,b\n1,2\n3,4\n"), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	require.NoError(t, <-errCh)

	assert.Equal(t, []string{"a", "b"}, <-headerCh)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1", "2"}, rows[0])
}
