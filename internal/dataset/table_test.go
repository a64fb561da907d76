package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTable(t *testing.T) {
	path := writeCSV(t, "champs.csv", "Name,Class,HP\nAmumu,Tank,615\nAhri,Mage,526\n")

	table, err := LoadTable(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Name", "Class", "HP"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "Tank", table.Rows[0]["Class"])
	assert.Equal(t, "526", table.Rows[1]["HP"])
	assert.True(t, table.HasColumn("HP"))
	assert.False(t, table.HasColumn("MP"))
}

func TestLoadTableErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadTable(filepath.Join(t.TempDir(), "nope.csv"))
		assert.Error(t, err)
	})

	t.Run("header only", func(t *testing.T) {
		path := writeCSV(t, "empty.csv", "Name,HP\n")
		_, err := LoadTable(path)
		assert.Error(t, err)
	})

	t.Run("duplicate column", func(t *testing.T) {
		path := writeCSV(t, "dup.csv", "Name,Name\nA,B\n")
		_, err := LoadTable(path)
		assert.Error(t, err)
	})
}

func TestJoin(t *testing.T) {
	left := &Table{
		Columns: []string{"Name", "Class"},
		Rows: []map[string]string{
			{"Name": "Amumu", "Class": "Tank"},
			{"Name": "Ahri", "Class": "Mage"},
			{"Name": "Sion", "Class": "Tank"},
		},
	}
	right := &Table{
		Columns: []string{"Name", "WinRate"},
		Rows: []map[string]string{
			{"Name": "Ahri", "WinRate": "51.2%"},
			{"Name": "Amumu", "WinRate": "52.9%"},
			{"Name": "Zoe", "WinRate": "49.1%"},
		},
	}

	result, err := Join(left, right, "Name")
	require.NoError(t, err)

	assert.Equal(t, []string{"Name", "Class", "WinRate"}, result.Table.Columns)
	require.Len(t, result.Table.Rows, 2)
	// Row order follows the left table.
	assert.Equal(t, "Amumu", result.Table.Rows[0]["Name"])
	assert.Equal(t, "52.9%", result.Table.Rows[0]["WinRate"])
	assert.Equal(t, []string{"Sion"}, result.LeftOnlyKeys)
	assert.Equal(t, []string{"Zoe"}, result.RightOnlyKeys)
}

func TestJoinColumnCollision(t *testing.T) {
	left := &Table{
		Columns: []string{"Name", "Role"},
		Rows:    []map[string]string{{"Name": "Ahri", "Role": "Mid"}},
	}
	right := &Table{
		Columns: []string{"Name", "Role"},
		Rows:    []map[string]string{{"Name": "Ahri", "Role": "Carry"}},
	}

	result, err := Join(left, right, "Name")
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Role", "Role_right"}, result.Table.Columns)
	assert.Equal(t, "Mid", result.Table.Rows[0]["Role"])
	assert.Equal(t, "Carry", result.Table.Rows[0]["Role_right"])
}

func TestJoinErrors(t *testing.T) {
	base := &Table{
		Columns: []string{"Name"},
		Rows:    []map[string]string{{"Name": "Ahri"}},
	}

	t.Run("key missing from right", func(t *testing.T) {
		right := &Table{Columns: []string{"Champion"}, Rows: []map[string]string{{"Champion": "Ahri"}}}
		_, err := Join(base, right, "Name")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSchemaMismatch)
	})

	t.Run("duplicate key", func(t *testing.T) {
		dup := &Table{
			Columns: []string{"Name"},
			Rows:    []map[string]string{{"Name": "Ahri"}, {"Name": "Ahri"}},
		}
		_, err := Join(base, dup, "Name")
		assert.Error(t, err)
	})

	t.Run("no overlap", func(t *testing.T) {
		other := &Table{Columns: []string{"Name"}, Rows: []map[string]string{{"Name": "Zoe"}}}
		_, err := Join(base, other, "Name")
		assert.Error(t, err)
	})
}
