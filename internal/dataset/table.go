package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// Table is a raw CSV table held in memory: an ordered header plus one
// string map per row. Order of rows follows the input file so downstream
// matching stays deterministic.
type Table struct {
	Columns []string
	Rows    []map[string]string
}

// LoadTable reads a CSV file into a Table. The first record is the header.
// Duplicate header names and ragged rows are rejected up front.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("table %s has no data rows", path)
	}

	header := make([]string, len(records[0]))
	seen := make(map[string]bool, len(records[0]))
	for i, name := range records[0] {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("table %s: empty header at column %d", path, i)
		}
		if seen[name] {
			return nil, fmt.Errorf("table %s: duplicate column %q", path, name)
		}
		seen[name] = true
		header[i] = name
	}

	table := &Table{Columns: header}
	for rowNum, record := range records[1:] {
		row := make(map[string]string, len(header))
		for i, name := range header {
			row[name] = strings.TrimSpace(record[i])
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("table %s: row %d has %d fields, expected %d", path, rowNum+2, len(record), len(header))
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// HasColumn reports whether the table carries the named column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// JoinResult carries the joined table plus the keys that failed to match,
// reported rather than silently dropped.
type JoinResult struct {
	Table         *Table
	LeftOnlyKeys  []string
	RightOnlyKeys []string
}

// Join performs an inner join of two tables on the shared key column.
// Right-hand columns that collide with left-hand names (other than the key)
// are suffixed to keep both. Row order follows the left table; duplicate
// keys on either side are rejected since the join key identifies a unit.
func Join(left, right *Table, key string) (*JoinResult, error) {
	if !left.HasColumn(key) {
		return nil, fmt.Errorf("%w: join key %q absent from left table", ErrSchemaMismatch, key)
	}
	if !right.HasColumn(key) {
		return nil, fmt.Errorf("%w: join key %q absent from right table", ErrSchemaMismatch, key)
	}

	rightByKey := make(map[string]map[string]string, len(right.Rows))
	for _, row := range right.Rows {
		k := row[key]
		if _, dup := rightByKey[k]; dup {
			return nil, fmt.Errorf("duplicate key %q in right table", k)
		}
		rightByKey[k] = row
	}

	leftNames := make(map[string]bool, len(left.Columns))
	for _, c := range left.Columns {
		leftNames[c] = true
	}

	// Resolve the joined header: left columns first, then right columns
	// excluding the key, suffixing collisions.
	joined := &Table{Columns: append([]string(nil), left.Columns...)}
	rightRename := make(map[string]string, len(right.Columns))
	for _, c := range right.Columns {
		if c == key {
			continue
		}
		name := c
		if leftNames[c] {
			name = c + "_right"
		}
		rightRename[c] = name
		joined.Columns = append(joined.Columns, name)
	}

	result := &JoinResult{Table: joined}
	matchedRight := make(map[string]bool, len(right.Rows))
	seenLeft := make(map[string]bool, len(left.Rows))
	for _, lrow := range left.Rows {
		k := lrow[key]
		if seenLeft[k] {
			return nil, fmt.Errorf("duplicate key %q in left table", k)
		}
		seenLeft[k] = true

		rrow, ok := rightByKey[k]
		if !ok {
			result.LeftOnlyKeys = append(result.LeftOnlyKeys, k)
			continue
		}
		matchedRight[k] = true

		row := make(map[string]string, len(joined.Columns))
		for _, c := range left.Columns {
			row[c] = lrow[c]
		}
		for c, renamed := range rightRename {
			row[renamed] = rrow[c]
		}
		joined.Rows = append(joined.Rows, row)
	}
	for _, rrow := range right.Rows {
		if !matchedRight[rrow[key]] {
			result.RightOnlyKeys = append(result.RightOnlyKeys, rrow[key])
		}
	}

	if len(joined.Rows) == 0 {
		return nil, fmt.Errorf("join on %q produced no rows", key)
	}
	return result, nil
}
