package dataset

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func championTable() *Table {
	return &Table{
		Columns: []string{"Name", "Class", "HP", "Range", "WinRate"},
		Rows: []map[string]string{
			{"Name": "Amumu", "Class": "Tank", "HP": "615", "Range": "Melee", "WinRate": "52.9%"},
			{"Name": "Ahri", "Class": "Mage", "HP": "526", "Range": "Ranged", "WinRate": "51.2%"},
			{"Name": "Sion", "Class": "Tank", "HP": "655", "Range": "Melee", "WinRate": "50.4%"},
			{"Name": "Zoe", "Class": "Mage", "HP": "560", "Range": "Ranged", "WinRate": "49.1%"},
			{"Name": "Jax", "Class": "Fighter", "HP": "685", "Range": "Melee", "WinRate": "50.8%"},
		},
	}
}

func championSchema() Schema {
	return Schema{
		KeyColumn:       "Name",
		TreatmentColumn: "Class",
		TreatedValue:    "Tank",
		OutcomeColumn:   "WinRate",
		Numeric:         []string{"HP"},
		Categorical:     []string{"Range"},
	}
}

func TestAssemble(t *testing.T) {
	pop, err := NewAssembler(championSchema(), testLogger()).Assemble(championTable())
	require.NoError(t, err)

	// Range one-hot encodes with the first sorted level (Melee) as reference.
	assert.Equal(t, []string{"HP", "Range=Ranged"}, pop.Covariates)
	require.Len(t, pop.Units, 5)

	amumu := pop.Units[0]
	assert.Equal(t, "Amumu", amumu.ID)
	assert.True(t, amumu.Treated)
	assert.InDelta(t, 0.529, amumu.Outcome, 1e-9)
	assert.Equal(t, []float64{615, 0}, amumu.Covariates)

	ahri := pop.Units[1]
	assert.False(t, ahri.Treated)
	assert.Equal(t, []float64{526, 1}, ahri.Covariates)

	assert.Equal(t, 2, pop.NumTreated())
	assert.Equal(t, 3, pop.NumControl())
	assert.Equal(t, []int{0, 2}, pop.TreatedIndices())
}

func TestAssembleImputation(t *testing.T) {
	table := championTable()
	table.Rows[1]["HP"] = ""
	table.Rows[3]["Range"] = "NA"

	schema := championSchema()
	schema.Fill = []FillRule{
		{Column: "HP", Strategy: FillMean},
		{Column: "Range", Strategy: FillMode},
	}

	pop, err := NewAssembler(schema, testLogger()).Assemble(table)
	require.NoError(t, err)

	// Mean of the four observed HP values.
	want := (615.0 + 655 + 560 + 685) / 4
	assert.InDelta(t, want, pop.Units[1].Covariates[0], 1e-9)
	// Melee is the modal range, which is the reference level.
	assert.Equal(t, 0.0, pop.Units[3].Covariates[1])
}

func TestAssembleConstantFill(t *testing.T) {
	table := championTable()
	table.Rows[2]["HP"] = ""

	schema := championSchema()
	schema.Fill = []FillRule{{Column: "HP", Strategy: FillConstant, Value: "600"}}

	pop, err := NewAssembler(schema, testLogger()).Assemble(table)
	require.NoError(t, err)
	assert.Equal(t, 600.0, pop.Units[2].Covariates[0])
}

func TestAssembleMissingDataFails(t *testing.T) {
	table := championTable()
	table.Rows[2]["HP"] = ""

	_, err := NewAssembler(championSchema(), testLogger()).Assemble(table)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingData)
}

func TestAssembleSchemaMismatch(t *testing.T) {
	schema := championSchema()
	schema.Numeric = []string{"HP", "Armor"}

	_, err := NewAssembler(schema, testLogger()).Assemble(championTable())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestAssembleNoTreatedUnits(t *testing.T) {
	schema := championSchema()
	schema.TreatedValue = "Support"

	_, err := NewAssembler(schema, testLogger()).Assemble(championTable())
	assert.Error(t, err)
}

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    float64
		wantErr bool
	}{
		{"percent", "52.3%", 0.523, false},
		{"decimal", "0.481", 0.481, false},
		{"over one", "1.2", 0, true},
		{"over hundred percent", "120%", 0, true},
		{"garbage", "high", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOutcome(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestPopulationValidate(t *testing.T) {
	tests := []struct {
		name    string
		pop     *Population
		wantErr bool
	}{
		{
			name: "valid",
			pop: &Population{
				Covariates: []string{"x"},
				Units: []Unit{
					{ID: "a", Covariates: []float64{1}, Treated: true, Outcome: 0.5},
					{ID: "b", Covariates: []float64{2}, Outcome: 0.4},
				},
			},
		},
		{name: "empty", pop: &Population{}, wantErr: true},
		{
			name: "ragged covariates",
			pop: &Population{
				Covariates: []string{"x", "y"},
				Units: []Unit{
					{ID: "a", Covariates: []float64{1}, Treated: true, Outcome: 0.5},
					{ID: "b", Covariates: []float64{2, 3}, Outcome: 0.4},
				},
			},
			wantErr: true,
		},
		{
			name: "single arm",
			pop: &Population{
				Covariates: []string{"x"},
				Units: []Unit{
					{ID: "a", Covariates: []float64{1}, Treated: true, Outcome: 0.5},
					{ID: "b", Covariates: []float64{2}, Treated: true, Outcome: 0.4},
				},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pop.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
