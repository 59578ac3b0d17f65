package provision

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintbook/internal/domain"
)

const sheet = `Tribe,App,Role,Reserved Sprints,Resource
Payments,Checkout,dev,2,alice
Cards,Wallet,dev,3,alice
Payments,Checkout,dev,2,alice

Growth,  Landing   Page ,qa,9,bob
Risk,Scoring,dev,abc,carol
`

func TestParseCSV(t *testing.T) {
	rows, err := Parse(strings.NewReader(sheet), CSV)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, Row{Line: 2, Tribe: "Payments", App: "Checkout", Role: "dev", Reserved: 2, Resource: "alice"}, rows[0])
	assert.Equal(t, 6, rows[3].Line)
	assert.Equal(t, 9, rows[3].Reserved)
	assert.Equal(t, 0, rows[4].Reserved)
}

func TestParseCSVMissingColumns(t *testing.T) {
	_, err := Parse(strings.NewReader("tribe,app,role\nA,B,C\n"), CSV)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved_sprints")
	assert.Contains(t, err.Error(), "resource")

	_, err = Parse(strings.NewReader(""), CSV)
	assert.Error(t, err)
}

func TestParseYAML(t *testing.T) {
	doc := `rows:
  - tribe: Payments
    app: Checkout
    role: Dev
    reserved_sprints: 6
    resource: Alice
`
	rows, err := Parse(strings.NewReader(doc), YAML)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Line)
	assert.Equal(t, 6, rows[0].Reserved)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("sheet.CSV")
	require.NoError(t, err)
	assert.Equal(t, CSV, f)
	f, err = ParseFormat("yml")
	require.NoError(t, err)
	assert.Equal(t, YAML, f)
	_, err = ParseFormat("sheet.xlsx")
	assert.Error(t, err)
}

func TestClean(t *testing.T) {
	rows, err := Parse(strings.NewReader(sheet), CSV)
	require.NoError(t, err)
	cleaned := Clean(rows)
	require.Len(t, cleaned, 4)
	assert.Equal(t, "Alice", cleaned[0].Resource)
	assert.Equal(t, "Dev", cleaned[0].Role)
	assert.Equal(t, "Landing Page", cleaned[2].App)
	assert.Equal(t, 6, cleaned[2].Reserved)
}

func TestValidateConflicts(t *testing.T) {
	rows := Clean([]Row{
		{Line: 2, Tribe: "A", App: "x", Role: "Dev", Reserved: 4, Resource: "R1"},
		{Line: 3, Tribe: "B", App: "y", Role: "Dev", Reserved: 3, Resource: "R1"},
		{Line: 4, Tribe: "C", App: "z", Role: "Dev", Reserved: 6, Resource: "R2"},
	})
	conflicts := Validate(rows)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "R1", conflicts[0].Resource)
	assert.Equal(t, 7, conflicts[0].TotalReserved)
	assert.Equal(t, []int{2, 3}, conflicts[0].Rows)
}

func TestAssignTypes(t *testing.T) {
	types := AssignTypes([]Row{
		{Tribe: "A", Resource: "R1", Reserved: 6},
		{Tribe: "A", Resource: "R2", Reserved: 3},
		{Tribe: "A", Resource: "R2", Reserved: 3},
		{Tribe: "A", Resource: "R3", Reserved: 3},
		{Tribe: "B", Resource: "R3", Reserved: 3},
		{Tribe: "C", Resource: "R4", Reserved: 5},
	})
	assert.Equal(t, domain.Dedicated, types["R1"])
	assert.Equal(t, domain.Dedicated, types["R2"])
	assert.Equal(t, domain.Shared, types["R3"])
	assert.Equal(t, domain.Shared, types["R4"])
}

func TestCheck(t *testing.T) {
	v := Check([]Row{{Tribe: "A", App: "x", Role: "dev", Reserved: 2, Resource: "r"}})
	assert.True(t, v.OK)
	assert.Empty(t, v.Conflicts)
	assert.Equal(t, domain.Shared, v.Types["R"])
}
