package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTestCases_Shapes(t *testing.T) {
	rec := `{"Test_ID":"TC-001","Feature":"F","Test_Scenario":"S","Expected_Result":"E","Grounded_In":["a.md"]}`

	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"array", "[" + rec + "]", 1},
		{"test_cases key", `{"test_cases": [` + rec + `,` + rec + `]}`, 2},
		{"testCases key", `{"testCases": [` + rec + `]}`, 1},
		{"single object", rec, 1},
		{"test_cases not a list", `{"test_cases": "none"}`, 0},
		{"string", `"hello"`, 0},
		{"number", `42`, 0},
		{"empty array", `[]`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cases, _, err := ParseTestCases(tt.content)
			require.NoError(t, err)
			assert.Len(t, cases, tt.want)
		})
	}
}

func TestParseTestCases_Drops(t *testing.T) {
	content := `[
		{"Test_ID":"TC-001","Feature":"F","Test_Scenario":"S","Expected_Result":"E","Grounded_In":["a.md"]},
		{"Test_ID":"TC-002","Feature":"F","Test_Scenario":"S","Expected_Result":"E"},
		{"Feature":"F","Test_Scenario":"S","Expected_Result":"E","Grounded_In":[]},
		"not a record",
		{"Test_ID":"TC-005","Feature":"F","Test_Scenario":"S","Expected_Result":"E","Grounded_In":null}
	]`

	cases, dropped, err := ParseTestCases(content)
	require.NoError(t, err)
	assert.Equal(t, 3, dropped)
	require.Len(t, cases, 2)
	assert.Equal(t, "TC-005", cases[1].TestID)
	assert.Equal(t, []string{}, cases[1].GroundedIn)
}

func TestParseTestCases_TolerantFields(t *testing.T) {
	content := `{"Test_ID": 7, "Feature": "F", "Test_Scenario": "S",
		"Steps": "Open the cart", "Expected_Result": {"total": 10},
		"Grounded_In": "a.md"}`

	cases, _, err := ParseTestCases(content)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	tc := cases[0]
	assert.Equal(t, "7", tc.TestID)
	assert.Equal(t, []string{"Open the cart"}, tc.Steps)
	assert.Equal(t, `{"total":10}`, tc.ExpectedResult)
	assert.Equal(t, []string{"a.md"}, tc.GroundedIn)
}

func TestParseTestCases_SyntaxErrors(t *testing.T) {
	for _, content := range []string{"", "[{", "Here you go: []", "[] trailing"} {
		_, _, err := ParseTestCases(content)
		assert.Error(t, err, "content %q", content)
	}
}
