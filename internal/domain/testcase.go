package domain

import (
	"fmt"
	"strings"
)

// DiagnosticTestID marks a TestCase that reports a pipeline failure instead
// of describing a test.
const DiagnosticTestID = "ERROR"

// DiagnosticSource is the only grounding source cited by diagnostic records.
const DiagnosticSource = "system_error"

// MandatoryTestCaseKeys are the serialized keys a generated record must carry
// to be accepted. Steps is optional.
var MandatoryTestCaseKeys = []string{
	"Test_ID",
	"Feature",
	"Test_Scenario",
	"Expected_Result",
	"Grounded_In",
}

// TestCase is a documentation-grounded test description.
type TestCase struct {
	TestID         string   `json:"Test_ID"`
	Feature        string   `json:"Feature"`
	TestScenario   string   `json:"Test_Scenario"`
	Steps          []string `json:"Steps,omitempty"`
	ExpectedResult string   `json:"Expected_Result"`
	GroundedIn     []string `json:"Grounded_In"`
}

// NewDiagnosticTestCase builds the single record returned when generation
// cannot produce real test cases.
func NewDiagnosticTestCase(feature, failure string, steps []string) TestCase {
	if steps == nil {
		steps = []string{}
	}
	return TestCase{
		TestID:         DiagnosticTestID,
		Feature:        feature,
		TestScenario:   failure,
		Steps:          steps,
		ExpectedResult: "N/A",
		GroundedIn:     []string{DiagnosticSource},
	}
}

// IsDiagnostic reports whether tc is a failure record.
func (tc TestCase) IsDiagnostic() bool {
	return tc.TestID == DiagnosticTestID
}

// StepsText renders the steps as numbered lines. A case without steps
// renders a placeholder so it always prints.
func (tc TestCase) StepsText() string {
	if len(tc.Steps) == 0 {
		return "(no steps provided)"
	}
	var b strings.Builder
	for i, s := range tc.Steps {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, s)
	}
	return b.String()
}

// GroundingText joins the cited sources for display.
func (tc TestCase) GroundingText() string {
	return strings.Join(tc.GroundedIn, ", ")
}

// ScriptFramework selects the automation flavor of a generated script.
type ScriptFramework string

const (
	FrameworkSeleniumPython ScriptFramework = "selenium-python"
	FrameworkPlaywrightTS   ScriptFramework = "playwright-ts"
)

func (f ScriptFramework) IsValid() bool {
	return f == FrameworkSeleniumPython || f == FrameworkPlaywrightTS
}

// CommentPrefix is the line comment token of the framework's language.
func (f ScriptFramework) CommentPrefix() string {
	if f == FrameworkPlaywrightTS {
		return "//"
	}
	return "#"
}

// Extension is the file suffix used when a script is written out.
func (f ScriptFramework) Extension() string {
	if f == FrameworkPlaywrightTS {
		return ".spec.ts"
	}
	return "_selenium.py"
}

// GeneratedScript is the executable test script produced for one TestCase.
type GeneratedScript struct {
	TestCaseID string          `json:"test_case_id"`
	Source     string          `json:"source"`
	Framework  ScriptFramework `json:"framework"`

	// Degraded is set when Source is the fallback template.
	Degraded bool `json:"degraded"`

	// UnverifiedSelectors lists selectors quoted in Source that were not
	// present in the retrieved selector evidence.
	UnverifiedSelectors []string `json:"unverified_selectors,omitempty"`
}

// Filename is the name the script is saved under. The test ID comes from
// model output, so it is reduced to a single safe path element.
func (s GeneratedScript) Filename() string {
	return SafeFileStem(s.TestCaseID) + s.Framework.Extension()
}

// SafeFileStem maps every byte outside [A-Za-z0-9_-] to '_'. An empty id
// becomes "test".
func SafeFileStem(id string) string {
	if id == "" {
		return "test"
	}
	b := []byte(id)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}

// ScriptFilenames returns one distinct filename per script, in order. Later
// scripts whose name is taken get a numeric suffix: TC-1_2_selenium.py.
func ScriptFilenames(scripts []GeneratedScript) []string {
	names := make([]string, len(scripts))
	taken := make(map[string]bool, len(scripts))
	for i, s := range scripts {
		stem := SafeFileStem(s.TestCaseID)
		ext := s.Framework.Extension()
		name := stem + ext
		for n := 2; taken[name]; n++ {
			name = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		taken[name] = true
		names[i] = name
	}
	return names
}
