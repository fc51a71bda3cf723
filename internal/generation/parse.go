package generation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/testforge/docforge/internal/domain"
)

// ParseTestCases decodes a model response into test cases. It accepts a
// bare array, an object holding the array under "test_cases" or
// "testCases", or a single object. Any other shape yields no cases.
// Records missing a mandatory key are dropped and counted. Only a JSON
// syntax error is returned.
func ParseTestCases(content string) ([]domain.TestCase, int, error) {
	dec := json.NewDecoder(strings.NewReader(content))
	dec.UseNumber()

	var parsed interface{}
	if err := dec.Decode(&parsed); err != nil {
		return nil, 0, err
	}
	if dec.More() {
		return nil, 0, fmt.Errorf("unexpected data after JSON value at offset %d", dec.InputOffset())
	}

	var items []interface{}
	switch v := parsed.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		if tc, ok := v["test_cases"]; ok {
			items, _ = tc.([]interface{})
		} else if tc, ok := v["testCases"]; ok {
			items, _ = tc.([]interface{})
		} else {
			items = []interface{}{v}
		}
	}

	cases := make([]domain.TestCase, 0, len(items))
	dropped := 0
	for _, item := range items {
		rec, ok := item.(map[string]interface{})
		if !ok || !hasMandatoryKeys(rec) {
			dropped++
			continue
		}
		cases = append(cases, toTestCase(rec))
	}
	return cases, dropped, nil
}

func hasMandatoryKeys(rec map[string]interface{}) bool {
	for _, k := range domain.MandatoryTestCaseKeys {
		if _, ok := rec[k]; !ok {
			return false
		}
	}
	return true
}

func toTestCase(rec map[string]interface{}) domain.TestCase {
	return domain.TestCase{
		TestID:         text(rec["Test_ID"]),
		Feature:        text(rec["Feature"]),
		TestScenario:   text(rec["Test_Scenario"]),
		Steps:          list(rec["Steps"]),
		ExpectedResult: text(rec["Expected_Result"]),
		GroundedIn:     list(rec["Grounded_In"]),
	}
}

// text renders a field as a string. Non-string values keep their JSON form.
func text(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(t); err != nil {
			return fmt.Sprint(t)
		}
		return strings.TrimSpace(buf.String())
	}
}

// list accepts either a list or a single value.
func list(v interface{}) []string {
	switch t := v.(type) {
	case nil:
		return []string{}
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, text(item))
		}
		return out
	case string:
		if t == "" {
			return []string{}
		}
		return []string{t}
	default:
		return []string{text(t)}
	}
}
