package scriptgen

import (
	"strconv"
	"strings"
	"text/template"

	"github.com/testforge/docforge/internal/domain"
)

// CanonicalSelectorQuery retrieves selector evidence for every script.
const CanonicalSelectorQuery = "HTML selectors buttons inputs forms cart payment shipping discount"

const seleniumSystemPrompt = `You are an expert Selenium automation engineer specializing in writing clean, production-ready test scripts.

CRITICAL REQUIREMENTS:
1. Use ONLY selectors found in the provided HTML selector context
2. Implement WebDriverWait for all element interactions (explicit waits)
3. Include proper error handling and logging
4. Use modular functions with clear docstrings
5. Add comments linking steps back to documentation
6. Use Chrome WebDriver with proper initialization
7. Make scripts runnable and self-contained
8. Follow Python best practices (PEP 8)

SCRIPT STRUCTURE:
- Import statements
- Helper functions
- Main test function (run_test)
- WebDriver setup with proper configuration
- Clean teardown

OUTPUT:
Generate a complete, runnable Python script. Do not add markdown code fences or explanations - just pure Python code.`

const playwrightSystemPrompt = `You are an expert Playwright automation engineer writing clean, production-ready TypeScript tests.

CRITICAL REQUIREMENTS:
1. Use ONLY selectors found in the provided HTML selector context
2. Synchronize with explicit waits: locator.waitFor() or web-first expect() assertions, never fixed sleeps
3. Use @playwright/test with a single test() block per test case
4. Add comments linking steps back to documentation
5. Make scripts runnable and self-contained

OUTPUT:
Generate a complete, runnable TypeScript spec file. Do not add markdown code fences or explanations - just pure TypeScript code.`

type promptData struct {
	TestCase  string
	Selectors string
	Docs      string
}

var userPromptTemplates = map[domain.ScriptFramework]*template.Template{
	domain.FrameworkSeleniumPython: template.Must(template.New("selenium-prompt").Parse(`Generate a Selenium Python script for this test case:

TEST CASE:
{{.TestCase}}

HTML SELECTORS (use these exact selectors):
{{.Selectors}}

DOCUMENTATION CONTEXT:
{{.Docs}}

Requirements:
- Use WebDriverWait with explicit waits (10-20 seconds timeout)
- Match selectors from the HTML context exactly
- Include comments referencing the source documents from Grounded_In
- Implement the test steps precisely as described
- Add assertions for the expected result
- Handle potential errors gracefully
- Make the script production-ready and executable

Generate the complete Python script now.`)),

	domain.FrameworkPlaywrightTS: template.Must(template.New("playwright-prompt").Parse(`Generate a Playwright TypeScript test for this test case:

TEST CASE:
{{.TestCase}}

HTML SELECTORS (use these exact selectors):
{{.Selectors}}

DOCUMENTATION CONTEXT:
{{.Docs}}

Requirements:
- Wait for every element before interacting (locator.waitFor or expect(...).toBeVisible)
- Match selectors from the HTML context exactly
- Include comments referencing the source documents from Grounded_In
- Implement the test steps precisely as described
- Assert the expected result with expect()
- Read the base URL from process.env.BASE_URL

Generate the complete TypeScript spec now.`)),
}

type fallbackData struct {
	TestID   string
	Feature  string
	Error    string // single line, safe inside a comment
	ErrorLit string // quoted string literal
}

var fallbackTemplates = map[domain.ScriptFramework]*template.Template{
	domain.FrameworkSeleniumPython: template.Must(template.New("selenium-fallback").Parse(`#!/usr/bin/env python3
# ERROR: Failed to generate script
# Error: {{.Error}}
# Test ID: {{.TestID}}
# Feature: {{.Feature}}

from selenium import webdriver
from selenium.webdriver.common.by import By
from selenium.webdriver.support.ui import WebDriverWait
from selenium.webdriver.support import expected_conditions as EC

ERROR_DETAILS = {{.ErrorLit}}


def run_test():
    """
    Script generation failed. Please check:
    1. The text generation API key is set correctly
    2. Network connection is stable
    3. API quota is available
    """
    print("ERROR: Script generation failed")
    print("Error details: " + ERROR_DETAILS)


if __name__ == "__main__":
    run_test()
`)),

	domain.FrameworkPlaywrightTS: template.Must(template.New("playwright-fallback").Parse(`// ERROR: Failed to generate script
// Error: {{.Error}}
// Test ID: {{.TestID}}
// Feature: {{.Feature}}

import { test } from '@playwright/test';

const ERROR_DETAILS = {{.ErrorLit}};

// Script generation failed. Please check:
// 1. The text generation API key is set correctly
// 2. Network connection is stable
// 3. API quota is available
test({{.TestID | printf "%q"}}, async () => {
  console.error('ERROR: Script generation failed');
  console.error('Error details: ' + ERROR_DETAILS);
  test.fail(true, ERROR_DETAILS);
});
`)),
}

// header is the provenance block prepended to every generated script.
func header(framework domain.ScriptFramework, tc domain.TestCase) string {
	p := framework.CommentPrefix()
	var b strings.Builder
	if framework == domain.FrameworkSeleniumPython {
		b.WriteString("#!/usr/bin/env python3\n")
		b.WriteString("# Auto-generated Selenium test script\n")
	} else {
		b.WriteString("// Auto-generated Playwright test script\n")
	}
	b.WriteString(p + " Test ID: " + oneLine(orUnknown(tc.TestID)) + "\n")
	b.WriteString(p + " Feature: " + oneLine(orUnknown(tc.Feature)) + "\n")
	b.WriteString(p + " Grounded in: " + oneLine(tc.GroundingText()) + "\n\n")
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// oneLine keeps comment text on a single line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func fallbackScript(framework domain.ScriptFramework, tc domain.TestCase, failure string) string {
	data := fallbackData{
		TestID:   oneLine(orUnknown(tc.TestID)),
		Feature:  oneLine(orUnknown(tc.Feature)),
		Error:    oneLine(failure),
		ErrorLit: strconv.Quote(failure),
	}
	var b strings.Builder
	if err := fallbackTemplates[framework].Execute(&b, data); err != nil {
		// templates are static; a failure here means a broken template
		return header(framework, tc) + framework.CommentPrefix() + " ERROR: " + data.Error + "\n"
	}
	return b.String()
}
