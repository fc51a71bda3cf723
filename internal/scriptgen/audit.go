package scriptgen

import (
	"regexp"
	"strings"

	"github.com/testforge/docforge/internal/knowledge"
)

var (
	// simple selectors as the extractor writes them: #id, .class, [attr='v']
	tokenPattern = regexp.MustCompile(`#[A-Za-z_][\w-]*|\.[A-Za-z_][\w-]*|\[[A-Za-z][\w-]*=['"][^'"\]]*['"]\]`)

	literalPattern = regexp.MustCompile(`"([^"\\\n]*)"|'([^'\\\n]*)'|` + "`([^`]*)`")

	// a literal is treated as CSS when it starts with a selector or a tag
	// directly qualified by one
	cssStartPattern = regexp.MustCompile(`^(?:[#.\[]|(?:a|button|input|form|select|textarea|label|div|span|li|ul|img|table|tr|td|section|nav|header|footer|main|h[1-6])[#.\[])`)

	byLocatorPattern = regexp.MustCompile(`By\.(ID|NAME|CLASS_NAME)\s*,\s*["']([^"'\n]+)["']`)
)

// Audit lists the simple selectors the script references that do not occur
// in the selector evidence. CSS literals are reported before Selenium By
// locators. The script is not modified.
func Audit(script string, evidence []knowledge.RetrievedChunk) []string {
	known := make(map[string]bool)
	for _, c := range evidence {
		for _, tok := range tokenPattern.FindAllString(c.Text, -1) {
			known[normalizeToken(tok)] = true
		}
	}

	seen := make(map[string]bool)
	var missing []string
	check := func(tok string) {
		tok = normalizeToken(tok)
		if known[tok] || seen[tok] {
			return
		}
		seen[tok] = true
		missing = append(missing, tok)
	}

	for _, sel := range referencedSelectors(script) {
		for _, tok := range tokenPattern.FindAllString(sel, -1) {
			check(tok)
		}
	}
	return missing
}

// referencedSelectors collects CSS-looking string literals and Selenium
// By.ID / By.NAME / By.CLASS_NAME locators rewritten as CSS.
func referencedSelectors(script string) []string {
	var out []string
	for _, m := range literalPattern.FindAllStringSubmatch(script, -1) {
		lit := m[1] + m[2] + m[3]
		if cssStartPattern.MatchString(lit) {
			out = append(out, lit)
		}
	}
	for _, m := range byLocatorPattern.FindAllStringSubmatch(script, -1) {
		switch m[1] {
		case "ID":
			out = append(out, "#"+m[2])
		case "NAME":
			out = append(out, "[name='"+m[2]+"']")
		case "CLASS_NAME":
			out = append(out, "."+m[2])
		}
	}
	return out
}

func normalizeToken(tok string) string {
	return strings.ReplaceAll(tok, `"`, `'`)
}
