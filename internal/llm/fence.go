package llm

import "strings"

// StripFence removes a markdown code fence wrapped around a model response.
// The opening fence may carry a language tag ("```json", "```python").
// Text without a leading fence is only trimmed.
func StripFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// drop the language tag up to the first line break or space
	if i := strings.IndexAny(s, "\n \t"); i >= 0 && !strings.Contains(s[:i], "`") {
		tag := s[:i]
		if isFenceTag(tag) {
			s = s[i:]
		}
	} else if isFenceTag(s) {
		s = ""
	}

	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func isFenceTag(tag string) bool {
	for _, r := range tag {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '+' || r == '_') {
			return false
		}
	}
	return true
}
