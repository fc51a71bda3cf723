package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Flatten renders a JSON document as "path: value" lines, depth first, in
// input key order. Object members holding a container emit a "path:" header
// line before their contents; array items do not. Malformed JSON is returned
// unchanged.
func Flatten(content string) string {
	dec := json.NewDecoder(strings.NewReader(content))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return content
	}
	out, err := flattenValue(dec, tok, "")
	if err != nil {
		return content
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return content
	}
	return out
}

func flattenValue(dec *json.Decoder, tok json.Token, prefix string) (string, error) {
	delim, ok := tok.(json.Delim)
	if !ok {
		return scalar(tok), nil
	}

	var lines []string
	switch delim {
	case '{':
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return "", err
			}
			key, ok := keyTok.(string)
			if !ok {
				return "", fmt.Errorf("unexpected object key %v", keyTok)
			}
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}

			val, err := dec.Token()
			if err != nil {
				return "", err
			}
			if isContainer(val) {
				sub, err := flattenValue(dec, val, path)
				if err != nil {
					return "", err
				}
				lines = append(lines, path+":", sub)
			} else {
				lines = append(lines, path+": "+scalar(val))
			}
		}
	case '[':
		for i := 0; dec.More(); i++ {
			path := fmt.Sprintf("%s[%d]", prefix, i)
			val, err := dec.Token()
			if err != nil {
				return "", err
			}
			if isContainer(val) {
				sub, err := flattenValue(dec, val, path)
				if err != nil {
					return "", err
				}
				lines = append(lines, sub)
			} else {
				lines = append(lines, path+": "+scalar(val))
			}
		}
	default:
		return "", fmt.Errorf("unexpected delimiter %v", delim)
	}

	// closing delimiter
	if _, err := dec.Token(); err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

func isContainer(tok json.Token) bool {
	d, ok := tok.(json.Delim)
	return ok && (d == '{' || d == '[')
}

// scalar prints a leaf value: capitalized booleans, None for null, numbers
// as written in the source.
func scalar(tok json.Token) string {
	switch v := tok.(type) {
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case json.Number:
		return v.String()
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
