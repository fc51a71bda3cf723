// Package normalize converts uploaded files into a single plain-text
// rendition plus a document type.
package normalize

import (
	"path/filepath"
	"strings"

	"github.com/testforge/docforge/internal/domain"
)

// Normalize dispatches on the file extension. The type is derived from the
// filename alone, never from content. The only error is an unreadable PDF.
func Normalize(filename string, data []byte) (domain.NormalizedDocument, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".pdf":
		text, err := PDFText(data)
		if err != nil {
			return domain.NormalizedDocument{}, domain.ErrNormalization(filename, err)
		}
		return domain.NormalizedDocument{Text: text, DocType: domain.DocTypeSpec}, nil
	case ".md":
		return domain.NormalizedDocument{Text: MarkdownText(decode(data)), DocType: domain.DocTypeSpec}, nil
	case ".txt":
		return domain.NormalizedDocument{Text: decode(data), DocType: TextDocType(filename)}, nil
	case ".json":
		return domain.NormalizedDocument{Text: Flatten(decode(data)), DocType: domain.DocTypeAPI}, nil
	case ".html", ".htm":
		return domain.NormalizedDocument{Text: HTMLText(decode(data)), DocType: domain.DocTypeHTMLDOM}, nil
	default:
		return domain.NormalizedDocument{Text: decode(data), DocType: domain.DocTypeSpec}, nil
	}
}

// TextDocType classifies a .txt upload. A filename containing "ui" or "ux"
// anywhere (so "build.txt" too) is treated as UI/UX guidance.
func TextDocType(filename string) domain.DocType {
	lower := strings.ToLower(filename)
	if strings.Contains(lower, "ui") || strings.Contains(lower, "ux") {
		return domain.DocTypeUIUX
	}
	return domain.DocTypeSpec
}

func decode(data []byte) string {
	return strings.ToValidUTF8(string(data), "")
}
