package normalize

import (
	"bytes"

	"github.com/testforge/docforge/internal/selectors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// MarkdownText renders markdown to HTML and returns its text content with
// the markup removed. Rendering failures fall back to the source text.
func MarkdownText(src string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return src
	}
	roots, err := selectors.Parse(buf.String())
	if err != nil {
		return src
	}
	return selectors.VisibleText(roots, "", false)
}

// HTMLText returns the visible page text, one string per line, followed by
// the formatted selector catalog of the page.
func HTMLText(src string) string {
	var text string
	if roots, err := selectors.Parse(src); err == nil {
		text = selectors.VisibleText(roots, "\n", true)
	}
	return text + "\n\n" + selectors.Format(selectors.Extract(src))
}
