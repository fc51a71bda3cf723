package selectors

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	documentMarker = regexp.MustCompile(`(?i)<(html|body)[\s>]`)
	wrapperTag     = regexp.MustCompile(`(?i)<(html|head|body)[\s/>]`)
)

// Parse returns the top-level nodes of src. Input that carries an <html> or
// <body> tag is parsed as a full document; anything else is parsed as a body
// fragment. Either way only elements written in src appear: html, head and
// body elements the parser implied are replaced by their children.
func Parse(src string) ([]*html.Node, error) {
	if documentMarker.MatchString(src) {
		doc, err := html.Parse(strings.NewReader(src))
		if err != nil {
			return nil, err
		}
		written := make(map[string]bool, 3)
		for _, m := range wrapperTag.FindAllStringSubmatch(src, -1) {
			written[strings.ToLower(m[1])] = true
		}
		var roots []*html.Node
		for c := doc.FirstChild; c != nil; c = c.NextSibling {
			roots = appendWritten(roots, c, written)
		}
		return roots, nil
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	return html.ParseFragment(strings.NewReader(src), body)
}

func appendWritten(roots []*html.Node, n *html.Node, written map[string]bool) []*html.Node {
	if n.Type == html.ElementNode && !written[n.Data] {
		switch n.DataAtom {
		case atom.Html, atom.Head, atom.Body:
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				roots = appendWritten(roots, c, written)
			}
			return roots
		}
	}
	return append(roots, n)
}

// VisibleText collects the text nodes under roots in document order,
// skipping script and style content. With strip set each string is trimmed
// and empty strings are dropped before joining with sep.
func VisibleText(roots []*html.Node, sep string, strip bool) string {
	var parts []string
	for _, r := range roots {
		parts = appendText(parts, r, strip)
	}
	return strings.Join(parts, sep)
}

func appendText(parts []string, n *html.Node, strip bool) []string {
	switch n.Type {
	case html.TextNode:
		s := n.Data
		if strip {
			s = strings.TrimSpace(s)
			if s == "" {
				return parts
			}
		}
		return append(parts, s)
	case html.ElementNode:
		if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
			return parts
		}
	case html.CommentNode, html.DoctypeNode:
		return parts
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		parts = appendText(parts, c, strip)
	}
	return parts
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}
