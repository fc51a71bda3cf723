// Package selectors catalogs the addressable elements of an HTML page and
// groups them into semantic buckets for UI automation.
package selectors

import (
	"fmt"
	"strings"

	"github.com/testforge/docforge/internal/domain"
	"golang.org/x/net/html"
)

// Bucket is a semantic grouping of elements. Membership is non-exclusive.
type Bucket string

const (
	BucketButtons    Bucket = "buttons"
	BucketInputs     Bucket = "inputs"
	BucketForms      Bucket = "forms"
	BucketCart       Bucket = "cart_elements"
	BucketPayment    Bucket = "payment_elements"
	BucketShipping   Bucket = "shipping_elements"
	BucketDiscount   Bucket = "discount_elements"
	BucketValidation Bucket = "validation_elements"
)

// Buckets lists every bucket in reporting order.
var Buckets = []Bucket{
	BucketButtons, BucketInputs, BucketForms, BucketCart,
	BucketPayment, BucketShipping, BucketDiscount, BucketValidation,
}

type keywordRule struct {
	bucket Bucket
	text   []string
	attrs  []string
}

var keywordRules = []keywordRule{
	{BucketCart, []string{"cart", "add to cart", "quantity"}, []string{"cart", "qty", "quantity", "total"}},
	{BucketPayment, []string{"payment", "pay", "credit", "paypal"}, []string{"payment", "pay"}},
	{BucketShipping, []string{"shipping", "standard", "express", "delivery"}, []string{"shipping", "delivery"}},
	{BucketDiscount, []string{"discount", "coupon", "promo"}, []string{"discount", "coupon", "promo", "code"}},
}

var validationTokens = []string{"error", "invalid", "validation"}

// Element is one cataloged element and the buckets it was classified into.
// A bucket may appear twice in Hits when both the text and the attribute
// check match.
type Element struct {
	domain.SelectorRecord
	Hits []Bucket `json:"buckets"`
}

// In reports whether the element was classified into b.
func (e Element) In(b Bucket) bool {
	for _, h := range e.Hits {
		if h == b {
			return true
		}
	}
	return false
}

// ByType holds selectors per attribute class in document order, duplicates kept.
type ByType struct {
	IDs      []string `json:"ids"`
	Names    []string `json:"names"`
	Classes  []string `json:"classes"`
	DataTest []string `json:"data_test"`
}

// Catalog is the result of extracting selectors from one page.
type Catalog struct {
	// All is the deduplicated selector set in first-seen order.
	All      []string  `json:"all_selectors"`
	ByType   ByType    `json:"by_type"`
	Elements []Element `json:"elements"`
}

// Bucket returns one record per bucket hit, in document order.
func (c *Catalog) Bucket(b Bucket) []domain.SelectorRecord {
	var out []domain.SelectorRecord
	for _, e := range c.Elements {
		for _, h := range e.Hits {
			if h == b {
				out = append(out, e.SelectorRecord)
			}
		}
	}
	return out
}

// Contains reports whether sel was extracted from the page.
func (c *Catalog) Contains(sel string) bool {
	for _, s := range c.All {
		if s == sel {
			return true
		}
	}
	return false
}

// Extract walks every element of src in document order. Malformed markup is
// handled leniently; the worst case is an empty catalog.
func Extract(src string) *Catalog {
	cat := &Catalog{All: []string{}}
	roots, err := Parse(src)
	if err != nil {
		return cat
	}

	seen := make(map[string]struct{})
	add := func(list *[]string, rec *domain.SelectorRecord, sel string) {
		*list = append(*list, sel)
		rec.Selectors = append(rec.Selectors, sel)
		if _, ok := seen[sel]; !ok {
			seen[sel] = struct{}{}
			cat.All = append(cat.All, sel)
		}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			rec := domain.SelectorRecord{Tag: n.Data, Selectors: []string{}}

			id := attr(n, "id")
			if id != "" {
				add(&cat.ByType.IDs, &rec, "#"+id)
				rec.ID = id
			}
			name := attr(n, "name")
			if name != "" {
				add(&cat.ByType.Names, &rec, fmt.Sprintf("[name='%s']", name))
				rec.Name = name
			}
			classes := strings.Fields(attr(n, "class"))
			for _, cls := range classes {
				add(&cat.ByType.Classes, &rec, "."+cls)
			}
			if dt := attr(n, "data-test"); dt != "" {
				add(&cat.ByType.DataTest, &rec, fmt.Sprintf("[data-test='%s']", dt))
			}

			cat.Elements = append(cat.Elements, Element{
				SelectorRecord: rec,
				Hits:           classify(n, id, name, classes),
			})
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return cat
}

func classify(n *html.Node, id, name string, classes []string) []Bucket {
	var hits []Bucket

	typ := attr(n, "type")
	if n.Data == "button" || typ == "button" || typ == "submit" {
		hits = append(hits, BucketButtons)
	}
	switch n.Data {
	case "input", "textarea", "select":
		hits = append(hits, BucketInputs)
	case "form":
		hits = append(hits, BucketForms)
	}

	text := strings.ToLower(VisibleText([]*html.Node{n}, "", true))
	classText := strings.ToLower(strings.Join(classes, " "))
	attrText := strings.ToLower(id) + strings.ToLower(name) + classText

	for _, rule := range keywordRules {
		if containsAny(text, rule.text) {
			hits = append(hits, rule.bucket)
		}
		if containsAny(attrText, rule.attrs) {
			hits = append(hits, rule.bucket)
		}
	}
	if containsAny(classText, validationTokens) {
		hits = append(hits, BucketValidation)
	}
	return hits
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
