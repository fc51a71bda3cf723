package selectors

import (
	"fmt"
	"strings"
)

var formatSections = []struct {
	title  string
	bucket Bucket
}{
	{"Buttons", BucketButtons},
	{"Input Fields", BucketInputs},
	{"Cart Elements", BucketCart},
	{"Payment Elements", BucketPayment},
	{"Shipping Elements", BucketShipping},
	{"Discount Elements", BucketDiscount},
}

// Format renders the catalog as the text block stored alongside the visible
// page text. Output depends only on the catalog.
func Format(c *Catalog) string {
	out := []string{
		"=== HTML SELECTORS ===\n",
		fmt.Sprintf("Total unique selectors: %d\n", len(c.All)),
	}
	for _, s := range formatSections {
		out = append(out, "\n--- "+s.title+" ---")
		for _, rec := range c.Bucket(s.bucket) {
			out = append(out, fmt.Sprintf("  %s: %s", rec.Tag, strings.Join(rec.Selectors, ", ")))
		}
	}
	return strings.Join(out, "\n")
}
