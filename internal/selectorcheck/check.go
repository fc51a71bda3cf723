// Package selectorcheck verifies extracted selectors against the page as a
// browser renders it.
package selectorcheck

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/testforge/docforge/internal/selectors"
)

// Result is the match count of one selector.
type Result struct {
	Selector string `json:"selector"`
	Matches  int    `json:"matches"`
	Error    string `json:"error,omitempty"`
}

// Report lists every extracted selector with its live match count.
type Report struct {
	Results []Result `json:"results"`

	// Missing holds selectors that matched nothing or could not be evaluated.
	Missing []string `json:"missing"`
}

// Checker extracts selectors from the rendered DOM and counts their matches.
type Checker struct {
	browser Browser
	logger  *zap.Logger
}

// NewChecker creates a checker. logger may be nil.
func NewChecker(browser Browser, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{browser: browser, logger: logger}
}

// Check renders target and counts matches for every selector the extractor
// finds in the rendered markup. Scripts can change the DOM, so selectors are
// taken from the rendered content rather than the source.
func (c *Checker) Check(ctx context.Context, target Target) (*Report, error) {
	page, err := c.browser.Open(ctx, target)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	content, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("reading rendered content: %w", err)
	}

	catalog := selectors.Extract(content)
	report := &Report{Results: make([]Result, 0, len(catalog.All)), Missing: []string{}}
	for _, sel := range catalog.All {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res := Result{Selector: sel}
		n, err := page.Count(sel)
		if err != nil {
			res.Error = err.Error()
			c.logger.Debug("selector evaluation failed", zap.String("selector", sel), zap.Error(err))
		} else {
			res.Matches = n
		}
		report.Results = append(report.Results, res)
		if res.Matches == 0 {
			report.Missing = append(report.Missing, sel)
		}
	}

	c.logger.Info("selector check completed",
		zap.Int("selectors", len(report.Results)),
		zap.Int("missing", len(report.Missing)),
	)
	return report, nil
}
