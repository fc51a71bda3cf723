package selectorcheck

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/testforge/docforge/internal/config"
)

// Target is the page to render: a URL, or inline HTML when URL is empty.
type Target struct {
	URL  string
	HTML string
}

// Page is a rendered page that can be queried with CSS selectors.
type Page interface {
	Content() (string, error)
	Count(selector string) (int, error)
	Close() error
}

// Browser renders targets into pages.
type Browser interface {
	Open(ctx context.Context, target Target) (Page, error)
}

// PlaywrightBrowser renders pages in Chromium.
type PlaywrightBrowser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	timeout time.Duration
}

// NewPlaywrightBrowser starts the Playwright driver and launches Chromium.
// The driver and browsers must already be installed.
func NewPlaywrightBrowser(cfg config.BrowserConfig) (*PlaywrightBrowser, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PlaywrightBrowser{pw: pw, browser: browser, timeout: timeout}, nil
}

// Open loads the target into a fresh page.
func (b *PlaywrightBrowser) Open(ctx context.Context, target Target) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := b.browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("creating page: %w", err)
	}

	timeout := playwright.Float(float64(b.timeoutFor(ctx).Milliseconds()))
	if target.URL != "" {
		_, err = page.Goto(target.URL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateNetworkidle,
			Timeout:   timeout,
		})
	} else {
		err = page.SetContent(target.HTML, playwright.PageSetContentOptions{
			Timeout: timeout,
		})
	}
	if err != nil {
		page.Close()
		return nil, fmt.Errorf("loading page: %w", err)
	}
	return &playwrightPage{page: page}, nil
}

// timeoutFor shortens the navigation timeout to the context deadline.
func (b *PlaywrightBrowser) timeoutFor(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < b.timeout {
			return left
		}
	}
	return b.timeout
}

// Close shuts down the browser and the driver.
func (b *PlaywrightBrowser) Close() error {
	if b.browser != nil {
		b.browser.Close()
	}
	if b.pw != nil {
		return b.pw.Stop()
	}
	return nil
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Content() (string, error) {
	return p.page.Content()
}

func (p *playwrightPage) Count(selector string) (int, error) {
	return p.page.Locator(selector).Count()
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}
