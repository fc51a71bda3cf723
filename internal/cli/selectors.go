package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/testforge/docforge/internal/selectorcheck"
	"github.com/testforge/docforge/internal/selectors"
)

func newSelectorsCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "selectors",
		Short: "Inspect the selectors of an HTML page",
	}
	cmd.AddCommand(newSelectorsExtractCmd(), newSelectorsCheckCmd(rt))
	return cmd
}

func newSelectorsExtractCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "List the selectors extracted from an HTML file",
		Long: `Prints the selector block that ingestion stores for an HTML page:
ids, names, classes and data-test attributes grouped by buttons, inputs,
cart, payment, shipping and discount elements.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			catalog := selectors.Extract(string(data))

			if asJSON {
				out, err := json.MarshalIndent(catalog, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), selectors.Format(catalog))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full catalog as JSON")
	return cmd
}

func newSelectorsCheckCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE|URL",
		Short: "Count live matches for every selector in a rendered page",
		Long: `Renders the page in headless Chromium, extracts selectors from the
rendered DOM and counts how many elements each one matches. Requires the
Playwright browsers to be installed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := checkTarget(args[0])
			if err != nil {
				return err
			}

			cfg, err := rt.config()
			if err != nil {
				return err
			}
			logger := rt.logger(cfg)
			defer logger.Sync()

			browser, closer, err := rt.deps.OpenBrowser(cfg.Browser)
			if err != nil {
				return fmt.Errorf("starting browser: %w", err)
			}
			defer closer.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			report, err := selectorcheck.NewChecker(browser, logger).Check(ctx, target)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, r := range report.Results {
				switch {
				case r.Error != "":
					red.Fprintf(w, "✗ %-40s", r.Selector)
					dim.Fprintf(w, " %s\n", r.Error)
				case r.Matches == 0:
					red.Fprintf(w, "✗ %-40s 0\n", r.Selector)
				case r.Matches > 1:
					yellow.Fprintf(w, "! %-40s %d\n", r.Selector, r.Matches)
				default:
					green.Fprintf(w, "✓ %-40s 1\n", r.Selector)
				}
			}
			fmt.Fprintln(w)
			bold.Fprintf(w, "%d selectors, %d without a match\n", len(report.Results), len(report.Missing))
			return nil
		},
	}
}

func checkTarget(arg string) (selectorcheck.Target, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return selectorcheck.Target{URL: arg}, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return selectorcheck.Target{}, fmt.Errorf("reading %s: %w", arg, err)
	}
	return selectorcheck.Target{HTML: string(data)}, nil
}
