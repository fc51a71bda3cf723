package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/testforge/docforge/internal/app"
	"github.com/testforge/docforge/internal/domain"
	"github.com/testforge/docforge/internal/generation"
)

func newScriptsCmd(rt *runtime) *cobra.Command {
	var (
		casesFile string
		outDir    string
		framework string
		upload    bool
	)

	cmd := &cobra.Command{
		Use:   "scripts",
		Short: "Generate UI automation scripts from test cases",
		Long: `Reads test cases (the JSON written by "generate --out") and writes one
script per case. Scripts use only selectors retrieved from ingested HTML;
a failed generation writes a fallback script that documents the error.
Calls are spaced by SCRIPT_MIN_DELAY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(casesFile)
			if err != nil {
				return fmt.Errorf("reading test cases: %w", err)
			}
			cases, dropped, err := generation.ParseTestCases(string(data))
			if err != nil {
				return fmt.Errorf("parsing %s: %w", casesFile, err)
			}
			if dropped > 0 {
				yellow.Fprintf(cmd.OutOrStdout(), "%d records skipped for missing fields\n", dropped)
			}
			return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return runScripts(ctx, cmd, a, cases, domain.ScriptFramework(framework), outDir, upload)
			})
		},
	}
	cmd.Flags().StringVar(&casesFile, "cases", "", "JSON file of test cases")
	cmd.Flags().StringVarP(&outDir, "out", "o", "generated_scripts", "directory to write scripts to")
	cmd.Flags().StringVarP(&framework, "framework", "f", "", "selenium-python or playwright-ts (default SCRIPT_FRAMEWORK)")
	cmd.Flags().BoolVar(&upload, "upload", false, "store the scripts in the artifact bucket")
	cmd.MarkFlagRequired("cases")
	return cmd
}

func runScripts(ctx context.Context, cmd *cobra.Command, a *app.App, all []domain.TestCase, framework domain.ScriptFramework, outDir string, upload bool) error {
	w := cmd.OutOrStdout()

	var cases []domain.TestCase
	for _, tc := range all {
		if tc.IsDiagnostic() {
			dim.Fprintf(w, "Skipping diagnostic record: %s\n", tc.TestScenario)
			continue
		}
		cases = append(cases, tc)
	}
	if len(cases) == 0 {
		return fmt.Errorf("no test cases to generate scripts for")
	}

	synth, err := a.Synthesizer(framework)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(len(cases),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("Generating scripts..."),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	synth.SetProgressCallback(func(done, total int) {
		bar.Set(done)
	})
	scripts := synth.SynthesizeAll(ctx, cases)
	bar.Finish()
	fmt.Fprintln(cmd.ErrOrStderr())

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", outDir, err)
	}

	degraded := 0
	names := domain.ScriptFilenames(scripts)
	for i, s := range scripts {
		path := filepath.Join(outDir, names[i])
		if err := os.WriteFile(path, []byte(s.Source), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		switch {
		case s.Degraded:
			degraded++
			red.Fprintf(w, "✗ %s", path)
			dim.Fprintln(w, " (fallback)")
		case len(s.UnverifiedSelectors) > 0:
			yellow.Fprintf(w, "! %s", path)
			dim.Fprintf(w, " (unverified selectors: %v)\n", s.UnverifiedSelectors)
		default:
			green.Fprintf(w, "✓ %s\n", path)
		}
	}

	fmt.Fprintln(w)
	bold.Fprintf(w, "%d scripts (%s)", len(scripts), synth.Framework())
	if degraded > 0 {
		yellow.Fprintf(w, ", %d fallbacks", degraded)
	}
	fmt.Fprintln(w)

	if upload {
		store, err := a.Artifacts(ctx)
		if err != nil {
			return err
		}
		runID := uuid.NewString()
		if _, err := store.UploadTestCases(ctx, runID, cases); err != nil {
			return err
		}
		uris, err := store.UploadScripts(ctx, runID, scripts)
		if err != nil {
			return err
		}
		dim.Fprintf(w, "Uploaded %d scripts to run %s\n", len(uris), runID)
	}
	return nil
}
