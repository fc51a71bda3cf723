package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/testforge/docforge/internal/app"
	"github.com/testforge/docforge/internal/domain"
)

func newIngestCmd(rt *runtime) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "ingest FILES...",
		Short: "Add documents to the knowledge base",
		Long: `Normalizes, chunks and embeds each file into the knowledge base.
Recognized formats are .pdf, .md, .html, .htm, .json and .txt; other
files are read as plain text. A file that cannot be processed is reported
and the rest continue.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return runIngest(ctx, cmd, a, args, reset)
			})
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "clear the knowledge base before ingesting")
	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, a *app.App, paths []string, reset bool) error {
	out := cmd.OutOrStdout()

	docs := make([]domain.Document, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			red.Fprintf(out, "✗ %s: %v\n", p, err)
			continue
		}
		docs = append(docs, domain.Document{Filename: filepath.Base(p), Content: data})
	}
	if len(docs) == 0 {
		return fmt.Errorf("no readable files")
	}

	if reset {
		if err := a.Base.Reset(ctx); err != nil {
			return err
		}
		yellow.Fprintln(out, "Knowledge base cleared")
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription(fmt.Sprintf("Ingesting %d files...", len(docs))),
		progressbar.OptionSpinnerType(14),
	)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				bar.Add(1)
			}
		}
	}()

	report := a.Base.Ingest(ctx, docs)
	close(done)
	bar.Finish()
	fmt.Fprintln(cmd.ErrOrStderr())

	for _, f := range report.Files {
		if f.Failed() {
			red.Fprintf(out, "✗ %s: %s\n", f.Filename, f.Error)
			continue
		}
		green.Fprintf(out, "✓ %s", f.Filename)
		dim.Fprintf(out, " (%s, %d chunks)\n", f.DocType, f.Chunks)
	}

	fmt.Fprintln(out)
	bold.Fprintf(out, "%d files, %d chunks", report.TotalFiles, report.TotalChunks)
	dim.Fprintf(out, " in %s (build %s)\n", report.Duration.Round(time.Millisecond), report.BuildID)
	for _, t := range []domain.DocType{domain.DocTypeSpec, domain.DocTypeAPI, domain.DocTypeUIUX, domain.DocTypeHTMLDOM} {
		if n := report.DocTypes[t]; n > 0 {
			fmt.Fprintf(out, "  %-8s %d\n", t, n)
		}
	}

	if failed := len(report.Failures()); failed > 0 {
		yellow.Fprintf(out, "%d files could not be ingested\n", failed)
	}
	return nil
}
