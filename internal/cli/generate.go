package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/testforge/docforge/internal/app"
	"github.com/testforge/docforge/internal/domain"
	"github.com/testforge/docforge/internal/generation"
)

func newGenerateCmd(rt *runtime) *cobra.Command {
	var (
		k      int
		out    string
		upload bool
	)

	cmd := &cobra.Command{
		Use:   "generate QUERY",
		Short: "Generate grounded test cases for a feature",
		Long: `Retrieves the documentation most relevant to QUERY and asks the text
generation backend for test cases that cite their sources. Backend or
parse failures produce a single ERROR test case describing the problem.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(args[0])
			if query == "" {
				return fmt.Errorf("query must not be empty")
			}
			return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if k <= 0 {
					k = a.Config.Retrieval.TopK
				}
				return runGenerate(ctx, cmd, a, query, k, out, upload)
			})
		},
	}
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "number of chunks to retrieve (default RETRIEVAL_TOP_K)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the test cases as JSON to this file")
	cmd.Flags().BoolVar(&upload, "upload", false, "store the test cases in the artifact bucket")
	return cmd
}

func runGenerate(ctx context.Context, cmd *cobra.Command, a *app.App, query string, k int, out string, upload bool) error {
	w := cmd.OutOrStdout()

	gen, err := a.Generator()
	if err != nil {
		return err
	}
	result := gen.Run(ctx, a.Base, query, k)

	if result.Status == generation.StatusDegraded {
		yellow.Fprintf(w, "Generation degraded at %s\n\n", result.State)
	} else {
		green.Fprintf(w, "%d test cases", len(result.TestCases))
		dim.Fprintf(w, " from %s\n\n", strings.Join(result.Sources, ", "))
	}
	printTestCases(w, result.TestCases)

	if result.Dropped > 0 {
		yellow.Fprintf(w, "%d records dropped for missing fields\n", result.Dropped)
	}
	if len(result.Ungrounded) > 0 {
		yellow.Fprintf(w, "Citing sources outside the retrieved context: %s\n", strings.Join(result.Ungrounded, ", "))
	}

	if out != "" {
		if err := writeJSONFile(out, result.TestCases); err != nil {
			return err
		}
		dim.Fprintf(w, "Saved %s\n", out)
	}

	if upload {
		store, err := a.Artifacts(ctx)
		if err != nil {
			return err
		}
		uri, err := store.UploadTestCases(ctx, uuid.NewString(), result.TestCases)
		if err != nil {
			return err
		}
		dim.Fprintf(w, "Uploaded %s\n", uri)
	}
	return nil
}

func printTestCases(w io.Writer, cases []domain.TestCase) {
	for _, tc := range cases {
		if tc.IsDiagnostic() {
			red.Fprintf(w, "%s  %s\n", tc.TestID, tc.Feature)
		} else {
			cyan.Fprintf(w, "%s  %s\n", tc.TestID, tc.Feature)
		}
		bold.Fprintf(w, "  %s\n", tc.TestScenario)
		for _, line := range strings.Split(tc.StepsText(), "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
		fmt.Fprintf(w, "  Expected: %s\n", tc.ExpectedResult)
		dim.Fprintf(w, "  Grounded in: %s\n\n", tc.GroundingText())
	}
}
