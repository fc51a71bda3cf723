package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/testforge/docforge/internal/app"
)

func newStatsCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge base statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
				stats, err := a.Base.Stats(ctx)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Entries:          %d\n", stats.TotalEntries)
				fmt.Fprintf(w, "Backend:          %s\n", stats.Backend)
				fmt.Fprintf(w, "Embedding model:  %s\n", stats.EmbeddingModel)
				return nil
			})
		},
	}
}

func newResetCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Remove every entry from the knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Base.Reset(ctx); err != nil {
					return err
				}
				green.Fprintln(cmd.OutOrStdout(), "Knowledge base cleared")
				return nil
			})
		},
	}
}
