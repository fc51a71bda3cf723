// Package cli implements the docforge command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/testforge/docforge/internal/app"
	"github.com/testforge/docforge/internal/config"
	"github.com/testforge/docforge/internal/observability"
	"github.com/testforge/docforge/internal/selectorcheck"
)

var (
	green  = color.New(color.FgGreen, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
	cyan   = color.New(color.FgCyan, color.Bold)
	bold   = color.New(color.Bold)
	dim    = color.New(color.Faint)
)

// Deps are the constructors the commands use.
type Deps struct {
	LoadConfig  func() (*config.Config, error)
	OpenApp     func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app.App, error)
	OpenBrowser func(cfg config.BrowserConfig) (selectorcheck.Browser, io.Closer, error)
}

// DefaultDeps builds the real components from the environment.
func DefaultDeps() Deps {
	return Deps{
		LoadConfig: config.Load,
		OpenApp: func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app.App, error) {
			return app.New(ctx, cfg, logger, nil)
		},
		OpenBrowser: func(cfg config.BrowserConfig) (selectorcheck.Browser, io.Closer, error) {
			b, err := selectorcheck.NewPlaywrightBrowser(cfg)
			if err != nil {
				return nil, nil, err
			}
			return b, b, nil
		},
	}
}

type runtime struct {
	deps    Deps
	verbose bool
}

// NewRootCommand assembles the command tree.
func NewRootCommand(deps Deps) *cobra.Command {
	rt := &runtime{deps: deps}

	root := &cobra.Command{
		Use:   "docforge",
		Short: "Documentation-grounded test case and script generation",
		Long: `docforge ingests product documentation into a knowledge base, generates
test cases that cite the documents they come from, and turns those test
cases into UI automation scripts that use only selectors found in the
ingested HTML.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&rt.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newIngestCmd(rt),
		newGenerateCmd(rt),
		newScriptsCmd(rt),
		newSelectorsCmd(rt),
		newStatsCmd(rt),
		newResetCmd(rt),
	)
	return root
}

func (rt *runtime) config() (*config.Config, error) {
	cfg, err := rt.deps.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func (rt *runtime) logger(cfg *config.Config) *zap.Logger {
	level := "warn"
	if rt.verbose {
		level = "debug"
	}
	return observability.NewLogger(string(cfg.App.Environment), level)
}

// withApp opens the application for one command and closes it afterwards.
func (rt *runtime) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := rt.config()
	if err != nil {
		return err
	}
	logger := rt.logger(cfg)
	defer logger.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := rt.deps.OpenApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening knowledge base: %w", err)
	}
	defer a.Close()

	return fn(ctx, a)
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
