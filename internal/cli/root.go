package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/illustration-analyzer/internal/common"
	"github.com/joseph-ayodele/illustration-analyzer/internal/pipeline"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath  string
	LogLevel    string
	Concurrency int
	Pretty      bool
}

// App carries the loaded configuration and lazily built pipeline through the
// command tree.
type App struct {
	Config *common.Config
	Logger *slog.Logger
	Out    io.Writer
	Err    io.Writer
	Pretty bool

	once sync.Once
	proc *pipeline.Processor
	perr error
}

type appKey struct{}

// Processor builds the pipeline on first use so commands that never reach the
// model do not need provider credentials.
func (a *App) Processor(ctx context.Context) (*pipeline.Processor, error) {
	a.once.Do(func() {
		if err := a.Config.Validate(); err != nil {
			a.perr = err
			return
		}
		a.proc, _, a.perr = pipeline.Build(ctx, a.Config, a.Logger, nil)
	})
	return a.proc, a.perr
}

// PrintJSON writes v to the command output.
func (a *App) PrintJSON(v any) error {
	enc := json.NewEncoder(a.Out)
	enc.SetEscapeHTML(false)
	if a.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// AppFrom returns the App attached by the root command.
func AppFrom(cmd *cobra.Command) *App {
	if a, ok := cmd.Context().Value(appKey{}).(*App); ok {
		return a
	}
	return nil
}

// NewRootCommand builds the illustrations command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	root := &cobra.Command{
		Use:           "illustrations",
		Short:         "Analyze insurance benefit illustrations",
		Long:          "Extract, parse and score savings-insurance illustrations: cashflows, payback year and the IRR trend.",
		Version:       fmt.Sprintf("%s (%s)", Version, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.ConfigPath != "" {
				if err := os.Setenv("CONFIG_FILE", opts.ConfigPath); err != nil {
					return err
				}
			}
			cfg, err := common.LoadConfig()
			if err != nil {
				return err
			}
			if opts.LogLevel != "" {
				cfg.Log.Level = opts.LogLevel
			}
			if opts.Concurrency > 0 {
				cfg.Pipeline.Concurrency = opts.Concurrency
			}
			logger := common.NewSlogLogger(cfg.Log, cmd.ErrOrStderr())
			slog.SetDefault(logger)

			app := &App{
				Config: cfg,
				Logger: logger,
				Out:    cmd.OutOrStdout(),
				Err:    cmd.ErrOrStderr(),
				Pretty: opts.Pretty,
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, appKey{}, app))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file (overrides CONFIG_FILE)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.IntVar(&opts.Concurrency, "concurrency", 0, "documents analyzed in parallel")
	pf.BoolVar(&opts.Pretty, "pretty", true, "indent JSON output")

	root.AddCommand(
		newAnalyzeCmd(),
		newWatchCmd(),
		newExtractCmd(),
		newComputeCmd(),
	)
	return root
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
		return 1
	}
	return 0
}
