// Package cli wires the ghgcalc commands.
package cli

import (
	"context"
	"io"
	"log/slog"

	"ghgcalc/internal/config"
	"ghgcalc/internal/logging"
	"ghgcalc/internal/storage"

	"github.com/spf13/cobra"
)

// ExitError is an error carrying a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func usageError(msg string) error {
	return &ExitError{Code: 2, Message: msg}
}

// options holds the persistent flags and what PersistentPreRunE builds from them.
type options struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg config.Config
	log *slog.Logger
	lib *storage.Library
}

func (o *options) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.LogFormat = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return usageError(err.Error())
	}
	o.cfg = cfg
	o.log = logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	o.lib = storage.NewLibrary(cfg.LibraryPath, cfg.LockTimeout.Duration, o.log)
	o.log.Debug("Configuration loaded.", "library", cfg.LibraryPath, "precision", cfg.Precision)
	return nil
}

// NewRootCmd builds the command tree. Output goes to out, diagnostics to errOut.
func NewRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "ghgcalc",
		Short: "Evaluate custom greenhouse gas formulas",
		Long: `ghgcalc evaluates user-defined arithmetic formulas for greenhouse gas
calculations. Formulas may reference sum blocks: templates such as
FC_j * EF_j that are summed over a list of items.

Without a subcommand the interactive form is started.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), opts, "")
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err.Error())
	})

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	pf.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(
		newTUICmd(opts),
		newEvalCmd(opts),
		newVarsCmd(),
		newFormulasCmd(opts),
	)
	return root
}

// Execute runs the command line args.
func Execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	root := NewRootCmd(out, errOut)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
