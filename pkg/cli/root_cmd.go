package cli

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/jlrickert/cli-toolkit/mylog"
	"github.com/spf13/cobra"

	"github.com/jlrickert/xcheck/pkg/internal"
	"github.com/jlrickert/xcheck/pkg/xcheck"
)

// Version may be overridden at build-time with -ldflags "-X github.com/jlrickert/xcheck/pkg/cli.Version=...".
var Version = "dev"

// Deps carries the injectable dependencies and global flag values shared by
// every command.
type Deps struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	SchemaPath string
	DBPath     string
	LogFile    string
	LogLevel   string
	LogJSON    bool

	// Logger, when set, is used instead of building one from the log flags.
	Logger *slog.Logger
	Clock  internal.Clock

	// NewRegistry returns the registry each schema load binds against. Programs
	// embedding the CLI use it to provide custom hash functions and filters.
	NewRegistry func() *xcheck.Registry

	Shutdown func()
}

// Option configures Deps.
type Option func(*Deps)

// WithIO sets stdin, stdout and stderr.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(d *Deps) {
		d.In = in
		d.Out = out
		d.Err = errOut
	}
}

// WithLogger injects a logger, bypassing the log flags.
func WithLogger(lg *slog.Logger) Option {
	return func(d *Deps) { d.Logger = lg }
}

// WithClock sets the clock used to stamp recorded runs.
func WithClock(c internal.Clock) Option {
	return func(d *Deps) { d.Clock = c }
}

// WithRegistryFactory sets how registries are created for schema loads.
func WithRegistryFactory(fn func() *xcheck.Registry) Option {
	return func(d *Deps) { d.NewRegistry = fn }
}

func applyOptions(opts ...Option) *Deps {
	deps := &Deps{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o(deps)
	}
	deps.setDefaults()
	return deps
}

func (deps *Deps) setDefaults() {
	if deps.In == nil {
		deps.In = os.Stdin
	}
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.Err == nil {
		deps.Err = os.Stderr
	}
	if deps.Clock == nil {
		deps.Clock = internal.RealClock{}
	}
	if deps.NewRegistry == nil {
		deps.NewRegistry = xcheck.NewRegistry
	}
	if deps.Shutdown == nil {
		deps.Shutdown = func() {}
	}
}

// NewRootCmd builds the root cobra command and its subcommands.
func NewRootCmd(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = &Deps{}
	}
	deps.setDefaults()

	cmd := &cobra.Command{
		Use:   "xcheck",
		Short: "cross-check hashing of structured values",
		Long: `xcheck computes deterministic cross-check hashes of values described by a
schema file, so independently produced data can be compared by hash.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if deps.Logger == nil {
				var out io.Writer = deps.Err
				if deps.LogFile != "" {
					f, err := os.OpenFile(deps.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
					if err != nil {
						return err
					}
					out = f
					prev := deps.Shutdown
					var once sync.Once
					deps.Shutdown = func() {
						once.Do(func() { _ = f.Close() })
						prev()
					}
				}
				deps.Logger = mylog.NewLogger(mylog.LoggerConfig{
					Out:     out,
					Level:   mylog.ParseLevel(deps.LogLevel),
					JSON:    deps.LogJSON,
					Version: Version,
				})
			}

			ctx = mylog.WithLogger(ctx, deps.Logger)
			cmd.SetContext(ctx)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			deps.Shutdown()
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&deps.LogFile, "log-file", "", "write logs to file (default stderr)")
	flags.StringVar(&deps.LogLevel, "log-level", "warn", "minimum log level")
	flags.BoolVar(&deps.LogJSON, "log-json", false, "output logs as JSON")
	flags.StringVarP(&deps.SchemaPath, "schema", "s", "", "path to the schema file (yaml or toml)")
	flags.StringVar(&deps.DBPath, "db", "", "path to the hash log database (default in the user data dir)")

	cmd.AddCommand(
		NewHashCmd(deps),
		NewCompareCmd(deps),
		NewExplainCmd(deps),
		NewRecordCmd(deps),
		NewRunsCmd(deps),
		NewDiffCmd(deps),
		NewExportCmd(deps),
		NewImportCmd(deps),
		NewWatchCmd(deps),
		NewMCPCmd(deps),
		NewVersionCmd(),
	)

	return cmd
}

// NewVersionCmd returns the `version` command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := io.WriteString(cmd.OutOrStdout(), Version+"\n")
			return err
		},
	}
}
