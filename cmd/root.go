package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"dashcheck/internal/config"
	"dashcheck/internal/observability"
	"dashcheck/internal/snowflake"
	"dashcheck/internal/ui"
	"dashcheck/pkg/models"
)

const (
	exitOK       = 0
	exitError    = 1
	exitFindings = 2
)

// errFindings signals a run that completed with validation failures.
var errFindings = errors.New("validation failures found")

// app carries state shared by the commands of one invocation.
type app struct {
	v          *viper.Viper
	configFile string
	envFiles   []string
	asker      ui.Asker
}

func newApp() *app {
	a := &app{v: viper.New()}
	a.v.SetEnvPrefix("DASHCHECK")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	return a
}

// NewRootCommand builds the dashcheck command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(newApp())
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "dashcheck",
		Short: "Validate dashboard analytics pipelines in Snowflake",
		Long: `dashcheck validates a multi-tenant dashboard analytics pipeline.

Stage 1 checks regional production tables against the union database,
stage 2 checks base tables against their parents and definition look-ups,
stage 3 reconciles dashboard statistics with the base tables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			n, err := snowflake.LoadEnvFiles(a.envFiles...)
			if err != nil {
				return fmt.Errorf("failed to load env file: %w", err)
			}
			if n > 0 && a.v.GetString("log-level") == "debug" {
				fmt.Fprintf(cmd.ErrOrStderr(), "loaded %d env file(s)\n", n)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default $DASHCHECK_CONFIG, ./dashcheck.yaml or ~/.dashcheck/config.yaml)")
	flags.StringSliceVar(&a.envFiles, "env-file", []string{".env"}, "env files loaded before reading settings")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: text or json")
	bindFlags(a.v, flags, "log-level", "log-format")

	root.AddCommand(
		newValidateCmd(a),
		newChecksCmd(),
		newConfigCmd(a),
		newInitCmd(a),
		newVersionCmd(),
	)
	return root
}

// bindFlags lets v read the named flags, with DASHCHECK_* variables as
// the fallback when a flag is not given.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, names ...string) {
	for _, name := range names {
		if f := fs.Lookup(name); f != nil {
			_ = v.BindPFlag(name, f)
		}
	}
}

// loadConfig reads the configuration file and applies flag and environment
// overrides on top.
func (a *app) loadConfig() (*models.Config, error) {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return nil, err
	}
	config.ApplyOverrides(cfg, a.v)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) newLogger(cfg *models.Config, out io.Writer) *logrus.Entry {
	return observability.NewLogger(observability.LoggerConfig{
		Level:   cfg.Runtime.LogLevel,
		Format:  cfg.Runtime.LogFormat,
		Output:  out,
		Version: Version,
	})
}

// Execute runs the CLI and exits with its status code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	prev := ui.Out
	ui.Out = stderr
	defer func() { ui.Out = prev }()

	err := root.ExecuteContext(ctx)
	code := exitCode(err)
	if code == exitError {
		ui.ShowError(err)
	}
	return code
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errFindings):
		return exitFindings
	default:
		return exitError
	}
}
