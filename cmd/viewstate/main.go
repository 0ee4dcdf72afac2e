package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/viewstate/internal/config"
	"github.com/vango-dev/viewstate/internal/errors"
	"github.com/vango-dev/viewstate/pkg/telemetry"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	jsonLog    bool
	logFile    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "viewstate",
		Short: "Reactive state to view-layer sync tooling",
		Long: `viewstate inspects and replays reactive state bindings.

A binding keeps a view layer's copy of reactive state current by
sending either full snapshot diffs or minimal path patches. This tool
lets you:

  • Diff two JSON snapshots the way the diff engine does
  • Replay mutation scenarios under either engine and compare them
  • Stream flush telemetry to a devtools WebSocket with Prometheus metrics`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file (default: viewstate.json or viewstate.yaml found upwards)")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().BoolVar(&g.jsonLog, "log-json", false, "Log as JSON")
	rootCmd.PersistentFlags().StringVar(&g.logFile, "log-file", "", "Also append JSON logs to this file")

	rootCmd.AddCommand(
		diffCmd(),
		replayCmd(g),
		serveCmd(g),
		configCmd(g),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig resolves --config, else searches from the working directory,
// else falls back to defaults.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	if g.configPath != "" {
		return config.LoadFile(g.configPath)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.LoadOrDefault(wd)
}

// logger builds the command logger. With --log-file, records also go to
// the file as JSON at the same level; the returned func closes it.
func (g *globalFlags) logger(cfg *config.Config, w io.Writer) (*slog.Logger, func(), error) {
	level := cfg.Log.Level
	if g.logLevel != "" {
		level = g.logLevel
	}
	opts := telemetry.LoggerOptions{
		Level: telemetry.ParseLevel(level),
		JSON:  g.jsonLog || cfg.Log.JSON,
	}
	if g.logFile == "" {
		return telemetry.NewLogger(w, opts), func() {}, nil
	}

	f, err := os.OpenFile(g.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	opts.Extra = []slog.Handler{slog.NewJSONHandler(f, &slog.HandlerOptions{Level: opts.Level})}
	return telemetry.NewLogger(w, opts), func() { f.Close() }, nil
}

// exactArgs is cobra.ExactArgs with a coded error.
func exactArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return errors.New("E501").
				WithDetail(fmt.Sprintf("%s expects %d argument(s), got %d", cmd.CommandPath(), n, len(args))).
				WithSuggestion("Usage: " + usage)
		}
		return nil
	}
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
