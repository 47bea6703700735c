package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EnvPrefix prefixes environment overrides of persistent flags, e.g.
// LINGMO_MENU_DB for --db.
const EnvPrefix = "LINGMO_MENU"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string
	Settings string
	State    string
	LogFile  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the lingmo-menu CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "lingmo-menu",
		Short: "Lingmo menu application data service",
		Long: `Keeps an in-memory cache of installed applications in sync with the
application database and exposes favorites, pinning and launch tracking.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := resolveOptions(cmd, opts); err != nil {
				return WrapExitError(ExitCommandError, "failed to read configuration", err)
			}
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			setupLogging(opts, cmd.ErrOrStderr())
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.Database, "db", "lingmo-menu.db", "path to the application database")
	flags.StringVar(&opts.Settings, "settings", "", "path to settings (.yaml or .toml)")
	flags.StringVar(&opts.State, "state", "", "path to per-user state (.yaml)")
	flags.StringVar(&opts.LogFile, "log-file", "", "write logs to a rotating file instead of stderr")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewFavoritesCommand(opts))
	cmd.AddCommand(NewPinCommand(opts))
	cmd.AddCommand(NewUnpinCommand(opts))
	cmd.AddCommand(NewReorderCommand(opts))
	cmd.AddCommand(NewTopCommand(opts))
	cmd.AddCommand(NewLaunchCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// resolveOptions fills opts from flags, then LINGMO_MENU_* environment
// variables for flags not set on the command line.
func resolveOptions(cmd *cobra.Command, opts *RootOptions) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	opts.Verbose = v.GetBool("verbose")
	opts.Format = v.GetString("format")
	opts.Database = v.GetString("db")
	opts.Settings = v.GetString("settings")
	opts.State = v.GetString("state")
	opts.LogFile = v.GetString("log-file")
	return nil
}

// setupLogging installs the default slog handler. Debug level with
// --verbose; otherwise info for the file log and warn for stderr, so
// one-shot commands stay quiet.
func setupLogging(opts *RootOptions, stderr io.Writer) {
	var (
		w     io.Writer = stderr
		level           = slog.LevelWarn
	)
	if opts.LogFile != "" {
		w = &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		level = slog.LevelInfo
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
