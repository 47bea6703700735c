package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
	"github.com/LingmoOS/lingmo-menu/internal/engine"
	"github.com/LingmoOS/lingmo-menu/internal/manager"
)

// NewPinCommand creates the pin command.
func NewPinCommand(rootOpts *RootOptions) *cobra.Command {
	return newMutationCommand(rootOpts, "pin <app-id>",
		"Add an application to the end of the favorites",
		cobra.ExactArgs(1),
		func(m *manager.Manager, args []string) error {
			return m.PinToFavorite(args[0], true)
		})
}

// NewUnpinCommand creates the unpin command.
func NewUnpinCommand(rootOpts *RootOptions) *cobra.Command {
	return newMutationCommand(rootOpts, "unpin <app-id>",
		"Remove an application from the favorites",
		cobra.ExactArgs(1),
		func(m *manager.Manager, args []string) error {
			return m.PinToFavorite(args[0], false)
		})
}

// NewReorderCommand creates the reorder command.
func NewReorderCommand(rootOpts *RootOptions) *cobra.Command {
	return newMutationCommand(rootOpts, "reorder <app-id> <rank>",
		"Set the favorite rank of an application (0 removes it)",
		cobra.ExactArgs(2),
		func(m *manager.Manager, args []string) error {
			rank, err := parseRank(args[1])
			if err != nil {
				return err
			}
			return m.ReorderFavorite(args[0], rank)
		})
}

// NewTopCommand creates the top command.
func NewTopCommand(rootOpts *RootOptions) *cobra.Command {
	return newMutationCommand(rootOpts, "top <app-id> <rank>",
		"Set the pin-to-top rank of an application (0 unpins it)",
		cobra.ExactArgs(2),
		func(m *manager.Manager, args []string) error {
			rank, err := parseRank(args[1])
			if err != nil {
				return err
			}
			return m.PinToTop(args[0], rank)
		})
}

// NewLaunchCommand creates the launch command.
func NewLaunchCommand(rootOpts *RootOptions) *cobra.Command {
	return newMutationCommand(rootOpts, "launch <app-id>",
		"Mark an application as launched at least once",
		cobra.ExactArgs(1),
		func(m *manager.Manager, args []string) error {
			return m.MarkLaunched(args[0])
		})
}

func parseRank(s string) (int, error) {
	rank, err := strconv.Atoi(s)
	if err != nil {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid rank %q: must be an integer", s))
	}
	return rank, nil
}

// newMutationCommand builds a command that submits one request through the
// manager. Requests are fire-and-forget, so the command closes the manager
// to flush the request and then prints the application as stored in the
// database.
func newMutationCommand(rootOpts *RootOptions, use, short string, args cobra.PositionalArgs,
	submit func(m *manager.Manager, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          args,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			id := args[0]

			s, err := openSession(ctx, rootOpts, sessionOptions{})
			if err != nil {
				return err
			}
			defer s.db.Close()

			if _, err := s.requireRecord(id); err != nil {
				_ = s.mgr.Close()
				return err
			}
			if err := submit(s.mgr, args); err != nil {
				_ = s.mgr.Close()
				return err
			}
			if err := s.mgr.Close(); err != nil {
				return WrapExitError(ExitFailure, "failed to flush request", err)
			}

			props, err := s.db.FetchOne(ctx, id, appinfo.RecordProperties)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read application", err)
			}
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Records(recordsOf(engine.RecordFromProperties(id, props)))
		},
	}
}
