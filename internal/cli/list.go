package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Category string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visible applications",
		Long: `List every application the menu shows, in load order.

Applications flagged DontDisplay or AutoStart are not listed.

Examples:
  lingmo-menu list --db ./apps.db
  lingmo-menu list --category Development --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Category, "category", "", "only list applications in this category")
	return cmd
}

func runList(cmd *cobra.Command, opts *ListOptions) error {
	s, err := openSession(commandContext(cmd), opts.RootOptions, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	records := s.mgr.AllRecords()
	if opts.Category != "" {
		filtered := records[:0]
		for _, r := range records {
			if r.Category == opts.Category {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Records(records)
}

// NewFavoritesCommand creates the favorites command.
func NewFavoritesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "favorites",
		Short: "List favorite applications in rank order",
		Long: `List favorite applications ordered by ascending favorite rank.

Example:
  lingmo-menu favorites --db ./apps.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(commandContext(cmd), rootOpts, sessionOptions{})
			if err != nil {
				return err
			}
			defer s.Close()

			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Records(s.mgr.Favorites())
		},
	}
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// recordsOf is a helper for single-record output.
func recordsOf(rec appinfo.Record) []appinfo.Record {
	return []appinfo.Record{rec}
}
