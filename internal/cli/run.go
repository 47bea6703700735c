package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/LingmoOS/lingmo-menu/internal/appdb"
	"github.com/LingmoOS/lingmo-menu/internal/engine"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	MetricsAddr string
	Watch       bool
	Debounce    time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the menu data service",
		Long: `Load the application cache and keep it in sync with the database.

On a user's first start the default favorites from --settings are pushed
to the database. Changes made to the database file by other processes are
picked up through a file watcher. Every change notification is printed to
stdout, one per line.

Example:
  lingmo-menu run --db ./apps.db --settings /etc/lingmo-menu.toml --state ~/.config/lingmo-menu/state.yaml
  lingmo-menu run --db ./apps.db --metrics-addr :9090 --log-file /var/log/lingmo-menu.log`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	cmd.Flags().BoolVar(&opts.Watch, "watch", true, "rescan the database when its files change")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", appdb.DefaultDebounce, "quiet period before a rescan")

	return cmd
}

func runService(cmd *cobra.Command, opts *RunOptions) error {
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	reg := prometheus.NewRegistry()
	printer := &notificationPrinter{w: cmd.OutOrStdout(), format: opts.Format}

	s, err := openSession(ctx, opts.RootOptions, sessionOptions{
		withState:  true,
		notify:     printer.print,
		registerer: reg,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			slog.Error("error closing session", "error", closeErr)
		}
	}()

	if opts.Watch {
		watcher, err := appdb.NewWatcher(s.db, opts.Debounce)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create watcher", err)
		}
		if err := watcher.Start(); err != nil {
			return WrapExitError(ExitCommandError, "failed to start watcher", err)
		}
		defer watcher.Stop()
	}

	if opts.MetricsAddr != "" {
		srv := newMetricsServer(opts.MetricsAddr, reg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "addr", opts.MetricsAddr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		slog.Info("serving metrics", "addr", opts.MetricsAddr)
	}

	slog.Info("menu service started",
		"db", opts.Database,
		"records", len(s.mgr.AllRecords()),
		"available", s.mgr.Available(),
	)
	if opts.Format != "json" {
		printer.line("Menu service started. Press Ctrl-C to stop.")
	}

	<-ctx.Done()
	slog.Info("menu service stopped")
	return nil
}

func newMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// notificationView is the JSON form of a notification.
type notificationView struct {
	Seq              int64             `json:"seq"`
	Kind             string            `json:"kind"`
	IDs              []string          `json:"ids,omitempty"`
	GroupingRelevant bool              `json:"grouping_relevant,omitempty"`
	Changed          map[string]string `json:"changed,omitempty"`
}

func viewOf(n engine.Notification) notificationView {
	v := notificationView{Seq: n.Seq, Kind: n.Kind.String(), GroupingRelevant: n.GroupingRelevant}
	for _, r := range n.Records {
		v.IDs = append(v.IDs, r.ID)
	}
	v.IDs = append(v.IDs, n.IDs...)
	if len(n.Changed) > 0 {
		v.Changed = make(map[string]string, len(n.Changed))
		for id, fields := range n.Changed {
			v.Changed[id] = fields.String()
		}
	}
	return v
}

// notificationPrinter writes notifications as they are published. It is
// called on the worker goroutine.
type notificationPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	format string
}

func (p *notificationPrinter) print(n engine.Notification) {
	v := viewOf(n)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.format == "json" {
		_ = json.NewEncoder(p.w).Encode(v)
		return
	}
	line := fmt.Sprintf("[%d] %s", v.Seq, v.Kind)
	if len(v.IDs) > 0 {
		line += " " + strings.Join(v.IDs, " ")
	}
	if v.GroupingRelevant {
		line += " (regroup)"
	}
	fmt.Fprintln(p.w, line)
}

func (p *notificationPrinter) line(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, s)
}
