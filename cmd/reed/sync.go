package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ProjectMoon/reed/internal/daemon"
	"github.com/ProjectMoon/reed/internal/keys"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the index with the source directories once",
	Long: `Run a single reconciliation pass for every configured directory and exit.

New and modified files are (re)indexed and entries whose files are gone are
removed. Per-file failures are reported and do not stop the pass; the command
exits non-zero if any occurred.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolP("events", "e", false, "print every event, not just the summary")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	showEvents, _ := cmd.Flags().GetBool("events")

	var kinds []keys.Kind
	if appConfig.Posts != "" {
		kinds = append(kinds, keys.Posts)
	}
	if appConfig.Pages != "" {
		kinds = append(kinds, keys.Pages)
	}
	if len(kinds) == 0 {
		return errors.New("nothing to sync: configure posts and/or pages directories")
	}

	var failed []error
	for _, kind := range kinds {
		if err := syncOnce(cmd.Context(), kind, showEvents); err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", kind, err))
		}
	}
	return errors.Join(failed...)
}

func syncOnce(ctx context.Context, kind keys.Kind, showEvents bool) error {
	dir, err := dirFor(kind)
	if err != nil {
		return err
	}
	d, err := newDaemon(kind)
	if err != nil {
		return err
	}

	events, cancel := d.Subscribe(1024)
	defer cancel()

	if err := d.Open(dir); err != nil {
		return err
	}

	var summary syncSummary
	for {
		select {
		case <-ctx.Done():
			_ = d.Close()
			return ctx.Err()

		case ev := <-events:
			if showEvents || ev.Kind == daemon.EventError {
				fmt.Fprintln(os.Stderr, formatEvent(ev))
			}
			summary.record(ev)

			switch {
			case ev.Kind == daemon.EventReady:
				summary.print(os.Stdout, kind.String())
				if err := d.Close(); err != nil {
					return err
				}
				if summary.errors > 0 {
					return fmt.Errorf("%d files failed to sync", summary.errors)
				}
				return nil

			case ev.Kind == daemon.EventError && d.State() == daemon.StateClosed:
				// The daemon could not start.
				return ev.Err
			}
		}
	}
}
