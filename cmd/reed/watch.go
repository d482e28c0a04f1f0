package main

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ProjectMoon/reed/internal/daemon"
	"github.com/ProjectMoon/reed/internal/dashboard"
	"github.com/ProjectMoon/reed/internal/keys"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync posts and pages, then keep watching for changes",
	Long: `Run the sync daemon for every configured directory.

Each daemon first reconciles the index with its directory: new and modified
files are (re)indexed and entries whose files are gone are removed. It then
watches the directory and applies changes as they happen, until interrupted.

With --dashboard-port (or dashboard.port in config) every event is also
broadcast as JSON to WebSocket clients on ws://host:port/ws.

Example usage:
  reed watch --posts-dir ./posts --pages-dir ./pages
  reed watch --dashboard-port 8080`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Int("dashboard-port", 0, "serve events over WebSocket on this port (overrides config)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var kinds []keys.Kind
	if appConfig.Posts != "" {
		kinds = append(kinds, keys.Posts)
	}
	if appConfig.Pages != "" {
		kinds = append(kinds, keys.Pages)
	}
	if len(kinds) == 0 {
		return errors.New("nothing to watch: configure posts and/or pages directories")
	}

	port := appConfig.Dashboard.Port
	if p, _ := cmd.Flags().GetInt("dashboard-port"); p != 0 {
		port = p
	}

	var handler *dashboard.Handler
	if port > 0 {
		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Logger: logger("dashboard"),
		})
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		defer func() {
			if err := server.Stop(); err != nil {
				fmt.Fprintln(os.Stderr, errorStyle.Render("Error during dashboard shutdown:"), err)
			}
		}()
		handler = dashboard.NewHandler(server, logger("dashboard"))
		fmt.Printf("Dashboard: ws://%s/ws\n", server.GetAddr())
	}

	var (
		daemons []*daemon.Daemon
		printMu sync.Mutex
		wg      sync.WaitGroup
	)
	defer func() {
		for _, d := range daemons {
			if d.State() == daemon.StateClosed {
				continue
			}
			if err := d.Close(); err != nil {
				fmt.Fprintln(os.Stderr, errorStyle.Render("Error closing "+d.Kind().String()+":"), err)
			}
		}
		wg.Wait()
	}()

	for _, kind := range kinds {
		d, err := newDaemon(kind)
		if err != nil {
			return err
		}
		events, cancel := d.Subscribe(256)
		defer cancel()

		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-events:
					if !ok {
						return
					}
					printMu.Lock()
					fmt.Println(formatEvent(ev))
					printMu.Unlock()
					if handler != nil {
						handler.OnEvent(ev)
					}
				}
			}
		}()

		dir, _ := dirFor(kind)
		if err := d.Open(dir); err != nil {
			return err
		}
		printMu.Lock()
		fmt.Println(dimStyle.Render(fmt.Sprintf("Watching %s in %s", kind, d.Dir())))
		printMu.Unlock()
		daemons = append(daemons, d)
	}

	fmt.Println(dimStyle.Render("Watching; press Ctrl+C to stop..."))
	<-ctx.Done()
	fmt.Println(dimStyle.Render("\nShutting down..."))
	return nil
}
