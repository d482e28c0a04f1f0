package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/ProjectMoon/reed/internal/config"
	"github.com/ProjectMoon/reed/internal/daemon"
	"github.com/ProjectMoon/reed/internal/keys"
	"github.com/ProjectMoon/reed/internal/kv"
	"github.com/ProjectMoon/reed/internal/logging"
)

var (
	cfgFile   string
	appConfig config.Config
	logs      *logging.Factory
	shared    *kv.Shared

	postsDir string
	pagesDir string
	verbose  bool
	noColor  bool
)

var rootCmd = &cobra.Command{
	Use:   "reed",
	Short: "Keep a key-value index of posts and pages in sync with markdown files",
	Long: `reed indexes directories of markdown files into Redis (or SQLite) so a blog
engine can serve posts and pages without touching the filesystem.

Each file is rendered to HTML together with its metadata header and stored
under its title (the file name without extension). Posts are additionally
ordered by last modification time.

Configuration is read from reed.yaml or reed.toml in the working directory,
the file given with --config, and REED_* environment variables
(e.g. REED_STORE_HOST, REED_POSTS).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if postsDir != "" {
			cfg.Posts = postsDir
		}
		if pagesDir != "" {
			cfg.Pages = pagesDir
		}
		appConfig = cfg

		if noColor {
			lipgloss.SetColorProfile(termenv.Ascii)
		}

		logs = logging.NewFactory(cfg.Log)
		shared = kv.NewShared(cfg.Store, nil)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logs != nil {
			return logs.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./reed.yaml or ./reed.toml)")
	rootCmd.PersistentFlags().StringVar(&postsDir, "posts-dir", "", "directory of post sources (overrides config)")
	rootCmd.PersistentFlags().StringVar(&pagesDir, "pages-dir", "", "directory of page sources (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log daemon activity")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// logger returns a component logger. Without --verbose or a log file,
// activity logs are dropped so command output stays clean.
func logger(component string) *log.Logger {
	if !verbose && appConfig.Log.File == "" {
		return log.New(io.Discard, "", 0)
	}
	return logs.Logger(component)
}

// parseKind maps the --kind flag to an index kind.
func parseKind(s string) (keys.Kind, error) {
	switch s {
	case "posts", "post", "":
		return keys.Posts, nil
	case "pages", "page":
		return keys.Pages, nil
	default:
		return 0, fmt.Errorf("unknown kind %q (want posts or pages)", s)
	}
}

func dirFor(kind keys.Kind) (string, error) {
	dir := appConfig.Posts
	if kind == keys.Pages {
		dir = appConfig.Pages
	}
	if dir == "" {
		return "", fmt.Errorf("no %s directory configured (set %s in config or pass --%s-dir)", kind, kind, kind)
	}
	return dir, nil
}

func newDaemon(kind keys.Kind) (*daemon.Daemon, error) {
	cfg := daemon.DefaultConfig(kind)
	cfg.DebounceInterval = appConfig.Sync.DebounceInterval
	cfg.Concurrency = appConfig.Sync.Concurrency
	cfg.QueueSize = appConfig.Sync.QueueSize
	cfg.Logger = logger(kind.String())
	return daemon.New(shared, cfg)
}

// openDaemon opens the daemon for kind. Data calls made right away are
// queued until the initial pass completes.
func openDaemon(kind keys.Kind) (*daemon.Daemon, error) {
	dir, err := dirFor(kind)
	if err != nil {
		return nil, err
	}
	d, err := newDaemon(kind)
	if err != nil {
		return nil, err
	}
	if err := d.Open(dir); err != nil {
		return nil, err
	}
	return d, nil
}

// withDaemon opens the daemon selected by the command's --kind flag, runs fn
// and closes it.
func withDaemon(cmd *cobra.Command, fn func(ctx context.Context, d *daemon.Daemon) error) error {
	kindFlag, _ := cmd.Flags().GetString("kind")
	kind, err := parseKind(kindFlag)
	if err != nil {
		return err
	}

	d, err := openDaemon(kind)
	if err != nil {
		return err
	}

	runErr := fn(cmd.Context(), d)
	if d.State() == daemon.StateClosed {
		// Initialization failed; the queued call already reported why.
		return runErr
	}
	if err := d.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func addKindFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("kind", "k", "posts", "content kind: posts or pages")
}
