package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/ProjectMoon/reed/internal/daemon"
	"github.com/ProjectMoon/reed/internal/keys"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed titles",
	Long: `List the titles in the index after bringing it up to date.

Posts are listed most recently modified first, pages alphabetically.
--since and --until restrict posts to a modification window and accept
RFC 3339 timestamps, plain dates or natural language:

  reed list --since "last week"
  reed list --since 2024-01-01 --until "yesterday"
  reed list -k pages`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sinceFlag, _ := cmd.Flags().GetString("since")
		untilFlag, _ := cmd.Flags().GetString("until")

		now := time.Now()
		since, err := parseTime(sinceFlag, now)
		if err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}
		until, err := parseTime(untilFlag, now)
		if err != nil {
			return fmt.Errorf("invalid --until: %w", err)
		}

		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			var titles []string
			if since.IsZero() && until.IsZero() {
				titles, err = d.List(ctx)
			} else {
				if d.Kind() != keys.Posts {
					return fmt.Errorf("--since and --until only apply to posts")
				}
				titles, err = d.ListBetween(ctx, since, until)
			}
			if err != nil {
				return err
			}
			for _, title := range titles {
				fmt.Println(title)
			}
			return nil
		})
	},
}

func init() {
	listCmd.Flags().String("since", "", "only posts modified at or after this time")
	listCmd.Flags().String("until", "", "only posts modified at or before this time")
	addKindFlag(listCmd)
	rootCmd.AddCommand(listCmd)
}

var timeParser = newTimeParser()

func newTimeParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// parseTime accepts RFC 3339, YYYY-MM-DD or a natural language expression
// relative to now. An empty string yields the zero time.
func parseTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, now.Location()); err == nil {
		return t, nil
	}

	r, err := timeParser.Parse(s, now)
	if err != nil {
		return time.Time{}, err
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("cannot understand %q", s)
	}
	return r.Time, nil
}
