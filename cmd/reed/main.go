// Command reed keeps a key-value index of blog posts and pages in sync with
// directories of markdown files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ProjectMoon/reed/internal/errs"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		if hint := errorHint(err); hint != "" {
			fmt.Fprintln(os.Stderr, dimStyle.Render(hint))
		}
		cancel()
		os.Exit(1)
	}
}

// errorHint suggests what to do about a failed command.
func errorHint(err error) string {
	switch {
	case errs.IsFatal(err):
		return "Check the command's arguments and configuration before trying again."
	case errs.IsRetryable(err):
		return "This looks temporary; try again shortly."
	default:
		return ""
	}
}
