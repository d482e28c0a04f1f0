package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ProjectMoon/reed/internal/daemon"
)

var removeCmd = &cobra.Command{
	Use:   "remove <title>...",
	Short: "Remove items from the index and delete their source files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			var errList []error
			for _, title := range args {
				if err := d.Remove(ctx, title); err != nil {
					errList = append(errList, err)
					continue
				}
				fmt.Printf("%s %s\n", removeStyle.Render("removed"), title)
			}
			return errors.Join(errList...)
		})
	},
}

var removeAllCmd = &cobra.Command{
	Use:   "remove-all",
	Short: "Wipe the index and delete every indexed source file",
	Long: `Remove every entry of one content kind from the index in a single atomic
batch, then delete the source files that were indexed.

Asks for confirmation when run interactively; pass --yes to skip it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		kindFlag, _ := cmd.Flags().GetString("kind")

		if !yes {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return errors.New("refusing to remove everything without --yes")
			}
			confirmed := false
			err := huh.NewConfirm().
				Title(fmt.Sprintf("Remove all %s and delete their files?", kindFlag)).
				Affirmative("Remove").
				Negative("Cancel").
				Value(&confirmed).
				Run()
			if err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("Cancelled")
				return nil
			}
		}

		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			paths, err := d.RemoveAll(ctx)
			for _, path := range paths {
				fmt.Printf("%s %s\n", removeStyle.Render("removed"), path)
			}
			return err
		})
	},
}

func init() {
	addKindFlag(removeCmd)
	addKindFlag(removeAllCmd)
	removeAllCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(removeAllCmd)
}
