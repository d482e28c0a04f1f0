package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ProjectMoon/reed/internal/daemon"
	"github.com/ProjectMoon/reed/internal/index"
)

var getCmd = &cobra.Command{
	Use:   "get <title>",
	Short: "Print an indexed item",
	Long: `Print the metadata of an item as a YAML block followed by its rendered HTML.

Example usage:
  reed get hello-world
  reed get about -k pages --meta
  reed get hello-world --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		metaOnly, _ := cmd.Flags().GetBool("meta")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			item, err := d.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeItemJSON(item, metaOnly)
			}
			return writeItem(item, metaOnly)
		})
	},
}

func init() {
	getCmd.Flags().Bool("meta", false, "print only the metadata")
	getCmd.Flags().Bool("json", false, "output JSON")
	addKindFlag(getCmd)
	rootCmd.AddCommand(getCmd)
}

func writeItem(item *index.Item, metaOnly bool) error {
	meta, err := yaml.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	fmt.Println("---")
	fmt.Print(string(meta))
	fmt.Println("---")
	if !metaOnly {
		fmt.Print(item.Body)
	}
	return nil
}

func writeItemJSON(item *index.Item, metaOnly bool) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if metaOnly {
		return enc.Encode(item.Metadata)
	}
	return enc.Encode(map[string]interface{}{
		"title":    item.Title,
		"path":     item.Path,
		"metadata": item.Metadata,
		"body":     item.Body,
	})
}
