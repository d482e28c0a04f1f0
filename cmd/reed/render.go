package main

import (
	"github.com/spf13/cobra"

	"github.com/ProjectMoon/reed/internal/content"
	"github.com/ProjectMoon/reed/internal/index"
	"github.com/ProjectMoon/reed/internal/keys"
)

var renderCmd = &cobra.Command{
	Use:   "render <file>",
	Short: "Render a markdown file as it would be indexed, without touching the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		doc, err := content.NewTransformer().Transform(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		item := &index.Item{
			Path:     doc.Path,
			Title:    keys.Title(doc.Path),
			Metadata: doc.Metadata,
			Body:     doc.Body,
		}
		if jsonOutput {
			return writeItemJSON(item, false)
		}
		return writeItem(item, false)
	},
}

func init() {
	renderCmd.Flags().Bool("json", false, "output JSON")
	rootCmd.AddCommand(renderCmd)
}
