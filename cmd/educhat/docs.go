package main

import (
	"github.com/spf13/cobra"
)

func (c *cli) newDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "docs",
		Aliases: []string{"documents"},
		Short:   "Manage registered documents",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := c.app.service.Documents(cmd.Context())
			if err != nil {
				return err
			}
			renderDocuments(cmd.OutOrStdout(), docs)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <doc-id>",
		Short: "Show a document and its index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := c.app.service.Document(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			chunks := -1
			if idx, err := c.app.service.Index(cmd.Context(), doc.ID); err == nil {
				chunks = len(idx.Chunks)
			}
			renderDocument(cmd.OutOrStdout(), doc, chunks)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reprocess <doc-id>",
		Short: "Rebuild the index of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := c.app.service.Reprocess(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			renderDocument(cmd.OutOrStdout(), doc, -1)
			return nil
		},
	})

	return cmd
}
