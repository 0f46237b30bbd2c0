package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (c *cli) newIngestCmd() *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Extract, register and index documents",
		Long: `Extracts the text of each file, registers it as a document and builds its
embedding index. Supported formats: text, markdown, HTML, PDF, DOCX, PPTX,
and PNG or JPEG images, which are read by the vision model.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if title != "" && len(args) > 1 {
				return errors.New("--title can only be used with a single file")
			}
			out := cmd.OutOrStdout()
			s := newStyles(out)

			var failed []string
			for _, path := range args {
				doc, err := c.app.service.Ingest(cmd.Context(), path, title)
				switch {
				case err != nil && doc == nil:
					fmt.Fprintf(out, "%s %s: %v\n", s.errorS.Render("✗"), path, err)
					failed = append(failed, path)
				case err != nil:
					fmt.Fprintf(out, "%s %s registered as %s but not indexed: %v\n", s.warning.Render("!"), path, doc.ID, err)
					failed = append(failed, path)
				default:
					fmt.Fprintf(out, "%s %s → %s %s\n", s.success.Render("✓"), path, doc.ID, s.muted.Render("("+doc.Title+")"))
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d files failed: %s", len(failed), len(args), strings.Join(failed, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "document title (defaults to the extracted title)")
	return cmd
}
