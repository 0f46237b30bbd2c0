package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage chat sessions",
	}

	var (
		title string
		docs  []string
	)
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Start a chat session over documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.app.service.CreateSession(cmd.Context(), title, docs)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sess.ID)
			return nil
		},
	}
	newCmd.Flags().StringVarP(&title, "title", "t", "", "session title")
	newCmd.Flags().StringSliceVarP(&docs, "docs", "d", nil, "document IDs the session asks about")
	cmd.AddCommand(newCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List chat sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := c.app.service.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			renderSessions(cmd.OutOrStdout(), sessions)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <session-id>",
		Short: "Print the message log of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.app.service.Session(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			renderSession(cmd.OutOrStdout(), sess)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.service.DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	})

	return cmd
}
