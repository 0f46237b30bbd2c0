package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smallnest/educhat/chat"
	"github.com/smallnest/educhat/rag"
	"github.com/smallnest/educhat/rag/chain"
)

func (c *cli) newAskCmd() *cobra.Command {
	var (
		mode   string
		docs   []string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "ask <session-id> <question>...",
		Short: "Ask one question in a session",
		Long: `Asks a question about the documents of a session. --docs overrides the
session's document set for this turn.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := chain.ParseMode(mode)
			if err != nil {
				return err
			}
			question := strings.Join(args[1:], " ")
			reply, err := c.ask(cmd.Context(), args[0], docs, m, question)
			if err != nil {
				return err
			}
			if asJSON {
				return writeReplyJSON(cmd.OutOrStdout(), reply)
			}
			renderReply(cmd.OutOrStdout(), reply)
			return nil
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(chain.ModeStandard), "answer style: standard or eli5")
	cmd.Flags().StringSliceVarP(&docs, "docs", "d", nil, "document IDs to ask about instead of the session's")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the reply as JSON")
	return cmd
}

func (c *cli) newChatCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "chat <session-id>",
		Short: "Chat interactively in a session",
		Long:  `Reads questions line by line until EOF or "exit".`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := chain.ParseMode(mode)
			if err != nil {
				return err
			}
			sess, err := c.app.service.Session(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			s := newStyles(out)
			fmt.Fprintf(out, "%s %s\n", s.title.Render(sess.Title), s.muted.Render(`(type "exit" to quit)`))

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, s.label.Render("You: "))
				if !scanner.Scan() {
					fmt.Fprintln(out)
					return scanner.Err()
				}
				question := strings.TrimSpace(scanner.Text())
				switch question {
				case "":
					continue
				case "exit", "quit":
					return nil
				}

				reply, err := c.ask(cmd.Context(), sess.ID, nil, m, question)
				if err != nil {
					return err
				}
				renderReply(out, reply)
				fmt.Fprintln(out)
			}
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(chain.ModeStandard), "answer style: standard or eli5")
	return cmd
}

func (c *cli) ask(ctx context.Context, sessionID string, docs []string, mode chain.Mode, question string) (*chat.Reply, error) {
	if len(docs) > 0 {
		return c.app.service.Ask(ctx, sessionID, docs, mode, question)
	}
	return c.app.service.AskSession(ctx, sessionID, mode, question)
}

type replyJSON struct {
	Answer   string          `json:"answer"`
	Sources  []rag.SourceRef `json:"sources"`
	Fallback bool            `json:"fallback"`
	Unusable []string        `json:"unusable,omitempty"`
	State    string          `json:"state"`
}

func writeReplyJSON(w io.Writer, reply *chat.Reply) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(replyJSON{
		Answer:   reply.Answer,
		Sources:  reply.Sources,
		Fallback: reply.Fallback,
		Unusable: reply.Unusable,
		State:    string(reply.State()),
	})
}
