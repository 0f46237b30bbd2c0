package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/smallnest/educhat/chat"
	"github.com/smallnest/educhat/quiz"
	"github.com/smallnest/educhat/store"
)

// styles renders command output. Colors are dropped when w is not a
// terminal.
type styles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	muted   lipgloss.Style
	warning lipgloss.Style
	success lipgloss.Style
	errorS  lipgloss.Style
	source  lipgloss.Style
}

func newStyles(w io.Writer) *styles {
	r := lipgloss.NewRenderer(w)
	return &styles{
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")),
		label:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#06B6D4")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#6C7086")),
		warning: r.NewStyle().Foreground(lipgloss.Color("#F9E2AF")),
		success: r.NewStyle().Foreground(lipgloss.Color("#A6E3A1")),
		errorS:  r.NewStyle().Foreground(lipgloss.Color("#F38BA8")),
		source:  r.NewStyle().PaddingLeft(4).Foreground(lipgloss.Color("#6C7086")),
	}
}

func (s *styles) status(st store.DocumentStatus) string {
	switch st {
	case store.StatusProcessed:
		return s.success.Render(string(st))
	case store.StatusError:
		return s.errorS.Render(string(st))
	default:
		return s.warning.Render(string(st))
	}
}

func renderReply(w io.Writer, reply *chat.Reply) {
	s := newStyles(w)

	answer := reply.Answer
	if reply.Fallback {
		answer = s.warning.Render(answer)
	}
	fmt.Fprintf(w, "%s %s\n", s.label.Render("AI:"), answer)

	for _, u := range reply.Unusable {
		fmt.Fprintf(w, "%s\n", s.warning.Render("! "+u))
	}

	if len(reply.Sources) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, s.title.Render("Sources"))
	for i, src := range reply.Sources {
		fmt.Fprintf(w, "  [%d] %s %s\n", i+1, src.SourceLabel, s.muted.Render("("+src.DocumentID+")"))
		fmt.Fprintln(w, s.source.Render(strings.ReplaceAll(src.Excerpt, "\n", " ")))
	}
}

func renderDocument(w io.Writer, doc *store.Document, chunks int) {
	s := newStyles(w)
	fmt.Fprintln(w, s.title.Render(doc.Title))
	row := func(k, v string) { fmt.Fprintf(w, "  %-10s %s\n", s.label.Render(k), v) }
	row("id", doc.ID)
	row("type", doc.FileType)
	row("status", s.status(doc.Status))
	row("file", doc.FilePath)
	row("created", doc.CreatedAt.Local().Format("2006-01-02 15:04"))
	row("words", fmt.Sprint(len(strings.Fields(doc.Text))))
	if chunks >= 0 {
		row("chunks", fmt.Sprint(chunks))
	}
}

func renderDocuments(w io.Writer, docs []*store.Document) {
	s := newStyles(w)
	if len(docs) == 0 {
		fmt.Fprintln(w, s.muted.Render("No documents yet. Add one with `educhat ingest <file>`."))
		return
	}
	for _, d := range docs {
		fmt.Fprintf(w, "%s  %-30s  %-5s  %s\n", s.muted.Render(d.ID), d.Title, d.FileType, s.status(d.Status))
	}
}

func renderSessions(w io.Writer, sessions []*store.Session) {
	s := newStyles(w)
	if len(sessions) == 0 {
		fmt.Fprintln(w, s.muted.Render("No sessions yet. Start one with `educhat session new`."))
		return
	}
	for _, sess := range sessions {
		fmt.Fprintf(w, "%s  %-30s  %d messages  [%s]\n",
			s.muted.Render(sess.ID), sess.Title, len(sess.Messages), strings.Join(sess.DocumentIDs, ", "))
	}
}

func renderSession(w io.Writer, sess *store.Session) {
	s := newStyles(w)
	fmt.Fprintln(w, s.title.Render(sess.Title))
	fmt.Fprintf(w, "%s %s\n", s.muted.Render("documents:"), strings.Join(sess.DocumentIDs, ", "))
	for _, m := range sess.Messages {
		who := s.label.Render("You:")
		if m.Role == store.RoleAssistant {
			who = s.label.Render("AI:")
		}
		fmt.Fprintf(w, "\n%s %s\n", who, m.Content)
	}
}

func renderQuiz(w io.Writer, q *quiz.Quiz) {
	s := newStyles(w)

	heading := "Quiz"
	if q.Topic != "" {
		heading += ": " + q.Topic
	}
	fmt.Fprintln(w, s.title.Render(heading))
	fmt.Fprintf(w, "%s %s, %s\n", s.muted.Render("difficulty:"), q.Difficulty, strings.Join(q.Documents, ", "))

	for i, question := range q.Questions {
		fmt.Fprintf(w, "\n%s %s\n", s.label.Render(fmt.Sprintf("%d.", i+1)), question.Question)
		for j, opt := range question.Options {
			fmt.Fprintf(w, "   %c) %s\n", 'A'+j, opt)
		}
		fmt.Fprintf(w, "   %s %s\n", s.success.Render("Answer:"), question.Answer)
		if question.Explanation != "" {
			fmt.Fprintln(w, s.source.Render(question.Explanation))
		}
	}
}
