// Package console runs the chatbot as an interactive terminal session.
package console

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"medassist-chatbot/internal/core"
)

const apology = "Sorry, I couldn't process that question. Please try again."

// Answerer is the part of the pipeline the console needs.
type Answerer interface {
	GetAnswer(ctx context.Context, query, sessionID string) (*core.AnswerResult, error)
}

// Console reads questions line by line and prints answers with their
// sources.  All questions share one session.
type Console struct {
	Chat      Answerer
	SessionID string
	In        io.Reader
	Out       io.Writer
	Logger    *slog.Logger
}

// Run loops until the input ends, the user types exit or quit, or ctx is
// cancelled.  A failed question prints an apology and the loop continues.
func (c *Console) Run(ctx context.Context) error {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fmt.Fprintln(c.Out, core.Disclaimer)
	fmt.Fprintln(c.Out, "✅ Chatbot ready. Type 'exit' to quit.")

	scanner := bufio.NewScanner(c.In)
	for {
		fmt.Fprint(c.Out, "\n👤 You: ")
		if !scanner.Scan() {
			fmt.Fprintln(c.Out)
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if isExit(query) {
			return nil
		}

		res, err := c.Chat.GetAnswer(ctx, query, c.SessionID)
		if err != nil {
			logger.Error("answer question", "error", err)
			fmt.Fprintln(c.Out, "\n🤖 Bot:", apology)
			continue
		}
		fmt.Fprintln(c.Out, "\n🤖 Bot:", res.Answer)
		fmt.Fprintln(c.Out, "📎 Sources:")
		for _, src := range res.Sources {
			b, err := json.Marshal(src)
			if err != nil {
				fmt.Fprintf(c.Out, "  %v\n", src)
				continue
			}
			fmt.Fprintf(c.Out, "  %s\n", b)
		}
	}
}

func isExit(s string) bool {
	s = strings.ToLower(s)
	return s == "exit" || s == "quit"
}
