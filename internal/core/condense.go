package core

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"medassist-chatbot/internal/llm"
)

// Condenser rewrites a follow-up question into a standalone one using the
// conversation so far.  The rewritten question is only used for retrieval;
// the prompt still carries the user's own words.
type Condenser struct {
	LLM      llm.Client
	template prompts.PromptTemplate
}

// NewCondenser constructs a condenser backed by client.
func NewCondenser(client llm.Client) *Condenser {
	return &Condenser{
		LLM:      client,
		template: newTemplate(CondenseTemplate, "chat_history", "question"),
	}
}

// Condense returns the standalone form of question.  An empty model answer
// keeps the original question.
func (c *Condenser) Condense(ctx context.Context, history, question string) (string, error) {
	prompt, err := c.template.Format(map[string]any{
		"chat_history": history,
		"question":     question,
	})
	if err != nil {
		return "", err
	}
	out, err := c.LLM.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return question, nil
	}
	return out, nil
}
