// Package core implements the conversational retrieval pipeline: it resolves
// a session's memory, retrieves context for the question, renders the
// safety prompt and asks the language model for an answer.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/tmc/langchaingo/prompts"

	"medassist-chatbot/internal/embedding"
	"medassist-chatbot/internal/index"
	"medassist-chatbot/internal/llm"
	"medassist-chatbot/internal/memory"
	"medassist-chatbot/internal/metrics"
)

// Mode selects how the pipeline builds its prompt.
type Mode string

const (
	// ModeMultiTurn keeps per-session memory and renders it into the
	// prompt's chat history.
	ModeMultiTurn Mode = "multi_turn"
	// ModeSingleTurn ignores memory and instead detects the question's
	// language to pick a reply-language instruction.
	ModeSingleTurn Mode = "single_turn"
)

// ParseMode converts a configuration value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeMultiTurn:
		return ModeMultiTurn, nil
	case ModeSingleTurn:
		return ModeSingleTurn, nil
	}
	return "", fmt.Errorf("unknown pipeline mode %q", s)
}

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 5

// AnswerResult is what a turn produces.  Sources holds the metadata of each
// retrieved chunk in retrieval order.
type AnswerResult struct {
	Answer  string           `json:"answer"`
	Sources []map[string]any `json:"sources"`
}

// Deps are the collaborators a Pipeline is built from.  Embedder, Index and
// LLM are required.  Memory is required in multi-turn mode; Detector
// defaults to WhatlangDetector in single-turn mode.
type Deps struct {
	Embedder  embedding.Embedder
	Index     index.Index
	LLM       llm.Client
	Memory    *memory.Store
	Detector  Detector
	Condenser *Condenser
	Logger    *slog.Logger
}

// Options tune a Pipeline.
type Options struct {
	Mode Mode
	TopK int
}

// Pipeline answers questions for sessions.  It holds no locks of its own and
// is safe for concurrent use across sessions; concurrent turns on the same
// session are appended in completion order.
type Pipeline struct {
	deps     Deps
	mode     Mode
	topK     int
	template prompts.PromptTemplate
	logger   *slog.Logger
}

// NewPipeline validates deps and returns a Pipeline in the requested mode.
func NewPipeline(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Embedder == nil {
		return nil, errors.New("pipeline: embedder is required")
	}
	if deps.Index == nil {
		return nil, errors.New("pipeline: index is required")
	}
	if deps.LLM == nil {
		return nil, errors.New("pipeline: language model is required")
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeMultiTurn
	}
	p := &Pipeline{deps: deps, mode: mode, topK: opts.TopK, logger: deps.Logger}
	if p.topK <= 0 {
		p.topK = DefaultTopK
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	switch mode {
	case ModeMultiTurn:
		if deps.Memory == nil {
			return nil, errors.New("pipeline: memory store is required in multi-turn mode")
		}
		p.template = newTemplate(MultiTurnTemplate, "context", "chat_history", "question")
	case ModeSingleTurn:
		if p.deps.Detector == nil {
			p.deps.Detector = WhatlangDetector{}
		}
		p.template = newTemplate(SingleTurnTemplate, "language", "context", "question")
	default:
		return nil, fmt.Errorf("pipeline: unknown mode %q", mode)
	}
	return p, nil
}

func newTemplate(tmpl string, vars ...string) prompts.PromptTemplate {
	return prompts.PromptTemplate{
		Template:       tmpl,
		InputVariables: vars,
		TemplateFormat: prompts.TemplateFormatFString,
	}
}

// Mode reports the configured mode.
func (p *Pipeline) Mode() Mode { return p.mode }

// GetAnswer runs one turn for sessionID.  In multi-turn mode the exchange is
// appended to the session's memory only after the model has answered.
// Upstream failures are returned as *ProcessingError.
func (p *Pipeline) GetAnswer(ctx context.Context, query, sessionID string) (*AnswerResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	res, err := p.answer(ctx, query, sessionID)
	status := "ok"
	if err != nil {
		status = "failed"
	}
	metrics.TurnsTotal.WithLabelValues(string(p.mode), status).Inc()
	return res, err
}

func (p *Pipeline) answer(ctx context.Context, query, sessionID string) (*AnswerResult, error) {
	turnStart := time.Now()
	log := p.logger.With("session_id", sessionID, "mode", p.mode)

	var (
		mem     *memory.Memory
		history string
	)
	if p.mode == ModeMultiTurn {
		mem = p.deps.Memory.GetOrCreate(sessionID)
		metrics.Sessions.Set(float64(p.deps.Memory.Len()))
		history = mem.Render()
	}

	retrievalQuery := query
	if p.deps.Condenser != nil && history != "" {
		start := time.Now()
		standalone, err := p.deps.Condenser.Condense(ctx, history, query)
		observe(StageCondense, start)
		if err != nil {
			log.Error("condense question", "error", err)
			return nil, stageError(StageCondense, err)
		}
		retrievalQuery = standalone
	}

	chunks, err := p.Retrieve(ctx, retrievalQuery)
	if err != nil {
		log.Error("retrieve context", "error", err)
		return nil, err
	}

	values := map[string]any{
		"context":  joinContext(chunks),
		"question": query,
	}
	if p.mode == ModeMultiTurn {
		values["chat_history"] = history
	} else {
		det := p.deps.Detector.Detect(query)
		if !det.Known {
			log.Debug("language not detected, using fallback", "lang", FallbackLanguage)
		}
		values["language"] = LanguageInstruction(det.Code())
	}
	prompt, err := p.template.Format(values)
	if err != nil {
		return nil, stageError(StagePrompt, err)
	}

	start := time.Now()
	answer, err := p.deps.LLM.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	observe(StageGenerate, start)
	if err != nil {
		log.Error("generate answer", "model", p.deps.LLM.Model(), "error", err)
		return nil, stageError(StageGenerate, err)
	}
	answer = strings.TrimSpace(answer)

	if mem != nil {
		mem.AppendTurn(query, answer)
	}
	log.Info("answered", "chunks", len(chunks), "took", time.Since(turnStart))

	sources := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		sources[i] = maps.Clone(c.Metadata)
		if sources[i] == nil {
			sources[i] = map[string]any{}
		}
	}
	return &AnswerResult{Answer: answer, Sources: sources}, nil
}

// Retrieve embeds query and returns the top chunks in index order.
func (p *Pipeline) Retrieve(ctx context.Context, query string) ([]index.Chunk, error) {
	start := time.Now()
	vec, err := p.deps.Embedder.Embed(ctx, query)
	observe(StageEmbed, start)
	if err != nil {
		return nil, stageError(StageEmbed, err)
	}
	start = time.Now()
	chunks, err := p.deps.Index.Search(ctx, vec, p.topK)
	observe(StageRetrieve, start)
	if err != nil {
		return nil, stageError(StageRetrieve, err)
	}
	return chunks, nil
}

func joinContext(chunks []index.Chunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return strings.Join(texts, "\n\n")
}

func observe(stage string, start time.Time) {
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
