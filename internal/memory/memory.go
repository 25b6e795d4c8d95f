// Package memory holds per-session conversation transcripts for the
// retrieval pipeline.  Transcripts live only in process memory; nothing is
// written to disk.
package memory

import (
	"strings"
	"sync"
	"time"
)

// Role tags a message in a rendered transcript.
type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
)

// Message is one role-tagged entry of a rendered transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Turn is a single question/answer exchange.
type Turn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"at"`
}

// Memory is the append-only transcript of one session.  A *Memory is the
// handle returned by Store.GetOrCreate; every caller asking for the same
// session receives the same pointer while the session is registered.
//
// The mutex only keeps the slice consistent.  Two turns racing on the same
// session are appended in whichever order they finish.
type Memory struct {
	sessionID string

	mu    sync.RWMutex
	turns []Turn
}

func newMemory(sessionID string) *Memory {
	return &Memory{sessionID: sessionID}
}

// SessionID returns the identifier the memory was registered under.
func (m *Memory) SessionID() string { return m.sessionID }

// AppendTurn adds one exchange to the end of the transcript.
func (m *Memory) AppendTurn(question, answer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, Turn{Question: question, Answer: answer, At: time.Now()})
}

// Len returns the number of turns recorded so far.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}

// Turns returns a copy of the transcript in conversational order.
func (m *Memory) Turns() []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.turns) == 0 {
		return nil
	}
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// Messages flattens the transcript into alternating human/ai messages.
func (m *Memory) Messages() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.turns) == 0 {
		return nil
	}
	out := make([]Message, 0, 2*len(m.turns))
	for _, t := range m.turns {
		out = append(out,
			Message{Role: RoleHuman, Content: t.Question},
			Message{Role: RoleAI, Content: t.Answer},
		)
	}
	return out
}

// Render returns the transcript as the plain-text buffer substituted into
// the prompt's chat history slot, one "Human:"/"AI:" line per message.  An
// empty transcript renders as the empty string.
func (m *Memory) Render() string {
	return RenderMessages(m.Messages())
}

// RenderMessages formats messages the same way Render does.
func RenderMessages(msgs []Message) string {
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch msg.Role {
		case RoleHuman:
			b.WriteString("Human: ")
		case RoleAI:
			b.WriteString("AI: ")
		default:
			b.WriteString(string(msg.Role) + ": ")
		}
		b.WriteString(msg.Content)
	}
	return b.String()
}
