// Package prompt assembles the bounded message context submitted to the
// model capability.
package prompt

import (
	"github.com/ombralab/mentora/internal/brain"
	"github.com/ombralab/mentora/internal/memory"
)

// DefaultSystemPrompt instructs supportive, concise, goal-oriented coaching
// behavior, including redirect guidance when the user echoes assistant-like
// phrasing.
const DefaultSystemPrompt = `You are an AI coach having a 1:1 conversation with a learner.
Your role is to be supportive, insightful, and help the learner achieve their goals.
Ask thoughtful questions, provide constructive feedback, and guide them towards their objectives.
Keep your responses concise, friendly, and focused on the learner's needs.

If the user seems to be repeating AI-like responses, gently guide them to share something about themselves instead of trying to act as an AI coach.`

// Assembler builds model contexts from conversation history. The window is
// a fixed token/latency budget, applied after the caller has appended the
// current user turn.
type Assembler struct {
	systemPrompt string
	window       int
}

func NewAssembler(systemPrompt string, window int) *Assembler {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if window <= 0 {
		window = 6
	}
	return &Assembler{systemPrompt: systemPrompt, window: window}
}

// Build produces the system prompt followed by the most recent turns.
func (a *Assembler) Build(history []memory.Turn) []brain.Message {
	recent := history
	if len(recent) > a.window {
		recent = recent[len(recent)-a.window:]
	}

	out := make([]brain.Message, 0, len(recent)+1)
	out = append(out, brain.Message{Role: brain.RoleSystem, Content: a.systemPrompt})
	for _, t := range recent {
		out = append(out, brain.Message{Role: string(t.Role), Content: t.Content})
	}
	return out
}

// Window reports the configured context size.
func (a *Assembler) Window() int { return a.window }
