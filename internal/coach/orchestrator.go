// Package coach coordinates one chat message end to end: load memory, check
// for a conversation loop, assemble context, generate, persist.
package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ombralab/mentora/internal/brain"
	"github.com/ombralab/mentora/internal/loopdetect"
	"github.com/ombralab/mentora/internal/memory"
	"github.com/ombralab/mentora/internal/observability"
	"github.com/ombralab/mentora/internal/prompt"
)

// LoopBreakReply is the fixed redirect sent when a conversation loop is
// detected. The triggering message is never appended to history.
const LoopBreakReply = "I've noticed we seem to be in a conversation loop. Let's talk about something specific. Tell me about your day or a specific topic you'd like to learn about. For example, you could say 'I want to learn Python' or 'Help me understand machine learning'."

var (
	// ErrModel marks a failed, timed-out, or unusable model generation.
	ErrModel = errors.New("model generation failed")
	// ErrEmptyMessage rejects blank incoming message text.
	ErrEmptyMessage = errors.New("message text is empty")
)

// GenParams bound a single model generation.
type GenParams struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	Timeout     time.Duration
}

// Orchestrator handles inbound chat messages for all users. Requests for
// the same user are serialized through a per-user mutex; requests for
// different users proceed in parallel. The model call runs under the
// per-user mutex but never under any store lock.
type Orchestrator struct {
	store     memory.Store
	detector  *loopdetect.Detector
	assembler *prompt.Assembler
	brain     brain.Adapter
	metrics   *observability.Metrics

	params       GenParams
	historyLimit int

	locks keyedMutex
}

func NewOrchestrator(
	store memory.Store,
	detector *loopdetect.Detector,
	assembler *prompt.Assembler,
	adapter brain.Adapter,
	metrics *observability.Metrics,
	params GenParams,
	historyLimit int,
) *Orchestrator {
	if params.Timeout <= 0 {
		params.Timeout = 30 * time.Second
	}
	return &Orchestrator{
		store:        store,
		detector:     detector,
		assembler:    assembler,
		brain:        adapter,
		metrics:      metrics,
		params:       params,
		historyLimit: historyLimit,
	}
}

// Handle processes one inbound message and returns the assistant reply.
//
// A user with no stored state gets a transient empty learner state; that
// state is only persisted when the message completes normally. On a loop
// detection or a model failure nothing is written, so history is exactly
// as it was before the call.
func (o *Orchestrator) Handle(ctx context.Context, userID, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		o.metrics.MessagesHandled.WithLabelValues("invalid").Inc()
		return "", ErrEmptyMessage
	}

	unlock := o.locks.lock(userID)
	defer unlock()

	state, err := o.store.Get(ctx, userID)
	if errors.Is(err, memory.ErrNotFound) {
		state = memory.UserState{
			UserID:      userID,
			Role:        memory.RoleLearner,
			Goals:       []string{},
			Preferences: map[string]string{},
			History:     []memory.Turn{},
		}
	} else if err != nil {
		return "", fmt.Errorf("load user state: %w", err)
	}

	// The detector runs over history as stored, before the incoming
	// message is appended. Repeated triggering messages therefore neither
	// grow history nor change the reply.
	if o.detector.Detect(state.History) {
		o.metrics.MessagesHandled.WithLabelValues("loop_break").Inc()
		return LoopBreakReply, nil
	}

	now := time.Now().UTC()
	state.History = append(state.History, memory.Turn{
		ID:        uuid.NewString(),
		Role:      memory.TurnUser,
		Content:   text,
		CreatedAt: now,
	})

	messages := o.assembler.Build(state.History)

	genCtx, cancel := context.WithTimeout(ctx, o.params.Timeout)
	defer cancel()

	start := time.Now()
	reply, err := o.brain.Generate(genCtx, brain.Request{
		Messages:    messages,
		MaxTokens:   o.params.MaxTokens,
		Temperature: o.params.Temperature,
		TopP:        o.params.TopP,
	})
	o.metrics.ObserveModelLatency(time.Since(start))
	if err != nil {
		o.metrics.MessagesHandled.WithLabelValues("model_error").Inc()
		return "", fmt.Errorf("%w: %v", ErrModel, err)
	}

	state.History = append(state.History, memory.Turn{
		ID:        uuid.NewString(),
		Role:      memory.TurnAssistant,
		Content:   reply,
		CreatedAt: time.Now().UTC(),
	})
	state.History = capHistory(state.History, o.historyLimit)

	if err := o.store.Put(ctx, userID, state); err != nil {
		return "", fmt.Errorf("persist user state: %w", err)
	}

	o.metrics.MessagesHandled.WithLabelValues("ok").Inc()
	return reply, nil
}

// capHistory keeps only the most recent limit turns. Zero disables the cap.
func capHistory(history []memory.Turn, limit int) []memory.Turn {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	return append([]memory.Turn(nil), history[len(history)-limit:]...)
}
