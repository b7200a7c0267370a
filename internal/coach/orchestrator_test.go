package coach

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ombralab/mentora/internal/brain"
	"github.com/ombralab/mentora/internal/config"
	"github.com/ombralab/mentora/internal/loopdetect"
	"github.com/ombralab/mentora/internal/memory"
	"github.com/ombralab/mentora/internal/observability"
	"github.com/ombralab/mentora/internal/prompt"
)

var metricsSeq atomic.Int64

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("test_coach_%d", metricsSeq.Add(1)))
}

type stubBrain struct {
	mu      sync.Mutex
	calls   int
	delay   time.Duration
	replyFn func(req brain.Request) (string, error)
}

func (b *stubBrain) Generate(ctx context.Context, req brain.Request) (string, error) {
	b.mu.Lock()
	b.calls++
	n := b.calls
	b.mu.Unlock()

	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if b.replyFn != nil {
		return b.replyFn(req)
	}
	return fmt.Sprintf("reply-%d", n), nil
}

func (b *stubBrain) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func newTestOrchestrator(store memory.Store, b brain.Adapter, historyLimit int) *Orchestrator {
	detector := loopdetect.New(config.DefaultLoopMarkerPhrases)
	assembler := prompt.NewAssembler("", 6)
	return NewOrchestrator(store, detector, assembler, b, newTestMetrics(), GenParams{
		MaxTokens:   300,
		Temperature: 0.7,
		TopP:        0.9,
		Timeout:     5 * time.Second,
	}, historyLimit)
}

func TestHandleRecordsBothTurns(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, "u1", "", memory.RoleLearner); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	b := &stubBrain{replyFn: func(brain.Request) (string, error) { return "Hi there!", nil }}
	o := newTestOrchestrator(store, b, 0)

	reply, err := o.Handle(ctx, "u1", "Hello")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if reply != "Hi there!" {
		t.Fatalf("reply = %q, want %q", reply, "Hi there!")
	}

	state, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(state.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(state.History))
	}
	if state.History[0].Role != memory.TurnUser || state.History[0].Content != "Hello" {
		t.Fatalf("first turn = %+v", state.History[0])
	}
	if state.History[1].Role != memory.TurnAssistant || state.History[1].Content != "Hi there!" {
		t.Fatalf("second turn = %+v", state.History[1])
	}
}

func seedLoopingHistory(t *testing.T, store memory.Store, userID string) {
	t.Helper()
	ctx := context.Background()
	state, err := store.Get(ctx, userID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	for i := 0; i < 4; i++ {
		state.History = append(state.History, memory.Turn{
			Role:    memory.TurnUser,
			Content: fmt.Sprintf("let's focus on item %d", i),
		})
	}
	if err := store.Put(ctx, userID, state); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
}

func TestHandleLoopBreakLeavesHistoryUntouched(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, "u1", "", memory.RoleLearner); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	seedLoopingHistory(t, store, "u1")

	b := &stubBrain{}
	o := newTestOrchestrator(store, b, 0)

	reply, err := o.Handle(ctx, "u1", "anything")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if reply != LoopBreakReply {
		t.Fatalf("reply = %q, want the fixed loop-break reply", reply)
	}
	if b.callCount() != 0 {
		t.Fatalf("model called %d times during a loop break, want 0", b.callCount())
	}

	state, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(state.History) != 4 {
		t.Fatalf("history length = %d, want 4 (triggering message not appended)", len(state.History))
	}
}

func TestHandleLoopBreakIsIdempotent(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, "u1", "", memory.RoleLearner); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	seedLoopingHistory(t, store, "u1")

	o := newTestOrchestrator(store, &stubBrain{}, 0)

	first, err := o.Handle(ctx, "u1", "one thing")
	if err != nil {
		t.Fatalf("first Handle() error = %v", err)
	}
	second, err := o.Handle(ctx, "u1", "a completely different thing")
	if err != nil {
		t.Fatalf("second Handle() error = %v", err)
	}
	if first != second || first != LoopBreakReply {
		t.Fatalf("replies differ across loop breaks: %q vs %q", first, second)
	}

	state, _ := store.Get(ctx, "u1")
	if len(state.History) != 4 {
		t.Fatalf("history length = %d, want 4 after repeated loop breaks", len(state.History))
	}
}

func TestHandleModelErrorPersistsNothing(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, "u1", "", memory.RoleLearner); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	b := &stubBrain{replyFn: func(brain.Request) (string, error) {
		return "", errors.New("upstream exploded")
	}}
	o := newTestOrchestrator(store, b, 0)

	_, err := o.Handle(ctx, "u1", "Hello")
	if !errors.Is(err, ErrModel) {
		t.Fatalf("Handle() error = %v, want ErrModel", err)
	}

	state, _ := store.Get(ctx, "u1")
	if len(state.History) != 0 {
		t.Fatalf("history length = %d after model failure, want 0", len(state.History))
	}
}

func TestHandleModelTimeout(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, "u1", "", memory.RoleLearner); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	b := &stubBrain{delay: time.Second}
	detector := loopdetect.New(config.DefaultLoopMarkerPhrases)
	assembler := prompt.NewAssembler("", 6)
	o := NewOrchestrator(store, detector, assembler, b, newTestMetrics(), GenParams{
		MaxTokens: 300, Temperature: 0.7, TopP: 0.9, Timeout: 20 * time.Millisecond,
	}, 0)

	_, err := o.Handle(ctx, "u1", "Hello")
	if !errors.Is(err, ErrModel) {
		t.Fatalf("Handle() error = %v, want ErrModel on timeout", err)
	}
	state, _ := store.Get(ctx, "u1")
	if len(state.History) != 0 {
		t.Fatalf("history length = %d after timeout, want 0", len(state.History))
	}
}

func TestHandleEmptyMessage(t *testing.T) {
	store := memory.NewInMemoryStore()
	o := newTestOrchestrator(store, &stubBrain{}, 0)

	_, err := o.Handle(context.Background(), "u1", "   ")
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("Handle() error = %v, want ErrEmptyMessage", err)
	}
}

func TestHandleUnregisteredUserPersistsOnSuccess(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()

	o := newTestOrchestrator(store, &stubBrain{}, 0)
	if _, err := o.Handle(ctx, "walk-in", "Hello"); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	state, err := store.Get(ctx, "walk-in")
	if err != nil {
		t.Fatalf("Get() error = %v; a completed message should persist the synthesized state", err)
	}
	if state.Role != memory.RoleLearner {
		t.Fatalf("synthesized role = %q, want learner", state.Role)
	}
	if len(state.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(state.History))
	}
}

func TestHandleConcurrentSameUserLosesNothing(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, "u1", "", memory.RoleLearner); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	b := &stubBrain{delay: 30 * time.Millisecond}
	o := newTestOrchestrator(store, b, 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = o.Handle(ctx, "u1", fmt.Sprintf("message-%d", i))
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("Handle() #%d error = %v", i, err)
		}
	}

	state, _ := store.Get(ctx, "u1")
	if len(state.History) != 4 {
		t.Fatalf("history length = %d, want 4 (two full turn pairs, no lost update)", len(state.History))
	}
	// Turn pairs must be serialized: user then assistant, twice over.
	for i := 0; i < 4; i += 2 {
		if state.History[i].Role != memory.TurnUser || state.History[i+1].Role != memory.TurnAssistant {
			t.Fatalf("turns not serialized in pairs: %+v", state.History)
		}
	}
}

func TestHandleCapsStoredHistory(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, "u1", "", memory.RoleLearner); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	o := newTestOrchestrator(store, &stubBrain{}, 6)
	for i := 0; i < 5; i++ {
		if _, err := o.Handle(ctx, "u1", fmt.Sprintf("note %d", i)); err != nil {
			t.Fatalf("Handle() #%d error = %v", i, err)
		}
	}

	state, _ := store.Get(ctx, "u1")
	if len(state.History) != 6 {
		t.Fatalf("history length = %d, want capped at 6", len(state.History))
	}
	if state.History[len(state.History)-2].Content != "note 4" {
		t.Fatalf("newest user turn = %q, want %q", state.History[len(state.History)-2].Content, "note 4")
	}
}
