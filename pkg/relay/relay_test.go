package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"pcbuild-agent/pkg/events"
	"pcbuild-agent/pkg/logger"
)

// scriptedRunner emits a fixed event sequence and returns the configured
// answer or error.
type scriptedRunner struct {
	steps   []*events.AgentEvent
	answer  string
	err     error
	panicAs string

	started chan struct{}
	release chan struct{}
	ctxDone chan struct{}
}

func (r *scriptedRunner) Run(ctx context.Context, prompt string, sink Sink) (string, error) {
	if r.started != nil {
		close(r.started)
	}
	for _, ev := range r.steps {
		sink.Push(ev)
	}
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			if r.ctxDone != nil {
				close(r.ctxDone)
			}
			return "", ctx.Err()
		}
	}
	if r.panicAs != "" {
		panic(r.panicAs)
	}
	return r.answer, r.err
}

func testRelay(runner Runner, pingInterval time.Duration, maxWorkers int64) *Relay {
	return New(runner, Options{
		PingInterval: pingInterval,
		MaxWorkers:   maxWorkers,
		Logger:       logger.CreateTestLogger("logs/relay-test.log", "info"),
	})
}

func drain(t *testing.T, session *Session) []*events.AgentEvent {
	t.Helper()
	var seen []*events.AgentEvent
	for {
		ev, ok := session.Next()
		if !ok {
			return seen
		}
		seen = append(seen, ev)
	}
}

func TestSessionEmitsTerminalThenStreamEnd(t *testing.T) {
	runner := &scriptedRunner{
		steps: []*events.AgentEvent{
			events.New(events.Thinking, "considering GPUs"),
			events.New(events.ToolStart, "RTX 4060 price"),
			events.New(events.ToolEnd, "results"),
		},
		answer: "Here is your build.",
	}
	r := testRelay(runner, time.Second, 4)

	session, err := r.Open(context.Background(), "build me a PC")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	seen := drain(t, session)
	wantTypes := []events.EventType{
		events.Start, events.Thinking, events.ToolStart, events.ToolEnd,
		events.FinalAnswer, events.StreamEnd,
	}
	if len(seen) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d", len(wantTypes), len(seen))
	}
	for i, want := range wantTypes {
		if seen[i].Type != want {
			t.Errorf("event %d: expected %s, got %s", i, want, seen[i].Type)
		}
	}
	if seen[4].Content != "Here is your build." {
		t.Errorf("unexpected final answer content: %q", seen[4].Content)
	}
	if session.State() != StateCompleted {
		t.Errorf("expected completed state, got %s", session.State())
	}

	// No events after stream_end.
	if _, ok := session.Next(); ok {
		t.Error("Next returned an event after stream_end")
	}
}

func TestSessionStampsSessionID(t *testing.T) {
	runner := &scriptedRunner{
		steps:  []*events.AgentEvent{events.New(events.Thinking, "x")},
		answer: "done",
	}
	r := testRelay(runner, time.Second, 4)

	session, err := r.Open(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for _, ev := range drain(t, session) {
		if ev.SessionID != session.ID {
			t.Errorf("event %s missing session id: got %q", ev.Type, ev.SessionID)
		}
	}
}

func TestRunnerErrorBecomesErrorEvent(t *testing.T) {
	runner := &scriptedRunner{err: errors.New("llm unavailable")}
	r := testRelay(runner, time.Second, 4)

	session, err := r.Open(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	seen := drain(t, session)
	last, secondLast := seen[len(seen)-1], seen[len(seen)-2]
	if secondLast.Type != events.Error {
		t.Fatalf("expected error event before stream_end, got %s", secondLast.Type)
	}
	if secondLast.Content != "llm unavailable" {
		t.Errorf("unexpected error content: %q", secondLast.Content)
	}
	if secondLast.Metadata["category"] != "reasoning" {
		t.Errorf("unexpected fault category: %v", secondLast.Metadata["category"])
	}
	if last.Type != events.StreamEnd {
		t.Errorf("expected stream_end last, got %s", last.Type)
	}
	if session.State() != StateFailed {
		t.Errorf("expected failed state, got %s", session.State())
	}
}

func TestWorkerPanicIsContained(t *testing.T) {
	runner := &scriptedRunner{panicAs: "boom"}
	r := testRelay(runner, time.Second, 4)

	session, err := r.Open(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	seen := drain(t, session)
	secondLast := seen[len(seen)-2]
	if secondLast.Type != events.Error {
		t.Fatalf("expected error event from panic, got %s", secondLast.Type)
	}
	if secondLast.Metadata["category"] != "panic" {
		t.Errorf("unexpected fault category: %v", secondLast.Metadata["category"])
	}
	if seen[len(seen)-1].Type != events.StreamEnd {
		t.Error("expected stream_end after panic error event")
	}
}

func TestIdleSessionEmitsPing(t *testing.T) {
	runner := &scriptedRunner{
		answer:  "done",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	r := testRelay(runner, 20*time.Millisecond, 4)

	session, err := r.Open(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	<-runner.started

	// First event is the synthesized start.
	ev, ok := session.Next()
	if !ok || ev.Type != events.Start {
		t.Fatalf("expected start event, got %v", ev)
	}

	// Runner is idle: the next pull times out and yields a ping.
	ev, ok = session.Next()
	if !ok || ev.Type != events.Ping {
		t.Fatalf("expected ping while idle, got %v", ev)
	}

	close(runner.release)
	seen := drain(t, session)
	for _, ev := range seen {
		if ev.Type == events.Ping {
			t.Error("unexpected ping after worker finished promptly")
		}
	}
	if seen[len(seen)-1].Type != events.StreamEnd {
		t.Error("expected stream_end last")
	}
}

func TestTerminalEventSurvivesQueueOverflow(t *testing.T) {
	var steps []*events.AgentEvent
	for i := 0; i < 6; i++ {
		steps = append(steps, events.New(events.Thinking, "step"))
	}
	runner := &scriptedRunner{steps: steps, answer: "Here is your build."}
	r := New(runner, Options{
		PingInterval:  time.Second,
		QueueCapacity: 2,
		MaxWorkers:    4,
		Logger:        logger.CreateTestLogger("logs/relay-test.log", "info"),
	})

	session, err := r.Open(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// Let the worker flood the queue and finish before draining, so the
	// terminal event arrives against a full queue.
	deadline := time.Now().Add(2 * time.Second)
	for session.State() == StateRunning {
		if time.Now().After(deadline) {
			t.Fatal("worker did not finish")
		}
		time.Sleep(time.Millisecond)
	}

	seen := drain(t, session)
	var terminals int
	for _, ev := range seen {
		if events.IsTerminal(ev.Type) {
			terminals++
		}
	}
	if terminals != 1 {
		t.Fatalf("expected exactly 1 terminal event, got %d: %+v", terminals, seen)
	}
	secondLast := seen[len(seen)-2]
	if secondLast.Type != events.FinalAnswer {
		t.Errorf("expected final_answer before stream_end, got %s", secondLast.Type)
	}
	if secondLast.Content != "Here is your build." {
		t.Errorf("unexpected final answer content: %q", secondLast.Content)
	}
	if seen[len(seen)-1].Type != events.StreamEnd {
		t.Error("expected stream_end last")
	}
	if session.Dropped() == 0 {
		t.Error("expected overflow drops to be counted")
	}
}

func TestOpenRejectsWhenPoolSaturated(t *testing.T) {
	runner := &scriptedRunner{
		answer:  "done",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	r := testRelay(runner, time.Second, 1)

	session, err := r.Open(context.Background(), "first")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	<-runner.started

	if _, err := r.Open(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	close(runner.release)
	drain(t, session)
}

func TestAbandonCancelsWorker(t *testing.T) {
	runner := &scriptedRunner{
		started: make(chan struct{}),
		release: make(chan struct{}),
		ctxDone: make(chan struct{}),
	}
	r := testRelay(runner, time.Second, 4)

	session, err := r.Open(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	<-runner.started

	session.Abandon()

	select {
	case <-runner.ctxDone:
	case <-time.After(time.Second):
		t.Fatal("worker context was not cancelled on abandon")
	}

	if _, ok := session.Next(); ok {
		t.Error("Next returned an event after abandon")
	}
}
