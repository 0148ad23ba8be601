package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"pcbuild-agent/pkg/events"
	"pcbuild-agent/pkg/logger"
)

// Runner executes one reasoning session for a single prompt, reporting
// lifecycle transitions on the sink as they happen. The reasoning algorithm
// itself is opaque to the relay.
type Runner interface {
	Run(ctx context.Context, prompt string, sink Sink) (string, error)
}

// ErrBusy is returned by Open when the worker pool is saturated.
var ErrBusy = errors.New("relay: all workers busy")

// SessionState tracks the lifecycle of a session.
type SessionState string

const (
	StateRunning   SessionState = "running"
	StateCompleted SessionState = "completed"
	StateFailed    SessionState = "failed"
	StateClosed    SessionState = "closed"
)

// Options configures a Relay.
type Options struct {
	// PingInterval is the maximum wait per pull before a synthetic ping
	// is emitted to keep idle connections open.
	PingInterval time.Duration
	// QueueCapacity bounds the per-session event queue.
	QueueCapacity int
	// MaxWorkers bounds the number of concurrent reasoning sessions.
	MaxWorkers int64
	Logger     logger.ExtendedLogger
}

// Relay bridges long-running reasoning sessions to incrementally consumable
// event streams. Each Open call owns one worker, one queue and one consumer.
type Relay struct {
	runner       Runner
	pingInterval time.Duration
	queueCap     int
	workers      *semaphore.Weighted
	logger       logger.ExtendedLogger
}

// New creates a relay around the given runner.
func New(runner Runner, opts Options) *Relay {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 60 * time.Second
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 256
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 32
	}
	return &Relay{
		runner:       runner,
		pingInterval: opts.PingInterval,
		queueCap:     opts.QueueCapacity,
		workers:      semaphore.NewWeighted(opts.MaxWorkers),
		logger:       opts.Logger,
	}
}

// Session is one reasoning run and its event stream. The consumer pulls
// events with Next until it returns false.
type Session struct {
	ID        string
	StartTime time.Time

	relay  *Relay
	queue  *Queue
	cancel context.CancelFunc

	mu    sync.Mutex
	state SessionState
	done  bool
}

// sessionSink stamps the session ID on every event before enqueueing it.
type sessionSink struct {
	session *Session
}

func (s sessionSink) Push(ev *events.AgentEvent) bool {
	ev.SessionID = s.session.ID
	return s.session.queue.Push(ev)
}

// Open admits a new session and launches its worker. The returned session
// already carries the initial start event; callers stream it with Next.
func (r *Relay) Open(ctx context.Context, prompt string) (*Session, error) {
	if !r.workers.TryAcquire(1) {
		return nil, ErrBusy
	}

	workerCtx, cancel := context.WithCancel(ctx)
	session := &Session{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
		relay:     r,
		queue:     NewQueue(r.queueCap),
		cancel:    cancel,
		state:     StateRunning,
	}
	sink := sessionSink{session: session}
	sink.Push(events.New(events.Start, "Agent starting..."))

	go r.runWorker(workerCtx, session, sink, prompt)

	return session, nil
}

// runWorker executes the reasoning run and guarantees that exactly one
// terminal event and the termination sentinel reach the queue, even when the
// runner faults. Terminal events go through the queue's reserved slot so a
// full queue cannot drop them.
func (r *Relay) runWorker(ctx context.Context, session *Session, sink sessionSink, prompt string) {
	defer r.workers.Release(1)
	defer session.cancel()
	defer session.queue.Close()
	defer func() {
		if dropped := session.queue.Dropped(); dropped > 0 {
			r.logger.Warnf("session %s: dropped %d events on queue overflow", session.ID, dropped)
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorf("session %s: worker panic: %v", session.ID, rec)
			session.pushTerminal(events.NewWithMetadata(events.Error, fmt.Sprint(rec),
				map[string]interface{}{"category": "panic"}))
			session.setState(StateFailed)
		}
	}()

	answer, err := r.runner.Run(ctx, prompt, sink)
	if err != nil {
		r.logger.Errorf("session %s: reasoning fault: %v", session.ID, err)
		session.pushTerminal(events.NewWithMetadata(events.Error, err.Error(),
			map[string]interface{}{"category": faultCategory(ctx)}))
		session.setState(StateFailed)
		return
	}

	r.logger.Infof("session %s: completed in %s", session.ID, time.Since(session.StartTime))
	session.pushTerminal(events.New(events.FinalAnswer, answer))
	session.setState(StateCompleted)
}

// pushTerminal delivers the session's terminal event through the queue's
// reserved slot.
func (s *Session) pushTerminal(ev *events.AgentEvent) {
	ev.SessionID = s.ID
	s.queue.PushFinal(ev)
}

// Next returns the next event to emit, in arrival order. A pull timeout
// yields a synthetic ping; the termination sentinel yields one final
// stream_end event, after which Next returns false.
func (s *Session) Next() (*events.AgentEvent, bool) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil, false
	}
	s.mu.Unlock()

	ev, status := s.queue.Pull(s.relay.pingInterval)
	switch status {
	case Received:
		return ev, true
	case TimedOut:
		ping := events.New(events.Ping, "")
		ping.SessionID = s.ID
		return ping, true
	default:
		s.mu.Lock()
		s.done = true
		if s.state == StateRunning {
			s.state = StateClosed
		}
		s.mu.Unlock()
		end := events.New(events.StreamEnd, "")
		end.SessionID = s.ID
		return end, true
	}
}

// Abandon stops the consumer side early, typically on client disconnect.
// The worker context is cancelled so in-flight reasoning can stop; any
// output it still produces is discarded.
func (s *Session) Abandon() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
	s.cancel()
}

// Dropped returns how many events this session discarded on queue overflow.
func (s *Session) Dropped() int {
	return s.queue.Dropped()
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func faultCategory(ctx context.Context) string {
	if ctx.Err() != nil {
		return "cancelled"
	}
	return "reasoning"
}
