package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a lifecycle transition inside a reasoning session.
type EventType string

const (
	// Session framing events, synthesized by the relay.
	Start     EventType = "start"
	Ping      EventType = "ping"
	StreamEnd EventType = "stream_end"

	// Reasoning events, produced by the agent callback surface.
	Thinking   EventType = "thinking"
	Action     EventType = "action"
	ToolStart  EventType = "tool_start"
	ToolEnd    EventType = "tool_end"
	LLMStart   EventType = "llm_start"
	LLMEnd     EventType = "llm_end"
	ChainStart EventType = "chain_start"
	ChainEnd   EventType = "chain_end"

	// Terminal events. Every session emits exactly one of these before
	// the stream_end frame.
	FinalAnswer EventType = "final_answer"
	Error       EventType = "error"
)

// AgentEvent is one lifecycle transition of a reasoning session. Events are
// immutable once created and are delivered to the client in arrival order.
type AgentEvent struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id,omitempty"`
	Type      EventType              `json:"type"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// New creates an event with a fresh ID and the current timestamp.
func New(eventType EventType, content string) *AgentEvent {
	return &AgentEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Type:      eventType,
		Content:   content,
	}
}

// NewWithMetadata creates an event carrying additional context data.
func NewWithMetadata(eventType EventType, content string, metadata map[string]interface{}) *AgentEvent {
	ev := New(eventType, content)
	ev.Metadata = metadata
	return ev
}

// IsTerminal reports whether the event type concludes a session.
func IsTerminal(eventType EventType) bool {
	return eventType == FinalAnswer || eventType == Error
}
