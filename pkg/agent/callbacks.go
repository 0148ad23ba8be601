package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"pcbuild-agent/pkg/events"
	"pcbuild-agent/pkg/relay"
)

// CallbackBridge translates langchaingo lifecycle callbacks into AgentEvents
// on the session sink. It must never block the reasoning loop; the sink's
// Push is non-blocking by contract.
type CallbackBridge struct {
	callbacks.SimpleHandler
	sink relay.Sink
}

// NewCallbackBridge creates a bridge that emits onto sink.
func NewCallbackBridge(sink relay.Sink) *CallbackBridge {
	return &CallbackBridge{sink: sink}
}

func (b *CallbackBridge) emit(eventType events.EventType, content string) {
	b.sink.Push(events.New(eventType, content))
}

func (b *CallbackBridge) HandleChainStart(ctx context.Context, inputs map[string]any) {
	b.emit(events.ChainStart, "Reasoning chain started")
}

func (b *CallbackBridge) HandleChainEnd(ctx context.Context, outputs map[string]any) {
	b.emit(events.ChainEnd, "Reasoning chain finished")
}

func (b *CallbackBridge) HandleLLMGenerateContentStart(ctx context.Context, ms []llms.MessageContent) {
	b.sink.Push(events.NewWithMetadata(events.LLMStart, "",
		map[string]interface{}{"messages": len(ms)}))
}

func (b *CallbackBridge) HandleLLMGenerateContentEnd(ctx context.Context, res *llms.ContentResponse) {
	content := ""
	if res != nil && len(res.Choices) > 0 {
		content = res.Choices[0].Content
	}
	b.emit(events.LLMEnd, content)
}

// HandleAgentAction emits the agent's thought followed by the action it
// chose, preserving the order the client uses to render progress.
func (b *CallbackBridge) HandleAgentAction(ctx context.Context, action schema.AgentAction) {
	if thought := strings.TrimSpace(action.Log); thought != "" {
		b.emit(events.Thinking, thought)
	}
	b.emit(events.Action, fmt.Sprintf("Using tool: %s with input: %s", action.Tool, action.ToolInput))
}

func (b *CallbackBridge) HandleToolStart(ctx context.Context, input string) {
	b.emit(events.ToolStart, input)
}

func (b *CallbackBridge) HandleToolEnd(ctx context.Context, output string) {
	b.emit(events.ToolEnd, strings.TrimSpace(output))
}

// HandleToolError reports a failed tool call as a tool_end with error
// metadata. Terminal error events are reserved for the relay worker so every
// session keeps exactly one terminal event.
func (b *CallbackBridge) HandleToolError(ctx context.Context, err error) {
	b.sink.Push(events.NewWithMetadata(events.ToolEnd, "",
		map[string]interface{}{"error": err.Error()}))
}

func (b *CallbackBridge) HandleAgentFinish(ctx context.Context, finish schema.AgentFinish) {
	if log := strings.TrimSpace(finish.Log); log != "" {
		b.emit(events.Thinking, log)
	}
}
