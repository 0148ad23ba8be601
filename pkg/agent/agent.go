package agent

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/agents"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/memory"
	"github.com/tmc/langchaingo/tools"

	"pcbuild-agent/internal/llm"
	"pcbuild-agent/pkg/logger"
	"pcbuild-agent/pkg/relay"
)

const defaultMaxIterations = 30

// Config holds the settings for a PCBuildAgent.
type Config struct {
	Provider    llm.Provider
	ModelID     string
	Temperature float64
	// MaxIterations caps the reasoning loop per session.
	MaxIterations int
	Logger        logger.ExtendedLogger
}

// PCBuildAgent runs PC-build reasoning sessions on a langchaingo ReAct
// executor. The LLM and tool set are shared across sessions; conversational
// memory is created fresh per session so concurrent requests never share
// state.
type PCBuildAgent struct {
	llm    llms.Model
	tools  []tools.Tool
	config Config
	logger logger.ExtendedLogger
}

// New creates an agent with the given tool set.
func New(ctx context.Context, config Config, toolSet []tools.Tool) (*PCBuildAgent, error) {
	if config.MaxIterations <= 0 {
		config.MaxIterations = defaultMaxIterations
	}
	if config.Logger == nil {
		config.Logger = logger.CreateDefaultLogger()
	}

	model, err := llm.Initialize(ctx, llm.Config{
		Provider:    config.Provider,
		ModelID:     config.ModelID,
		Temperature: config.Temperature,
		Logger:      config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &PCBuildAgent{
		llm:    model,
		tools:  toolSet,
		config: config,
		logger: config.Logger,
	}, nil
}

// Run implements relay.Runner: one complete reasoning session for a single
// prompt, with lifecycle transitions reported on sink. The executor and its
// conversation buffer live only for this call.
func (a *PCBuildAgent) Run(ctx context.Context, prompt string, sink relay.Sink) (string, error) {
	bridge := NewCallbackBridge(sink)

	executor, err := agents.Initialize(
		a.llm,
		a.tools,
		agents.ZeroShotReactDescription,
		agents.WithMemory(memory.NewConversationBuffer()),
		agents.WithMaxIterations(a.config.MaxIterations),
		agents.WithCallbacksHandler(bridge),
		agents.WithParserErrorHandler(agents.NewParserErrorHandler(nil)),
		agents.WithPromptPrefix(promptPrefix()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to initialize agent executor: %w", err)
	}

	answer, err := chains.Run(ctx, executor, prompt)
	if err != nil {
		return "", fmt.Errorf("reasoning run failed: %w", err)
	}
	return answer, nil
}
