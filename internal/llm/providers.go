package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"pcbuild-agent/pkg/logger"
)

// Provider represents the available LLM providers.
type Provider string

const (
	ProviderGoogle    Provider = "googleai"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// DefaultModelID is used when no model is configured for the Google
// provider.
const DefaultModelID = "gemini-2.5-flash-lite"

// Config holds configuration for LLM initialization.
type Config struct {
	Provider    Provider
	ModelID     string
	Temperature float64
	Logger      logger.ExtendedLogger
}

// Initialize creates an LLM client based on the provider configuration.
func Initialize(ctx context.Context, config Config) (llms.Model, error) {
	switch config.Provider {
	case ProviderGoogle, "":
		return initializeGoogle(ctx, config)
	case ProviderOpenAI:
		return initializeOpenAI(config)
	case ProviderAnthropic:
		return initializeAnthropic(config)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.Provider)
	}
}

func initializeGoogle(ctx context.Context, config Config) (llms.Model, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY environment variable not set")
	}

	modelID := config.ModelID
	if modelID == "" {
		modelID = DefaultModelID
	}
	config.Logger.Infof("Initializing Google AI LLM - model: %s, temperature: %.1f", modelID, config.Temperature)

	model, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(modelID),
		googleai.WithDefaultTemperature(config.Temperature),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google AI client: %w", err)
	}
	return model, nil
}

func initializeOpenAI(config Config) (llms.Model, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	config.Logger.Infof("Initializing OpenAI LLM - model: %s, temperature: %.1f", config.ModelID, config.Temperature)

	model, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithModel(config.ModelID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	return model, nil
}

func initializeAnthropic(config Config) (llms.Model, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}

	config.Logger.Infof("Initializing Anthropic LLM - model: %s, temperature: %.1f", config.ModelID, config.Temperature)

	model, err := anthropic.New(
		anthropic.WithToken(apiKey),
		anthropic.WithModel(config.ModelID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Anthropic client: %w", err)
	}
	return model, nil
}
