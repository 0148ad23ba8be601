package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pcbuild-agent/pkg/logger"
)

// NoResultsMessage is returned to the reasoning loop when a query yields
// nothing. It is a valid observation, not an error.
const NoResultsMessage = "No search results found."

const (
	toolName        = "Search"
	toolDescription = "Useful for finding current or detailed info about PC parts or compatibility. " +
		"Input should be a search query."

	// defaultDelay throttles calls against the upstream provider. The
	// delay is paid per call, not coordinated across sessions.
	defaultDelay      = 4 * time.Second
	defaultMaxResults = 5
)

// Tool exposes a search Provider as a langchaingo tool: rate limited,
// result capped, with results flattened into a readable observation string.
type Tool struct {
	provider   Provider
	store      *Store
	delay      time.Duration
	maxResults int
	logger     logger.ExtendedLogger
}

// ToolOption configures a Tool.
type ToolOption func(*Tool)

// WithDelay overrides the fixed pre-call delay.
func WithDelay(delay time.Duration) ToolOption {
	return func(t *Tool) {
		t.delay = delay
	}
}

// WithMaxResults overrides how many results are requested and kept.
func WithMaxResults(maxResults int) ToolOption {
	return func(t *Tool) {
		t.maxResults = maxResults
	}
}

// WithStore enables best-effort persistence of raw result sets for offline
// inspection.
func WithStore(store *Store) ToolOption {
	return func(t *Tool) {
		t.store = store
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.ExtendedLogger) ToolOption {
	return func(t *Tool) {
		t.logger = log
	}
}

// NewTool creates a search tool around the given provider.
func NewTool(provider Provider, opts ...ToolOption) *Tool {
	t := &Tool{
		provider:   provider,
		delay:      defaultDelay,
		maxResults: defaultMaxResults,
		logger:     logger.CreateDefaultLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements tools.Tool.
func (t *Tool) Name() string {
	return toolName
}

// Description implements tools.Tool.
func (t *Tool) Description() string {
	return toolDescription
}

// Call implements tools.Tool. Provider faults propagate as errors so the
// reasoning loop sees a tool-execution failure rather than a silent empty
// observation.
func (t *Tool) Call(ctx context.Context, query string) (string, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}

	results, err := t.provider.Search(ctx, query, t.maxResults)
	if err != nil {
		return "", fmt.Errorf("search provider: %w", err)
	}
	if len(results) == 0 {
		return NoResultsMessage, nil
	}
	if len(results) > t.maxResults {
		results = results[:t.maxResults]
	}

	if t.store != nil {
		t.store.RecordAsync(query, results)
	}

	return Format(results), nil
}

// Format flattens results into the observation string handed to the
// reasoning engine.
func Format(results []Result) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("Title: %s, Body: %s, (URL: %s)", r.Title, r.Snippet, r.URL))
	}
	return strings.Join(lines, "\n")
}

// wait enforces the fixed inter-call delay, honoring cancellation.
func (t *Tool) wait(ctx context.Context) error {
	if t.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(t.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
