// Package brain implements the tool-driven reasoning loop that turns one
// inbound chat event into zero or more tool calls and a final reply.
// Grounded on goadesign-goa-ai's runtime/agent/runtime tool-dispatch-map
// shape (tool_calls.go, workflow_loop.go) for the round-budget/dispatch
// idiom, adapted from goa-ai's Temporal-backed durable workflow to a
// single in-process loop — Temporal is out of scope for this control
// plane (see SPEC_FULL.md §9) — and on beads' internal/compact.haikuClient
// for the anthropic-sdk-go retry/backoff wrapper.
package brain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	maxModelRetries     = 3
	initialModelBackoff = 1 * time.Second
)

// ModelClient is the narrow surface Loop drives against the model
// provider, so tests substitute a fake without a live API key.
type ModelClient interface {
	Invoke(ctx context.Context, system string, tools []anthropic.ToolUnionParam, messages []anthropic.MessageParam) (*anthropic.Message, error)
}

// anthropicClient wraps anthropic-sdk-go with beads' own retry-with-backoff
// policy (internal/compact.haikuClient.callWithRetry), generalized from a
// single-shot summarization call to a multi-turn tool-calling invocation.
type anthropicClient struct {
	client         anthropic.Client
	model          anthropic.Model
	maxTokens      int64
	maxRetries     int
	initialBackoff time.Duration
}

// NewModelClient returns a ModelClient backed by the Anthropic API. apiKey
// empty defers to the ANTHROPIC_API_KEY environment variable, same
// precedence as beads' haikuClient.
func NewModelClient(apiKey, model string, maxTokens int64) ModelClient {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &anthropicClient{
		client:         anthropic.NewClient(opts...),
		model:          anthropic.Model(model),
		maxTokens:      maxTokens,
		maxRetries:     maxModelRetries,
		initialBackoff: initialModelBackoff,
	}
}

func (c *anthropicClient) Invoke(ctx context.Context, system string, tools []anthropic.ToolUnionParam, messages []anthropic.MessageParam) (*anthropic.Message, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  messages,
		Tools:     tools,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err == nil {
			return message, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryableModelError(err) {
			return nil, fmt.Errorf("brain: non-retryable model error: %w", err)
		}
	}
	return nil, fmt.Errorf("brain: model call failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func isRetryableModelError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
