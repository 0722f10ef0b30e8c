// Package llm provides abstractions for LLM provider integration.
//
// Providers handle API communication with LLM services and return simple
// StreamChunk instances. This keeps providers focused on transport concerns:
// the chat engine is responsible for converting chunks into chat events,
// committing messages, and driving background work. Providers stay reusable
// outside the engine (utility calls for titles, summaries, extraction).
package llm

import (
	"context"

	"github.com/tylxr59/prattle/pkg/types"
)

// ModelInfo describes a model available from the provider's catalog.
type ModelInfo struct {
	// ID is the provider-scoped model identifier, e.g. "anthropic/claude-3.5-sonnet".
	ID string

	// Name is the human-readable model name.
	Name string

	// Description is the provider's description of the model.
	Description string

	// ContextLength is the model's context window in tokens. Zero if unknown.
	ContextLength int

	// PromptCost is the prompt price in USD per million tokens.
	PromptCost float64

	// CompletionCost is the completion price in USD per million tokens.
	CompletionCost float64
}

// ModelCloner is an optional interface that providers can implement to
// support lightweight per-call model overrides without constructing a full
// second provider. The returned provider shares credentials and transport
// with the original but directs calls to the given model.
type ModelCloner interface {
	CloneWithModel(model string) Provider
}

// Provider defines the interface for LLM integrations.
type Provider interface {
	// StreamCompletion sends messages to the LLM and streams back response chunks.
	//
	// The returned channel emits StreamChunk instances:
	// - chunks carry Content deltas as they arrive
	// - the final chunk has Finished=true and may carry Usage
	// - error chunks have Error set
	//
	// The channel is closed when streaming completes or an error occurs.
	// Callers should continue reading until the channel is closed.
	//
	// Returns an error only if streaming cannot be initiated. Stream-time
	// errors are delivered as chunks with Error set.
	StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *StreamChunk, error)

	// Complete sends messages to the LLM and returns the full response.
	// This is the blocking path used for utility calls (titles, summaries,
	// memory extraction).
	Complete(ctx context.Context, messages []*types.Message) (*types.Message, error)

	// GetModel returns the model identifier being used.
	GetModel() string

	// GetModelInfo returns catalog information for the current model,
	// or nil if the catalog has not been fetched.
	GetModelInfo() *ModelInfo
}

// StreamChunk is a single unit of streamed completion output.
type StreamChunk struct {
	// Error contains stream-time error information.
	Error error

	// Content is a content delta.
	Content string

	// Role is set on the first chunk of a response.
	Role string

	// Usage carries token accounting, typically on the final chunk.
	Usage *types.TokenUsage

	// Finished is true on the terminal chunk of a successful stream.
	Finished bool
}

// IsError returns true if the chunk carries an error.
func (c *StreamChunk) IsError() bool {
	return c.Error != nil
}
