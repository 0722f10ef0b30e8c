// Package openrouter provides an OpenRouter provider implementation.
//
// OpenRouter exposes an OpenAI-compatible API, so the blocking completion
// path goes through the openai-go client pointed at the OpenRouter base URL.
// Streaming uses raw HTTP SSE handling, which copes better with the comment
// lines and format variations OpenRouter emits for different upstream models.
package openrouter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/tylxr59/prattle/pkg/llm"
	"github.com/tylxr59/prattle/pkg/types"
)

const (
	// DefaultBaseURL is the OpenRouter API base URL.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// appReferer and appTitle identify the client to OpenRouter's dashboard.
	appReferer = "https://github.com/tylxr59/prattle"
	appTitle   = "Prattle"
)

// Provider implements llm.Provider against the OpenRouter API.
type Provider struct {
	httpClient *http.Client
	client     openai.Client
	apiKey     string
	baseURL    string
	model      string
	catalog    *Catalog
}

// ProviderOption is a function that configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model to use for completions.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL sets a custom base URL, e.g. for a self-hosted
// OpenAI-compatible gateway.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the HTTP client used for streaming and catalog calls.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// NewProvider creates a new OpenRouter provider.
//
// If apiKey is empty, it is read from the OPENROUTER_API_KEY environment
// variable. The default model is the one OpenRouter recommends for chat;
// callers normally override it from configuration.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openrouter: API key is required (parameter or OPENROUTER_API_KEY)")
	}

	p := &Provider{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      "anthropic/claude-3.5-sonnet",
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(p)
	}

	p.client = openai.NewClient(
		option.WithAPIKey(p.apiKey),
		option.WithBaseURL(p.baseURL),
		option.WithHeader("HTTP-Referer", appReferer),
		option.WithHeader("X-Title", appTitle),
	)
	p.catalog = newCatalog(p.httpClient, p.baseURL, p.apiKey)

	return p, nil
}

// CloneWithModel returns a shallow copy of p configured to use the given
// model. The clone shares the HTTP client, API key, and catalog cache with
// the original, making it very cheap to create. It implements llm.ModelCloner.
func (p *Provider) CloneWithModel(model string) llm.Provider {
	clone := *p
	clone.model = model
	return &clone
}

// GetModel returns the model identifier being used.
func (p *Provider) GetModel() string {
	return p.model
}

// GetModelInfo returns catalog information for the current model, or nil if
// the catalog has not been fetched yet.
func (p *Provider) GetModelInfo() *llm.ModelInfo {
	return p.catalog.Lookup(p.model)
}

// ListModels returns the OpenRouter model catalog, fetching it on first use.
func (p *Provider) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	return p.catalog.List(ctx)
}

// Complete sends messages to OpenRouter and returns the full response.
func (p *Provider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: convertMessages(messages),
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, llm.ClassifyErr(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices in response", llm.ErrModel)
	}

	reply := types.NewAssistantMessage(resp.Choices[0].Message.Content)
	reply.WithMetadata("model", p.model)
	if resp.Usage.TotalTokens > 0 {
		reply.WithMetadata("usage", p.buildUsage(
			int(resp.Usage.PromptTokens),
			int(resp.Usage.CompletionTokens),
			int(resp.Usage.TotalTokens),
		))
	}
	return reply, nil
}

// StreamCompletion sends messages to OpenRouter and streams back response
// chunks. The channel is closed when streaming completes or fails.
func (p *Provider) StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *llm.StreamChunk, error) {
	resp, err := p.sendStreamRequest(ctx, messages)
	if err != nil {
		return nil, err
	}

	chunks := make(chan *llm.StreamChunk, 10)
	go p.processStream(ctx, resp, chunks)
	return chunks, nil
}

func (p *Provider) sendStreamRequest(ctx context.Context, messages []*types.Message) (*http.Response, error) {
	reqBody := map[string]interface{}{
		"model":    p.model,
		"messages": wireMessages(messages),
		"stream":   true,
		"usage":    map[string]interface{}{"include": true},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("openrouter: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("openrouter: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("HTTP-Referer", appReferer)
	req.Header.Set("X-Title", appTitle)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, llm.ClassifyErr(err)
	}

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		if readErr != nil {
			body = []byte("(unreadable error body)")
		}
		return nil, llm.ClassifyStatus(resp.StatusCode, string(body))
	}

	return resp, nil
}

func (p *Provider) processStream(ctx context.Context, resp *http.Response, chunks chan<- *llm.StreamChunk) {
	defer close(chunks)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	firstChunk := true
	var usage *types.TokenUsage

	for scanner.Scan() {
		line := scanner.Text()

		// OpenRouter interleaves ": OPENROUTER PROCESSING" comment lines.
		if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if data == "[DONE]" {
			p.send(ctx, chunks, &llm.StreamChunk{Finished: true, Usage: usage})
			return
		}

		if !p.processSSEChunk(ctx, data, &firstChunk, &usage, chunks) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		p.send(ctx, chunks, &llm.StreamChunk{Error: llm.ClassifyErr(err)})
		return
	}
	// Stream ended without [DONE]; treat as finished.
	p.send(ctx, chunks, &llm.StreamChunk{Finished: true, Usage: usage})
}

func (p *Provider) processSSEChunk(ctx context.Context, data string, firstChunk *bool, usage **types.TokenUsage, chunks chan<- *llm.StreamChunk) bool {
	var chunk struct {
		Choices []struct {
			Delta struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"delta"`
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
		Usage *struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}

	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return true // Skip malformed chunks silently
	}

	if chunk.Usage != nil {
		*usage = p.buildUsage(chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens, chunk.Usage.TotalTokens)
	}

	if len(chunk.Choices) == 0 {
		return true
	}

	delta := chunk.Choices[0].Delta
	out := &llm.StreamChunk{Content: delta.Content}
	if *firstChunk && delta.Role != "" {
		out.Role = delta.Role
		*firstChunk = false
	}
	if out.Content == "" && out.Role == "" {
		return true
	}
	return p.send(ctx, chunks, out)
}

func (p *Provider) send(ctx context.Context, chunks chan<- *llm.StreamChunk, chunk *llm.StreamChunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// buildUsage fills token counts and, when catalog pricing is available,
// the derived USD costs.
func (p *Provider) buildUsage(prompt, completion, total int) *types.TokenUsage {
	usage := &types.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      total,
	}
	if info := p.catalog.Lookup(p.model); info != nil {
		usage.PromptCost = float64(prompt) / 1_000_000 * info.PromptCost
		usage.CompletionCost = float64(completion) / 1_000_000 * info.CompletionCost
		usage.TotalCost = usage.PromptCost + usage.CompletionCost
	}
	return usage
}

// convertMessages maps internal messages to openai-go params for the
// blocking path. Summary messages travel as system content so the upstream
// model treats them as context, not as its own prior output.
func convertMessages(messages []*types.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case types.RoleSummary:
			out = append(out, openai.SystemMessage(summaryWirePrefix+msg.Content))
		case types.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

const summaryWirePrefix = "Summary of earlier conversation:\n\n"

// wireMessages maps internal messages to plain role/content pairs for the
// raw streaming request.
func wireMessages(messages []*types.Message) []map[string]string {
	out := make([]map[string]string, 0, len(messages))
	for _, msg := range messages {
		role := string(msg.Role)
		content := msg.Content
		switch msg.Role {
		case types.RoleSummary:
			role = string(types.RoleSystem)
			content = summaryWirePrefix + content
		case types.RoleUser, types.RoleAssistant, types.RoleSystem:
		default:
			role = string(types.RoleUser)
		}
		out = append(out, map[string]string{"role": role, "content": content})
	}
	return out
}
