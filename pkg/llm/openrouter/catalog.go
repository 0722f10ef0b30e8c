package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/tylxr59/prattle/pkg/llm"
)

// Catalog caches the OpenRouter model list. Pricing from the catalog drives
// cost accounting, and context lengths seed the token budget for models the
// user switches to.
type Catalog struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string

	mu     sync.RWMutex
	models []llm.ModelInfo
	byID   map[string]*llm.ModelInfo
}

func newCatalog(httpClient *http.Client, baseURL, apiKey string) *Catalog {
	return &Catalog{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		byID:       make(map[string]*llm.ModelInfo),
	}
}

// List returns all available models, fetching the catalog on first use.
// Subsequent calls return the cached list.
func (c *Catalog) List(ctx context.Context) ([]llm.ModelInfo, error) {
	c.mu.RLock()
	if c.models != nil {
		defer c.mu.RUnlock()
		return c.models, nil
	}
	c.mu.RUnlock()

	return c.Refresh(ctx)
}

// Refresh re-fetches the catalog from the API, replacing the cache.
func (c *Catalog) Refresh(ctx context.Context) ([]llm.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("openrouter: create catalog request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, llm.ClassifyErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, llm.ClassifyStatus(resp.StatusCode, string(body))
	}

	var payload struct {
		Data []struct {
			ID            string `json:"id"`
			Name          string `json:"name"`
			Description   string `json:"description"`
			ContextLength int    `json:"context_length"`
			Pricing       struct {
				Prompt     string `json:"prompt"`
				Completion string `json:"completion"`
			} `json:"pricing"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode catalog: %v", llm.ErrModel, err)
	}

	models := make([]llm.ModelInfo, 0, len(payload.Data))
	byID := make(map[string]*llm.ModelInfo, len(payload.Data))
	for _, m := range payload.Data {
		name := m.Name
		if name == "" {
			name = m.ID
		}
		info := llm.ModelInfo{
			ID:            m.ID,
			Name:          name,
			Description:   m.Description,
			ContextLength: m.ContextLength,
			// OpenRouter prices are per token; store per million.
			PromptCost:     parsePrice(m.Pricing.Prompt) * 1_000_000,
			CompletionCost: parsePrice(m.Pricing.Completion) * 1_000_000,
		}
		models = append(models, info)
	}
	for i := range models {
		byID[models[i].ID] = &models[i]
	}

	c.mu.Lock()
	c.models = models
	c.byID = byID
	c.mu.Unlock()

	return models, nil
}

// Lookup returns the cached catalog entry for a model id, or nil when the
// catalog has not been fetched or the model is unknown.
func (c *Catalog) Lookup(id string) *llm.ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byID[id]
}

func parsePrice(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
