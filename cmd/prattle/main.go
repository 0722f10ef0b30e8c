// Package main provides the prattle terminal chat client. It wires the
// chat engine, conversation library, memory ledger, and search index into
// a chat-first TUI that runs entirely in the terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tylxr59/prattle/pkg/agent"
	agentcontext "github.com/tylxr59/prattle/pkg/agent/context"
	"github.com/tylxr59/prattle/pkg/agent/memory"
	"github.com/tylxr59/prattle/pkg/chat"
	appconfig "github.com/tylxr59/prattle/pkg/config"
	"github.com/tylxr59/prattle/pkg/llm"
	"github.com/tylxr59/prattle/pkg/llm/openrouter"
	"github.com/tylxr59/prattle/pkg/search"
	"github.com/tylxr59/prattle/pkg/ui"
)

const version = "0.1.0"

// Config holds the application configuration from flags and environment.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	ConfigPath  string
	DataDir     string
	ShowVersion bool
}

func main() {
	config := parseFlags()

	if config.ShowVersion {
		fmt.Printf("prattle v%s\n", version)
		return
	}

	if err := config.validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nShutting down gracefully...")
		cancel()
	}()

	if runErr := run(ctx, config); runErr != nil {
		cancel()
		log.Fatalf("Application error: %v", runErr)
	}
}

// parseFlags parses command line flags and environment variables.
func parseFlags() *Config {
	config := &Config{}

	flag.StringVar(&config.APIKey, "api-key", os.Getenv("OPENROUTER_API_KEY"), "OpenRouter API key (or set OPENROUTER_API_KEY env var)")
	flag.StringVar(&config.BaseURL, "base-url", os.Getenv("OPENROUTER_BASE_URL"), "OpenRouter API base URL (or set OPENROUTER_BASE_URL env var)")
	flag.StringVar(&config.Model, "model", "", "LLM model to use (default: configured model)")
	flag.StringVar(&config.ConfigPath, "config", "", "Path to config file (default: ~/.prattle/config.yaml)")
	flag.StringVar(&config.DataDir, "data-dir", "", "Data directory for conversations, memories, and the search index (default: ~/.prattle)")
	flag.BoolVar(&config.ShowVersion, "version", false, "Show version and exit")
	flag.Parse()

	return config
}

func (c *Config) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key is required: set OPENROUTER_API_KEY or pass -api-key")
	}
	return nil
}

func run(ctx context.Context, config *Config) error {
	if err := appconfig.Initialize(config.ConfigPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	llmCfg := appconfig.GetLLM()
	chatCfg := appconfig.GetChat()
	uiCfg := appconfig.GetUI()

	dataDir := config.DataDir
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".prattle")
	}

	model := config.Model
	if model == "" {
		model = llmCfg.GetModel()
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = llmCfg.GetBaseURL()
	}

	providerOpts := []openrouter.ProviderOption{openrouter.WithModel(model)}
	if baseURL != "" {
		providerOpts = append(providerOpts, openrouter.WithBaseURL(baseURL))
	}
	provider, err := openrouter.NewProvider(config.APIKey, providerOpts...)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	library, err := chat.NewLibrary(filepath.Join(dataDir, "chats"))
	if err != nil {
		return fmt.Errorf("failed to open conversation library: %w", err)
	}

	store, err := memory.NewFileStore(filepath.Join(dataDir, "memories.yaml"))
	if err != nil {
		return fmt.Errorf("failed to open memory store: %w", err)
	}
	ledger := memory.NewLedger(store)
	if err := ledger.Load(); err != nil {
		return fmt.Errorf("failed to load memory ledger: %w", err)
	}

	index, err := search.NewIndex(filepath.Join(dataDir, "index.db"))
	if err != nil {
		return fmt.Errorf("failed to open search index: %w", err)
	}
	defer index.Close()

	assembler, err := agentcontext.NewAssembler(defaultSystemPrompt, chatCfg.GetTokenBudget(), ledger)
	if err != nil {
		return fmt.Errorf("failed to create assembler: %w", err)
	}

	compactor, err := agentcontext.NewCompactor(provider, chatCfg.GetMinChunkTokens(), chatCfg.GetMinChunkMessages())
	if err != nil {
		return fmt.Errorf("failed to create compactor: %w", err)
	}
	utilityModel := llmCfg.GetUtilityModel()
	if utilityModel != "" {
		compactor.SetSummaryModel(utilityModel)
	}

	extractor := memory.NewExtractor(ledger, utilityProvider(provider, utilityModel), chatCfg.GetMaxMemoryEntries())

	engine, err := agent.NewEngine(provider, library, assembler,
		agent.WithCompactor(compactor),
		agent.WithExtractor(extractor),
		agent.WithLedger(ledger),
		agent.WithSearchIndex(index),
		agent.WithCompactThreshold(chatCfg.GetCompactThresholdPercent()),
		agent.WithTitleInterval(time.Duration(chatCfg.GetTitleUpdateInterval())*time.Second),
		agent.WithMemoryInterval(time.Duration(chatCfg.GetMemoryUpdateInterval())*time.Second),
		agent.WithUtilityModel(utilityModel),
	)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	engine.SetConversation(startingConversation(library, model))

	executor := ui.NewExecutor(engine, provider, library,
		ui.WithSearchIndex(index),
		ui.WithLedger(ledger),
		ui.WithMarkdown(uiCfg.GetRenderMarkdown()),
		ui.WithSidebarWidth(uiCfg.GetSidebarWidth()),
	)
	return executor.Run(ctx)
}

// startingConversation resumes the most recently updated conversation, or
// creates a fresh one when the library is empty.
func startingConversation(library *chat.Library, model string) *chat.Conversation {
	infos, err := library.List()
	if err == nil && len(infos) > 0 {
		if conv, loadErr := library.Load(infos[0].ID); loadErr == nil {
			return conv
		}
	}
	return chat.NewConversation(chat.DefaultTitle, model, "")
}

// utilityProvider returns the provider used for background utility calls
// (memory extraction), on the cheap model when one is configured.
func utilityProvider(provider llm.Provider, utilityModel string) llm.Provider {
	if utilityModel == "" {
		return provider
	}
	if cloner, ok := provider.(llm.ModelCloner); ok {
		return cloner.CloneWithModel(utilityModel)
	}
	return provider
}
