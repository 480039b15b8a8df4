package main

import (
	"context"
	"fmt"
	"time"

	"webresearch/internal/browser"
	"webresearch/internal/config"
	"webresearch/internal/docs"
	"webresearch/internal/extract"
	"webresearch/internal/fetch"
	"webresearch/internal/llm"
	"webresearch/internal/logging"
	"webresearch/internal/memory"
	"webresearch/internal/research"
	"webresearch/internal/retry"
	"webresearch/internal/search"
)

// app owns every long-lived component built from the configuration.
type app struct {
	cfg    *config.Config
	pool   *browser.Pool
	batch  *fetch.Batch
	memory *memory.SQLiteStore
}

// newBrowserApp starts the browser pool and the fetch layer.
func newBrowserApp(ctx context.Context, cfg *config.Config) (*app, error) {
	timer := logging.StartTimer(logging.CategoryBoot, "start browser pool")
	defer timer.Stop()

	factory, err := browser.NewRodFactory(ctx, browser.RodConfig{
		Bin:            cfg.Browser.Bin,
		ControlURL:     cfg.Browser.ControlURL,
		Headless:       cfg.Browser.Headless,
		Stealth:        cfg.Browser.Stealth,
		BlockResources: cfg.Browser.BlockResources,
		UserAgent:      cfg.Browser.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	pool, err := browser.NewPool(ctx, browser.Config{
		Size:           cfg.Browser.PoolSize,
		MaxConcurrency: cfg.Browser.MaxConcurrency,
		ReplaceTimeout: cfg.GetReplaceTimeout(),
	}, factory)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}

	extractor := extract.New(extract.Config{
		MinContentLen:    extract.DefaultConfig().MinContentLen,
		MaxFallbackChars: cfg.Fetch.MaxTextChars,
		Markdown:         true,
	})
	policy := retry.NewExponential(retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.GetRetryBaseDelay(),
		MaxDelay:    cfg.GetRetryMaxDelay(),
	}, retry.WithClassifier(fetch.IsRetryable))

	fetcher := fetch.New(pool, extractor, policy, fetch.Config{
		NavigationTimeout: cfg.GetNavigationTimeout(),
		SelectorGrace:     cfg.GetSelectorGrace(),
		Budget:            cfg.GetFetchBudget(),
		ProbeContentType:  cfg.Fetch.ProbeContentType,
		ProbeTimeout:      cfg.GetProbeTimeout(),
		UserAgent:         cfg.Browser.UserAgent,
	})

	return &app{cfg: cfg, pool: pool, batch: fetch.NewBatch(fetcher)}, nil
}

// pipeline wires search, the language model, documents and memory around
// the fetch layer.
func (a *app) pipeline(ctx context.Context, useMemory bool) (*research.Pipeline, error) {
	cfg := a.cfg

	completer, err := llm.NewGenAIClient(ctx, llm.GenAIConfig{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.GetLLMTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("language model: %w (set RESEARCH_GEMINI_API_KEY)", err)
	}

	provider := search.NewDuckDuckGo(search.DuckDuckGoConfig{
		Endpoint:   cfg.Search.Endpoint,
		MaxResults: cfg.Search.MaxResults,
		QPS:        cfg.Search.QPS,
		Timeout:    cfg.GetSearchTimeout(),
		UserAgent:  cfg.Search.UserAgent,
	})

	docCfg := docs.DefaultConfig()
	docCfg.UserAgent = cfg.Browser.UserAgent
	documents := docs.New(docCfg, nil, docs.WithPolicy(retry.NewExponential(retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.GetRetryBaseDelay(),
		MaxDelay:    cfg.GetRetryMaxDelay(),
	}, retry.WithClassifier(fetch.IsRetryable))))

	var opts []research.Option
	if useMemory && cfg.Memory.Enabled {
		if store := a.openMemory(completer); store != nil {
			opts = append(opts, research.WithMemory(store))
		}
	}

	return research.New(provider, llm.New(completer), a.batch, documents, pipelineConfig(cfg), opts...), nil
}

// pipelineConfig maps the file configuration onto the stage machine.
func pipelineConfig(cfg *config.Config) research.Config {
	return research.Config{
		MaxWebPages:          cfg.Pipeline.MaxWebPages,
		MaxDocuments:         cfg.Pipeline.MaxDocuments,
		BatchConcurrency:     cfg.Pipeline.BatchConcurrency,
		InterItemDelay:       cfg.GetInterItemDelay(),
		ExtractDeadline:      cfg.GetExtractDeadline(),
		Timeout:              cfg.GetPipelineTimeout(),
		RelevancePrefixChars: cfg.Pipeline.RelevancePrefixChars,
		ProgressBuffer:       cfg.Pipeline.ProgressBuffer,
		MemorySeedLimit:      cfg.Memory.SeedLimit,
		MaxSnippets:          cfg.Pipeline.MaxSnippets,
	}
}

// openMemory opens the memory store. A failure disables memory for the run.
func (a *app) openMemory(completer *llm.GenAIClient) *memory.SQLiteStore {
	var embedder memory.Embedder
	if a.cfg.Memory.EmbeddingModel != "" {
		e, err := memory.NewGenAIEmbedder(completer.Client(), a.cfg.Memory.EmbeddingModel)
		if err != nil {
			logging.MemoryWarn("embeddings disabled: %v", err)
		} else {
			embedder = e
		}
	}
	store, err := memory.Open(a.cfg.Memory.DatabasePath, embedder)
	if err != nil {
		logging.MemoryWarn("memory disabled: %v", err)
		return nil
	}
	a.memory = store
	return store
}

// Close shuts the pool down, waiting briefly for in-flight renders.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.pool.Shutdown(ctx); err != nil {
		logging.BootWarn("browser shutdown: %v", err)
	}
	if a.memory != nil {
		if err := a.memory.Close(); err != nil {
			logging.MemoryWarn("close memory: %v", err)
		}
	}
}
