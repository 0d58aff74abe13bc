package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/aipp-workbench/engine/internal/agent"
	"github.com/aipp-workbench/engine/internal/agent/providers"
	"github.com/aipp-workbench/engine/internal/artifactrunner"
	"github.com/aipp-workbench/engine/internal/branch"
	"github.com/aipp-workbench/engine/internal/builtintools"
	"github.com/aipp-workbench/engine/internal/config"
	"github.com/aipp-workbench/engine/internal/dispatcher"
	"github.com/aipp-workbench/engine/internal/engineerr"
	"github.com/aipp-workbench/engine/internal/events"
	"github.com/aipp-workbench/engine/internal/fsexec"
	"github.com/aipp-workbench/engine/internal/mcp"
	"github.com/aipp-workbench/engine/internal/mcpregistry"
	"github.com/aipp-workbench/engine/internal/orchestrator"
	"github.com/aipp-workbench/engine/internal/scheduler"
	"github.com/aipp-workbench/engine/internal/searchexec"
	"github.com/aipp-workbench/engine/internal/skillloader"
	"github.com/aipp-workbench/engine/internal/store"
)

// engine wires every component into one process. Wiring lives here in
// cmd so internal packages stay free of any knowledge of each other's
// concrete configuration source.
type engine struct {
	cfg *config.Config

	store    store.Store
	bus      *events.Bus
	registry *mcpregistry.Registry
	gate     *fsexec.Gate
	mcpMgr   *mcp.Manager

	dispatcher *dispatcher.Dispatcher
	orch       *orchestrator.Orchestrator
	sched      *scheduler.Scheduler

	artifacts *artifactrunner.Runner
	skills    *skillloader.Loader
	search    *searchexec.Executor

	files *fsexec.Files
	shell *fsexec.Shell
}

// buildEngine loads configuration from path and constructs every component.
// Callers must call Close when done.
func buildEngine(path string) (*engine, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	bus := events.NewBus()
	gate := fsexec.NewGate(bus)
	registry := mcpregistry.New(st.McpCatalog())

	mcpMgr := mcp.NewManager(&cfg.MCP, slog.Default())
	transportExec := mcp.NewTransportExecutor(mcpMgr)

	searchExec, err := buildSearchExecutor(cfg.Search)
	if err != nil {
		slog.Warn("search executor degraded: browser stage unavailable", "error", err)
	}

	builtinExec := builtintools.New(gate, searchExec)
	router := &dispatcher.Router{Builtin: builtinExec, Transport: transportExec}
	disp := dispatcher.New(registry, st.McpToolCalls(), st.Messages(), router, bus)

	provider := buildProviderResolver(cfg.LLM)
	orch := orchestrator.New(st, bus, disp, provider, branch.StrategyNative)

	sched := scheduler.New(st, orch, provider,
		scheduler.WithLogger(slog.Default()),
		scheduler.WithTickInterval(cfg.Scheduler.TickInterval),
	)

	runner := artifactrunner.NewRunner(cfg.Artifacts.TemplatesDir, cfg.Artifacts.PreviewDir, cfg.Artifacts.BunPath, st.FeatureConfig())

	sources := make([]skillloader.Source, 0, len(cfg.Skills.Sources))
	for _, s := range cfg.Skills.Sources {
		if !s.Enabled {
			continue
		}
		sources = append(sources, skillloader.Source{Name: s.Name, Paths: s.Paths})
	}
	homeDir, appDataDir := skillDirs()
	loader := skillloader.New(homeDir, appDataDir, sources)

	return &engine{
		cfg:        cfg,
		store:      st,
		bus:        bus,
		registry:   registry,
		gate:       gate,
		mcpMgr:     mcpMgr,
		dispatcher: disp,
		orch:       orch,
		sched:      sched,
		artifacts:  runner,
		skills:     loader,
		search:     searchExec,
		files:      fsexec.NewFiles(),
		shell:      fsexec.NewShell(),
	}, nil
}

func (e *engine) Close() error {
	if e.mcpMgr != nil {
		_ = e.mcpMgr.Stop()
	}
	return e.store.Close()
}

// buildSearchExecutor composes the fetch/search executor over a
// fingerprinted, anti-detection page pool. A pool failure (no browser
// binary in this environment, e.g.) degrades to the HTTP-only fallback
// stage of the fetch cascade rather than failing engine startup.
func buildSearchExecutor(cfg config.SearchConfig) (*searchexec.Executor, error) {
	fp := searchexec.FingerprintConfig{
		TimezoneOffsetMinutes: cfg.Fingerprint.TimezoneOffsetMinutes,
		Platform:              cfg.Fingerprint.Platform,
		Locale:                cfg.Fingerprint.Locale,
		UserAgent:             cfg.Fingerprint.UserAgent,
		ViewportWidth:         cfg.Fingerprint.ViewportWidth,
		ViewportHeight:        cfg.Fingerprint.ViewportHeight,
	}
	proxy := searchexec.ProxyConfig{Server: cfg.Proxy.Server}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 2
	}
	pool, err := searchexec.NewPagePool(fp, proxy, poolSize)
	if err != nil {
		return searchexec.NewExecutor(nil, nil), err
	}
	return searchexec.NewExecutor(pool, nil), nil
}

func buildProviderResolver(cfg config.LLMConfig) orchestrator.Provider {
	cache := map[string]agent.LLMProvider{}
	return func(modelID string) (agent.LLMProvider, error) {
		name := strings.ToLower(cfg.DefaultProvider)
		if idx := strings.IndexByte(modelID, '%'); idx > 0 && strings.Contains(modelID, "%%") {
			parts := strings.SplitN(modelID, "%%", 2)
			if len(parts) == 2 && strings.TrimSpace(parts[1]) != "" {
				name = strings.ToLower(parts[1])
			}
		}
		if p, ok := cache[name]; ok {
			return p, nil
		}
		pc, ok := cfg.Providers[name]
		if !ok {
			return nil, engineerr.New(engineerr.KindValidation, fmt.Sprintf("no llm provider configured for %q", name))
		}
		var p agent.LLMProvider
		var err error
		switch name {
		case "openai":
			p = providers.NewOpenAIProvider(pc.APIKey)
		case "anthropic":
			p, err = providers.NewAnthropicProvider(providers.AnthropicConfig{APIKey: pc.APIKey, BaseURL: pc.BaseURL, DefaultModel: pc.DefaultModel})
		case "google":
			p, err = providers.NewGoogleProvider(providers.GoogleConfig{APIKey: pc.APIKey, DefaultModel: pc.DefaultModel})
		case "bedrock":
			p, err = providers.NewBedrockProvider(providers.BedrockConfig{
				Region:          pc.Region,
				AccessKeyID:     pc.AccessKeyID,
				SecretAccessKey: pc.SecretAccessKey,
				DefaultModel:    pc.DefaultModel,
			})
		case "azure":
			p, err = providers.NewAzureOpenAIProvider(providers.AzureOpenAIConfig{
				Endpoint:     pc.BaseURL,
				APIKey:       pc.APIKey,
				APIVersion:   pc.APIVersion,
				DefaultModel: pc.DefaultModel,
			})
		case "openrouter":
			p, err = providers.NewOpenRouterProvider(providers.OpenRouterConfig{APIKey: pc.APIKey, DefaultModel: pc.DefaultModel})
		case "ollama":
			p = providers.NewOllamaProvider(providers.OllamaConfig{BaseURL: pc.BaseURL, DefaultModel: pc.DefaultModel})
		case "copilot-proxy":
			p, err = providers.NewCopilotProxyProvider(providers.CopilotProxyConfig{BaseURL: pc.BaseURL})
		default:
			return nil, engineerr.New(engineerr.KindValidation, fmt.Sprintf("unsupported llm provider %q", name))
		}
		if err != nil {
			return nil, err
		}
		cache[name] = p
		return p, nil
	}
}
