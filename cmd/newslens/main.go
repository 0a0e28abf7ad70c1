// NewsLens engine server: loads configuration, wires the model router,
// retrieval, long-term memory, and the experiment registry, and serves the
// command API over HTTP.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/newslens/newslens/pkg/api"
	"github.com/newslens/newslens/pkg/config"
	"github.com/newslens/newslens/pkg/experiment"
	"github.com/newslens/newslens/pkg/llm"
	"github.com/newslens/newslens/pkg/memory"
	"github.com/newslens/newslens/pkg/metrics"
	"github.com/newslens/newslens/pkg/orchestrator"
	"github.com/newslens/newslens/pkg/policy"
	"github.com/newslens/newslens/pkg/retrieval"
	"github.com/newslens/newslens/pkg/store"
)

// version is stamped at build time via -ldflags.
var version = "dev"

const memorySweepInterval = time.Hour

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(lvl)); err == nil {
			slog.SetLogLoggerLevel(level)
		}
	}

	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	stats := cfg.Stats()
	slog.Info("Starting NewsLens",
		"version", version,
		"config_dir", *configDir,
		"primary_model", cfg.Models.Primary,
		"fallbacks", stats.Fallbacks,
		"experiments", stats.Experiments)

	// 2. Initialize metrics
	m, registry, err := metrics.Setup()
	if err != nil {
		slog.Error("Failed to initialize metrics", "error", err)
		os.Exit(1)
	}

	// 3. Build the model router from configured provider credentials
	var providers []llm.Provider
	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey != "" {
		p, perr := llm.NewOpenAIProvider(openAIKey)
		if perr != nil {
			slog.Error("Failed to initialize OpenAI provider", "error", perr)
			os.Exit(1)
		}
		providers = append(providers, p)
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		p, perr := llm.NewAnthropicProvider(key)
		if perr != nil {
			slog.Error("Failed to initialize Anthropic provider", "error", perr)
			os.Exit(1)
		}
		providers = append(providers, p)
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		p, perr := llm.NewGeminiProvider(key)
		if perr != nil {
			slog.Error("Failed to initialize Gemini provider", "error", perr)
			os.Exit(1)
		}
		providers = append(providers, p)
	}
	router := llm.NewRouter(providers,
		llm.WithMetrics(m),
		llm.WithMockMode(cfg.MockRouter))
	slog.Info("Model router initialized",
		"providers", len(providers), "mock_mode", cfg.MockRouter)

	// 4. Optional PostgreSQL store for experiment persistence
	var db *store.Client
	if os.Getenv("DB_HOST") != "" {
		dbConfig, derr := store.LoadConfigFromEnv()
		if derr != nil {
			slog.Error("Failed to load store config", "error", derr)
			os.Exit(1)
		}
		db, derr = store.NewClient(ctx, dbConfig)
		if derr != nil {
			slog.Error("Failed to connect to PostgreSQL", "error", derr)
			os.Exit(1)
		}
		defer func() {
			if cerr := db.Close(); cerr != nil {
				slog.Error("Error closing store", "error", cerr)
			}
		}()
		slog.Info("Connected to PostgreSQL store")
	}

	// 5. Long-term memory store. Real embeddings need an OpenAI key; the
	// hash embedder keeps recall working without one.
	var embedder memory.Embedder
	if openAIKey != "" && !cfg.MockRouter {
		embedder, err = memory.NewOpenAIEmbedder(openAIKey, cfg.Memory.EmbeddingModel)
		if err != nil {
			slog.Error("Failed to initialize embedder", "error", err)
			os.Exit(1)
		}
	} else {
		embedder = memory.NewHashEmbedder()
		slog.Info("Using hash embedder for long-term memory")
	}
	memStore, err := memory.NewStore(cfg.Memory.Path, embedder)
	if err != nil {
		slog.Error("Failed to open memory store", "path", cfg.Memory.Path, "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := memStore.Close(); cerr != nil {
			slog.Error("Error closing memory store", "error", cerr)
		}
	}()

	sweepCtx, sweepCancel := context.WithCancel(ctx)
	defer sweepCancel()
	go memStore.Run(sweepCtx, memorySweepInterval)

	// 6. Experiment registry: config first, then persisted definitions
	experiments := experiment.NewRouter()
	for _, e := range cfg.Experiments {
		if rerr := experiments.Register(e); rerr != nil {
			slog.Error("Failed to register configured experiment", "experiment", e.ID, "error", rerr)
			os.Exit(1)
		}
	}
	if db != nil {
		persisted, perr := db.LoadExperiments(ctx)
		if perr != nil {
			slog.Error("Failed to load persisted experiments", "error", perr)
			os.Exit(1)
		}
		for _, e := range persisted {
			if rerr := experiments.Register(e); rerr != nil {
				slog.Warn("Skipping invalid persisted experiment", "experiment", e.ID, "error", rerr)
			}
		}
		slog.Info("Persisted experiments loaded", "count", len(persisted))
	}

	// 7. Retrieval client, optionally behind a Redis read-through cache
	var retrievalClient retrieval.Client = retrieval.NewHTTPClient(cfg.Retrieval.BaseURL, 10*time.Second)
	if cfg.Retrieval.CacheURL != "" {
		opts, perr := redis.ParseURL(cfg.Retrieval.CacheURL)
		if perr != nil {
			slog.Error("Invalid retrieval cache URL", "error", perr)
			os.Exit(1)
		}
		retrievalClient = retrieval.NewCachedClient(retrievalClient, redis.NewClient(opts), cfg.Retrieval.CacheTTL)
		slog.Info("Retrieval cache enabled", "ttl", cfg.Retrieval.CacheTTL)
	}

	// 8. Policy and orchestrator
	domains := policy.NewDomainPolicy(cfg.Domains.Blacklist, cfg.Domains.Whitelist)
	orch := orchestrator.New(cfg, orchestrator.Deps{
		Router:      router,
		Retrieval:   retrievalClient,
		Experiments: experiments,
		Validator:   policy.NewValidator(domains),
		Sanitizer:   policy.NewSanitizer(domains),
		Memory:      memStore,
		Metrics:     m,
	}, version)
	if db != nil {
		orch.SetMetricStore(db)
	}

	// 9. HTTP server
	httpServer := api.NewServer(cfg, orch, experiments, version)
	httpServer.SetMetricsRegistry(registry)
	if db != nil {
		httpServer.SetStore(db)
	}

	httpPort := getEnv("HTTP_PORT", cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if serr := httpServer.Start(addr); serr != nil && serr != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", serr)
			errCh <- serr
		}
	}()

	slog.Info("NewsLens started successfully", "http_port", httpPort)

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful shutdown
	sweepCancel()

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
