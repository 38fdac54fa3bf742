// Command manyfold is a CLI front end for the Manyfold request façade: it
// wires the configured providers, cache store, and orchestrator together and
// exposes the façade's operations as verbs.
//
// Usage:
//
//	manyfold -config config.yaml -provider local models
//	manyfold -config config.yaml -provider claude chat "Explain quines."
//	manyfold -config config.yaml -provider local embed "some text"
//	manyfold -config config.yaml -provider local retrieve "search query" notes/*.md
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/manyfold-ai/manyfold/internal/cachestore"
	pgcache "github.com/manyfold-ai/manyfold/internal/cachestore/postgres"
	rediscache "github.com/manyfold-ai/manyfold/internal/cachestore/redis"
	"github.com/manyfold-ai/manyfold/internal/config"
	"github.com/manyfold-ai/manyfold/internal/embed"
	"github.com/manyfold-ai/manyfold/internal/health"
	"github.com/manyfold-ai/manyfold/internal/observe"
	"github.com/manyfold-ai/manyfold/internal/orchestrator"
	"github.com/manyfold-ai/manyfold/internal/resilience"
	"github.com/manyfold-ai/manyfold/pkg/backend"
	"github.com/manyfold-ai/manyfold/pkg/backend/anyllm"
	"github.com/manyfold-ai/manyfold/pkg/backend/ollama"
	"github.com/manyfold-ai/manyfold/pkg/backend/openai"
	"github.com/manyfold-ai/manyfold/pkg/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	providerID := flag.String("provider", "", "id of the configured provider to use")
	topK := flag.Int("top", 10, "number of retrieval results to print")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "manyfold: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "manyfold: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdown, err := observe.Init("manyfold")
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	// ── Cache store ───────────────────────────────────────────────────────────
	store, err := buildStore(ctx, cfg.Cache)
	if err != nil {
		slog.Error("failed to open cache store", "backend", cfg.Cache.Backend, "err", err)
		return 1
	}
	defer store.Close()

	// ── Operational endpoint ──────────────────────────────────────────────────
	if cfg.Server.HealthAddr != "" {
		go serveOps(cfg.Server.HealthAddr, store)
	}

	// ── Registry and orchestrator ─────────────────────────────────────────────
	orch, err := buildOrchestrator(store, cfg)
	if err != nil {
		slog.Error("failed to assemble orchestrator", "err", err)
		return 1
	}

	provider, err := cfg.FindProvider(*providerID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "manyfold: %v\n", err)
		return 1
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "manyfold: expected a verb: models | chat | embed | retrieve")
		return 2
	}

	if err := dispatch(ctx, orch, provider, args, *topK); err != nil {
		fmt.Fprintf(os.Stderr, "manyfold: %v\n", err)
		return 1
	}
	return 0
}

// dispatch runs one CLI verb against the orchestrator.
func dispatch(ctx context.Context, orch *orchestrator.Orchestrator, provider types.Provider, args []string, topK int) error {
	verb, rest := args[0], args[1:]
	switch verb {
	case "models":
		models, err := orch.ListModels(ctx, provider)
		if err != nil {
			return err
		}
		for _, m := range models {
			fmt.Println(m)
		}
		return nil

	case "chat":
		if len(rest) < 1 {
			return errors.New("chat: expected a prompt argument")
		}
		return chat(ctx, orch, provider, rest[0])

	case "embed":
		if len(rest) < 1 {
			return errors.New("embed: expected at least one text argument")
		}
		vectors, err := orch.Embed(ctx, provider, rest, nil)
		if err != nil {
			return err
		}
		for i, v := range vectors {
			fmt.Printf("%d: %d dimensions\n", i, len(v))
		}
		return nil

	case "retrieve":
		if len(rest) < 2 {
			return errors.New("retrieve: expected a query and at least one file")
		}
		return retrieve(ctx, orch, provider, rest[0], rest[1:], topK)

	default:
		return fmt.Errorf("unknown verb %q; expected models | chat | embed | retrieve", verb)
	}
}

// chat streams a single-turn completion to stdout.
func chat(ctx context.Context, orch *orchestrator.Orchestrator, provider types.Provider, prompt string) error {
	_, _, err := orch.Execute(orchestrator.StreamRequest{
		Provider:     provider,
		Conversation: types.Conversation{Prompt: prompt},
		Context:      ctx,
		OnProgress: func(delta, _ string) {
			fmt.Print(delta)
		},
	})
	if err == nil {
		fmt.Println()
	}
	return err
}

// retrieve ranks file contents against the query and prints the top results.
func retrieve(ctx context.Context, orch *orchestrator.Orchestrator, provider types.Provider, query string, paths []string, topK int) error {
	docs := make([]*types.Document, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("retrieve: %w", err)
		}
		docs = append(docs, &types.Document{
			Content: string(content),
			Meta:    map[string]string{"path": path},
		})
	}

	results, err := orch.Retrieve(ctx, query, docs, provider, func(p orchestrator.RetrievalProgress) {
		slog.Debug("retrieval progress",
			"docs", fmt.Sprintf("%d/%d", p.ProcessedDocuments, p.TotalDocuments),
			"chunks", fmt.Sprintf("%d/%d", p.ProcessedChunks, p.TotalChunks),
		)
	})
	if err != nil {
		return err
	}

	for i, r := range results {
		if i >= topK {
			break
		}
		fmt.Printf("%.4f  %s\n    %s\n", r.Score, r.Document.Meta["path"], firstLine(r.Content))
	}
	return nil
}

// buildStore opens the configured embedding cache store.
func buildStore(ctx context.Context, cfg config.CacheConfig) (cachestore.Store, error) {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "manyfold"
	}
	switch cfg.Backend {
	case config.CachePostgres:
		return pgcache.Open(ctx, cfg.DSN, namespace)
	case config.CacheRedis:
		return rediscache.Open(rediscache.Config{
			Addrs:     cfg.Addrs,
			Username:  cfg.Username,
			Password:  cfg.Password,
			Namespace: namespace,
			TTL:       cfg.TTLDuration(),
		})
	default:
		return cachestore.NewMemory(), nil
	}
}

// serveOps serves the health probes and the Prometheus scrape endpoint.
func serveOps(addr string, store cachestore.Store) {
	mux := http.NewServeMux()
	health.New(health.StoreChecker(store)).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	slog.Info("serving health and metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Warn("health endpoint stopped", "err", err)
	}
}

// buildOrchestrator registers the built-in adapters, each guarded by a
// per-provider circuit breaker, and assembles the façade.
func buildOrchestrator(store cachestore.Store, cfg *config.Config) (*orchestrator.Orchestrator, error) {
	guard := func(name string, a backend.Adapter) backend.Adapter {
		return resilience.NewAdapter(a, resilience.Config{Name: name})
	}

	reg := orchestrator.NewRegistry()
	oa := guard("openai", openai.New())
	if err := reg.Register(types.KindOpenAI, oa); err != nil {
		return nil, err
	}
	if err := reg.Register(types.KindOpenAICompatible, oa); err != nil {
		return nil, err
	}
	if err := reg.Register(types.KindOllama, guard("ollama", ollama.New())); err != nil {
		return nil, err
	}
	if err := reg.Register(types.KindAnyLLM, guard("anyllm", anyllm.New())); err != nil {
		return nil, err
	}

	service := embed.New(store)
	var opts []orchestrator.Option
	if cfg.Retrieval.MaxChunkLen > 0 {
		opts = append(opts, orchestrator.WithMaxChunkLen(cfg.Retrieval.MaxChunkLen))
	}
	return orchestrator.New(reg, service, opts...), nil
}

// firstLine truncates a chunk to its first line for display.
func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	if len(s) > 120 {
		return s[:120] + "…"
	}
	return s
}

// newLogger builds the process logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
