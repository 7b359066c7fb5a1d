// Command shadow-server is the process entrypoint: it wires the Persistence
// Adapter, provider clients, Tool Registry factory, Background Service
// Manager, realtime hub, and webhook handler into one HTTP server, following
// oasis/cmd/sandbox/main.go's shape (env-driven config, stdlib ServeMux,
// signal.NotifyContext, graceful http.Server.Shutdown).
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	shadow "github.com/shadowhq/shadow"
	"github.com/shadowhq/shadow/index"
	"github.com/shadowhq/shadow/observer"
	"github.com/shadowhq/shadow/provider/anthropic"
	"github.com/shadowhq/shadow/provider/openaicompat"
	"github.com/shadowhq/shadow/realtime"
	"github.com/shadowhq/shadow/store/postgres"
	"github.com/shadowhq/shadow/tools/workspace"
	"github.com/shadowhq/shadow/webhook"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, shutdown, err := buildApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("build app: %v", err)
	}
	defer shutdown(context.Background())

	srv := &http.Server{
		Addr:         cfg.addr,
		Handler:      app.mux,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// app holds the wired server surface: the HTTP mux plus the pieces route
// handlers need directly (store, router, background services).
type app struct {
	mux *http.ServeMux

	store   shadow.Store
	router  *shadow.OrchestratorRouter
	hub     *shadow.SessionHub
	bg      *shadow.BackgroundServiceManager
	lock    shadow.RepositoryLock
	indexer *index.Indexer
	vstore  *index.Store
	searchr *index.Searcher
}

// toolsRegistry is the live-Tools tracker the TodoSource adapter reads from;
// OrchestratorRouter's ToolsFactory populates it on every SendMessage, since
// a fresh workspace.Tools is built per call and join-task needs the latest
// one for todo-update.
type toolsRegistry struct {
	mu sync.Mutex
	m  map[string]*workspace.Tools
}

func newToolsRegistry() *toolsRegistry { return &toolsRegistry{m: make(map[string]*workspace.Tools)} }

func (r *toolsRegistry) put(variantID string, t *workspace.Tools) {
	r.mu.Lock()
	r.m[variantID] = t
	r.mu.Unlock()
}

func (r *toolsRegistry) Todos(variantID string) []workspace.Todo {
	r.mu.Lock()
	t := r.m[variantID]
	r.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.Todos()
}

var _ realtime.TodoSource = (*toolsRegistry)(nil)

func buildApp(ctx context.Context, cfg config, logger *slog.Logger) (*app, func(context.Context), error) {
	var closers []func(context.Context)
	shutdown := func(ctx context.Context) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i](ctx)
		}
	}

	pool, err := pgxpool.New(ctx, cfg.postgresDSN)
	if err != nil {
		return nil, shutdown, err
	}
	closers = append(closers, func(context.Context) { pool.Close() })

	store := postgres.New(pool, postgres.WithLogger(logger))
	if err := store.Init(ctx); err != nil {
		return nil, shutdown, err
	}
	closers = append(closers, func(context.Context) { _ = store.Close() })

	var inst *observer.Instruments
	if cfg.otelEnabled {
		var shutdownOTEL func(context.Context) error
		inst, shutdownOTEL, err = observer.Init(ctx, nil)
		if err != nil {
			return nil, shutdown, err
		}
		closers = append(closers, func(ctx context.Context) { _ = shutdownOTEL(ctx) })
	}

	tracer := observer.NewTracer()

	anthropicClient := shadow.ProviderClient(anthropic.NewProvider(
		cfg.anthropicAPIKey, cfg.anthropicModel, cfg.anthropicBaseURL,
		anthropic.WithLogger(logger),
	))
	openaiClient := shadow.ProviderClient(openaicompat.NewProvider(
		cfg.openaiAPIKey, cfg.openaiModel, cfg.openaiBaseURL,
		openaicompat.WithLogger(logger),
	))
	if inst != nil {
		anthropicClient = observer.WrapProvider(anthropicClient, cfg.anthropicModel, inst)
		openaiClient = observer.WrapProvider(openaiClient, cfg.openaiModel, inst)
	}
	anthropicClient = shadow.WithRetry(shadow.WithRateLimit(anthropicClient,
		shadow.RPM(cfg.rpmLimit), shadow.TPM(cfg.tpmLimit)), shadow.RetryLogger(logger))
	openaiClient = shadow.WithRetry(shadow.WithRateLimit(openaiClient,
		shadow.RPM(cfg.rpmLimit), shadow.TPM(cfg.tpmLimit)), shadow.RetryLogger(logger))

	summarizer := openaicompat.NewProvider(cfg.openaiAPIKey, cfg.summarizerModel, cfg.openaiBaseURL)

	embedder := openaicompat.NewEmbedding(cfg.embeddingAPIKey, cfg.embeddingModel, cfg.embeddingDims)

	var searcher *index.Searcher
	var indexer *index.Indexer
	var vstore *index.Store
	var wikiGen *index.WikiGenerator
	if cfg.qdrantDSN != "" {
		vstore, err = index.NewStore(cfg.qdrantDSN, "cosine")
		if err != nil {
			return nil, shutdown, err
		}
		closers = append(closers, func(context.Context) { _ = vstore.Close() })
		indexer = index.NewIndexer(vstore, embedder, index.WithIndexerLogger(logger))
		searcher = index.NewSearcher(vstore, embedder)
		wikiGen = index.NewWikiGenerator(summarizer, cfg.wikiModel)
	}

	lock := shadow.NewInProcessRepositoryLock()

	var bg *shadow.BackgroundServiceManager
	if indexer != nil && wikiGen != nil {
		bg = shadow.NewBackgroundServiceManager(store, lock, indexer, wikiGen, logger)
	}

	sessionHub := shadow.NewSessionHub(logger)
	compressor := shadow.NewMessageCompressor(store, logger)
	contextMgr := shadow.NewContextManager(store, compressor, logger)
	guard := shadow.NewInjectionGuard(shadow.InjectionLogger(logger))
	prGen := shadow.NewPRMetadataGenerator(summarizer)

	var confirmer shadow.ToolConfirmer
	if cfg.confirmToolCalls {
		confirmer = shadow.NewSuspendManager(cfg.suspendTTL)
	}

	liveTools := newToolsRegistry()
	toolsFactory := func(v shadow.Variant, repoFullName string) *shadow.ToolRegistry {
		var opts []workspace.Option
		if searcher != nil {
			opts = append(opts, workspace.WithSearcher(searcher))
		}
		t := workspace.New(v.WorkspacePath, repoFullName, opts...)
		liveTools.put(v.ID, t)

		reg := shadow.NewToolRegistry()
		if inst != nil {
			reg.Add(observer.WrapTool(t, inst))
		} else {
			reg.Add(t)
		}
		return reg
	}

	router := shadow.NewOrchestratorRouter(shadow.RouterConfig{
		Store:      store,
		Hub:        sessionHub,
		Context:    contextMgr,
		Summarizer: summarizer,
		Confirmer:  confirmer,
		PRGen:      prGen,
		Guard:      guard,
		Logger:     logger,
		Tracer:     tracer,
		Clients: map[string]shadow.ProviderClient{
			"anthropic": anthropicClient,
			"openai":    openaiClient,
		},
		Tools: toolsFactory,
	})

	hubOpts := []realtime.Option{realtime.WithLogger(logger), realtime.WithTodoSource(liveTools)}
	if bg != nil {
		hubOpts = append(hubOpts, realtime.WithIndexingStatus(bg))
	}
	rtHub := realtime.NewHub(router, sessionHub, store, hubOpts...)

	webhookHandler := webhook.NewHandler(cfg.webhookSecret, store, logger)

	a := &app{
		store:   store,
		router:  router,
		hub:     sessionHub,
		bg:      bg,
		lock:    lock,
		indexer: indexer,
		vstore:  vstore,
		searchr: searcher,
	}

	mux := http.NewServeMux()
	registerRoutes(mux, a)
	mux.Handle("/ws", rtHub)
	mux.Handle("/webhook/github", webhookHandler)
	a.mux = mux

	return a, shutdown, nil
}
