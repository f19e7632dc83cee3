package app

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"blueprint/internal/blueprint/aggregate"
	"blueprint/internal/blueprint/bundle"
	"blueprint/internal/blueprint/export"
	"blueprint/internal/blueprint/generate"
	"blueprint/internal/blueprint/payload"
	"blueprint/internal/blueprint/pipeline"
	"blueprint/internal/blueprint/render"
	"blueprint/internal/blueprint/resolver"
	"blueprint/internal/gateway/config"
	"blueprint/internal/gateway/handler/rpc"
	"blueprint/internal/gateway/repository/topic"
	"blueprint/internal/gateway/server"
	"blueprint/internal/llm"
)

type App struct {
	server *server.Server
	broker *topic.Broker
	stores *pipelineStores
	llm    llm.LLMClient
	stops  []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(context.Background(), cfg)
}

func NewWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	// Dependencies
	stores, err := initStores(cfg)
	if err != nil {
		return nil, err
	}
	llmClient, err := newLLMClient(ctx, cfg.LLM)
	if err != nil {
		_ = stores.Close()
		return nil, err
	}
	broker := topic.NewBroker(topic.Config{
		MaxAttempts: cfg.Topic.MaxAttempts,
		BaseBackoff: cfg.Topic.BaseBackoff,
		Workers:     cfg.Topic.Workers,
	})
	a := &App{broker: broker, stores: stores, llm: llmClient}

	orch, err := pipeline.New(pipeline.Deps{
		Documents:  stores.documents,
		Objects:    stores.artifact,
		Aggregator: aggregate.New(stores.records, resolver.New(stores.records), nil),
		Generator:  generate.New(llmClient, nil),
		Bundler:    bundle.New(stores.artifact, payload.NewStore(stores.artifact), cfg.Pipeline.SignedURLTTL, nil),
		Exporter: export.New(stores.warehouse, export.Config{
			Enabled: cfg.Analytics.Enabled,
			Dataset: cfg.Analytics.Dataset,
			Table:   cfg.Analytics.Table,
		}, nil),
		Topics:   broker,
		Activity: stores.activity,
	}, pipeline.Config{
		IdempotencyWindow:   cfg.Pipeline.IdempotencyWindow,
		IdempotencyLookback: cfg.Pipeline.IdempotencyLookback,
		AcceptTimeout:       cfg.Pipeline.AcceptTimeout,
		BundleTimeout:       cfg.Pipeline.BundleTimeout,
		ExportTimeout:       cfg.Pipeline.ExportTimeout,
		SignedURLTTL:        cfg.Pipeline.SignedURLTTL,
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	stop, err := orch.Start(broker)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.stops = append(a.stops, stop)

	if renderer := newRenderer(cfg.Renderer); renderer != nil {
		worker := render.NewWorker(renderer, stores.artifact, broker, cfg.Pipeline.RenderTimeout)
		stop, err := worker.Start(broker)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.stops = append(a.stops, stop)
	}

	blueprintHandler := rpc.NewBlueprintHandler(orch)
	watchHandler := rpc.NewWatchHandler(orch, broker)

	// Routing & Server
	mux := server.NewMux(blueprintHandler, watchHandler, cfg.CORSOrigins)
	a.server = server.New(cfg.Port, mux)
	return a, nil
}

func newRenderer(cfg config.RendererConfig) render.Renderer {
	switch cfg.Kind {
	case "html":
		log.Printf("renderer: in-process html")
		return render.NewHTMLRenderer()
	case "pdf":
		log.Printf("renderer: in-process pdf chrome=%q", cfg.ChromePath)
		return render.NewPDFRenderer(cfg.ChromePath)
	default:
		log.Printf("renderer: external")
		return nil
	}
}

// Handler exposes the routed handler, mainly for in-process tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	a.close(ctx)
	return err
}

func (a *App) close(ctx context.Context) {
	for _, stop := range a.stops {
		stop()
	}
	a.broker.Close(ctx)
	if err := a.llm.Close(); err != nil {
		log.Printf("llm close failed: %v", err)
	}
	if err := a.stores.Close(); err != nil {
		log.Printf("store close failed: %v", err)
	}
}
