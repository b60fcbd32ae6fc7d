package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/easeaico/adk-task-harness/internal/config"
	"github.com/easeaico/adk-task-harness/internal/harm"
	"github.com/easeaico/adk-task-harness/internal/inference"
	"github.com/easeaico/adk-task-harness/internal/llm"
	"github.com/easeaico/adk-task-harness/internal/logging"
	"github.com/easeaico/adk-task-harness/internal/memory"
	"github.com/easeaico/adk-task-harness/internal/orchestrator"
)

// app holds the components a command works with.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	screen   *harm.Screen
	store    memory.Store
	provider inference.Provider
	embedder memory.Embedder // nil for the classifier provider
}

// newApp builds the screen, store and provider described by cfg. Logs are
// written to logOut. Callers must Close the app.
func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, logOut)
	if err != nil {
		return nil, err
	}

	screen, err := newScreen(cfg.Harm, logger)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Memory, logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, screen: screen, store: store}

	switch cfg.Inference.Provider {
	case config.ProviderGemini:
		client, err := llm.NewClient(ctx, llm.Config{
			APIKey:            cfg.Inference.APIKey,
			Model:             cfg.Inference.Model,
			EmbeddingModel:    cfg.Inference.EmbeddingModel,
			SystemInstruction: cfg.Inference.SystemInstruction,
		})
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		a.provider = client
		a.embedder = client
	default:
		a.provider = inference.NewClassifierProvider(
			inference.WithClasses(cfg.Inference.Classes),
			inference.WithSeed(cfg.Inference.Seed),
		)
	}

	logger.Debug("harness initialized",
		"backend", cfg.Memory.Backend,
		"provider", cfg.Inference.Provider,
		"terms", screen.Lexicon().Len(),
	)
	return a, nil
}

// orchestrator returns an orchestrator over the app's components that
// applies policy.
func (a *app) orchestrator(policy orchestrator.Policy) *orchestrator.Orchestrator {
	opts := []orchestrator.Option{
		orchestrator.WithPolicy(policy),
		orchestrator.WithImportance(a.cfg.Orchestrator.Importance),
		orchestrator.WithTier(memory.Tier(a.cfg.Orchestrator.Tier)),
		orchestrator.WithKind(a.cfg.Orchestrator.Kind),
		orchestrator.WithLogger(a.logger),
		orchestrator.WithTracer(otel.Tracer("github.com/easeaico/adk-task-harness")),
	}
	if a.embedder != nil {
		opts = append(opts, orchestrator.WithEmbedder(a.embedder))
	}
	return orchestrator.New(a.screen, a.provider, a.store, opts...)
}

// Close releases the memory store.
func (a *app) Close() error {
	return a.store.Close()
}

// newScreen builds the harm screen. A lexicon file takes precedence over
// configured terms, which take precedence over the built-in lexicon.
func newScreen(cfg config.HarmConfig, logger *slog.Logger) (*harm.Screen, error) {
	lexicon := harm.DefaultLexicon()
	redaction := cfg.Redaction

	switch {
	case cfg.LexiconFile != "":
		l, fileRedaction, err := harm.LoadLexicon(cfg.LexiconFile)
		if err != nil {
			return nil, err
		}
		lexicon = l
		if fileRedaction != "" {
			redaction = fileRedaction
		}
	case len(cfg.Lexicon) > 0:
		l, err := harm.NewLexicon(cfg.Lexicon...)
		if err != nil {
			return nil, fmt.Errorf("invalid harm lexicon: %w", err)
		}
		lexicon = l
	}

	screen, err := harm.NewScreen(lexicon, harm.WithRedaction(redaction), harm.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create harm screen: %w", err)
	}
	return screen, nil
}

// openStore opens the configured memory backend with a fresh schema.
func openStore(ctx context.Context, cfg config.MemoryConfig, logger *slog.Logger) (memory.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		store, err := memory.NewSQLiteStore(ctx, cfg.DatabaseURL, memory.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		if err := store.InitSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize sqlite schema: %w", err)
		}
		return store, nil

	case config.BackendPostgres:
		store, err := memory.NewPostgresStore(ctx, cfg.DatabaseURL, memory.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := store.InitSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize postgres schema: %w", err)
		}
		return store, nil

	default:
		return memory.NewInMemoryStore(memory.WithLogger(logger)), nil
	}
}
