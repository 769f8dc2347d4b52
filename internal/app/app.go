// Package app wires the assistant and its collaborators from configuration.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bank-assistant/backend/internal/assistant"
	"github.com/bank-assistant/backend/internal/calc"
	"github.com/bank-assistant/backend/internal/embedding"
	"github.com/bank-assistant/backend/internal/ingestion"
	"github.com/bank-assistant/backend/internal/llm"
	"github.com/bank-assistant/backend/internal/personal"
	"github.com/bank-assistant/backend/internal/retrieval"
	"github.com/bank-assistant/backend/internal/router"
	"github.com/bank-assistant/backend/internal/session"
	"github.com/bank-assistant/backend/internal/storage/sqlite"
	"github.com/bank-assistant/backend/internal/vector"
	"github.com/bank-assistant/backend/internal/vector/memory"
	"github.com/bank-assistant/backend/internal/vector/zilliz"
	"github.com/bank-assistant/backend/pkg/config"
	"github.com/bank-assistant/backend/pkg/logger"
	"github.com/bank-assistant/backend/pkg/retry"
)

type App struct {
	Config    *config.Config
	DB        *sqlite.Client
	Index     vector.Store
	Embedder  embedding.Embedder
	Assistant *assistant.Assistant
	// Sessions is nil when redis is disabled.
	Sessions *session.Store

	closers []func() error
}

// OpenStore opens the sqlite database and makes sure the schema exists.
func OpenStore(cfg *config.Config) (*sqlite.Client, error) {
	if !strings.Contains(cfg.SQLite.Path, ":memory:") {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite client: %w", err)
	}
	if err := db.InitSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// LoadTables replaces the store contents with the configured CSV files.
// It is a no-op when no customer file is configured.
func LoadTables(ctx context.Context, db *sqlite.Client, data config.DataConfig) (ingestion.LoadReport, error) {
	if data.CustomersCSV == "" {
		return ingestion.LoadReport{}, nil
	}
	tables, report, err := ingestion.LoadTables(ingestion.TablePaths{
		Customers:      data.CustomersCSV,
		Products:       data.ProductsCSV,
		ClosedProducts: data.ClosedProductsCSV,
		Transactions:   data.TransactionsCSV,
	})
	if err != nil {
		return report, err
	}
	if err := db.Load(ctx, tables); err != nil {
		return report, fmt.Errorf("failed to load tables: %w", err)
	}
	return report, nil
}

// NewEmbedder builds the configured provider. Documents and queries use
// different task types on the Gemini side.
func NewEmbedder(ctx context.Context, cfg *config.Config, forDocuments bool) (embedding.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "gemini":
		e, err := embedding.NewGenAIEmbedder(ctx, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.TaskType, cfg.Zilliz.VectorDim)
		if err != nil {
			return nil, err
		}
		if forDocuments {
			return e.ForDocuments(), nil
		}
		return e, nil
	default:
		return embedding.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Embedding.Model, retry.DefaultConfig()), nil
	}
}

// NewVectorStore returns the configured index and a function releasing it.
func NewVectorStore(ctx context.Context, cfg *config.Config) (vector.Store, func() error, error) {
	if cfg.Retrieval.Backend == "memory" {
		return memory.New(), func() error { return nil }, nil
	}
	z, err := zilliz.Open(ctx, cfg.Zilliz.Endpoint, cfg.Zilliz.APIKey, cfg.Zilliz.CollectionName, cfg.Zilliz.VectorDim)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open Zilliz collection: %w", err)
	}
	return z, z.Close, nil
}

// NewCompleter builds the resilient completion client over the configured
// provider.
func NewCompleter(cfg *config.Config) (*llm.Client, func()) {
	timeout := time.Duration(cfg.LLM.TimeoutSec) * time.Second

	retryCfg := llm.DefaultRetryConfig()
	retryCfg.MaxAttempts = cfg.LLM.MaxAttempts
	if cfg.LLM.InitialDelayMS > 0 {
		retryCfg.InitialDelay = time.Duration(cfg.LLM.InitialDelayMS) * time.Millisecond
	}

	if cfg.LLM.Provider == "openai" {
		t := llm.NewOpenAITransport(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.Temperature, cfg.LLM.MaxTokens, timeout)
		return llm.NewClient(t, retryCfg), t.Close
	}
	t := llm.NewGeminiTransport(cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.APIKey, timeout)
	return llm.NewClient(t, retryCfg), t.Close
}

// NewCalculator applies the calc section. An empty reference date follows
// the wall clock.
func NewCalculator(cfg config.CalcConfig, db *sqlite.Client) (*calc.Engine, error) {
	opts := []calc.Option{
		calc.WithWeekStart(calc.ParseWeekStart(cfg.WeekStart)),
		calc.WithCurrencySymbol(cfg.CurrencySymbol),
	}
	if cfg.ReferenceDate != "" {
		day, err := time.Parse("2006-01-02", cfg.ReferenceDate)
		if err != nil {
			return nil, fmt.Errorf("invalid calc.referenceDate: %w", err)
		}
		opts = append(opts, calc.WithReferenceDate(day))
	}
	return calc.NewEngine(db, opts...), nil
}

// Bootstrap builds everything the server and the question commands need.
func Bootstrap(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	db, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	if _, err := LoadTables(ctx, db, cfg.Data); err != nil {
		a.Close()
		return nil, err
	}

	index, closeIndex, err := NewVectorStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Index = index
	a.closers = append(a.closers, closeIndex)

	a.Embedder, err = NewEmbedder(ctx, cfg, false)
	if err != nil {
		a.Close()
		return nil, err
	}

	// The in-process index starts empty every run.
	if cfg.Retrieval.Backend == "memory" && len(cfg.Index.Manifests) > 0 {
		if _, err := a.BuildIndex(ctx, false); err != nil {
			a.Close()
			return nil, err
		}
	}

	calculator, err := NewCalculator(cfg.Calc, db)
	if err != nil {
		a.Close()
		return nil, err
	}

	completer, closeCompleter := NewCompleter(cfg)
	a.closers = append(a.closers, func() error { closeCompleter(); return nil })

	a.Assistant, err = assistant.New(assistant.Deps{
		Router:    router.New(calculator, router.DefaultLexicon()),
		Public:    retrieval.New(a.Embedder, index, cfg.Retrieval.TopN),
		Personal:  personal.NewAssembler(db),
		Completer: completer,
		TopN:      cfg.Retrieval.TopN,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Redis.Enabled {
		client, err := session.Connect(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		a.Sessions = session.NewStore(client, time.Duration(cfg.Session.TTLMinutes)*time.Minute)
	}

	logger.Info("Assistant ready",
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.String("retrieval_backend", cfg.Retrieval.Backend),
		zap.Bool("sessions", a.Sessions != nil),
	)
	return a, nil
}

// BuildIndex reads every configured manifest into the app's index.
func (a *App) BuildIndex(ctx context.Context, rebuild bool) (ingestion.BuildReport, error) {
	chunks, err := ingestion.LoadManifests(a.Config.Index.Manifests)
	if err != nil {
		return ingestion.BuildReport{}, err
	}

	docEmbedder, err := NewEmbedder(ctx, a.Config, true)
	if err != nil {
		return ingestion.BuildReport{}, err
	}

	builder := ingestion.NewIndexBuilder(docEmbedder, a.Index, a.Config.Index.BatchSize)
	return builder.Build(ctx, chunks, ingestion.BuildOptions{Rebuild: rebuild})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Failed to release resource", zap.Error(err))
		}
	}
	a.closers = nil
}
