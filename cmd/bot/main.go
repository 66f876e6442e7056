package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/xaenox/realty-bot/internal/bot"
	"github.com/xaenox/realty-bot/internal/conversation"
	"github.com/xaenox/realty-bot/internal/llm"
	"github.com/xaenox/realty-bot/internal/metrics"
	"github.com/xaenox/realty-bot/internal/paginator"
	"github.com/xaenox/realty-bot/internal/renderer"
	"github.com/xaenox/realty-bot/internal/schema"
	"github.com/xaenox/realty-bot/internal/search"
	"github.com/xaenox/realty-bot/internal/sqlgen"
	"github.com/xaenox/realty-bot/internal/storage"
	"github.com/xaenox/realty-bot/pkg/config"
)

func main() {
	configPath := "config.yaml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		configPath = p
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("Failed to load config", zap.Error(err), zap.String("path", configPath))
	}

	// Initialize logger
	logger := newLogger(cfg.Log.Level)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Listings store
	executor, err := storage.NewPostgresStorage(storage.DatabaseConfig{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		DBName:       cfg.Database.DBName,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		QueryTimeout: cfg.Database.QueryTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer executor.Close()

	// Per-chat state
	store := storage.NewMemoryStorage(cfg.Cache.Capacity, cfg.Cache.TTL)
	defer store.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	completer := llm.NewOpenAICompleter(llm.OpenAIConfig{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
		Timeout: cfg.OpenAI.Timeout,
	}, logger)

	listings := schema.Listings()
	shape := sqlgen.NewShape(listings, cfg.SQL.RowLimit)
	builder := sqlgen.NewBuilder(
		sqlgen.NewGenerator(completer, listings, shape, sqlgen.GeneratorConfig{
			MaxTokens:   cfg.SQL.MaxTokens,
			Temperature: cfg.SQL.Temperature,
		}),
		sqlgen.NewValidator(listings, shape),
		shape,
		logger,
	)

	searchService := search.NewService(builder, executor, paginator.New(store, cfg.Search.PageSize), m, logger)

	machine := conversation.NewMachine(store, conversation.Options{
		Cities:        cfg.Search.Cities,
		PropertyTypes: cfg.Search.PropertyTypes,
		RoomOptions:   cfg.Search.RoomOptions,
	}, logger)

	rend := renderer.New(completer, renderer.Config{
		MaxTokens:   cfg.Renderer.MaxTokens,
		Temperature: cfg.Renderer.Temperature,
		Candidates:  cfg.Renderer.Candidates,
	}, m, logger)

	// Initialize bot
	b, err := bot.New(cfg.Telegram.Token, machine, searchService, rend, bot.Config{
		Workers:     cfg.Telegram.Workers,
		MaxErrorLen: cfg.Telegram.MaxErrorLen,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := b.Start(gctx)
		stop()
		return err
	})
	if cfg.Metrics.Address != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("Serving metrics", zap.String("address", cfg.Metrics.Address))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}
	logger.Info("Bot stopped")
}

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zcfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
