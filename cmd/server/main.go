package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/eduquiz/quizforge/internal/ai"
	"github.com/eduquiz/quizforge/internal/auth"
	"github.com/eduquiz/quizforge/internal/platform/cache"
	"github.com/eduquiz/quizforge/internal/platform/config"
	"github.com/eduquiz/quizforge/internal/platform/database"
	"github.com/eduquiz/quizforge/internal/quiz"
	"github.com/eduquiz/quizforge/internal/refsource"
	"github.com/eduquiz/quizforge/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := quiz.EnsureSchema(ctx, db.Pool); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	store, err := quiz.NewPostgresStore(db.Pool)
	if err != nil {
		slog.Error("failed to create store", "error", err)
		os.Exit(1)
	}

	readiness := []server.ReadinessCheck{
		{Name: "database", Check: db.HealthCheck},
	}

	var questions quiz.QuestionSource = store
	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			slog.Error("failed to connect to cache", "error", err)
			os.Exit(1)
		}
		defer c.Close()
		questions = quiz.NewQuestionCache(c.Client, store)
		readiness = append(readiness, server.ReadinessCheck{Name: "cache", Check: c.HealthCheck})
		slog.Info("question cache enabled")
	}

	router := newAIRouter(cfg.AI)
	readiness = append(readiness, server.ReadinessCheck{Name: "ai", Check: router.HealthCheck})

	catalog, err := refsource.NewCatalog(cfg.ExamsPath)
	if err != nil {
		slog.Warn("failed to load exam catalog, reference lookups disabled", "error", err, "path", cfg.ExamsPath)
		catalog = nil
	}

	genCfg := quiz.GeneratorConfig{
		AI:        router,
		Model:     cfg.AI.Model,
		MaxTokens: cfg.AI.MaxTokens,
	}
	if catalog != nil {
		genCfg.ReferenceInfo = catalog.Describe
	}

	var budget ai.BudgetChecker
	if cfg.AI.UserTokenBudget > 0 {
		budget = ai.NewInMemoryBudget(cfg.AI.UserTokenBudget)
	}

	hub := server.NewRankingHub()

	service := quiz.NewService(quiz.ServiceConfig{
		Store:     store,
		Generator: quiz.NewGenerator(genCfg),
		Questions: questions,
		Events:    quiz.NewPostgresEventLogger(db.Pool),
		Notifier:  hub,
		Budget:    budget,
	})

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTL)*time.Minute)

	srv := server.New(server.Config{
		Service:   service,
		Users:     store,
		Tokens:    tokens,
		Hub:       hub,
		Readiness: readiness,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// setupLogger configures the default slog logger from config.
func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// newAIRouter registers the configured providers in fallback order:
// OpenAI first, then DeepSeek, then Ollama.
func newAIRouter(cfg config.AIConfig) *ai.Router {
	router := ai.NewRouter()

	if cfg.OpenAI.APIKey != "" {
		router.Register("openai", ai.NewOpenAIProvider(cfg.OpenAI.APIKey))
	}
	if cfg.DeepSeek.APIKey != "" {
		router.Register("deepseek", ai.NewDeepSeekProvider(cfg.DeepSeek.APIKey))
	}
	if cfg.Ollama.Enabled {
		router.Register("ollama", ai.NewOllamaProvider(cfg.Ollama.URL))
	}

	return router
}
