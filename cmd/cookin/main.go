package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cookin/internal/calendar"
	"cookin/internal/config"
	"cookin/internal/conversation"
	"cookin/internal/database"
	"cookin/internal/inventory"
	"cookin/internal/llm"
	"cookin/internal/mealplan"
	"cookin/internal/messagelog"
	"cookin/internal/metrics"
	"cookin/internal/recipe"
	"cookin/internal/scheduler"
	"cookin/internal/telegram"
	"cookin/internal/user"
	"cookin/internal/web"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.NewFromEnv()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	metricsStore := metrics.NewStore(db)
	gateway, err := llm.NewGateway(ctx, cfg, func(usage llm.TokenUsage, latency time.Duration) {
		err := metricsStore.Record(context.Background(), metrics.ExecutionMetric{
			Caller:           "gateway",
			Model:            usage.Model,
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			LatencyMS:        latency.Milliseconds(),
		})
		if err != nil {
			logger.Warn("failed to record llm metric", "error", err)
		}
	})
	if err != nil {
		logger.Error("failed to initialize llm gateway", "error", err)
		os.Exit(1)
	}
	if closer, ok := gateway.(llm.Closer); ok {
		defer closer.Close()
	}

	users := user.NewRepository(db)
	webUsers := user.NewWebRepository(db)
	inv := inventory.NewRepository(db)
	plans := mealplan.NewRepository(db)
	recipes := recipe.NewRepository(db)
	messages := messagelog.NewRepository(db)
	clipper := recipe.NewClipper(recipes, gateway)

	handler := conversation.NewHandler(users, inv, plans, recipes, messages, clipper, gateway, logger)

	mux := http.NewServeMux()

	var sched *scheduler.Scheduler
	if cfg.TelegramBotToken != "" {
		bot, err := telegram.NewBot(cfg, handler, users, messages, metricsStore, logger)
		if err != nil {
			logger.Error("failed to initialize telegram bot", "error", err)
			os.Exit(1)
		}
		bot.RegisterHandlers(mux)

		sched = scheduler.New(users, inv, plans, handler, bot, logger)
		handler.OnOnboarded = func(ctx context.Context, u *user.User) {
			sched.ScheduleUser(u)
		}
		if err := sched.Boot(ctx); err != nil {
			logger.Error("failed to boot scheduler", "error", err)
			os.Exit(1)
		}
		sched.Start()
		defer sched.Stop()
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, running web-only")
	}

	cal := calendar.NewService(cfg, webUsers, logger)
	api := web.NewServer(handler, users, webUsers, plans, recipes, clipper, messages, cal, metricsStore, cfg, logger)
	if sched != nil {
		api.OnScheduleChanged = func(u *user.User) { sched.ScheduleUser(u) }
	}
	api.RegisterHandlers(mux)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited")
}
