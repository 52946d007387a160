package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"vetchat/internal/backend"
	"vetchat/internal/config"
	"vetchat/internal/core"
	"vetchat/internal/db"
	httpserver "vetchat/internal/http"
	"vetchat/internal/llm"
	"vetchat/internal/lock"
	"vetchat/internal/metrics"
	"vetchat/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Fatal("failed to load config", zap.Error(err))
	}

	logger := logging.New(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting vetchat", zap.String("port", cfg.Port), zap.String("backend", cfg.BackendURL))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewChatMetrics(reg)

	be := backend.New(cfg.BackendURL, cfg.BackendTimeout)
	model := llm.NewOpenAIClient(llm.Config{
		APIKey:       cfg.OpenAIAPIKey,
		BaseURL:      cfg.OpenAIBaseURL,
		ChatModel:    cfg.OpenAIChatModel,
		SummaryModel: cfg.OpenAISummaryModel,
	})

	chat := core.NewChatService(model, be, logger, m)
	chat.RecentWindow = cfg.RecentWindow
	chat.Fetcher.PageSize = cfg.PageSize
	chat.Fetcher.MaxPages = cfg.MaxPages

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, summaries will run unlocked until it recovers", zap.Error(err))
		}
		cancel()
		chat.Summarizer.Locker = lock.NewRedisLocker(rdb, cfg.SummaryLockTTL)
	}

	srv := httpserver.NewServer(chat, logger, m)
	srv.AuthCookie = cfg.AuthCookie
	srv.MaxBodyBytes = cfg.MaxBodyBytes
	srv.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	if cfg.DatabaseURL != "" {
		conn, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to open database", zap.Error(err))
		}
		defer conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := conn.PingContext(ctx); err != nil {
			logger.Fatal("failed to ping database", zap.Error(err))
		}
		cancel()
		if err := db.Migrate(context.Background(), conn); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		repo := db.NewRepository(conn)
		chat.Summarizer.Journal = repo
		chat.Summarizer.Notifier = db.NewNotifier(conn, cfg.SummaryNotifyChannel)
		srv.Runs = repo
	}

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Let background summaries and message saves finish.
	chat.Runner.Wait()
	logger.Info("server stopped")
}
