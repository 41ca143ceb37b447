package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aiclone/config"
	"aiclone/routes"
	"aiclone/services"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	gin.SetMode(cfg.GinMode)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	store, err := newRecordStore(ctx, cfg, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("init record store: %w", err)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Error("failed to close record store", "error", err)
		}
	}()

	provider, err := newChatProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("init chat provider: %w", err)
	}

	orchestrator := services.NewOrchestrator(provider, logger, services.WithMaxRetries(cfg.LLMMaxRetries))

	router := routes.SetupRouter(routes.Dependencies{
		Users:         services.NewUserService(store, logger),
		Conversations: services.NewConversationService(store, orchestrator, logger),
		Logger:        logger,
	})

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// 会話生成はモデル呼び出しを8回順番に行う
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"port", cfg.Port,
			"store", cfg.StoreBackend,
			"provider", cfg.LLMProvider,
			"model", provider.Model(),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down server...")
	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func newRecordStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (services.RecordStore, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		logger.Warn("using in-memory record store; data is lost on restart")
		return services.NewMemoryStore(), nil

	case config.StorePostgres:
		store, err := services.NewPostgresStore(ctx, cfg.StoreURL, cfg.DBName, logger)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close(ctx)
			return nil, err
		}
		return store, nil

	case config.StoreDynamoDB:
		client, err := services.NewDynamoDBClient(ctx, services.DynamoDBConfig{
			Endpoint:        cfg.StoreURL,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		store := services.NewDynamoDBStore(client, cfg.DBName, logger)
		if err := store.EnsureTables(ctx); err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.StoreBackend)
	}
}

func newChatProvider(cfg config.Config, logger *slog.Logger) (services.ChatProvider, error) {
	switch cfg.LLMProvider {
	case config.ProviderGateway:
		return services.NewGatewayProvider(services.GatewayConfig{
			BaseURL: cfg.LLMBaseURL,
			APIKey:  cfg.LLMAPIKey,
			Timeout: cfg.LLMTimeout,
		}, logger)
	case config.ProviderOpenAI:
		return services.NewOpenAIProvider(services.OpenAIConfig{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Timeout: cfg.LLMTimeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
}
