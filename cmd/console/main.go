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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"chat-console/internal/adapters/backend"
	"chat-console/internal/adapters/clipboard"
	"chat-console/internal/cache"
	"chat-console/internal/console"
	"chat-console/internal/controller"
	"chat-console/internal/domain"
	applog "chat-console/internal/log"
	"chat-console/internal/metrics"
	"chat-console/internal/pkg/config"
	"chat-console/internal/pkg/term"
	"chat-console/internal/ports"
	"chat-console/internal/rooms"
	"chat-console/internal/server"
	"chat-console/internal/session"
	"chat-console/internal/transport"
)

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "chat-console",
		Short:         "Operator console for livestream room chats",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yml (default ./"+config.DefaultFile+" if present)")
	return cmd
}

// run инкапсулирует всю логику инициализации и запуска приложения.
func run(parent context.Context, configPath string) error {
	// 1. Загрузка конфигурации
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Инициализация логгера
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	// 3. Валидация конфигурации (после инициализации логгера)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if parent == nil {
		parent = context.Background()
	}
	appCtx, appCancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer appCancel()

	tm := term.NewTerminal()
	apiToken := cfg.Backend.APIToken
	if apiToken == "" && tm.Interactive() {
		if apiToken, err = tm.ReadSecret("Backend API token: "); err != nil {
			return fmt.Errorf("failed to read api token: %w", err)
		}
	}

	// 4. Инициализация зависимостей
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mt := metrics.New(reg)

	operator := domain.Operator{OrganizationID: cfg.Operator.OrganizationID, VenueID: cfg.Operator.VenueID}
	backendClient := backend.NewClient(cfg.Backend.URL, apiToken,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithLogger(logger),
	)

	var translator ports.Translator = backendClient
	if cfg.Translation.CacheFlag {
		store := cache.NewCacheStore()
		store.StartCleanupTicker(appCtx, cfg.Translation.CleanupInterval)
		translator = cache.NewTranslator(backendClient, store, cfg.Translation.CacheTTL, logger)
	}

	newTransport := func(room domain.Room) ports.ChatTransport {
		return transport.New(
			transport.WithLogger(logger.With("room_id", room.ID)),
			transport.WithMetrics(mt),
			transport.WithWriteTimeout(cfg.Gateway.WriteTimeout),
		)
	}
	manager := session.NewManager(backendClient, newTransport, operator, session.Config{
		GatewayURL:       cfg.Gateway.URL,
		RoomType:         cfg.Gateway.RoomType,
		HistoryPageSize:  cfg.Gateway.HistoryPageSize,
		TokenTimeout:     cfg.Gateway.TokenTimeout,
		HandshakeTimeout: cfg.Gateway.HandshakeTimeout,
		ImageBaseURL:     cfg.Images.BaseURL,
		Reconnect: session.ReconnectPolicy{
			MaxAttempts:     cfg.Gateway.Reconnect.MaxAttempts,
			InitialInterval: cfg.Gateway.Reconnect.InitialInterval,
			MaxInterval:     cfg.Gateway.Reconnect.MaxInterval,
		},
	}, session.WithLogger(logger), session.WithMetrics(mt))

	ctrl := controller.New(manager, translator, clipboard.NewSystem(), controller.Config{
		TargetLanguage: cfg.Translation.TargetLanguage,
		CacheFlag:      cfg.Translation.CacheFlag,
		SendRate:       cfg.Send.Rate,
		SendBurst:      cfg.Send.Burst,
	}, controller.WithLogger(logger))

	roomSvc := rooms.NewService(backendClient, manager, operator, logger)
	con := console.New(ctrl, roomSvc, manager, tm, tm.Out(), logger)
	manager.Subscribe(con.OnEvent)

	// 5. HTTP-сервер состояния
	var statusSrv *server.Server
	serverDone := make(chan struct{})
	if cfg.Status.Enabled {
		statusSrv = server.New(cfg.Status, manager, roomSvc, reg, logger)
		go func() {
			defer close(serverDone)
			logger.Info("Starting status server", "addr", cfg.StatusAddress())
			if err := statusSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Status server error", "error", err)
			}
		}()
	} else {
		close(serverDone)
	}

	// 6. Загрузка комнат; первая выбирается автоматически
	if _, err := roomSvc.Load(appCtx); err != nil {
		logger.Error("Initial room load failed", "error", err)
	}

	consoleDone := make(chan error, 1)
	go func() {
		consoleDone <- con.Run(appCtx)
	}()

	var runErr error
	select {
	case <-appCtx.Done():
		logger.Info("Signal received, shutting down...")
	case runErr = <-consoleDone:
		logger.Info("Console closed, shutting down...")
	}
	appCancel()

	// Выход из комнаты и остановка переподключений
	if err := manager.Close(); err != nil {
		logger.Error("Session close failed", "error", err)
	}

	if statusSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Status.ShutdownTimeout)
		defer shutdownCancel()
		if err := statusSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Status server forced to shutdown", "error", err)
		}
	}
	<-serverDone

	logger.Info("Application exited gracefully")
	return runErr
}

func newLogger(cfg config.Logging) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
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

	// stdout занят консолью
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return applog.NewMaskedLogger(handler)
}
