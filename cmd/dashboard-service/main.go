package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qms/dashboard-service/internal/account"
	"qms/dashboard-service/internal/admin"
	"qms/dashboard-service/internal/cache"
	"qms/dashboard-service/internal/config"
	"qms/dashboard-service/internal/filestore"
	"qms/dashboard-service/internal/httpapi"
	"qms/dashboard-service/internal/hub"
	"qms/dashboard-service/internal/live"
	"qms/dashboard-service/internal/logging"
	"qms/dashboard-service/internal/mq"
	"qms/dashboard-service/internal/reports"
	"qms/dashboard-service/internal/store/postgres"
	"qms/dashboard-service/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const serviceName = "dashboard-service"

func main() {
	var configFile string

	rootCmd := &cobra.Command{
		Use:          serviceName,
		Short:        "Admin dashboard for the queue: live views, reports and catalog management",
		SilenceUsage: true,
		RunE: func(c *cobra.Command, args []string) error {
			return serve(c.Context(), configFile)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to an optional config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(c *cobra.Command, args []string) error {
			return serve(c.Context(), configFile)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(c *cobra.Command, args []string) error {
			return runMigrations(c.Context(), configFile)
		},
	})

	var adminName, adminEmail string
	createAdmin := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account, or reset its password",
		Long:  "Create an admin account, or reset its password. The password is read from DASHBOARD_ADMIN_PASSWORD.",
		RunE: func(c *cobra.Command, args []string) error {
			return createAdminAccount(c.Context(), configFile, adminEmail, adminName, os.Getenv("DASHBOARD_ADMIN_PASSWORD"))
		},
	}
	createAdmin.Flags().StringVar(&adminEmail, "email", "", "Admin email address")
	createAdmin.Flags().StringVar(&adminName, "name", "Administrator", "Admin display name")
	_ = createAdmin.MarkFlagRequired("email")
	rootCmd.AddCommand(createAdmin)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type app struct {
	cfg    config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool
}

func setup(ctx context.Context, configFile string) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DB_DSN is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	return &app{cfg: cfg, logger: logger, pool: pool}, nil
}

func (rt *app) close() {
	rt.pool.Close()
	_ = rt.logger.Sync()
}

func runMigrations(ctx context.Context, configFile string) error {
	rt, err := setup(ctx, configFile)
	if err != nil {
		return err
	}
	defer rt.close()
	return postgres.Migrate(rt.pool, rt.logger)
}

func createAdminAccount(ctx context.Context, configFile, email, name, password string) error {
	hash, err := account.HashPassword(password)
	if err != nil {
		return err
	}
	rt, err := setup(ctx, configFile)
	if err != nil {
		return err
	}
	defer rt.close()
	profile, err := postgres.NewStore(rt.pool).EnsureAdmin(ctx, email, name, hash)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	rt.logger.Info("admin account ready", zap.String("admin_id", profile.AdminID), zap.String("email", profile.Email))
	return nil
}

func serve(ctx context.Context, configFile string) error {
	rt, err := setup(ctx, configFile)
	if err != nil {
		return err
	}
	defer rt.close()
	cfg, logger := rt.cfg, rt.logger

	shutdownTracing := telemetry.Setup(serviceName, logger)
	defer func() {
		_ = shutdownTracing(context.Background())
	}()

	if cfg.MigrateOnStart {
		if err := postgres.Migrate(rt.pool, logger); err != nil {
			return err
		}
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	st := postgres.NewStore(rt.pool)

	var reportOpts []reports.Option
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ReportCacheTTL, logger)
		if err != nil {
			logger.Warn("report cache disabled", zap.Error(err))
		} else {
			defer redisCache.Close()
			reportOpts = append(reportOpts, reports.WithCache(redisCache))
		}
	}

	var notifier live.Notifier
	switch cfg.FeedSource {
	case config.FeedAMQP:
		amqpNotifier, err := mq.Dial(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			return err
		}
		defer amqpNotifier.Close()
		notifier = amqpNotifier
	default:
		notifier = postgres.NewListener(rt.pool, logger)
	}

	images, err := filestore.NewLocal(cfg.UploadDir, cfg.UploadBaseURL)
	if err != nil {
		return err
	}

	feed := live.NewSignalFeed(st, notifier, logger)
	liveHub := hub.New(logger)
	projector := live.NewProjector(feed, live.NewResolver(st, logger), live.Options{
		Interval: cfg.LiveRefresh,
		Logger:   logger,
		OnUpdate: liveHub.Broadcast,
	})

	accounts := account.NewService(st, images, cfg.SessionTTL, logger)
	handler := httpapi.NewHandler(httpapi.Options{
		Reports:    reports.NewService(st, loc, logger, reportOpts...),
		Admin:      admin.NewService(st, loc, logger),
		Account:    accounts,
		Images:     images,
		Live:       projector,
		Hub:        liveHub,
		Logger:     logger,
		UploadDir:  images.Dir(),
		UploadPath: cfg.UploadBaseURL,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:      cfg.RateLimitPerMinute,
		IPBurst:          cfg.RateLimitBurst,
		SessionPerMinute: cfg.RateLimitPerMinute,
		SessionBurst:     cfg.RateLimitBurst,
	})

	otelHandler := otelhttp.NewHandler(
		httpapi.LoggingMiddleware(logger, limiter.Middleware(httpapi.AuthMiddleware(accounts, handler.Routes()))),
		serviceName)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := feed.Run(ctx); err != nil {
			logger.Error("live feed stopped", zap.Error(err))
			cancel()
		}
	}()
	go func() {
		if err := projector.Run(ctx); err != nil {
			logger.Error("live projector stopped", zap.Error(err))
			cancel()
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", server.Addr), zap.String("feed", cfg.FeedSource))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("stopped")
	return nil
}
