package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dradenvandewind/registration-api/internal/adapters/grpc/handler"
	"github.com/dradenvandewind/registration-api/internal/adapters/notification"
	"github.com/dradenvandewind/registration-api/internal/adapters/repository/postgres"
	"github.com/dradenvandewind/registration-api/internal/adapters/rest"
	"github.com/dradenvandewind/registration-api/internal/adapters/security"
	"github.com/dradenvandewind/registration-api/internal/core/activation"
	"github.com/dradenvandewind/registration-api/internal/core/registration"
	"github.com/dradenvandewind/registration-api/internal/core/user"
	"github.com/dradenvandewind/registration-api/internal/platform/config"
	pg "github.com/dradenvandewind/registration-api/internal/platform/db/postgres"
	rdb "github.com/dradenvandewind/registration-api/internal/platform/db/redis"
	"github.com/dradenvandewind/registration-api/internal/platform/logging"
	"github.com/dradenvandewind/registration-api/internal/platform/metrics"
	"github.com/dradenvandewind/registration-api/internal/platform/server"
)

const poolStatsInterval = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to CONFIG_PATH env or assets/local.yaml)")
	flag.Parse()

	// .env は任意です。存在しない場合は環境変数のみを使います。
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}

	cfg, err := config.Load(effectiveConfigPath(*configPath))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()

	dbPool, err := pg.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	txManager := pg.NewTransactionManager(dbPool)
	userRepo := postgres.NewUserRepository(dbPool)
	codeRepo := postgres.NewActivationCodeRepository(dbPool)
	hasher := security.NewBcryptHasher(cfg.Security.BcryptCost)

	userSvc := user.NewService(userRepo, hasher, nil, txManager)
	activationSvc := activation.NewService(codeRepo, userSvc, userRepo, nil, nil, txManager)

	g, gctx := errgroup.WithContext(ctx)

	notifier, closeNotifier, err := buildNotifier(gctx, cfg, logger, g)
	if err != nil {
		return err
	}
	// サーバーの停止を待ってから閉じます。defer は g.Wait() の後に実行されます。
	defer closeNotifier()

	registrationSvc := registration.NewService(userSvc, activationSvc, notifier, txManager, metrics.Observer{}, logger)
	activations := metrics.InstrumentedActivation{Next: activationSvc}

	grpcServer := server.New(cfg.Server.ListenAddr, handler.NewRegistrationGrpcHandler(registrationSvc, activations), logger)
	httpServer := server.NewHTTP(cfg.Server.HTTPAddr, rest.NewRouter(rest.Options{
		Registrations:  registrationSvc,
		Activations:    activations,
		Health:         dbPool,
		Logger:         logger,
		AllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	}), cfg.Server.ShutdownTimeout)

	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("addr", cfg.Server.ListenAddr))
		return grpcServer.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.HTTPAddr))
		return httpServer.Run(gctx)
	})
	g.Go(func() error {
		pg.ReportStats(gctx, poolStatsInterval,
			func() pg.PoolStats { return pg.SnapshotStats(dbPool) },
			func(s pg.PoolStats) { metrics.SetDBPoolStats(s.Total, s.Idle, s.InUse) },
		)
		return nil
	})

	return g.Wait()
}

// buildNotifier は設定に応じた配送手段を構築します。
// キューが有効な場合は Redis に積み、ディスパッチャーを g で起動します。
// 返却される close は g.Wait() の後に呼び出してください。
func buildNotifier(ctx context.Context, cfg *config.Config, logger *zap.Logger, g *errgroup.Group) (registration.Notifier, func(), error) {
	var sender registration.Notifier
	switch cfg.Notification.Driver {
	case config.NotificationDriverMailAPI:
		sender = notification.NewMailAPISender(cfg.Notification.MailAPIURL, cfg.Notification.Timeout, nil)
	default:
		sender = notification.NewLogSender(logger)
	}

	if !cfg.Notification.Queue.Enabled {
		return sender, func() {}, nil
	}

	client, err := rdb.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}

	dispatcher := notification.NewDispatcher(client, cfg.Notification.Queue.Key, sender, cfg.Notification.Queue.BlockTimeout, logger,
		notification.WithResultObserver(metrics.IncQueueResult),
	)
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})

	closeClient := func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	return notification.NewQueueSender(client, cfg.Notification.Queue.Key), closeClient, nil
}

func effectiveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return "assets/local.yaml"
}
