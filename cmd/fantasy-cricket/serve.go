package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/bigkaa/fantasy-cricket/internal/api/handlers"
	"github.com/bigkaa/fantasy-cricket/internal/api/middleware"
	"github.com/bigkaa/fantasy-cricket/internal/auth/token"
	"github.com/bigkaa/fantasy-cricket/internal/authz"
	"github.com/bigkaa/fantasy-cricket/internal/config"
	"github.com/bigkaa/fantasy-cricket/internal/database"
	"github.com/bigkaa/fantasy-cricket/internal/domain/rbac"
	"github.com/bigkaa/fantasy-cricket/internal/lifecycle"
	"github.com/bigkaa/fantasy-cricket/internal/repository"
	"github.com/bigkaa/fantasy-cricket/internal/server"
	"github.com/bigkaa/fantasy-cricket/internal/service"
	"github.com/bigkaa/fantasy-cricket/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить HTTP-сервер",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg, logger)
	},
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("Fantasy Cricket запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("FC_DEPHEALTH_GROUP") == "" {
		logger.Warn("FC_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 1. Пул PostgreSQL; доступность проверяется стартовой задачей
	pool, err := database.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 2. Repositories
	principalRepo := repository.NewPrincipalRepository(pool)
	contestRepo := repository.NewContestRepository(pool)
	walletRepo := repository.NewWalletRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	// 3. Role Resolver: allowlist + claim + роль из БД (с кэшем)
	allowlist := rbac.NewAllowlist(cfg.AdminEmails)
	if allowlist.Len() == 0 {
		logger.Warn("FC_ADMIN_EMAILS пуст, администраторы определяются только по роли")
	}
	resolver := authz.NewResolver(
		allowlist,
		principalRepo,
		authz.NewRoleCache(cfg.RoleCacheSize, cfg.RoleCacheTTL),
		cfg.RoleLookupTimeout,
		logger,
	)

	// 4. Токены сессии: JWKS (если задан) и собственный HS256
	manager, err := token.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL, cfg.JWTLeeway)
	if err != nil {
		return err
	}
	verifier := token.Chain{manager}
	if cfg.JWTJWKSURL != "" {
		jwks, err := token.NewJWKSVerifier(cfg.JWTJWKSURL, cfg.JWTIssuer,
			cfg.JWKSRefreshInterval, cfg.JWTLeeway, logger)
		if err != nil {
			return fmt.Errorf("инициализация JWKS: %w", err)
		}
		verifier = token.Chain{jwks, manager}
		logger.Info("JWKS верификатор инициализирован", slog.String("jwks_url", cfg.JWTJWKSURL))
	}

	// 5. Services
	accounts := service.NewAccountService(principalRepo, walletRepo, manager, allowlist, resolver, logger)
	contests := service.NewContestService(contestRepo, logger)
	wallet := service.NewWalletService(walletRepo, principalRepo)
	distributions := service.NewDistributionService(contestRepo, service.NewTxDistributor(txRunner), logger)

	// 6. Фоновые задачи
	scheduler, err := service.NewLiveScoringScheduler(contestRepo, cfg.LiveScoringSchedule, logger)
	if err != nil {
		return err
	}
	walletFix := service.NewWalletFixMonitor(distributions, cfg.WalletFixInterval, logger)
	defer scheduler.Stop()
	defer walletFix.Stop()

	// 7. topologymetrics — мониторинг зависимостей
	dephealthSvc, err := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "fantasy-cricket",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PostgresURL:   cfg.DatabaseURL("postgres"),
		CricketAPIURL: cfg.CricketAPIURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	}

	// 8. Стартовые задачи: выполняются в фоне, /health/ready ждёт их завершения
	startup := lifecycle.New(cfg.StartupMaxElapsed, logger)
	startup.Add("postgresql", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	startup.Add("migrations", func(context.Context) error {
		return database.Migrate(cfg, logger)
	})
	if cfg.BootstrapAdmins {
		startup.Add("bootstrap-admins", func(ctx context.Context) error {
			_, err := accounts.PromoteAdmins(ctx, nil)
			return err
		})
	}
	startup.Add("jobs", func(ctx context.Context) error {
		if _, err := scheduler.Start(ctx); err != nil {
			return lifecycle.Permanent(err)
		}
		walletFix.Start(ctx)
		return nil
	})
	if dephealthSvc != nil {
		startup.Add("dephealth", func(ctx context.Context) error {
			return dephealthSvc.Start(ctx)
		})
		defer dephealthSvc.Stop()
	}

	// 9. Handlers
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), startup)
	apiHandler := handlers.NewAPIHandler(handlers.Deps{
		Health:        healthHandler,
		Accounts:      accounts,
		Contests:      contests,
		Wallet:        wallet,
		Distributions: distributions,
		Scheduler:     scheduler,
		WalletFix:     walletFix,
		Resolver:      resolver,
		Cookie: handlers.CookieConfig{
			Name:   cfg.SessionCookieName,
			Secure: cfg.SecureCookie,
		},
	}, logger)

	uiHandler, err := ui.New(logger)
	if err != nil {
		return err
	}

	// 10. Edge Gate, Route Guard и загрузка сессии
	deps := server.Deps{
		API:     apiHandler,
		UI:      uiHandler,
		Session: middleware.NewSessionLoader(verifier, cfg.SessionCookieName, logger),
		Gate: middleware.NewGate(middleware.GateConfig{
			AdminPrefixes: cfg.AdminPathPrefixes,
			UserPrefixes:  cfg.UserPathPrefixes,
			StripHeaders:  cfg.StripResponseHeaders,
		}, resolver, logger),
		Guard: middleware.NewGuard(resolver, logger),
	}

	startupErr := make(chan error, 1)
	go func() {
		if err := startup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			startupErr <- err
			cancel()
		}
		close(startupErr)
	}()

	// 11. HTTP-сервер (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger, deps)
	if err := srv.Run(ctx); err != nil {
		return err
	}

	cancel()
	if err := <-startupErr; err != nil {
		return err
	}

	logger.Info("Останавливаем фоновые задачи...")
	return nil
}
