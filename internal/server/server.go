// Пакет server — HTTP-сервер Fantasy Cricket с graceful shutdown.
// Порядок middleware: метрики → логирование → сессия → Edge Gate → маршруты,
// Route Guard навешивается на группы маршрутов по уровню доступа.
package server

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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bigkaa/fantasy-cricket/internal/api/handlers"
	"github.com/bigkaa/fantasy-cricket/internal/api/middleware"
	"github.com/bigkaa/fantasy-cricket/internal/config"
	"github.com/bigkaa/fantasy-cricket/internal/domain/rbac"
	"github.com/bigkaa/fantasy-cricket/internal/ui"
)

// Server — HTTP-сервер.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// Deps — компоненты, из которых собирается роутер.
type Deps struct {
	API     *handlers.APIHandler
	UI      *ui.Handler
	Session *middleware.SessionLoader
	Gate    *middleware.Gate
	Guard   *middleware.Guard
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, deps Deps) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(cfg, logger, deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер. Вынесен отдельно для тестов.
func NewRouter(cfg *config.Config, logger *slog.Logger, deps Deps) http.Handler {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(chimw.Recoverer)
	router.Use(middleware.MetricsMiddleware())
	router.Use(deps.Session.Middleware())
	router.Use(middleware.RequestLogger(logger))
	router.Use(deps.Gate.Middleware())

	api := deps.API

	// Health и metrics — вне защищённых префиксов Edge Gate.
	router.Get("/health/live", api.HealthLive)
	router.Get("/health/ready", api.HealthReady)
	router.Get("/metrics", api.GetMetrics)

	router.Route("/api", func(r chi.Router) {
		if len(cfg.CORSOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   cfg.CORSOrigins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
				AllowedHeaders:   []string{"Authorization", "Content-Type"},
				AllowCredentials: true,
				MaxAge:           300,
			}))
		}

		// Публичные
		r.Post("/auth/register", api.Register)
		r.Post("/auth/login", api.Login)
		r.Post("/auth/logout", api.Logout)
		r.Get("/auth/session", api.GetSession)
		r.Get("/contests", api.ListContests)
		r.Get("/contests/{id}", api.GetContest)

		// Отвечают {isAdmin:false} анонимным, поэтому без Route Guard.
		r.Get("/admin/check-admin", api.CheckAdmin)
		r.Get("/admin/simple-check", api.SimpleCheck)

		r.Group(func(r chi.Router) {
			r.Use(deps.Guard.Require(rbac.LevelAuthenticated))
			r.Get("/profile", api.GetProfile)
			r.Get("/wallet/transactions", api.MyTransactions)
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.Guard.Require(rbac.LevelAdmin))
			r.Get("/admin/users", api.ListUsers)
			r.Get("/admin/users/{id}/transactions", api.UserTransactions)
			r.Delete("/admin/contests/{id}", api.DeleteContest)
			r.Post("/admin/scheduler/start", api.StartScheduler)
			r.Post("/admin/scheduler/stop", api.StopScheduler)
			r.Get("/admin/scheduler/status", api.SchedulerStatus)
			r.Post("/admin/start-wallet-fix", api.StartWalletFix)
			r.Post("/admin/stop-wallet-fix", api.StopWalletFix)
			r.Get("/admin/wallet-fix/status", api.WalletFixStatus)
			r.Get("/admin/distributions/status", api.DistributionStatus)
			r.Post("/admin/fix-distributions", api.FixDistributions)
		})
	})

	// Страницы. Доступ к /admin и user-префиксам уже проверил Edge Gate.
	if deps.UI != nil {
		router.Handle("/static/*", deps.UI.Static())
		router.Get("/", deps.UI.Home)
		router.Get("/auth/signin", deps.UI.SignIn)
		router.Get("/admin", deps.UI.AdminShell)
		router.Get("/admin/*", deps.UI.AdminShell)
	}

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. После этого выполняется graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
