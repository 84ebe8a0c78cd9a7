// guard.go — Route Guard: проверка уровня доступа API endpoint.
// В отличие от Edge Gate отвечает 401 с машиночитаемым кодом.
// Обработчик (и его побочный эффект) выполняется только после успешной проверки.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/fantasy-cricket/internal/api/errors"
	"github.com/bigkaa/fantasy-cricket/internal/auth/token"
	"github.com/bigkaa/fantasy-cricket/internal/authz"
	"github.com/bigkaa/fantasy-cricket/internal/domain/rbac"
)

// Ошибки Route Guard.
var (
	// ErrUnauthenticated — в запросе нет валидной сессии.
	ErrUnauthenticated = errors.New("сессия отсутствует")
	// ErrInsufficientRole — сессия есть, роли недостаточно.
	ErrInsufficientRole = errors.New("недостаточно прав")
)

var guardDenialsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fc_guard_denials_total",
		Help: "Количество отказов Route Guard по уровню и коду.",
	},
	[]string{"level", "code"},
)

// Guard — Route Guard.
type Guard struct {
	resolver *authz.Resolver
	logger   *slog.Logger
}

// NewGuard создаёт Route Guard.
func NewGuard(resolver *authz.Resolver, logger *slog.Logger) *Guard {
	return &Guard{
		resolver: resolver,
		logger:   logger.With(slog.String("component", "route_guard")),
	}
}

// Check проверяет доступ к уровню level и возвращает сессию.
// Для LevelAdmin выполняется strong check (роль из БД).
func (g *Guard) Check(ctx context.Context, level rbac.Level) (*token.Session, error) {
	session := SessionFromContext(ctx)
	if level == rbac.LevelPublic {
		return session, nil
	}
	if session == nil {
		return nil, ErrUnauthenticated
	}
	if level == rbac.LevelAdmin {
		d := g.resolver.Resolve(ctx, session.Ref(), authz.Options{
			Strong: true,
			Layer:  authz.LayerRouteGuard,
		})
		if !d.IsAdmin {
			return session, ErrInsufficientRole
		}
	}
	return session, nil
}

// Require возвращает middleware, требующий уровень доступа level.
func (g *Guard) Require(level rbac.Level) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := g.Check(r.Context(), level)
			if err != nil {
				g.deny(w, r, level, session, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) deny(w http.ResponseWriter, r *http.Request, level rbac.Level, session *token.Session, err error) {
	code := apierrors.CodeUnauthenticated
	if errors.Is(err, ErrInsufficientRole) {
		code = apierrors.CodeInsufficientRole
	}
	guardDenialsTotal.WithLabelValues(level.String(), code).Inc()

	attrs := []any{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("level", level.String()),
		slog.String("code", code),
	}
	if session != nil {
		attrs = append(attrs, slog.String("email", session.Email), slog.String("role", session.Role.String()))
	}
	g.logger.Warn("Route Guard: доступ запрещён", attrs...)

	if code == apierrors.CodeInsufficientRole {
		apierrors.InsufficientRole(w)
		return
	}
	apierrors.Unauthenticated(w)
}
