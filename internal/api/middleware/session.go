// session.go — загрузка сессии из токена запроса.
// Отсутствующий или невалидный токен означает анонимный запрос:
// SessionLoader никогда не отвечает ошибкой сам.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bigkaa/fantasy-cricket/internal/auth/token"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeySession — декодированная сессия в контексте запроса.
	ContextKeySession contextKey = "fc_session"
)

// SessionLoader декодирует токен один раз на запрос.
type SessionLoader struct {
	verifier   token.Verifier
	cookieName string
	logger     *slog.Logger
}

// NewSessionLoader создаёт загрузчик сессии.
// cookieName — имя cookie с токеном; также принимается Authorization: Bearer.
func NewSessionLoader(verifier token.Verifier, cookieName string, logger *slog.Logger) *SessionLoader {
	return &SessionLoader{
		verifier:   verifier,
		cookieName: cookieName,
		logger:     logger.With(slog.String("component", "session")),
	}
}

// Load возвращает сессию запроса или nil для анонимного.
func (l *SessionLoader) Load(r *http.Request) *token.Session {
	raw := token.FromRequest(r, l.cookieName)
	if raw == "" {
		return nil
	}
	s, err := l.verifier.Verify(r.Context(), raw)
	if err != nil {
		if !errors.Is(err, token.ErrNoToken) {
			l.logger.Debug("Токен отклонён, запрос анонимный",
				slog.String("error", err.Error()),
				slog.String("remote_addr", r.RemoteAddr),
			)
		}
		return nil
	}
	return s
}

// Middleware кладёт сессию (если есть) в контекст запроса.
func (l *SessionLoader) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s := l.Load(r); s != nil {
				r = r.WithContext(WithSession(r.Context(), s))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// WithSession возвращает контекст с сессией.
func WithSession(ctx context.Context, s *token.Session) context.Context {
	return context.WithValue(ctx, ContextKeySession, s)
}

// SessionFromContext извлекает сессию из контекста запроса.
// Возвращает nil для анонимного запроса.
func SessionFromContext(ctx context.Context) *token.Session {
	s, _ := ctx.Value(ContextKeySession).(*token.Session)
	return s
}
