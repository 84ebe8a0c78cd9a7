// gate.go — Edge Gate: проверка доступа к страницам по префиксам путей
// до выполнения обработчиков. Отвечает редиректами, а не 401,
// так как работает перед рендерингом страниц.
package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/fantasy-cricket/internal/authz"
)

// Пути редиректов Edge Gate.
const (
	SignInPath = "/auth/signin"
	HomePath   = "/"
)

// PathClass — класс защищённости пути.
type PathClass int

const (
	// PathPublic — путь не попадает ни в один защищённый набор.
	PathPublic PathClass = iota
	// PathUser — требуется любая аутентифицированная сессия.
	PathUser
	// PathAdmin — требуются права администратора.
	PathAdmin
)

// String возвращает имя класса для логов и метрик.
func (c PathClass) String() string {
	switch c {
	case PathUser:
		return "user"
	case PathAdmin:
		return "admin"
	default:
		return "public"
	}
}

var gateRedirectsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fc_gate_redirects_total",
		Help: "Количество редиректов Edge Gate по классу пути и причине.",
	},
	[]string{"class", "reason"},
)

// GateConfig — параметры Edge Gate.
type GateConfig struct {
	// AdminPrefixes — префиксы путей только для администраторов
	AdminPrefixes []string
	// UserPrefixes — префиксы путей для любого аутентифицированного пользователя
	UserPrefixes []string
	// StripHeaders — заголовки, удаляемые из ответа
	StripHeaders []string
}

// Gate — Edge Gate.
type Gate struct {
	cfg      GateConfig
	resolver *authz.Resolver
	logger   *slog.Logger
}

// NewGate создаёт Edge Gate. Сессия берётся из контекста,
// поэтому SessionLoader.Middleware должен стоять раньше.
func NewGate(cfg GateConfig, resolver *authz.Resolver, logger *slog.Logger) *Gate {
	return &Gate{
		cfg:      cfg,
		resolver: resolver,
		logger:   logger.With(slog.String("component", "edge_gate")),
	}
}

// Classify определяет класс пути. Admin-префиксы проверяются первыми.
func (g *Gate) Classify(path string) PathClass {
	if matchAny(path, g.cfg.AdminPrefixes) {
		return PathAdmin
	}
	if matchAny(path, g.cfg.UserPrefixes) {
		return PathUser
	}
	return PathPublic
}

// Middleware возвращает HTTP middleware Edge Gate.
func (g *Gate) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(g.cfg.StripHeaders) > 0 {
				sw := &stripHeadersWriter{ResponseWriter: w, headers: g.cfg.StripHeaders}
				// Ответ без Write/WriteHeader отправляет net/http после возврата.
				defer sw.strip()
				w = sw
			}

			class := g.Classify(r.URL.Path)
			if class == PathPublic {
				next.ServeHTTP(w, r)
				return
			}

			session := SessionFromContext(r.Context())
			if session == nil {
				g.redirect(w, r, class, "anonymous", signInURL(r.URL.RequestURI()))
				return
			}

			source := "session"
			if class == PathAdmin {
				d := g.resolver.Resolve(r.Context(), session.Ref(), authz.Options{
					Strong: false,
					Layer:  authz.LayerEdgeGate,
				})
				if !d.IsAdmin {
					g.redirect(w, r, class, "insufficient_role", HomePath)
					return
				}
				source = d.Source
			}

			g.logger.Debug("Edge Gate: доступ разрешён",
				slog.String("path", r.URL.Path),
				slog.String("class", class.String()),
				slog.String("email", session.Email),
				slog.String("role", session.Role.String()),
				slog.String("source", source),
				slog.String("decision", "allow"),
			)
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Gate) redirect(w http.ResponseWriter, r *http.Request, class PathClass, reason, target string) {
	gateRedirectsTotal.WithLabelValues(class.String(), reason).Inc()

	attrs := []any{
		slog.String("path", r.URL.Path),
		slog.String("class", class.String()),
		slog.String("reason", reason),
		slog.String("target", target),
	}
	if s := SessionFromContext(r.Context()); s != nil {
		attrs = append(attrs, slog.String("email", s.Email), slog.String("role", s.Role.String()))
	}
	g.logger.Info("Edge Gate: редирект", attrs...)

	http.Redirect(w, r, target, http.StatusFound)
}

// matchAny проверяет совпадение пути с префиксом по границе сегмента:
// "/admin" совпадает с "/admin" и "/admin/x", но не с "/administrator".
func matchAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// signInURL формирует адрес страницы входа с возвратом на исходный путь.
// Возврат допускается только на локальный путь.
func signInURL(callback string) string {
	if !strings.HasPrefix(callback, "/") ||
		strings.HasPrefix(callback, "//") ||
		strings.HasPrefix(callback, "/\\") {
		callback = HomePath
	}
	return SignInPath + "?callbackUrl=" + url.QueryEscape(callback)
}

// stripHeadersWriter удаляет заданные заголовки перед отправкой ответа.
type stripHeadersWriter struct {
	http.ResponseWriter
	headers     []string
	wroteHeader bool
}

func (sw *stripHeadersWriter) strip() {
	if sw.wroteHeader {
		return
	}
	sw.wroteHeader = true
	h := sw.ResponseWriter.Header()
	for _, name := range sw.headers {
		h.Del(name)
	}
}

func (sw *stripHeadersWriter) WriteHeader(code int) {
	sw.strip()
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *stripHeadersWriter) Write(b []byte) (int, error) {
	sw.strip()
	return sw.ResponseWriter.Write(b)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (sw *stripHeadersWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
