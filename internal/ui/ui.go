// Пакет ui — страницы веб-интерфейса: главная, вход и оболочка админки.
// Шаблоны и статика встраиваются в бинарник через //go:embed.
// Оболочка админки не содержит данных: до подтверждения прав через
// /api/admin/check-admin показывается только состояние загрузки.
package ui

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/bigkaa/fantasy-cricket/internal/api/middleware"
	"github.com/bigkaa/fantasy-cricket/internal/config"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// PageData — данные страницы.
type PageData struct {
	Title         string
	Version       string
	Authenticated bool
	Email         string
	// CallbackURL — куда вернуться после входа (только локальный путь)
	CallbackURL string
}

// Handler — обработчик страниц UI.
type Handler struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

// New разбирает встроенные шаблоны.
func New(logger *slog.Logger) (*Handler, error) {
	pages := make(map[string]*template.Template)
	for _, name := range []string{"home", "signin", "admin"} {
		t, err := template.ParseFS(templatesFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("разбор шаблона %s: %w", name, err)
		}
		pages[name] = t
	}
	return &Handler{
		pages:  pages,
		logger: logger.With(slog.String("component", "ui")),
	}, nil
}

// Static возвращает обработчик /static/*.
func (h *Handler) Static() http.Handler {
	sub, _ := fs.Sub(staticFS, "static")
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// Home — GET /.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "home", "Home", "")
}

// SignIn — GET /auth/signin?callbackUrl=...
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "signin", "Sign in", safeCallback(r.URL.Query().Get("callbackUrl")))
}

// AdminShell — GET /admin и /admin/*. Edge Gate уже пропустил запрос,
// права повторно проверяются на клиенте.
func (h *Handler) AdminShell(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	h.render(w, r, "admin", "Admin", "")
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, page, title, callback string) {
	data := PageData{
		Title:       title,
		Version:     config.Version,
		CallbackURL: callback,
	}
	if s := middleware.SessionFromContext(r.Context()); s != nil {
		data.Authenticated = true
		data.Email = s.Email
	}

	var buf bytes.Buffer
	if err := h.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		h.logger.Error("Ошибка рендеринга страницы",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Page rendering failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// safeCallback допускает только локальный путь.
func safeCallback(raw string) string {
	if raw == "" || raw[0] != '/' || len(raw) > 1 && (raw[1] == '/' || raw[1] == '\\') {
		return "/"
	}
	return raw
}
