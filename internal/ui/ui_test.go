package ui

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bigkaa/fantasy-cricket/internal/api/middleware"
	"github.com/bigkaa/fantasy-cricket/internal/auth/token"
	"github.com/bigkaa/fantasy-cricket/internal/domain/rbac"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	h, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func TestAdminShell_RendersOnlyLoadingState(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req = req.WithContext(middleware.WithSession(req.Context(), &token.Session{
		UserID: "a1", Email: "admin@fc.test", Role: rbac.RoleAdmin,
	}))
	rec := httptest.NewRecorder()
	h.AdminShell(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `id="admin-loading"`) {
		t.Error("нет состояния загрузки")
	}
	if !strings.Contains(body, `id="admin-root" class="card" hidden`) {
		t.Error("содержимое админки должно быть скрыто до проверки")
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("оболочка админки не должна кэшироваться")
	}
}

func TestSignIn_EscapesCallback(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		query string
		want  string
	}{
		{"/auth/signin?callbackUrl=%2Fadmin%2Fsettings", `data-callback="/admin/settings"`},
		{"/auth/signin?callbackUrl=https%3A%2F%2Fevil.example", `data-callback="/"`},
		{"/auth/signin?callbackUrl=%2F%2Fevil.example", `data-callback="/"`},
		{"/auth/signin", `data-callback="/"`},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.SignIn(rec, httptest.NewRequest(http.MethodGet, tt.query, nil))
		if !strings.Contains(rec.Body.String(), tt.want) {
			t.Errorf("%s: ожидалось %s", tt.query, tt.want)
		}
	}
}

func TestHome_ShowsSession(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Home(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(rec.Body.String(), `href="/auth/signin"`) {
		t.Error("анонимному нужна ссылка на вход")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(middleware.WithSession(req.Context(), &token.Session{UserID: "u1", Email: "u1@fc.test"}))
	rec = httptest.NewRecorder()
	h.Home(rec, req)
	if !strings.Contains(rec.Body.String(), "u1@fc.test") {
		t.Error("нет email пользователя")
	}
}

func TestStatic(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Static().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/api/admin/check-admin") {
		t.Error("app.js должен проверять права через check-admin")
	}
}
