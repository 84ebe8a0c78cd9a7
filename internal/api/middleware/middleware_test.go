package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/fantasy-cricket/internal/api/errors"
	"github.com/bigkaa/fantasy-cricket/internal/auth/token"
	"github.com/bigkaa/fantasy-cricket/internal/authz"
	"github.com/bigkaa/fantasy-cricket/internal/domain/model"
	"github.com/bigkaa/fantasy-cricket/internal/domain/rbac"
	"github.com/bigkaa/fantasy-cricket/internal/repository"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testCookie = "fc_session"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mapStore — хранилище ролей по id.
type mapStore struct {
	roles map[string]rbac.Role
	err   error
}

func (s *mapStore) RoleByID(_ context.Context, id string) (rbac.Role, error) {
	if s.err != nil {
		return rbac.RoleUnknown, s.err
	}
	role, ok := s.roles[id]
	if !ok {
		return rbac.RoleUnknown, repository.ErrNotFound
	}
	return role, nil
}

func (s *mapStore) RoleByEmail(_ context.Context, _ string) (rbac.Role, error) {
	return rbac.RoleUnknown, repository.ErrNotFound
}

type fixture struct {
	tokens *token.Manager
	loader *SessionLoader
	gate   *Gate
	guard  *Guard
}

func newFixture(t *testing.T, store authz.RoleStore) *fixture {
	t.Helper()
	tokens, err := token.NewManager(testSecret, "test", time.Hour, 0)
	if err != nil {
		t.Fatal(err)
	}
	resolver := authz.NewResolver(rbac.NewAllowlist([]string{"boss@fc.test"}), store, nil, time.Second, testLogger())
	return &fixture{
		tokens: tokens,
		loader: NewSessionLoader(tokens, testCookie, testLogger()),
		gate: NewGate(GateConfig{
			AdminPrefixes: []string{"/admin"},
			UserPrefixes:  []string{"/profile", "/wallet", "/my-teams", "/join", "/create-team"},
			StripHeaders:  []string{"X-Middleware-Rewrite"},
		}, resolver, testLogger()),
		guard: NewGuard(resolver, testLogger()),
	}
}

func (f *fixture) tokenFor(t *testing.T, id, email string, role rbac.Role) string {
	t.Helper()
	raw, _, err := f.tokens.Issue(&model.Principal{ID: id, Email: email, Role: role})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

// okHandler отвечает 200 и выставляет заголовок, который должен удалить Edge Gate.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("X-Middleware-Rewrite", "/somewhere")
	w.Header().Set("X-Keep", "yes")
	w.WriteHeader(http.StatusOK)
})

func (f *fixture) gateHandler() http.Handler {
	return f.loader.Middleware()(f.gate.Middleware()(okHandler))
}

func TestGate(t *testing.T) {
	f := newFixture(t, &mapStore{roles: map[string]rbac.Role{"promoted": rbac.RoleAdmin}})

	tests := []struct {
		name         string
		path         string
		token        string
		wantStatus   int
		wantLocation string
	}{
		{
			name:         "admin путь без токена → вход",
			path:         "/admin/settings",
			wantStatus:   http.StatusFound,
			wantLocation: "/auth/signin?callbackUrl=%2Fadmin%2Fsettings",
		},
		{
			name:         "admin путь, роль USER → домой",
			path:         "/admin/settings",
			token:        f.tokenFor(t, "u1", "user@fc.test", rbac.RoleUser),
			wantStatus:   http.StatusFound,
			wantLocation: "/",
		},
		{
			name:       "admin путь, роль ADMIN → проходит",
			path:       "/admin/settings",
			token:      f.tokenFor(t, "a1", "admin@fc.test", rbac.RoleAdmin),
			wantStatus: http.StatusOK,
		},
		{
			name:       "admin путь, email из allowlist → проходит",
			path:       "/admin",
			token:      f.tokenFor(t, "b1", "Boss@FC.test", rbac.RoleUser),
			wantStatus: http.StatusOK,
		},
		{
			name:         "устаревший claim USER: Edge Gate не читает БД",
			path:         "/admin/users",
			token:        f.tokenFor(t, "promoted", "p@fc.test", rbac.RoleUser),
			wantStatus:   http.StatusFound,
			wantLocation: "/",
		},
		{
			name:         "невалидный токен = анонимный",
			path:         "/admin",
			token:        "garbage",
			wantStatus:   http.StatusFound,
			wantLocation: "/auth/signin?callbackUrl=%2Fadmin",
		},
		{
			name:         "user путь без токена → вход",
			path:         "/wallet",
			wantStatus:   http.StatusFound,
			wantLocation: "/auth/signin?callbackUrl=%2Fwallet",
		},
		{
			name:       "user путь, роль USER → проходит",
			path:       "/my-teams/42",
			token:      f.tokenFor(t, "u1", "user@fc.test", rbac.RoleUser),
			wantStatus: http.StatusOK,
		},
		{
			name:       "user путь без claim роли → проходит",
			path:       "/profile",
			token:      f.tokenFor(t, "u2", "norole@fc.test", rbac.RoleUnknown),
			wantStatus: http.StatusOK,
		},
		{
			name:       "публичный путь",
			path:       "/contests",
			wantStatus: http.StatusOK,
		},
		{
			name:       "совпадение только по границе сегмента",
			path:       "/administrator",
			wantStatus: http.StatusOK,
		},
		{
			name:       "health не защищён",
			path:       "/health/live",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.AddCookie(&http.Cookie{Name: testCookie, Value: tt.token})
			}
			rec := httptest.NewRecorder()
			f.gateHandler().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, ожидается %d", rec.Code, tt.wantStatus)
			}
			if tt.wantLocation != "" {
				if loc := rec.Header().Get("Location"); loc != tt.wantLocation {
					t.Errorf("Location = %q, ожидается %q", loc, tt.wantLocation)
				}
			}
		})
	}
}

func TestGate_StripsHeaders(t *testing.T) {
	f := newFixture(t, nil)

	rec := httptest.NewRecorder()
	f.gateHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/contests", nil))

	if v := rec.Header().Get("X-Middleware-Rewrite"); v != "" {
		t.Errorf("заголовок X-Middleware-Rewrite не удалён: %q", v)
	}
	if rec.Header().Get("X-Keep") != "yes" {
		t.Error("посторонний заголовок удалён")
	}
}

func TestGate_StripsHeadersWithoutBody(t *testing.T) {
	f := newFixture(t, nil)
	headersOnly := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Middleware-Rewrite", "/x")
		w.Header().Set("X-Keep", "yes")
	})
	srv := httptest.NewServer(f.loader.Middleware()(f.gate.Middleware()(headersOnly)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/contests")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if v := resp.Header.Get("X-Middleware-Rewrite"); v != "" {
		t.Errorf("заголовок X-Middleware-Rewrite не удалён: %q", v)
	}
	if resp.Header.Get("X-Keep") != "yes" {
		t.Error("посторонний заголовок удалён")
	}
}

func TestGate_LogsAllowedUserPath(t *testing.T) {
	f := newFixture(t, nil)
	var buf strings.Builder
	f.gate.logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: f.tokenFor(t, "u1", "player@fc.test", rbac.RoleUser)})
	rec := httptest.NewRecorder()
	f.gateHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, want := range []string{"email=player@fc.test", "class=user", "decision=allow"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("в логе нет %q: %s", want, buf.String())
		}
	}
}

func TestGate_ClassifyAdminWins(t *testing.T) {
	g := NewGate(GateConfig{
		AdminPrefixes: []string{"/admin"},
		UserPrefixes:  []string{"/admin/profile", "/profile"},
	}, nil, testLogger())

	tests := []struct {
		path string
		want PathClass
	}{
		{"/admin/profile", PathAdmin},
		{"/profile", PathUser},
		{"/profiles", PathPublic},
		{"/", PathPublic},
	}
	for _, tt := range tests {
		if got := g.Classify(tt.path); got != tt.want {
			t.Errorf("Classify(%q) = %s, ожидается %s", tt.path, got, tt.want)
		}
	}
}

func TestSignInURL_RejectsForeignCallback(t *testing.T) {
	tests := []struct {
		callback string
		want     string
	}{
		{"/admin?tab=users", "/auth/signin?callbackUrl=%2Fadmin%3Ftab%3Dusers"},
		{"//evil.example/admin", "/auth/signin?callbackUrl=%2F"},
		{"/\\evil.example", "/auth/signin?callbackUrl=%2F"},
		{"https://evil.example", "/auth/signin?callbackUrl=%2F"},
	}
	for _, tt := range tests {
		if got := signInURL(tt.callback); got != tt.want {
			t.Errorf("signInURL(%q) = %q, ожидается %q", tt.callback, got, tt.want)
		}
	}
}

// decodeError разбирает тело ответа ошибки.
func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("невалидный JSON: %v", err)
	}
	return body
}

func TestGuard_StopWalletFix(t *testing.T) {
	f := newFixture(t, &mapStore{roles: map[string]rbac.Role{
		"u1":       rbac.RoleUser,
		"promoted": rbac.RoleAdmin,
	}})

	var stopped atomic.Int32
	r := chi.NewRouter()
	r.Use(f.loader.Middleware())
	r.With(f.guard.Require(rbac.LevelAdmin)).Post("/api/admin/stop-wallet-fix",
		func(w http.ResponseWriter, _ *http.Request) {
			stopped.Add(1)
			w.WriteHeader(http.StatusOK)
		})

	tests := []struct {
		name        string
		token       string
		wantStatus  int
		wantCode    string
		wantStopped int32
	}{
		{
			name:        "без сессии",
			wantStatus:  http.StatusUnauthorized,
			wantCode:    apierrors.CodeUnauthenticated,
			wantStopped: 0,
		},
		{
			name:        "роль USER",
			token:       f.tokenFor(t, "u1", "user@fc.test", rbac.RoleUser),
			wantStatus:  http.StatusUnauthorized,
			wantCode:    apierrors.CodeInsufficientRole,
			wantStopped: 0,
		},
		{
			name:        "роль ADMIN",
			token:       f.tokenFor(t, "a1", "admin@fc.test", rbac.RoleAdmin),
			wantStatus:  http.StatusOK,
			wantStopped: 1,
		},
		{
			name:        "claim USER, в БД ADMIN — strong check",
			token:       f.tokenFor(t, "promoted", "p@fc.test", rbac.RoleUser),
			wantStatus:  http.StatusOK,
			wantStopped: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/admin/stop-wallet-fix", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, ожидается %d", rec.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				body := decodeError(t, rec)
				if body["code"] != tt.wantCode {
					t.Errorf("code = %q, ожидается %q", body["code"], tt.wantCode)
				}
				if body["error"] != "Unauthorized access" {
					t.Errorf("error = %q", body["error"])
				}
			}
			if n := stopped.Load(); n != tt.wantStopped {
				t.Errorf("обработчик вызван %d раз, ожидалось %d", n, tt.wantStopped)
			}
		})
	}
}

func TestGuard_StoreFailureDenies(t *testing.T) {
	f := newFixture(t, &mapStore{err: errors.New("connection refused")})
	ctx := WithSession(context.Background(), &token.Session{UserID: "u1", Email: "u1@fc.test", Role: rbac.RoleUser})

	_, err := f.guard.Check(ctx, rbac.LevelAdmin)
	if !errors.Is(err, ErrInsufficientRole) {
		t.Errorf("ожидалась ErrInsufficientRole, получена %v", err)
	}
}

func TestGuard_AuthenticatedLevel(t *testing.T) {
	f := newFixture(t, nil)

	if _, err := f.guard.Check(context.Background(), rbac.LevelAuthenticated); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("ожидалась ErrUnauthenticated, получена %v", err)
	}

	ctx := WithSession(context.Background(), &token.Session{UserID: "u1", Role: rbac.RoleUnknown})
	s, err := f.guard.Check(ctx, rbac.LevelAuthenticated)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if s == nil || s.UserID != "u1" {
		t.Errorf("сессия = %+v", s)
	}

	if _, err := f.guard.Check(context.Background(), rbac.LevelPublic); err != nil {
		t.Errorf("публичный уровень: %v", err)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/metrics", "/metrics"},
		{"/health/ready", "/health/ready"},
		{"/api/admin/users/8c1f2f4e-2a4b-4c5d-9e6f-7a8b9c0d1e2f/transactions", "/api/admin/users/{id}/transactions"},
		{"/api/contests/not-a-uuid", "/api/contests/not-a-uuid"},
		{"/admin/contests/8c1f2f4e-2a4b-4c5d-9e6f-7a8b9c0d1e2f", "/admin/contests/{id}"},
		{"/random/page", "/other"},
		{"/", "/"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, ожидается %q", tt.path, got, tt.want)
		}
	}
}

func TestRequestLogger_PassesThrough(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(buf.String(), "status=418") {
		t.Errorf("в логе нет статуса: %s", buf.String())
	}
}

func TestRequestLogger_ImplicitOK(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := MetricsMiddleware()(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/contests", nil))

	if !strings.Contains(buf.String(), "status=200") || !strings.Contains(buf.String(), "bytes=2") {
		t.Errorf("неожиданная запись лога: %s", buf.String())
	}
}
