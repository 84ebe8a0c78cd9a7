package authz

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigkaa/fantasy-cricket/internal/domain/model"
	"github.com/bigkaa/fantasy-cricket/internal/domain/rbac"
	"github.com/bigkaa/fantasy-cricket/internal/repository"
)

// fakeStore — тестовое хранилище ролей со счётчиком обращений.
type fakeStore struct {
	roles map[string]rbac.Role
	err   error
	// block — не отвечать, пока не закроется канал (имитация зависшей БД).
	block chan struct{}
	// panicMsg — паниковать при обращении.
	panicMsg string
	calls    atomic.Int32
}

func (s *fakeStore) get(key string) (rbac.Role, error) {
	s.calls.Add(1)
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return rbac.RoleUnknown, s.err
	}
	role, ok := s.roles[key]
	if !ok {
		return rbac.RoleUnknown, repository.ErrNotFound
	}
	return role, nil
}

func (s *fakeStore) RoleByID(_ context.Context, id string) (rbac.Role, error) {
	return s.get("id:" + id)
}

func (s *fakeStore) RoleByEmail(_ context.Context, email string) (rbac.Role, error) {
	return s.get("email:" + email)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestResolver(store RoleStore, allowlist ...string) *Resolver {
	return NewResolver(rbac.NewAllowlist(allowlist), store, nil, 50*time.Millisecond, testLogger())
}

func TestResolve_Policy(t *testing.T) {
	store := &fakeStore{roles: map[string]rbac.Role{
		"id:promoted":           rbac.RoleAdmin,
		"id:plain":              rbac.RoleUser,
		"email:legacy@site.com": rbac.RoleAdmin,
	}}
	r := newTestResolver(store, "Boss@Site.com")

	tests := []struct {
		name       string
		ref        *model.PrincipalRef
		strong     bool
		wantAdmin  bool
		wantSource string
	}{
		{
			name:       "анонимный",
			ref:        nil,
			strong:     true,
			wantAdmin:  false,
			wantSource: SourceAnonymous,
		},
		{
			name:       "claim ADMIN",
			ref:        &model.PrincipalRef{ID: "x", Email: "x@site.com", Role: rbac.RoleAdmin},
			strong:     true,
			wantAdmin:  true,
			wantSource: SourceClaim,
		},
		{
			name:       "allowlist без учёта регистра",
			ref:        &model.PrincipalRef{ID: "y", Email: "boss@site.com", Role: rbac.RoleUser},
			strong:     false,
			wantAdmin:  true,
			wantSource: SourceAllowlist,
		},
		{
			name:       "USER без strong — хранилище не читается",
			ref:        &model.PrincipalRef{ID: "promoted", Email: "p@site.com", Role: rbac.RoleUser},
			strong:     false,
			wantAdmin:  false,
			wantSource: SourceNone,
		},
		{
			name:       "устаревший claim USER, в БД ADMIN",
			ref:        &model.PrincipalRef{ID: "promoted", Email: "p@site.com", Role: rbac.RoleUser},
			strong:     true,
			wantAdmin:  true,
			wantSource: SourceStore,
		},
		{
			name:       "USER в БД",
			ref:        &model.PrincipalRef{ID: "plain", Email: "u@site.com", Role: rbac.RoleUser},
			strong:     true,
			wantAdmin:  false,
			wantSource: SourceStore,
		},
		{
			name:       "поиск по email без id",
			ref:        &model.PrincipalRef{Email: "legacy@site.com"},
			strong:     true,
			wantAdmin:  true,
			wantSource: SourceStore,
		},
		{
			name:       "неизвестный принципал",
			ref:        &model.PrincipalRef{ID: "ghost", Email: "ghost@site.com"},
			strong:     true,
			wantAdmin:  false,
			wantSource: SourceStore,
		},
		{
			name:       "ни id, ни email",
			ref:        &model.PrincipalRef{Role: rbac.RoleUser},
			strong:     true,
			wantAdmin:  false,
			wantSource: SourceNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.Resolve(context.Background(), tt.ref, Options{Strong: tt.strong, Layer: "test"})
			if d.IsAdmin != tt.wantAdmin {
				t.Errorf("IsAdmin = %v, ожидается %v", d.IsAdmin, tt.wantAdmin)
			}
			if d.Source != tt.wantSource {
				t.Errorf("Source = %q, ожидается %q", d.Source, tt.wantSource)
			}
			if d.Err != nil {
				t.Errorf("неожиданная ошибка: %v", d.Err)
			}
		})
	}
}

func TestResolve_AnonymousNeverReadsStore(t *testing.T) {
	store := &fakeStore{}
	r := newTestResolver(store)

	for i := 0; i < 5; i++ {
		if r.ResolveIsAdmin(context.Background(), nil) {
			t.Fatal("анонимный запрос получил права администратора")
		}
	}
	if n := store.calls.Load(); n != 0 {
		t.Errorf("хранилище прочитано %d раз для анонимного запроса", n)
	}
}

func TestResolve_ShortCircuitSkipsStore(t *testing.T) {
	store := &fakeStore{err: errors.New("не должно вызываться")}
	r := newTestResolver(store, "boss@site.com")

	refs := []*model.PrincipalRef{
		{ID: "a", Email: "a@site.com", Role: rbac.RoleAdmin},
		{ID: "b", Email: "boss@site.com", Role: rbac.RoleUser},
	}
	for _, ref := range refs {
		if !r.ResolveIsAdmin(context.Background(), ref) {
			t.Errorf("ожидался admin для %+v", ref)
		}
	}
	if n := store.calls.Load(); n != 0 {
		t.Errorf("хранилище прочитано %d раз", n)
	}
}

func TestResolve_StoreErrorDegradesToFalse(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	r := newTestResolver(store)

	d := r.Resolve(context.Background(),
		&model.PrincipalRef{ID: "u1", Email: "u1@site.com", Role: rbac.RoleUser},
		Options{Strong: true, Layer: LayerRouteGuard},
	)
	if d.IsAdmin {
		t.Error("при ошибке хранилища доступ должен быть запрещён")
	}
	if d.Source != SourceStoreError {
		t.Errorf("Source = %q, ожидается %q", d.Source, SourceStoreError)
	}
	if d.Err == nil {
		t.Error("ожидалась ошибка в Decision.Err")
	}
}

func TestResolve_StoreTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	store := &fakeStore{block: block, roles: map[string]rbac.Role{"id:u1": rbac.RoleAdmin}}
	r := newTestResolver(store)

	start := time.Now()
	d := r.Resolve(context.Background(),
		&model.PrincipalRef{ID: "u1", Email: "u1@site.com"},
		Options{Strong: true},
	)
	elapsed := time.Since(start)

	if d.IsAdmin {
		t.Error("при таймауте доступ должен быть запрещён")
	}
	if !errors.Is(d.Err, ErrLookupTimeout) {
		t.Errorf("ожидалась ErrLookupTimeout, получена %v", d.Err)
	}
	if elapsed > time.Second {
		t.Errorf("Resolve занял %s, таймаут не сработал", elapsed)
	}
}

func TestResolve_StorePanicDegradesToFalse(t *testing.T) {
	store := &fakeStore{panicMsg: "boom"}
	r := newTestResolver(store)

	d := r.Resolve(context.Background(), &model.PrincipalRef{ID: "u1"}, Options{Strong: true})
	if d.IsAdmin || d.Err == nil {
		t.Errorf("Decision = %+v, ожидался отказ с ошибкой", d)
	}
}

func TestResolve_NilStore(t *testing.T) {
	r := NewResolver(rbac.NewAllowlist(nil), nil, nil, time.Second, testLogger())
	if r.ResolveIsAdmin(context.Background(), &model.PrincipalRef{ID: "u1", Role: rbac.RoleUser}) {
		t.Error("без хранилища USER не может быть администратором")
	}
}

func TestResolve_Cache(t *testing.T) {
	store := &fakeStore{roles: map[string]rbac.Role{"id:u1": rbac.RoleAdmin}}
	r := NewResolver(rbac.NewAllowlist(nil), store, NewRoleCache(10, time.Minute), time.Second, testLogger())
	ref := &model.PrincipalRef{ID: "u1", Role: rbac.RoleUser}

	first := r.Resolve(context.Background(), ref, Options{Strong: true})
	second := r.Resolve(context.Background(), ref, Options{Strong: true})

	if !first.IsAdmin || !second.IsAdmin {
		t.Fatalf("ожидался admin: %+v, %+v", first, second)
	}
	if second.Source != SourceCache {
		t.Errorf("второй вызов: Source = %q, ожидается %q", second.Source, SourceCache)
	}
	if n := store.calls.Load(); n != 1 {
		t.Errorf("хранилище прочитано %d раз, ожидался 1", n)
	}

	r.PurgeCache()
	r.Resolve(context.Background(), ref, Options{Strong: true})
	if n := store.calls.Load(); n != 2 {
		t.Errorf("после Purge хранилище прочитано %d раз, ожидалось 2", n)
	}
}

func TestResolve_ErrorsAreNotCached(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	r := NewResolver(rbac.NewAllowlist(nil), store, NewRoleCache(10, time.Minute), time.Second, testLogger())
	ref := &model.PrincipalRef{ID: "u1"}

	r.Resolve(context.Background(), ref, Options{Strong: true})
	r.Resolve(context.Background(), ref, Options{Strong: true})

	if n := store.calls.Load(); n != 2 {
		t.Errorf("хранилище прочитано %d раз, ошибки не должны кэшироваться", n)
	}
}

func TestResolve_StaleAdminClaimStillGrants(t *testing.T) {
	// роль понижена в БД, но токен ещё содержит ADMIN
	store := &fakeStore{roles: map[string]rbac.Role{"id:demoted": rbac.RoleUser}}
	r := newTestResolver(store)

	ref := &model.PrincipalRef{ID: "demoted", Role: rbac.RoleAdmin}
	if !r.ResolveIsAdmin(context.Background(), ref) {
		t.Error("claim ADMIN должен давать доступ до перевыпуска токена")
	}
}

func TestNewRoleCache_Disabled(t *testing.T) {
	if c := NewRoleCache(10, 0); c != nil {
		t.Error("при TTL=0 кэш должен быть выключен")
	}
	var c *RoleCache
	c.Set("k", rbac.RoleAdmin)
	if _, ok := c.Get("k"); ok {
		t.Error("nil-кэш не должен возвращать значения")
	}
	if c.Len() != 0 {
		t.Error("nil-кэш должен быть пустым")
	}
}

func TestResolve_ExternalSubjectFallsBackToEmail(t *testing.T) {
	store := &fakeStore{roles: map[string]rbac.Role{"email:ext@fc.test": rbac.RoleAdmin}}
	r := newTestResolver(store)

	ref := &model.PrincipalRef{ID: "google-oauth2|42", Email: "Ext@FC.test", Role: rbac.RoleUser}
	d := r.Resolve(context.Background(), ref, Options{Strong: true, Layer: "test"})
	if !d.IsAdmin || d.Source != SourceStore || d.Err != nil {
		t.Errorf("Resolve() = %+v, ожидается admin из хранилища", d)
	}
	if got := store.calls.Load(); got != 2 {
		t.Errorf("обращений к хранилищу = %d, ожидается 2 (id, затем email)", got)
	}
}

func TestResolve_IDErrorDoesNotFallBackToEmail(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	r := newTestResolver(store)

	d := r.Resolve(context.Background(), &model.PrincipalRef{ID: "u1", Email: "u1@site.com"}, Options{Strong: true})
	if d.IsAdmin || d.Err == nil {
		t.Errorf("Resolve() = %+v, ожидается отказ с ошибкой", d)
	}
	if got := store.calls.Load(); got != 1 {
		t.Errorf("обращений к хранилищу = %d, ожидается 1", got)
	}
}
