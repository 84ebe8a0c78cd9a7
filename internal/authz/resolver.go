// Пакет authz — Role Resolver: единая политика определения прав администратора.
// Используется всеми слоями проверки (Edge Gate, Route Guard, check-admin),
// чтобы они не расходились в решениях.
package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/fantasy-cricket/internal/domain/model"
	"github.com/bigkaa/fantasy-cricket/internal/domain/rbac"
	"github.com/bigkaa/fantasy-cricket/internal/repository"
)

// Источники решения Role Resolver (лейбл source в метриках и логах).
const (
	SourceAnonymous  = "anonymous"
	SourceClaim      = "claim"
	SourceAllowlist  = "allowlist"
	SourceStore      = "store"
	SourceCache      = "cache"
	SourceStoreError = "store_error"
	// SourceNone — ни один сигнал не дал прав администратора.
	SourceNone = "none"
)

// Слои, вызывающие Resolver.
const (
	LayerEdgeGate   = "edge_gate"
	LayerRouteGuard = "route_guard"
	LayerCheckAdmin = "check_admin"
	LayerDirect     = "direct"
)

// Ошибки чтения роли из хранилища.
var (
	// ErrLookupTimeout — хранилище не ответило за отведённое время.
	ErrLookupTimeout = errors.New("таймаут чтения роли из хранилища")
)

// Prometheus-метрики Role Resolver.
var (
	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fc_authz_decisions_total",
			Help: "Количество решений Role Resolver по слою, результату и источнику.",
		},
		[]string{"layer", "decision", "source"},
	)

	roleLookupFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fc_role_lookup_failures_total",
			Help: "Количество неудачных чтений роли из хранилища.",
		},
		[]string{"reason"},
	)

	roleLookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fc_role_lookup_duration_seconds",
		Help:    "Длительность чтения роли из хранилища в секундах.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})
)

// RoleStore — чтение сохранённой роли принципала.
// Для несуществующего принципала возвращает repository.ErrNotFound.
type RoleStore interface {
	RoleByID(ctx context.Context, id string) (rbac.Role, error)
	RoleByEmail(ctx context.Context, email string) (rbac.Role, error)
}

// Options — параметры одного вызова Resolve.
type Options struct {
	// Strong — разрешить чтение роли из хранилища (шаг 4 политики).
	Strong bool
	// Layer — вызывающий слой, для логов и метрик.
	Layer string
}

// Decision — результат Resolve.
type Decision struct {
	IsAdmin bool
	// Source — сигнал, определивший решение.
	Source string
	// Role — роль, на основании которой принято решение (claim или хранилище).
	Role rbac.Role
	// Err — ошибка хранилища; решение при этом всегда IsAdmin=false.
	Err error
}

// Resolver — реализация политики resolveIsAdmin.
type Resolver struct {
	allowlist     *rbac.Allowlist
	store         RoleStore
	cache         *RoleCache
	lookupTimeout time.Duration
	logger        *slog.Logger
}

// NewResolver создаёт Role Resolver.
// store может быть nil — тогда strong check всегда даёт false.
// cache может быть nil — тогда каждое чтение идёт в хранилище.
func NewResolver(
	allowlist *rbac.Allowlist,
	store RoleStore,
	cache *RoleCache,
	lookupTimeout time.Duration,
	logger *slog.Logger,
) *Resolver {
	return &Resolver{
		allowlist:     allowlist,
		store:         store,
		cache:         cache,
		lookupTimeout: lookupTimeout,
		logger:        logger.With(slog.String("component", "role_resolver")),
	}
}

// ResolveIsAdmin — короткая форма Resolve со strong check.
func (r *Resolver) ResolveIsAdmin(ctx context.Context, ref *model.PrincipalRef) bool {
	return r.Resolve(ctx, ref, Options{Strong: true, Layer: LayerDirect}).IsAdmin
}

// Resolve определяет, является ли принципал администратором.
// Порядок: анонимный → false; роль ADMIN в claim → true; email в allowlist → true;
// при Strong — роль из хранилища; иначе false. Никогда не паникует и не
// возвращает ошибку: сбой хранилища даёт false с Decision.Err.
func (r *Resolver) Resolve(ctx context.Context, ref *model.PrincipalRef, opts Options) Decision {
	d := r.decide(ctx, ref, opts)

	decision := "deny"
	if d.IsAdmin {
		decision = "allow"
	}
	layer := opts.Layer
	if layer == "" {
		layer = LayerDirect
	}
	decisionsTotal.WithLabelValues(layer, decision, d.Source).Inc()

	attrs := []any{
		slog.String("layer", layer),
		slog.String("decision", decision),
		slog.String("source", d.Source),
		slog.String("role", d.Role.String()),
	}
	if ref != nil {
		attrs = append(attrs, slog.String("email", ref.Email), slog.String("principal_id", ref.ID))
	}
	if d.Err != nil {
		attrs = append(attrs, slog.String("error", d.Err.Error()))
		r.logger.Warn("Роль не прочитана из хранилища, доступ администратора запрещён", attrs...)
	} else {
		r.logger.Debug("Решение о правах администратора", attrs...)
	}

	return d
}

func (r *Resolver) decide(ctx context.Context, ref *model.PrincipalRef, opts Options) Decision {
	if ref == nil {
		return Decision{Source: SourceAnonymous}
	}
	if ref.Role.IsAdmin() {
		return Decision{IsAdmin: true, Source: SourceClaim, Role: ref.Role}
	}
	if r.allowlist.Contains(ref.Email) {
		return Decision{IsAdmin: true, Source: SourceAllowlist, Role: ref.Role}
	}
	if !opts.Strong || r.store == nil {
		return Decision{Source: SourceNone, Role: ref.Role}
	}

	key := cacheKey(ref)
	if key == "" {
		return Decision{Source: SourceNone, Role: ref.Role}
	}
	if role, ok := r.cache.Get(key); ok {
		return Decision{IsAdmin: role.IsAdmin(), Source: SourceCache, Role: role}
	}

	role, err := r.lookup(ctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Decision{Source: SourceStore, Role: rbac.RoleUnknown}
		}
		reason := "error"
		if errors.Is(err, ErrLookupTimeout) {
			reason = "timeout"
		}
		roleLookupFailuresTotal.WithLabelValues(reason).Inc()
		return Decision{Source: SourceStoreError, Role: ref.Role, Err: err}
	}

	r.cache.Set(key, role)
	return Decision{IsAdmin: role.IsAdmin(), Source: SourceStore, Role: role}
}

type lookupResult struct {
	role rbac.Role
	err  error
}

// lookup читает роль с таймаутом. Хранилище, игнорирующее контекст,
// не задерживает запрос дольше lookupTimeout.
func (r *Resolver) lookup(ctx context.Context, ref *model.PrincipalRef) (rbac.Role, error) {
	if r.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.lookupTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		roleLookupDuration.Observe(time.Since(start).Seconds())
	}()

	ch := make(chan lookupResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- lookupResult{err: fmt.Errorf("паника при чтении роли: %v", p)}
			}
		}()
		var res lookupResult
		res.role, res.err = r.readRole(ctx, ref)
		ch <- res
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) {
				return rbac.RoleUnknown, fmt.Errorf("%w: %v", ErrLookupTimeout, res.err)
			}
			return rbac.RoleUnknown, res.err
		}
		return rbac.ParseRole(res.role.String()), nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return rbac.RoleUnknown, ErrLookupTimeout
		}
		return rbac.RoleUnknown, ctx.Err()
	}
}

// readRole ищет роль по ID, при ErrNotFound — по email: subject внешнего
// источника токенов может не совпадать с ID пользователя.
func (r *Resolver) readRole(ctx context.Context, ref *model.PrincipalRef) (rbac.Role, error) {
	email := rbac.NormalizeEmail(ref.Email)
	if ref.ID != "" {
		role, err := r.store.RoleByID(ctx, ref.ID)
		if err == nil || !errors.Is(err, repository.ErrNotFound) || email == "" {
			return role, err
		}
	}
	if email == "" {
		return rbac.RoleUnknown, repository.ErrNotFound
	}
	return r.store.RoleByEmail(ctx, email)
}

// PurgeCache сбрасывает кэш ролей.
func (r *Resolver) PurgeCache() {
	r.cache.Purge()
}

func cacheKey(ref *model.PrincipalRef) string {
	if ref.ID != "" {
		return "id:" + ref.ID
	}
	if e := rbac.NormalizeEmail(ref.Email); e != "" {
		return "email:" + e
	}
	return ""
}
