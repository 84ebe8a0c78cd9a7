package authz

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/fantasy-cricket/internal/domain/rbac"
)

// Prometheus-метрики кэша ролей.
var (
	roleCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fc_role_cache_hits_total",
		Help: "Общее количество попаданий в кэш ролей.",
	})
	roleCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fc_role_cache_misses_total",
		Help: "Общее количество промахов кэша ролей.",
	})
)

// RoleCache — LRU-кэш ролей, прочитанных из БД, с TTL.
// Кэшируются только успешные ответы хранилища, ошибки не кэшируются.
type RoleCache struct {
	cache *expirable.LRU[string, rbac.Role]
}

// NewRoleCache создаёт кэш ролей. ttl <= 0 — кэш выключен (возвращается nil).
func NewRoleCache(maxSize int, ttl time.Duration) *RoleCache {
	if ttl <= 0 || maxSize <= 0 {
		return nil
	}
	return &RoleCache{cache: expirable.NewLRU[string, rbac.Role](maxSize, nil, ttl)}
}

// Get возвращает роль из кэша. Безопасен для nil-получателя (всегда miss).
func (c *RoleCache) Get(key string) (rbac.Role, bool) {
	if c == nil {
		return rbac.RoleUnknown, false
	}
	role, ok := c.cache.Get(key)
	if ok {
		roleCacheHitsTotal.Inc()
		return role, true
	}
	roleCacheMissesTotal.Inc()
	return rbac.RoleUnknown, false
}

// Set добавляет роль в кэш.
func (c *RoleCache) Set(key string, role rbac.Role) {
	if c == nil {
		return
	}
	c.cache.Add(key, role)
}

// Purge очищает кэш (после promote-admins и смены ролей).
func (c *RoleCache) Purge() {
	if c == nil {
		return
	}
	c.cache.Purge()
}

// Len возвращает количество записей в кэше.
func (c *RoleCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}
