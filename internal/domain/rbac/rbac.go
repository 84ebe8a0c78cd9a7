// Пакет rbac — роли принципалов, уровни доступа endpoints и Admin Allowlist.
// Роль из токена валидируется один раз на границе декодирования (ParseRole),
// дальше все проверки сравнивают только значения типа Role.
package rbac

import "strings"

// Role — роль принципала.
type Role string

// Роли в порядке возрастания привилегий.
const (
	// RoleUnknown — роль отсутствует или не распознана (claim пустой/битый).
	RoleUnknown Role = ""
	RoleUser    Role = "USER"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole преобразует сырое значение claim в Role.
// Сравнение регистрозависимое: "admin" не является ADMIN.
// Любое другое значение, включая пустую строку, даёт RoleUnknown.
func ParseRole(raw string) Role {
	switch Role(raw) {
	case RoleUser:
		return RoleUser
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUnknown
	}
}

// IsValid проверяет, является ли роль одной из известных.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// IsAdmin — true только для RoleAdmin.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// String возвращает строковое представление роли ("" для RoleUnknown).
func (r Role) String() string {
	return string(r)
}

// Level — уровень доступа, объявляемый для каждого endpoint.
type Level int

const (
	// LevelPublic — без проверки.
	LevelPublic Level = iota
	// LevelAuthenticated — любой аутентифицированный принципал, роль не важна.
	LevelAuthenticated
	// LevelAdmin — только администраторы.
	LevelAdmin
)

// String возвращает имя уровня для логов и метрик.
func (l Level) String() string {
	switch l {
	case LevelPublic:
		return "public"
	case LevelAuthenticated:
		return "authenticated"
	case LevelAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Allowlist — статический набор email администраторов.
// Используется только как fallback, сам по себе ничего не записывает в БД.
type Allowlist struct {
	emails map[string]struct{}
}

// NewAllowlist создаёт allowlist. Email нормализуются (trim + lower case),
// пустые значения игнорируются.
func NewAllowlist(emails []string) *Allowlist {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if n := NormalizeEmail(e); n != "" {
			set[n] = struct{}{}
		}
	}
	return &Allowlist{emails: set}
}

// Contains проверяет принадлежность email к allowlist.
// Безопасен для nil-получателя.
func (a *Allowlist) Contains(email string) bool {
	if a == nil || len(a.emails) == 0 {
		return false
	}
	n := NormalizeEmail(email)
	if n == "" {
		return false
	}
	_, ok := a.emails[n]
	return ok
}

// Emails возвращает нормализованные email из allowlist.
func (a *Allowlist) Emails() []string {
	if a == nil {
		return nil
	}
	result := make([]string, 0, len(a.emails))
	for e := range a.emails {
		result = append(result, e)
	}
	return result
}

// Len возвращает количество email в allowlist.
func (a *Allowlist) Len() int {
	if a == nil {
		return 0
	}
	return len(a.emails)
}

// NormalizeEmail приводит email к каноничному виду для сравнения.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
