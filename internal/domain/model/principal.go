// Пакет model — доменные модели Fantasy Cricket.
package model

import (
	"time"

	"github.com/bigkaa/fantasy-cricket/internal/domain/rbac"
)

// Principal — пользователь платформы с ролью, хранящейся в БД.
// Роль в БД — единственный источник истины для авторизации.
type Principal struct {
	// ID — UUID пользователя
	ID string
	// Email — уникальный, хранится нормализованным
	Email string
	// Name — отображаемое имя
	Name string
	// PasswordHash — bcrypt-хеш пароля
	PasswordHash string
	// Role — USER или ADMIN
	Role rbac.Role
	// CreatedAt — время регистрации
	CreatedAt time.Time
	// UpdatedAt — время последнего изменения
	UpdatedAt time.Time
}

// PrincipalRef — то, что известно о принципале в момент проверки прав.
// Может содержать только часть полей: только email, или роль без id.
// nil означает анонимный запрос.
type PrincipalRef struct {
	ID    string
	Email string
	// Role — роль из claim токена; RoleUnknown если claim отсутствует.
	Role rbac.Role
}
