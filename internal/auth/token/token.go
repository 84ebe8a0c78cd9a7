// Пакет token — сессионные токены (JWT): выпуск при логине и проверка
// на каждом запросе. Роль из claim валидируется здесь один раз и дальше
// передаётся только как rbac.Role.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/fantasy-cricket/internal/domain/model"
	"github.com/bigkaa/fantasy-cricket/internal/domain/rbac"
)

// Ошибки проверки токена.
var (
	// ErrNoToken — токен в запросе отсутствует.
	ErrNoToken = errors.New("токен отсутствует")
	// ErrInvalidToken — подпись, срок действия или claims не прошли проверку.
	ErrInvalidToken = errors.New("невалидный токен")
)

// Session — декодированный сессионный токен.
type Session struct {
	// UserID — sub токена
	UserID string
	Email  string
	// Role — роль из claim; RoleUnknown если claim отсутствует или не распознан
	Role      rbac.Role
	ExpiresAt time.Time
}

// Ref возвращает ссылку на принципала для Role Resolver.
// Для nil-сессии (анонимный запрос) возвращает nil.
func (s *Session) Ref() *model.PrincipalRef {
	if s == nil {
		return nil
	}
	return &model.PrincipalRef{
		ID:    s.UserID,
		Email: s.Email,
		Role:  s.Role,
	}
}

// Verifier проверяет сырой токен и возвращает сессию.
type Verifier interface {
	Verify(ctx context.Context, raw string) (*Session, error)
}

// roleClaim — claim "role", терпимый к формату: строка принимается как есть,
// null, объект, число и т.п. трактуются как отсутствующий claim.
type roleClaim string

func (r *roleClaim) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*r = ""
		return nil //nolint:nilerr // не-строковый claim = claim отсутствует
	}
	*r = roleClaim(s)
	return nil
}

// Claims — claims сессионного токена.
type Claims struct {
	jwt.RegisteredClaims
	Email string    `json:"email"`
	Role  roleClaim `json:"role,omitempty"`
}

// sessionFromClaims формирует Session из проверенных claims.
func sessionFromClaims(c *Claims) (*Session, error) {
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: отсутствует sub", ErrInvalidToken)
	}
	s := &Session{
		UserID: c.Subject,
		Email:  rbac.NormalizeEmail(c.Email),
		Role:   rbac.ParseRole(string(c.Role)),
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s, nil
}

// Manager выпускает и проверяет HS256-токены.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

// NewManager создаёт менеджер токенов.
// secret — ключ HS256, issuer — значение iss, ttl — время жизни токена.
func NewManager(secret, issuer string, ttl, leeway time.Duration) (*Manager, error) {
	if len(secret) < 32 {
		return nil, errors.New("секрет JWT должен быть не короче 32 байт")
	}
	if ttl <= 0 {
		return nil, errors.New("время жизни токена должно быть положительным")
	}
	return &Manager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		leeway: leeway,
		now:    time.Now,
	}, nil
}

// TTL возвращает время жизни выпускаемых токенов.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue выпускает токен для принципала. Роль берётся из БД в момент логина
// и не меняется до повторного выпуска.
func (m *Manager) Issue(p *model.Principal) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: rbac.NormalizeEmail(p.Email),
		Role:  roleClaim(p.Role),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("подпись токена: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify проверяет подпись, срок действия и issuer токена.
func (m *Manager) Verify(_ context.Context, raw string) (*Session, error) {
	if raw == "" {
		return nil, ErrNoToken
	}

	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.leeway),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}

	return sessionFromClaims(claims)
}

// Chain — набор верификаторов, проверяемых по порядку.
// Первый успешный результат выигрывает.
type Chain []Verifier

// Verify реализует Verifier.
func (c Chain) Verify(ctx context.Context, raw string) (*Session, error) {
	if raw == "" {
		return nil, ErrNoToken
	}
	lastErr := ErrInvalidToken
	for _, v := range c {
		if v == nil {
			continue
		}
		s, err := v.Verify(ctx, raw)
		if err == nil {
			return s, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// FromRequest извлекает сырой токен из cookie cookieName
// или заголовка Authorization: Bearer <token>.
func FromRequest(r *http.Request, cookieName string) string {
	if cookieName != "" {
		if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
			return cookie.Value
		}
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
