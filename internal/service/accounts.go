// Пакет service — бизнес-логика Fantasy Cricket.
// accounts.go — регистрация, логин (выпуск сессионного токена), профиль,
// список пользователей и продвижение администраторов из allowlist.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/fantasy-cricket/internal/auth/password"
	"github.com/bigkaa/fantasy-cricket/internal/domain/model"
	"github.com/bigkaa/fantasy-cricket/internal/domain/rbac"
	"github.com/bigkaa/fantasy-cricket/internal/repository"
)

// TokenIssuer выпускает сессионный токен для принципала.
type TokenIssuer interface {
	Issue(p *model.Principal) (string, time.Time, error)
}

// RoleCachePurger сбрасывает кэш ролей после изменения ролей в БД.
type RoleCachePurger interface {
	PurgeCache()
}

// LoginResult — результат успешного логина.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Principal *model.Principal
}

// Profile — профиль пользователя с балансом кошелька.
type Profile struct {
	Principal *model.Principal
	Balance   int64
}

// AccountService — сервис учётных записей.
type AccountService struct {
	principals repository.PrincipalRepository
	wallet     repository.WalletRepository
	tokens     TokenIssuer
	allowlist  *rbac.Allowlist
	purger     RoleCachePurger
	logger     *slog.Logger
}

// NewAccountService создаёт сервис учётных записей.
// purger может быть nil.
func NewAccountService(
	principals repository.PrincipalRepository,
	wallet repository.WalletRepository,
	tokens TokenIssuer,
	allowlist *rbac.Allowlist,
	purger RoleCachePurger,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		principals: principals,
		wallet:     wallet,
		tokens:     tokens,
		allowlist:  allowlist,
		purger:     purger,
		logger:     logger.With(slog.String("component", "account_service")),
	}
}

// Register создаёт пользователя с ролью USER.
// Членство в allowlist роль не меняет: повышение только через PromoteAdmins.
func (s *AccountService) Register(ctx context.Context, email, plainPassword, name string) (*model.Principal, error) {
	email = rbac.NormalizeEmail(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, fmt.Errorf("%w: некорректный email", ErrValidation)
	}
	if len(plainPassword) < password.MinLength {
		return nil, fmt.Errorf("%w: пароль должен быть не короче %d символов", ErrValidation, password.MinLength)
	}
	name = strings.TrimSpace(name)
	if len(name) > 100 {
		return nil, fmt.Errorf("%w: имя длиннее 100 символов", ErrValidation)
	}

	hash, err := password.Hash(plainPassword)
	if err != nil {
		return nil, err
	}

	p := &model.Principal{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         rbac.RoleUser,
	}
	if err := s.principals.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: пользователь с таким email уже существует", ErrConflict)
		}
		return nil, fmt.Errorf("регистрация пользователя: %w", err)
	}

	s.logger.Info("Пользователь зарегистрирован",
		slog.String("user_id", p.ID),
		slog.String("email", p.Email),
	)
	return p, nil
}

// Login проверяет пароль и выпускает токен с ролью из БД на момент логина.
func (s *AccountService) Login(ctx context.Context, email, plainPassword string) (*LoginResult, error) {
	p, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("поиск пользователя: %w", err)
	}
	if err := password.Compare(p.PasswordHash, plainPassword); err != nil {
		s.logger.Info("Неудачная попытка входа", slog.String("email", p.Email))
		return nil, ErrInvalidCredentials
	}

	raw, expiresAt, err := s.tokens.Issue(p)
	if err != nil {
		return nil, fmt.Errorf("выпуск токена: %w", err)
	}

	s.logger.Info("Пользователь вошёл",
		slog.String("user_id", p.ID),
		slog.String("email", p.Email),
		slog.String("role", p.Role.String()),
	)
	return &LoginResult{Token: raw, ExpiresAt: expiresAt, Principal: p}, nil
}

// Profile возвращает профиль пользователя с балансом.
func (s *AccountService) Profile(ctx context.Context, userID string) (*Profile, error) {
	if !isUUID(userID) {
		return nil, ErrNotFound
	}
	p, err := s.principals.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	balance, err := s.wallet.Balance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("получение баланса: %w", err)
	}
	return &Profile{Principal: p, Balance: balance}, nil
}

// ListUsers возвращает страницу пользователей и общее количество.
func (s *AccountService) ListUsers(ctx context.Context, page repository.Page) ([]*model.Principal, int, error) {
	users, err := s.principals.List(ctx, page)
	if err != nil {
		return nil, 0, fmt.Errorf("получение пользователей: %w", err)
	}
	total, err := s.principals.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт пользователей: %w", err)
	}
	return users, total, nil
}

// PromoteAdmins сохраняет роль ADMIN существующим пользователям из allowlist
// и extra. Уже выпущенные токены не меняются до перелогина, но strong check
// видит новую роль сразу (кэш ролей сбрасывается).
func (s *AccountService) PromoteAdmins(ctx context.Context, extra []string) ([]string, error) {
	emails := append(s.allowlist.Emails(), extra...)
	if len(emails) == 0 {
		return nil, nil
	}

	promoted, err := s.principals.PromoteByEmails(ctx, emails)
	if err != nil {
		return nil, fmt.Errorf("повышение администраторов: %w", err)
	}

	if len(promoted) > 0 && s.purger != nil {
		s.purger.PurgeCache()
	}

	s.logger.Info("Администраторы из allowlist повышены",
		slog.Int("candidates", len(emails)),
		slog.Int("promoted", len(promoted)),
	)
	return promoted, nil
}

// SetRole меняет сохранённую роль пользователя по email (в том числе
// понижение ADMIN → USER). Возвращает прежнюю роль. Выпущенные токены
// сохраняют старую роль до истечения срока.
func (s *AccountService) SetRole(ctx context.Context, email string, role rbac.Role) (rbac.Role, error) {
	if !role.IsValid() {
		return rbac.RoleUnknown, fmt.Errorf("%w: недопустимая роль %q", ErrValidation, role)
	}
	p, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return rbac.RoleUnknown, ErrNotFound
		}
		return rbac.RoleUnknown, fmt.Errorf("получение пользователя: %w", err)
	}
	if p.Role == role {
		return p.Role, nil
	}
	if err := s.principals.SetRole(ctx, p.ID, role); err != nil {
		return rbac.RoleUnknown, fmt.Errorf("изменение роли: %w", err)
	}
	if s.purger != nil {
		s.purger.PurgeCache()
	}

	s.logger.Info("Роль пользователя изменена",
		slog.String("email", p.Email),
		slog.String("from", p.Role.String()),
		slog.String("to", role.String()),
	)
	return p.Role, nil
}
