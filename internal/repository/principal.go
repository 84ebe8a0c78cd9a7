package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/fantasy-cricket/internal/domain/model"
	"github.com/bigkaa/fantasy-cricket/internal/domain/rbac"
)

// PrincipalRepository — доступ к таблице users.
type PrincipalRepository interface {
	// Create создаёт пользователя. Дублирующийся email — ErrConflict.
	Create(ctx context.Context, p *model.Principal) error
	// GetByID возвращает пользователя по UUID.
	GetByID(ctx context.Context, id string) (*model.Principal, error)
	// GetByEmail возвращает пользователя по email (без учёта регистра).
	GetByEmail(ctx context.Context, email string) (*model.Principal, error)
	// List возвращает пользователей (новые первыми).
	List(ctx context.Context, page Page) ([]*model.Principal, error)
	// Count возвращает количество пользователей.
	Count(ctx context.Context) (int, error)
	// RoleByID возвращает сохранённую роль пользователя. ID не UUID — ErrNotFound.
	RoleByID(ctx context.Context, id string) (rbac.Role, error)
	// RoleByEmail возвращает сохранённую роль пользователя по email.
	RoleByEmail(ctx context.Context, email string) (rbac.Role, error)
	// SetRole меняет роль пользователя.
	SetRole(ctx context.Context, id string, role rbac.Role) error
	// PromoteByEmails назначает ADMIN существующим пользователям из списка.
	// Возвращает email реально повышенных (уже ADMIN не учитываются).
	PromoteByEmails(ctx context.Context, emails []string) ([]string, error)
}

// principalRepo — реализация PrincipalRepository.
type principalRepo struct {
	db DBTX
}

// NewPrincipalRepository создаёт репозиторий пользователей.
func NewPrincipalRepository(db DBTX) PrincipalRepository {
	return &principalRepo{db: db}
}

const principalColumns = `id, email, name, password_hash, role, created_at, updated_at`

func scanPrincipal(row pgx.Row) (*model.Principal, error) {
	p := &model.Principal{}
	var role string
	if err := row.Scan(&p.ID, &p.Email, &p.Name, &p.PasswordHash, &role, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Role = rbac.ParseRole(role)
	return p, nil
}

func (r *principalRepo) Create(ctx context.Context, p *model.Principal) error {
	if !p.Role.IsValid() {
		p.Role = rbac.RoleUser
	}
	p.Email = rbac.NormalizeEmail(p.Email)

	query := `
		INSERT INTO users (id, email, name, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		p.ID, p.Email, p.Name, p.PasswordHash, p.Role.String(),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: пользователь с таким email уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

func (r *principalRepo) GetByID(ctx context.Context, id string) (*model.Principal, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, principalColumns)

	p, err := scanPrincipal(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return p, nil
}

func (r *principalRepo) GetByEmail(ctx context.Context, email string) (*model.Principal, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE lower(email) = $1`, principalColumns)

	p, err := scanPrincipal(r.db.QueryRow(ctx, query, rbac.NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя по email: %w", err)
	}
	return p, nil
}

func (r *principalRepo) List(ctx context.Context, page Page) ([]*model.Principal, error) {
	page = page.Normalize(500)
	query := fmt.Sprintf(`
		SELECT %s
		FROM users
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`, principalColumns)

	rows, err := r.db.Query(ctx, query, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка пользователей: %w", err)
	}
	defer rows.Close()

	var result []*model.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *principalRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта пользователей: %w", err)
	}
	return count, nil
}

func (r *principalRepo) RoleByID(ctx context.Context, id string) (rbac.Role, error) {
	if _, err := uuid.Parse(id); err != nil {
		return rbac.RoleUnknown, ErrNotFound
	}
	var role string
	err := r.db.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, id).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.RoleUnknown, ErrNotFound
		}
		return rbac.RoleUnknown, fmt.Errorf("ошибка чтения роли: %w", err)
	}
	return rbac.ParseRole(role), nil
}

func (r *principalRepo) RoleByEmail(ctx context.Context, email string) (rbac.Role, error) {
	var role string
	err := r.db.QueryRow(ctx, `SELECT role FROM users WHERE lower(email) = $1`,
		rbac.NormalizeEmail(email)).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.RoleUnknown, ErrNotFound
		}
		return rbac.RoleUnknown, fmt.Errorf("ошибка чтения роли по email: %w", err)
	}
	return rbac.ParseRole(role), nil
}

func (r *principalRepo) SetRole(ctx context.Context, id string, role rbac.Role) error {
	if !role.IsValid() {
		return fmt.Errorf("недопустимая роль %q", role)
	}
	tag, err := r.db.Exec(ctx, `UPDATE users SET role = $2 WHERE id = $1`, id, role.String())
	if err != nil {
		return fmt.Errorf("ошибка изменения роли: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *principalRepo) PromoteByEmails(ctx context.Context, emails []string) ([]string, error) {
	normalized := make([]string, 0, len(emails))
	for _, e := range emails {
		if n := rbac.NormalizeEmail(e); n != "" {
			normalized = append(normalized, n)
		}
	}
	if len(normalized) == 0 {
		return nil, nil
	}

	query := `
		UPDATE users SET role = 'ADMIN'
		WHERE lower(email) = ANY($1) AND role <> 'ADMIN'
		RETURNING email`

	rows, err := r.db.Query(ctx, query, normalized)
	if err != nil {
		return nil, fmt.Errorf("ошибка повышения пользователей: %w", err)
	}
	defer rows.Close()

	var promoted []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("ошибка сканирования email: %w", err)
		}
		promoted = append(promoted, email)
	}
	return promoted, rows.Err()
}
