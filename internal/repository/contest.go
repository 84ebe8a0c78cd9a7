package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/fantasy-cricket/internal/domain/model"
)

// ContestRepository — доступ к таблицам contests и contest_entries.
type ContestRepository interface {
	// Create создаёт контест.
	Create(ctx context.Context, c *model.Contest) error
	// GetByID возвращает контест по UUID.
	GetByID(ctx context.Context, id string) (*model.Contest, error)
	// List возвращает контесты, опционально с фильтром по статусу.
	List(ctx context.Context, status *string, page Page) ([]*model.Contest, error)
	// Delete удаляет контест вместе с участиями.
	Delete(ctx context.Context, id string) error
	// StartDue переводит в LIVE контесты UPCOMING, чей матч начался до now.
	// Возвращает количество переведённых.
	StartDue(ctx context.Context, now time.Time) (int64, error)
	// Complete переводит контест в COMPLETED.
	// ErrNotFound — контеста нет или он уже завершён.
	Complete(ctx context.Context, id string, at time.Time) error
	// AddEntry добавляет участие команды пользователя.
	AddEntry(ctx context.Context, e *model.ContestEntry) error
	// ListUndistributed возвращает завершённые контесты с невыплаченными призами.
	ListUndistributed(ctx context.Context) ([]*model.DistributionIssue, error)
	// LockForDistribution блокирует строку контеста (SELECT ... FOR UPDATE).
	// Должен вызываться внутри транзакции.
	LockForDistribution(ctx context.Context, id string) (*model.Contest, error)
	// MarkDistributed выставляет флаг prizes_distributed.
	MarkDistributed(ctx context.Context, id string) error
}

// contestRepo — реализация ContestRepository.
type contestRepo struct {
	db DBTX
}

// NewContestRepository создаёт репозиторий контестов.
func NewContestRepository(db DBTX) ContestRepository {
	return &contestRepo{db: db}
}

const contestColumns = `id, match_id, name, entry_fee, prize_pool, max_entries, status,
	match_start_at, completed_at, prizes_distributed, created_at, updated_at`

func scanContest(row pgx.Row) (*model.Contest, error) {
	c := &model.Contest{}
	err := row.Scan(
		&c.ID, &c.MatchID, &c.Name, &c.EntryFee, &c.PrizePool, &c.MaxEntries, &c.Status,
		&c.MatchStartAt, &c.CompletedAt, &c.PrizesDistributed, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *contestRepo) Create(ctx context.Context, c *model.Contest) error {
	if c.Status == "" {
		c.Status = model.ContestStatusUpcoming
	}
	query := `
		INSERT INTO contests (id, match_id, name, entry_fee, prize_pool, max_entries,
			status, match_start_at, completed_at, prizes_distributed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		c.ID, c.MatchID, c.Name, c.EntryFee, c.PrizePool, c.MaxEntries,
		c.Status, c.MatchStartAt, c.CompletedAt, c.PrizesDistributed,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: контест с таким ID уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания контеста: %w", err)
	}
	return nil
}

func (r *contestRepo) GetByID(ctx context.Context, id string) (*model.Contest, error) {
	query := fmt.Sprintf(`SELECT %s FROM contests WHERE id = $1`, contestColumns)

	c, err := scanContest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения контеста: %w", err)
	}
	return c, nil
}

func (r *contestRepo) List(ctx context.Context, status *string, page Page) ([]*model.Contest, error) {
	page = page.Normalize(200)

	where := ""
	args := []any{page.Limit, page.Offset}
	if status != nil {
		where = "WHERE status = $3"
		args = append(args, *status)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM contests
		%s
		ORDER BY match_start_at, id
		LIMIT $1 OFFSET $2`, contestColumns, where)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка контестов: %w", err)
	}
	defer rows.Close()

	var result []*model.Contest
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования контеста: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *contestRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM contests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления контеста: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *contestRepo) StartDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE contests SET status = 'LIVE'
		WHERE status = 'UPCOMING' AND match_start_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("ошибка запуска контестов: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *contestRepo) Complete(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE contests SET status = 'COMPLETED', completed_at = $2
		WHERE id = $1 AND status <> 'COMPLETED'`, id, at)
	if err != nil {
		return fmt.Errorf("ошибка завершения контеста: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *contestRepo) AddEntry(ctx context.Context, e *model.ContestEntry) error {
	query := `
		INSERT INTO contest_entries (id, contest_id, user_id, team_name, points, rank, prize_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		e.ID, e.ContestID, e.UserID, e.TeamName, e.Points, e.Rank, e.PrizeAmount,
	).Scan(&e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: команда уже участвует в контесте", ErrConflict)
		}
		return fmt.Errorf("ошибка добавления участия: %w", err)
	}
	return nil
}

func (r *contestRepo) ListUndistributed(ctx context.Context) ([]*model.DistributionIssue, error) {
	query := `
		SELECT c.id, c.name, c.completed_at,
			COUNT(DISTINCT e.user_id) FILTER (WHERE e.prize_amount > 0),
			COALESCE(SUM(e.prize_amount), 0)::bigint
		FROM contests c
		LEFT JOIN contest_entries e ON e.contest_id = c.id
		WHERE c.status = 'COMPLETED' AND NOT c.prizes_distributed
		GROUP BY c.id, c.name, c.completed_at
		ORDER BY c.completed_at NULLS FIRST, c.id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения невыплаченных контестов: %w", err)
	}
	defer rows.Close()

	var result []*model.DistributionIssue
	for rows.Next() {
		d := &model.DistributionIssue{}
		var completedAt *time.Time
		if err := rows.Scan(&d.ContestID, &d.ContestName, &completedAt, &d.Winners, &d.PendingAmount); err != nil {
			return nil, fmt.Errorf("ошибка сканирования контеста: %w", err)
		}
		if completedAt != nil {
			d.CompletedAt = *completedAt
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *contestRepo) LockForDistribution(ctx context.Context, id string) (*model.Contest, error) {
	query := fmt.Sprintf(`SELECT %s FROM contests WHERE id = $1 FOR UPDATE`, contestColumns)

	c, err := scanContest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка блокировки контеста: %w", err)
	}
	return c, nil
}

func (r *contestRepo) MarkDistributed(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE contests SET prizes_distributed = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка отметки выплаты: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
