package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/fantasy-cricket/internal/domain/model"
)

// WalletRepository — доступ к таблице wallet_transactions.
type WalletRepository interface {
	// Create добавляет операцию.
	Create(ctx context.Context, t *model.WalletTransaction) error
	// ListByUser возвращает операции пользователя (новые первыми).
	ListByUser(ctx context.Context, userID string, page Page) ([]*model.WalletTransaction, error)
	// Balance возвращает баланс пользователя (сумма всех операций).
	Balance(ctx context.Context, userID string) (int64, error)
	// CreditPrizes зачисляет призы победителям контеста: одна операция PRIZE
	// на пользователя. Уже зачисленные пропускаются.
	// Возвращает количество и сумму новых зачислений.
	CreditPrizes(ctx context.Context, contestID string) (int, int64, error)
}

// walletRepo — реализация WalletRepository.
type walletRepo struct {
	db DBTX
}

// NewWalletRepository создаёт репозиторий операций кошелька.
func NewWalletRepository(db DBTX) WalletRepository {
	return &walletRepo{db: db}
}

func (r *walletRepo) Create(ctx context.Context, t *model.WalletTransaction) error {
	query := `
		INSERT INTO wallet_transactions (id, user_id, contest_id, kind, amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query, t.ID, t.UserID, t.ContestID, t.Kind, t.Amount).Scan(&t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: операция уже проведена", ErrConflict)
		}
		return fmt.Errorf("ошибка создания операции: %w", err)
	}
	return nil
}

func (r *walletRepo) ListByUser(ctx context.Context, userID string, page Page) ([]*model.WalletTransaction, error) {
	page = page.Normalize(500)
	query := `
		SELECT id, user_id, contest_id, kind, amount, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения операций: %w", err)
	}
	defer rows.Close()

	var result []*model.WalletTransaction
	for rows.Next() {
		t := &model.WalletTransaction{}
		if err := rows.Scan(&t.ID, &t.UserID, &t.ContestID, &t.Kind, &t.Amount, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования операции: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *walletRepo) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::bigint FROM wallet_transactions WHERE user_id = $1`, userID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта баланса: %w", err)
	}
	return balance, nil
}

func (r *walletRepo) CreditPrizes(ctx context.Context, contestID string) (int, int64, error) {
	query := `
		INSERT INTO wallet_transactions (id, user_id, contest_id, kind, amount)
		SELECT gen_random_uuid(), e.user_id, e.contest_id, 'PRIZE', SUM(e.prize_amount)
		FROM contest_entries e
		WHERE e.contest_id = $1 AND e.prize_amount > 0
		GROUP BY e.user_id, e.contest_id
		ON CONFLICT (user_id, contest_id, kind) WHERE kind = 'PRIZE' DO NOTHING
		RETURNING amount`

	rows, err := r.db.Query(ctx, query, contestID)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка зачисления призов: %w", err)
	}
	defer rows.Close()

	var (
		credited int
		total    int64
	)
	for rows.Next() {
		var amount int64
		if err := rows.Scan(&amount); err != nil {
			return 0, 0, fmt.Errorf("ошибка сканирования зачисления: %w", err)
		}
		credited++
		total += amount
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("ошибка зачисления призов: %w", err)
	}
	return credited, total, nil
}
