// distribution.go — контроль и исправление выплат призов по завершённым контестам.
//
// Выплата по одному контесту — одна транзакция: блокировка строки контеста,
// зачисление PRIZE каждому победителю (уникальный ключ user+contest+kind
// исключает двойное зачисление), установка prizes_distributed.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/fantasy-cricket/internal/domain/model"
	"github.com/bigkaa/fantasy-cricket/internal/repository"
)

// Distributor выплачивает призы одного контеста.
type Distributor interface {
	Distribute(ctx context.Context, contestID string) (*model.DistributionResult, error)
}

// TxDistributor — Distributor поверх транзакции PostgreSQL.
type TxDistributor struct {
	tx *repository.TxRunner
}

// NewTxDistributor создаёт Distributor, работающий в транзакциях runner.
func NewTxDistributor(runner *repository.TxRunner) *TxDistributor {
	return &TxDistributor{tx: runner}
}

// Distribute реализует Distributor.
// Контест не в статусе COMPLETED — ErrValidation; уже выплаченный — пустой результат.
func (d *TxDistributor) Distribute(ctx context.Context, contestID string) (*model.DistributionResult, error) {
	result := &model.DistributionResult{ContestID: contestID}

	err := d.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		contests := repository.NewContestRepository(tx)

		c, err := contests.LockForDistribution(ctx, contestID)
		if err != nil {
			return err
		}
		if c.Status != model.ContestStatusCompleted {
			return fmt.Errorf("%w: контест %s в статусе %s", ErrValidation, contestID, c.Status)
		}
		if c.PrizesDistributed {
			return nil
		}

		result.Credited, result.Amount, err = repository.NewWalletRepository(tx).CreditPrizes(ctx, contestID)
		if err != nil {
			return err
		}
		return contests.MarkDistributed(ctx, contestID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return result, nil
}

// FixReport — итог FixAll.
type FixReport struct {
	Results []*model.DistributionResult
	// Failed — контесты, по которым выплата не удалась (contest_id → ошибка)
	Failed map[string]string
}

// DistributionService — сервис контроля выплат призов.
type DistributionService struct {
	contests    repository.ContestRepository
	distributor Distributor
	logger      *slog.Logger
}

// NewDistributionService создаёт сервис выплат.
func NewDistributionService(
	contests repository.ContestRepository,
	distributor Distributor,
	logger *slog.Logger,
) *DistributionService {
	return &DistributionService{
		contests:    contests,
		distributor: distributor,
		logger:      logger.With(slog.String("component", "distribution_service")),
	}
}

// Status возвращает завершённые контесты с невыплаченными призами.
func (s *DistributionService) Status(ctx context.Context) ([]*model.DistributionIssue, error) {
	issues, err := s.contests.ListUndistributed(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение невыплаченных контестов: %w", err)
	}
	return issues, nil
}

// FixAll выплачивает призы по всем невыплаченным контестам.
// Ошибка по одному контесту не останавливает остальные.
func (s *DistributionService) FixAll(ctx context.Context) (*FixReport, error) {
	issues, err := s.Status(ctx)
	if err != nil {
		return nil, err
	}

	report := &FixReport{Failed: map[string]string{}}
	for _, issue := range issues {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		res, err := s.distributor.Distribute(ctx, issue.ContestID)
		if err != nil {
			s.logger.Error("Ошибка выплаты призов",
				slog.String("contest_id", issue.ContestID),
				slog.String("error", err.Error()),
			)
			report.Failed[issue.ContestID] = err.Error()
			continue
		}
		report.Results = append(report.Results, res)
		s.logger.Info("Призы выплачены",
			slog.String("contest_id", res.ContestID),
			slog.Int("credited", res.Credited),
			slog.Int64("amount", res.Amount),
		)
	}
	return report, nil
}
