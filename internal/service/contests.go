// contests.go — чтение и удаление контестов.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/fantasy-cricket/internal/domain/model"
	"github.com/bigkaa/fantasy-cricket/internal/repository"
)

// ContestService — сервис контестов.
type ContestService struct {
	contests repository.ContestRepository
	logger   *slog.Logger
}

// NewContestService создаёт сервис контестов.
func NewContestService(contests repository.ContestRepository, logger *slog.Logger) *ContestService {
	return &ContestService{
		contests: contests,
		logger:   logger.With(slog.String("component", "contest_service")),
	}
}

// List возвращает контесты. Пустой status — без фильтра.
func (s *ContestService) List(ctx context.Context, status string, page repository.Page) ([]*model.Contest, error) {
	var filter *string
	if status != "" {
		if !model.IsValidContestStatus(status) {
			return nil, fmt.Errorf("%w: недопустимый статус %q", ErrValidation, status)
		}
		filter = &status
	}
	contests, err := s.contests.List(ctx, filter, page)
	if err != nil {
		return nil, fmt.Errorf("получение контестов: %w", err)
	}
	return contests, nil
}

// Get возвращает контест по ID.
func (s *ContestService) Get(ctx context.Context, id string) (*model.Contest, error) {
	if !isUUID(id) {
		return nil, ErrNotFound
	}
	c, err := s.contests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение контеста: %w", err)
	}
	return c, nil
}

// Delete удаляет контест. actor — email администратора для аудита.
func (s *ContestService) Delete(ctx context.Context, id, actor string) error {
	if !isUUID(id) {
		return ErrNotFound
	}
	if err := s.contests.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("удаление контеста: %w", err)
	}
	s.logger.Info("Контест удалён",
		slog.String("contest_id", id),
		slog.String("actor", actor),
	)
	return nil
}
