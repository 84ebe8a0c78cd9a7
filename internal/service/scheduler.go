// scheduler.go — live-scoring планировщик на robfig/cron.
//
// По расписанию FC_LIVE_SCORING_SCHEDULE переводит контесты UPCOMING,
// чей матч уже начался, в LIVE. Start и Stop идемпотентны.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bigkaa/fantasy-cricket/internal/domain/model"
)

// JobNameLiveScoring — имя задачи в статусе и метриках.
const JobNameLiveScoring = "live_scoring"

// ContestStarter переводит начавшиеся контесты в LIVE.
type ContestStarter interface {
	StartDue(ctx context.Context, now time.Time) (int64, error)
}

// LiveScoringScheduler — cron-планировщик live-scoring.
type LiveScoringScheduler struct {
	starter  ContestStarter
	schedule string
	state    *jobState
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewLiveScoringScheduler создаёт планировщик. Некорректное расписание — ошибка.
func NewLiveScoringScheduler(starter ContestStarter, schedule string, logger *slog.Logger) (*LiveScoringScheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("некорректное расписание %q: %w", schedule, err)
	}
	return &LiveScoringScheduler{
		starter:  starter,
		schedule: schedule,
		state:    newJobState(JobNameLiveScoring),
		logger:   logger.With(slog.String("component", "live_scoring")),
		now:      time.Now,
	}, nil
}

// Start запускает планировщик. Возвращает false, если он уже запущен.
func (s *LiveScoringScheduler) Start(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return false, nil
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		cancel()
		return false, fmt.Errorf("добавление задачи live-scoring: %w", err)
	}
	c.Start()

	s.cron = c
	s.cancel = cancel
	s.state.setRunning(true)

	s.logger.Info("Планировщик live-scoring запущен", slog.String("schedule", s.schedule))
	return true, nil
}

// Stop останавливает планировщик и ждёт завершения выполняющейся задачи.
// Возвращает false, если планировщик не был запущен.
func (s *LiveScoringScheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return false
	}

	s.cancel()
	<-s.cron.Stop().Done()
	s.cron = nil
	s.cancel = nil
	s.state.setRunning(false)

	s.logger.Info("Планировщик live-scoring остановлен")
	return true
}

// RunOnce выполняет один проход: переводит начавшиеся контесты в LIVE.
func (s *LiveScoringScheduler) RunOnce(ctx context.Context) {
	startedAt := time.Now()
	started, err := s.starter.StartDue(ctx, s.now())
	s.state.record(startedAt, err)

	if err != nil {
		s.logger.Error("Ошибка прохода live-scoring", slog.String("error", err.Error()))
		return
	}
	if started > 0 {
		s.logger.Info("Контесты переведены в LIVE", slog.Int64("count", started))
	}
}

// Status возвращает состояние планировщика.
func (s *LiveScoringScheduler) Status() model.JobStatus {
	return s.state.status()
}
