// Пакет lifecycle — стартовые задачи процесса (проверка БД, bootstrap
// администраторов, запуск фоновых задач) с повторами и флагом готовности.
// Задачи выполняются один раз при инициализации процесса, не на запросах.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrAlreadyStarted — Run уже вызывался.
var ErrAlreadyStarted = errors.New("стартовые задачи уже выполнялись")

// Task — именованная стартовая задача.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Permanent помечает ошибку задачи как неисправимую: повторов не будет.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Startup — упорядоченный список стартовых задач.
type Startup struct {
	tasks           []Task
	maxElapsed      time.Duration
	initialInterval time.Duration
	logger          *slog.Logger

	once    sync.Once
	ready   atomic.Bool
	mu      sync.Mutex
	pending string
	lastErr error
}

// New создаёт Startup. maxElapsed — предельное время повторов одной задачи.
func New(maxElapsed time.Duration, logger *slog.Logger) *Startup {
	return &Startup{
		maxElapsed:      maxElapsed,
		initialInterval: 500 * time.Millisecond,
		logger:          logger.With(slog.String("component", "lifecycle")),
	}
}

// Add добавляет задачу в конец списка. Вызывается до Run.
func (s *Startup) Add(name string, fn func(ctx context.Context) error) {
	s.tasks = append(s.tasks, Task{Name: name, Run: fn})
}

// Run выполняет задачи по порядку. Каждая задача повторяется с экспоненциальной
// задержкой, пока не выполнится или не истечёт maxElapsed. Первая неудачная
// задача останавливает запуск. Повторный вызов возвращает ErrAlreadyStarted.
func (s *Startup) Run(ctx context.Context) error {
	err := ErrAlreadyStarted
	s.once.Do(func() {
		err = s.run(ctx)
	})
	return err
}

func (s *Startup) run(ctx context.Context) error {
	for _, task := range s.tasks {
		s.setPending(task.Name, nil)
		start := time.Now()

		if err := s.runTask(ctx, task); err != nil {
			s.setPending(task.Name, err)
			s.logger.Error("Стартовая задача не выполнена",
				slog.String("task", task.Name),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("стартовая задача %s: %w", task.Name, err)
		}

		s.logger.Info("Стартовая задача выполнена",
			slog.String("task", task.Name),
			slog.Duration("duration", time.Since(start)),
		)
	}

	s.setPending("", nil)
	s.ready.Store(true)
	s.logger.Info("Все стартовые задачи выполнены", slog.Int("tasks", len(s.tasks)))
	return nil
}

func (s *Startup) runTask(ctx context.Context, task Task) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialInterval
	b.MaxElapsedTime = s.maxElapsed

	attempt := 0
	op := func() error {
		attempt++
		return task.Run(ctx)
	}
	notify := func(err error, next time.Duration) {
		s.logger.Warn("Стартовая задача завершилась ошибкой, повтор",
			slog.String("task", task.Name),
			slog.Int("attempt", attempt),
			slog.Duration("next_in", next),
			slog.String("error", err.Error()),
		)
	}

	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
}

func (s *Startup) setPending(name string, err error) {
	s.mu.Lock()
	s.pending = name
	s.lastErr = err
	s.mu.Unlock()
}

// Ready — true после успешного выполнения всех задач.
func (s *Startup) Ready() bool {
	return s.ready.Load()
}

// CheckReady реализует проверку готовности для /health/ready.
// Возвращает статус ("ok", "fail") и сообщение.
func (s *Startup) CheckReady() (status string, message string) {
	if s.Ready() {
		return "ok", "стартовые задачи выполнены"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.lastErr != nil:
		return "fail", fmt.Sprintf("задача %s: %v", s.pending, s.lastErr)
	case s.pending != "":
		return "fail", fmt.Sprintf("выполняется задача %s", s.pending)
	default:
		return "fail", "стартовые задачи не запускались"
	}
}
