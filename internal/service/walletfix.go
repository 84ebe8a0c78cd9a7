// walletfix.go — фоновый монитор выплат призов.
//
// WalletFixMonitor с интервалом FC_WALLET_FIX_INTERVAL вызывает
// DistributionService.FixAll. Запускается при старте процесса и через
// admin endpoints start-wallet-fix / stop-wallet-fix. Start и Stop
// идемпотентны: повторный вызов ничего не делает.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/fantasy-cricket/internal/domain/model"
)

// JobNameWalletFix — имя задачи в статусе и метриках.
const JobNameWalletFix = "wallet_fix"

// DistributionFixer — то, что монитор вызывает на каждом тике.
type DistributionFixer interface {
	FixAll(ctx context.Context) (*FixReport, error)
}

// WalletFixMonitor — фоновый монитор выплат.
type WalletFixMonitor struct {
	fixer    DistributionFixer
	interval time.Duration
	state    *jobState
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWalletFixMonitor создаёт монитор выплат.
func NewWalletFixMonitor(fixer DistributionFixer, interval time.Duration, logger *slog.Logger) *WalletFixMonitor {
	return &WalletFixMonitor{
		fixer:    fixer,
		interval: interval,
		state:    newJobState(JobNameWalletFix),
		logger:   logger.With(slog.String("component", "wallet_fix_monitor")),
	}
}

// Start запускает фоновую горутину. Возвращает false, если монитор уже запущен.
// Отмена ctx вызывающего (например, HTTP-запроса) монитор не останавливает.
func (m *WalletFixMonitor) Start(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return false
	}

	ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	m.done = make(chan struct{})
	m.state.setRunning(true)

	go m.loop(ctx, m.done)

	m.logger.Info("Монитор выплат запущен", slog.String("interval", m.interval.String()))
	return true
}

func (m *WalletFixMonitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// Stop останавливает монитор и ждёт завершения текущего прохода.
// Возвращает false, если монитор не был запущен.
func (m *WalletFixMonitor) Stop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return false
	}

	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
	m.state.setRunning(false)

	m.logger.Info("Монитор выплат остановлен")
	return true
}

// RunOnce выполняет один проход исправления выплат.
func (m *WalletFixMonitor) RunOnce(ctx context.Context) {
	startedAt := time.Now()
	report, err := m.fixer.FixAll(ctx)
	m.state.record(startedAt, err)

	if err != nil {
		m.logger.Error("Ошибка прохода монитора выплат", slog.String("error", err.Error()))
		return
	}
	if len(report.Results) > 0 || len(report.Failed) > 0 {
		m.logger.Info("Проход монитора выплат завершён",
			slog.Int("fixed", len(report.Results)),
			slog.Int("failed", len(report.Failed)),
		)
	}
}

// Status возвращает состояние монитора.
func (m *WalletFixMonitor) Status() model.JobStatus {
	return m.state.status()
}
