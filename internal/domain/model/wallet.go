package model

import "time"

// Типы операций кошелька.
const (
	TransactionKindDeposit  = "DEPOSIT"
	TransactionKindEntryFee = "ENTRY_FEE"
	TransactionKindPrize    = "PRIZE"
	TransactionKindRefund   = "REFUND"
)

// WalletTransaction — операция по кошельку пользователя.
type WalletTransaction struct {
	ID     string
	UserID string
	// ContestID — контест, к которому относится операция (nil для депозитов)
	ContestID *string
	Kind      string
	// Amount — сумма в минимальных единицах; положительная — зачисление
	Amount    int64
	CreatedAt time.Time
}

// JobStatus — состояние фоновой задачи для admin endpoints.
type JobStatus struct {
	Name    string
	Running bool
	// LastRunAt — время последнего запуска (nil — ещё не запускалась)
	LastRunAt *time.Time
	// LastError — ошибка последнего запуска
	LastError string
	// Runs — количество запусков с момента старта процесса
	Runs int64
}
