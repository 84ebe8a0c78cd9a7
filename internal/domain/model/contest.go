package model

import "time"

// Статусы контеста.
const (
	ContestStatusUpcoming  = "UPCOMING"
	ContestStatusLive      = "LIVE"
	ContestStatusCompleted = "COMPLETED"
)

// IsValidContestStatus проверяет допустимость статуса контеста.
func IsValidContestStatus(s string) bool {
	switch s {
	case ContestStatusUpcoming, ContestStatusLive, ContestStatusCompleted:
		return true
	}
	return false
}

// Contest — платный контест по конкретному матчу.
type Contest struct {
	ID string
	// MatchID — идентификатор матча у провайдера данных
	MatchID string
	Name    string
	// EntryFee — взнос в минимальных единицах валюты (пайсы)
	EntryFee int64
	// PrizePool — призовой фонд в минимальных единицах
	PrizePool int64
	MaxEntries int
	Status     string
	// MatchStartAt — начало матча; после него контест переходит в LIVE
	MatchStartAt time.Time
	// CompletedAt — время завершения контеста (nil — ещё не завершён)
	CompletedAt *time.Time
	// PrizesDistributed — призы выплачены в кошельки победителей
	PrizesDistributed bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ContestEntry — участие команды пользователя в контесте.
type ContestEntry struct {
	ID        string
	ContestID string
	UserID    string
	TeamName  string
	Points    float64
	Rank      *int
	// PrizeAmount — выигрыш в минимальных единицах (0 — без приза)
	PrizeAmount int64
	CreatedAt   time.Time
}

// DistributionIssue — завершённый контест, по которому призы ещё не выплачены.
type DistributionIssue struct {
	ContestID   string
	ContestName string
	// Winners — количество участников с ненулевым призом
	Winners int
	// PendingAmount — сумма к выплате
	PendingAmount int64
	CompletedAt   time.Time
}

// DistributionResult — результат выплаты призов по одному контесту.
type DistributionResult struct {
	ContestID string
	// Credited — количество новых зачислений (повторный запуск даёт 0)
	Credited int
	// Amount — сумма новых зачислений
	Amount int64
}
