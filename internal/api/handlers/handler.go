// handler.go — основной обработчик API Fantasy Cricket.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
// Проверка уровня доступа выполняется Route Guard до вызова обработчика.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bigkaa/fantasy-cricket/internal/authz"
	"github.com/bigkaa/fantasy-cricket/internal/domain/model"
	"github.com/bigkaa/fantasy-cricket/internal/repository"
	"github.com/bigkaa/fantasy-cricket/internal/service"
)

// AccountService — учётные записи (service.AccountService).
type AccountService interface {
	Register(ctx context.Context, email, plainPassword, name string) (*model.Principal, error)
	Login(ctx context.Context, email, plainPassword string) (*service.LoginResult, error)
	Profile(ctx context.Context, userID string) (*service.Profile, error)
	ListUsers(ctx context.Context, page repository.Page) ([]*model.Principal, int, error)
}

// ContestService — контесты (service.ContestService).
type ContestService interface {
	List(ctx context.Context, status string, page repository.Page) ([]*model.Contest, error)
	Get(ctx context.Context, id string) (*model.Contest, error)
	Delete(ctx context.Context, id, actor string) error
}

// WalletService — операции кошелька (service.WalletService).
type WalletService interface {
	Transactions(ctx context.Context, userID string, page repository.Page) ([]*model.WalletTransaction, error)
}

// DistributionService — контроль выплат призов (service.DistributionService).
type DistributionService interface {
	Status(ctx context.Context) ([]*model.DistributionIssue, error)
	FixAll(ctx context.Context) (*service.FixReport, error)
}

// Scheduler — live-scoring планировщик (service.LiveScoringScheduler).
type Scheduler interface {
	Start(ctx context.Context) (bool, error)
	Stop() bool
	Status() model.JobStatus
}

// WalletFixMonitor — монитор выплат (service.WalletFixMonitor).
type WalletFixMonitor interface {
	Start(ctx context.Context) bool
	Stop() bool
	Status() model.JobStatus
}

// AdminResolver — Role Resolver (authz.Resolver).
type AdminResolver interface {
	Resolve(ctx context.Context, ref *model.PrincipalRef, opts authz.Options) authz.Decision
}

// CookieConfig — параметры cookie сессии.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Deps — зависимости APIHandler.
type Deps struct {
	Health        *HealthHandler
	Accounts      AccountService
	Contests      ContestService
	Wallet        WalletService
	Distributions DistributionService
	Scheduler     Scheduler
	WalletFix     WalletFixMonitor
	Resolver      AdminResolver
	Cookie        CookieConfig
}

// APIHandler — основной обработчик API.
type APIHandler struct {
	Deps
	logger *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(deps Deps, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		Deps:   deps,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.Health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.Health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.Health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// pageFromQuery читает limit/offset из query. Некорректные значения
// заменяются значениями по умолчанию, ограничения применяет Page.Normalize.
func pageFromQuery(r *http.Request) repository.Page {
	var p repository.Page
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		p.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		p.Offset = v
	}
	return p.Normalize(500)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// --- Модели ответов ---

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt,omitempty"`
}

func mapUser(p *model.Principal) userResponse {
	resp := userResponse{
		ID:    p.ID,
		Email: p.Email,
		Name:  p.Name,
		Role:  p.Role.String(),
	}
	if !p.CreatedAt.IsZero() {
		resp.CreatedAt = formatTime(p.CreatedAt)
	}
	return resp
}

type contestResponse struct {
	ID                string  `json:"id"`
	MatchID           string  `json:"matchId"`
	Name              string  `json:"name"`
	EntryFee          int64   `json:"entryFee"`
	PrizePool         int64   `json:"prizePool"`
	MaxEntries        int     `json:"maxEntries"`
	Status            string  `json:"status"`
	MatchStartAt      string  `json:"matchStartAt"`
	CompletedAt       *string `json:"completedAt"`
	PrizesDistributed bool    `json:"prizesDistributed"`
}

func mapContest(c *model.Contest) contestResponse {
	return contestResponse{
		ID:                c.ID,
		MatchID:           c.MatchID,
		Name:              c.Name,
		EntryFee:          c.EntryFee,
		PrizePool:         c.PrizePool,
		MaxEntries:        c.MaxEntries,
		Status:            c.Status,
		MatchStartAt:      formatTime(c.MatchStartAt),
		CompletedAt:       formatTimePtr(c.CompletedAt),
		PrizesDistributed: c.PrizesDistributed,
	}
}

type transactionResponse struct {
	ID        string  `json:"id"`
	ContestID *string `json:"contestId"`
	Kind      string  `json:"kind"`
	Amount    int64   `json:"amount"`
	CreatedAt string  `json:"createdAt"`
}

func mapTransactions(txs []*model.WalletTransaction) []transactionResponse {
	items := make([]transactionResponse, len(txs))
	for i, t := range txs {
		items[i] = transactionResponse{
			ID:        t.ID,
			ContestID: t.ContestID,
			Kind:      t.Kind,
			Amount:    t.Amount,
			CreatedAt: formatTime(t.CreatedAt),
		}
	}
	return items
}

type jobStatusResponse struct {
	Name      string  `json:"name"`
	Running   bool    `json:"running"`
	LastRunAt *string `json:"lastRunAt"`
	LastError string  `json:"lastError,omitempty"`
	Runs      int64   `json:"runs"`
}

func mapJobStatus(s model.JobStatus) jobStatusResponse {
	return jobStatusResponse{
		Name:      s.Name,
		Running:   s.Running,
		LastRunAt: formatTimePtr(s.LastRunAt),
		LastError: s.LastError,
		Runs:      s.Runs,
	}
}
