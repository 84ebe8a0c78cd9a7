// admin.go — обработчики /api/admin endpoints.
// check-admin и simple-check доступны всем и отвечают, является ли вызывающий
// администратором. Остальные endpoints защищены Route Guard уровня admin.
package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/fantasy-cricket/internal/api/errors"
	"github.com/bigkaa/fantasy-cricket/internal/api/middleware"
	"github.com/bigkaa/fantasy-cricket/internal/authz"
	"github.com/bigkaa/fantasy-cricket/internal/service"
)

const checkAdminFailedMessage = "Failed to verify admin status"

type checkAdminResponse struct {
	IsAdmin bool   `json:"isAdmin"`
	Error   string `json:"error,omitempty"`
}

type simpleCheckSession struct {
	Authenticated bool         `json:"authenticated"`
	User          *sessionUser `json:"user"`
}

type simpleCheckResponse struct {
	IsAdmin bool               `json:"isAdmin"`
	Session simpleCheckSession `json:"session"`
	Error   string             `json:"error,omitempty"`
}

// resolveCaller — strong check для вызывающего (анонимный → false без БД).
func (h *APIHandler) resolveCaller(r *http.Request) authz.Decision {
	s := middleware.SessionFromContext(r.Context())
	return h.Resolver.Resolve(r.Context(), s.Ref(), authz.Options{
		Strong: true,
		Layer:  authz.LayerCheckAdmin,
	})
}

// CheckAdmin — GET /api/admin/check-admin.
// 200 {isAdmin}; при сбое хранилища 500 {isAdmin:false, error}.
func (h *APIHandler) CheckAdmin(w http.ResponseWriter, r *http.Request) {
	d := h.resolveCaller(r)
	if d.Err != nil {
		writeJSON(w, http.StatusInternalServerError, checkAdminResponse{
			IsAdmin: false,
			Error:   checkAdminFailedMessage,
		})
		return
	}
	writeJSON(w, http.StatusOK, checkAdminResponse{IsAdmin: d.IsAdmin})
}

// SimpleCheck — GET /api/admin/simple-check.
// Как check-admin, плюс сведения о сессии.
func (h *APIHandler) SimpleCheck(w http.ResponseWriter, r *http.Request) {
	s := middleware.SessionFromContext(r.Context())
	resp := simpleCheckResponse{}
	if s != nil {
		resp.Session = simpleCheckSession{
			Authenticated: true,
			User:          &sessionUser{ID: s.UserID, Email: s.Email, Role: s.Role.String()},
		}
	}

	d := h.resolveCaller(r)
	if d.Err != nil {
		resp.Error = checkAdminFailedMessage
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	resp.IsAdmin = d.IsAdmin
	writeJSON(w, http.StatusOK, resp)
}

type userListResponse struct {
	Items   []userResponse `json:"items"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
	HasMore bool           `json:"hasMore"`
}

// ListUsers — GET /api/admin/users.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)

	users, total, err := h.Accounts.ListUsers(r.Context(), page)
	if err != nil {
		h.logger.Error("Ошибка получения списка пользователей", "error", err)
		apierrors.InternalError(w, "Failed to list users")
		return
	}

	items := make([]userResponse, len(users))
	for i, u := range users {
		items[i] = mapUser(u)
	}

	writeJSON(w, http.StatusOK, userListResponse{
		Items:   items,
		Total:   total,
		Limit:   page.Limit,
		Offset:  page.Offset,
		HasMore: page.Offset+page.Limit < total,
	})
}

// UserTransactions — GET /api/admin/users/{id}/transactions.
func (h *APIHandler) UserTransactions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	txs, err := h.Wallet.Transactions(r.Context(), id, pageFromQuery(r))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "User not found")
			return
		}
		h.logger.Error("Ошибка получения операций пользователя", "user_id", id, "error", err)
		apierrors.InternalError(w, "Failed to load transactions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": mapTransactions(txs)})
}

// DeleteContest — DELETE /api/admin/contests/{id}.
func (h *APIHandler) DeleteContest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := ""
	if s := middleware.SessionFromContext(r.Context()); s != nil {
		actor = s.Email
	}

	if err := h.Contests.Delete(r.Context(), id, actor); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Contest not found")
			return
		}
		h.logger.Error("Ошибка удаления контеста", "contest_id", id, "error", err)
		apierrors.InternalError(w, "Failed to delete contest")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type jobActionResponse struct {
	// Changed — false, если задача уже была в запрошенном состоянии
	Changed bool              `json:"changed"`
	Status  jobStatusResponse `json:"status"`
}

// StartScheduler — POST /api/admin/scheduler/start. Идемпотентен.
func (h *APIHandler) StartScheduler(w http.ResponseWriter, r *http.Request) {
	started, err := h.Scheduler.Start(r.Context())
	if err != nil {
		h.logger.Error("Ошибка запуска планировщика", "error", err)
		apierrors.InternalError(w, "Failed to start scheduler")
		return
	}
	writeJSON(w, http.StatusOK, jobActionResponse{Changed: started, Status: mapJobStatus(h.Scheduler.Status())})
}

// StopScheduler — POST /api/admin/scheduler/stop. Идемпотентен.
func (h *APIHandler) StopScheduler(w http.ResponseWriter, _ *http.Request) {
	stopped := h.Scheduler.Stop()
	writeJSON(w, http.StatusOK, jobActionResponse{Changed: stopped, Status: mapJobStatus(h.Scheduler.Status())})
}

// SchedulerStatus — GET /api/admin/scheduler/status.
func (h *APIHandler) SchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, mapJobStatus(h.Scheduler.Status()))
}

// StartWalletFix — POST /api/admin/start-wallet-fix. Идемпотентен.
func (h *APIHandler) StartWalletFix(w http.ResponseWriter, r *http.Request) {
	started := h.WalletFix.Start(r.Context())
	writeJSON(w, http.StatusOK, jobActionResponse{Changed: started, Status: mapJobStatus(h.WalletFix.Status())})
}

// StopWalletFix — POST /api/admin/stop-wallet-fix. Идемпотентен.
func (h *APIHandler) StopWalletFix(w http.ResponseWriter, _ *http.Request) {
	stopped := h.WalletFix.Stop()
	writeJSON(w, http.StatusOK, jobActionResponse{Changed: stopped, Status: mapJobStatus(h.WalletFix.Status())})
}

// WalletFixStatus — GET /api/admin/wallet-fix/status.
func (h *APIHandler) WalletFixStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, mapJobStatus(h.WalletFix.Status()))
}

type distributionIssueResponse struct {
	ContestID     string `json:"contestId"`
	ContestName   string `json:"contestName"`
	Winners       int    `json:"winners"`
	PendingAmount int64  `json:"pendingAmount"`
	CompletedAt   string `json:"completedAt,omitempty"`
}

// DistributionStatus — GET /api/admin/distributions/status.
func (h *APIHandler) DistributionStatus(w http.ResponseWriter, r *http.Request) {
	issues, err := h.Distributions.Status(r.Context())
	if err != nil {
		h.logger.Error("Ошибка получения статуса выплат", "error", err)
		apierrors.InternalError(w, "Failed to load distribution status")
		return
	}

	items := make([]distributionIssueResponse, len(issues))
	for i, d := range issues {
		items[i] = distributionIssueResponse{
			ContestID:     d.ContestID,
			ContestName:   d.ContestName,
			Winners:       d.Winners,
			PendingAmount: d.PendingAmount,
		}
		if !d.CompletedAt.IsZero() {
			items[i].CompletedAt = formatTime(d.CompletedAt)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

type distributionResultResponse struct {
	ContestID string `json:"contestId"`
	Credited  int    `json:"credited"`
	Amount    int64  `json:"amount"`
}

type fixReportResponse struct {
	Results []distributionResultResponse `json:"results"`
	Failed  map[string]string            `json:"failed"`
}

// FixDistributions — POST /api/admin/fix-distributions.
// Повторный вызов безопасен: уже зачисленные призы не дублируются.
func (h *APIHandler) FixDistributions(w http.ResponseWriter, r *http.Request) {
	report, err := h.Distributions.FixAll(r.Context())
	if err != nil && report == nil {
		h.logger.Error("Ошибка выплаты призов", "error", err)
		apierrors.InternalError(w, "Failed to fix distributions")
		return
	}

	resp := fixReportResponse{
		Results: make([]distributionResultResponse, len(report.Results)),
		Failed:  report.Failed,
	}
	for i, res := range report.Results {
		resp.Results[i] = distributionResultResponse{
			ContestID: res.ContestID,
			Credited:  res.Credited,
			Amount:    res.Amount,
		}
	}
	if resp.Failed == nil {
		resp.Failed = map[string]string{}
	}
	writeJSON(w, http.StatusOK, resp)
}
