// profile.go — обработчики для аутентифицированного пользователя:
// профиль и собственные операции кошелька.
package handlers

import (
	"errors"
	"net/http"

	apierrors "github.com/bigkaa/fantasy-cricket/internal/api/errors"
	"github.com/bigkaa/fantasy-cricket/internal/api/middleware"
	"github.com/bigkaa/fantasy-cricket/internal/service"
)

type profileResponse struct {
	User    userResponse `json:"user"`
	Balance int64        `json:"balance"`
}

// GetProfile — GET /api/profile.
func (h *APIHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	s := middleware.SessionFromContext(r.Context())
	if s == nil {
		apierrors.Unauthenticated(w)
		return
	}

	p, err := h.Accounts.Profile(r.Context(), s.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "User not found")
			return
		}
		h.logger.Error("Ошибка получения профиля", "user_id", s.UserID, "error", err)
		apierrors.InternalError(w, "Failed to load profile")
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{User: mapUser(p.Principal), Balance: p.Balance})
}

// MyTransactions — GET /api/wallet/transactions.
func (h *APIHandler) MyTransactions(w http.ResponseWriter, r *http.Request) {
	s := middleware.SessionFromContext(r.Context())
	if s == nil {
		apierrors.Unauthenticated(w)
		return
	}

	txs, err := h.Wallet.Transactions(r.Context(), s.UserID, pageFromQuery(r))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "User not found")
			return
		}
		h.logger.Error("Ошибка получения операций", "user_id", s.UserID, "error", err)
		apierrors.InternalError(w, "Failed to load transactions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": mapTransactions(txs)})
}
