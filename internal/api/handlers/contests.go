// contests.go — публичные обработчики /api/contests.
package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/fantasy-cricket/internal/api/errors"
	"github.com/bigkaa/fantasy-cricket/internal/service"
)

// ListContests — GET /api/contests?status=UPCOMING|LIVE|COMPLETED.
func (h *APIHandler) ListContests(w http.ResponseWriter, r *http.Request) {
	contests, err := h.Contests.List(r.Context(), r.URL.Query().Get("status"), pageFromQuery(r))
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			apierrors.ValidationError(w, "Invalid status filter")
			return
		}
		h.logger.Error("Ошибка получения списка контестов", "error", err)
		apierrors.InternalError(w, "Failed to list contests")
		return
	}

	items := make([]contestResponse, len(contests))
	for i, c := range contests {
		items[i] = mapContest(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GetContest — GET /api/contests/{id}.
func (h *APIHandler) GetContest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := h.Contests.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Contest not found")
			return
		}
		h.logger.Error("Ошибка получения контеста", "contest_id", id, "error", err)
		apierrors.InternalError(w, "Failed to load contest")
		return
	}
	writeJSON(w, http.StatusOK, mapContest(c))
}
