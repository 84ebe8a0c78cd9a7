// auth.go — обработчики /api/auth endpoints: регистрация, вход, выход, сессия.
// Вход выпускает сессионный токен с ролью из БД на момент логина.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/fantasy-cricket/internal/api/errors"
	"github.com/bigkaa/fantasy-cricket/internal/api/middleware"
	"github.com/bigkaa/fantasy-cricket/internal/service"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expiresAt"`
	User      userResponse `json:"user"`
}

// sessionUser — пользователь из токена сессии.
type sessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

type sessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	User          *sessionUser `json:"user"`
	ExpiresAt     *string      `json:"expiresAt,omitempty"`
}

// Register — POST /api/auth/register.
func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Invalid JSON body")
		return
	}

	p, err := h.Accounts.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, "Invalid email, password (min 8 characters) or name")
		case errors.Is(err, service.ErrConflict):
			apierrors.Conflict(w, "User with this email already exists")
		default:
			h.logger.Error("Ошибка регистрации", "error", err)
			apierrors.InternalError(w, "Registration failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, mapUser(p))
}

// Login — POST /api/auth/login.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Invalid JSON body")
		return
	}

	res, err := h.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			apierrors.InvalidCredentials(w)
			return
		}
		h.logger.Error("Ошибка входа", "error", err)
		apierrors.InternalError(w, "Login failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.Cookie.Name,
		Value:    res.Token,
		Path:     "/",
		Expires:  res.ExpiresAt,
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     res.Token,
		ExpiresAt: formatTime(res.ExpiresAt),
		User:      mapUser(res.Principal),
	})
}

// Logout — POST /api/auth/logout. Идемпотентен.
func (h *APIHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.Cookie.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// GetSession — GET /api/auth/session.
// Роль в ответе — из токена и может отставать от БД до повторного входа.
func (h *APIHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s := middleware.SessionFromContext(r.Context())
	if s == nil {
		writeJSON(w, http.StatusOK, sessionResponse{Authenticated: false})
		return
	}

	resp := sessionResponse{
		Authenticated: true,
		User:          &sessionUser{ID: s.UserID, Email: s.Email, Role: s.Role.String()},
	}
	if !s.ExpiresAt.IsZero() {
		exp := formatTime(s.ExpiresAt)
		resp.ExpiresAt = &exp
	}
	writeJSON(w, http.StatusOK, resp)
}
