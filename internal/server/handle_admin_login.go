package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mallhunt/treasurehunt/internal/treasurehunt"
)

// AdminLoginRequest is the request body for POST /api/admin/login.
type AdminLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AdminMeResponse is the response for GET /api/admin/me.
type AdminMeResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func handleAdminLogin(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdminLoginRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, validationMessage(err))
			return
		}

		adminID, passwordHash, err := store.AdminByEmail(r.Context(), req.Email)
		if errors.Is(err, treasurehunt.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
			logger.Warn("admin login failed", "email", req.Email)
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		token, err := store.CreateAdminSession(r.Context(), adminID, time.Now().Add(adminSessionTTL))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		setAdminCookie(w, token, int(adminSessionTTL/time.Second))
		logger.Info("admin logged in", "admin_id", adminID, "email", req.Email)

		writeJSON(w, http.StatusOK, AdminMeResponse{
			ID:    adminID,
			Email: req.Email,
		})
	}
}

func handleAdminMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := adminFrom(r)
		writeJSON(w, http.StatusOK, AdminMeResponse{
			ID:    sess.AdminID,
			Email: sess.Email,
		})
	}
}

func handleAdminLogout(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(adminCookieName)
		if err == nil && cookie.Value != "" {
			if err := store.DeleteAdminSession(r.Context(), cookie.Value); err != nil {
				logger.Error("deleting admin session", "error", err)
			}
		}
		setAdminCookie(w, "", -1)
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
