package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mallhunt/treasurehunt/internal/telemetry"
	"github.com/mallhunt/treasurehunt/internal/treasurehunt"
)

type SignupCodeResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

type RegisterRequest struct {
	Code  string `json:"code" validate:"required,signup_code"`
	Name  string `json:"name" validate:"required,min=2,max=60"`
	Phone string `json:"phone" validate:"required,id_phone"`
}

type RecoverRequest struct {
	Phone string `json:"phone" validate:"required,id_phone"`
}

type PlayerResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone"`
	RegisteredAt    time.Time `json:"registeredAt"`
	CurrentProgress int       `json:"currentProgress"`
	CompletedAll    bool      `json:"completedAll"`
}

type SessionResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	Player    PlayerResponse `json:"player"`
}

func toPlayerResponse(p treasurehunt.Player) PlayerResponse {
	return PlayerResponse{
		ID:              p.ID,
		Name:            p.Name,
		Phone:           p.Phone,
		RegisteredAt:    p.RegisteredAt,
		CurrentProgress: p.CurrentProgress,
		CompletedAll:    p.CompletedAll,
	}
}

func handleSignupCodeLookup(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := normalizeCode(chi.URLParam(r, "code"))
		if !signupCodeRe.MatchString(code) {
			writeJSON(w, http.StatusOK, SignupCodeResponse{Message: "code must be 6 letters or digits"})
			return
		}

		c, err := store.SignupCode(r.Context(), code)
		if errors.Is(err, treasurehunt.ErrNotFound) {
			writeJSON(w, http.StatusOK, SignupCodeResponse{Message: "signup code not found"})
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if c.Status != treasurehunt.CodeActive {
			writeJSON(w, http.StatusOK, SignupCodeResponse{Message: "signup code already used"})
			return
		}
		writeJSON(w, http.StatusOK, SignupCodeResponse{Valid: true})
	}
}

func handleRegister(logger *slog.Logger, store Store, tokens *TokenIssuer, metrics *telemetry.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Code = normalizeCode(req.Code)
		req.Name = strings.TrimSpace(req.Name)
		req.Phone = normalizePhone(req.Phone)
		if err := validate.Struct(req); err != nil {
			metrics.Registration("invalid")
			writeError(w, http.StatusBadRequest, validationMessage(err))
			return
		}

		player, err := store.RegisterPlayer(r.Context(), RegisterParams{
			Code:  req.Code,
			Name:  req.Name,
			Phone: req.Phone,
			At:    time.Now(),
		})
		if err != nil {
			metrics.Registration(registrationOutcome(err))
			writeDomainError(w, logger, err)
			return
		}
		metrics.Registration("ok")
		logger.Info("player registered", "player_id", player.ID, "code", req.Code)

		token, exp, err := tokens.Issue(player.ID)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, SessionResponse{Token: token, ExpiresAt: exp, Player: toPlayerResponse(player)})
	}
}

func registrationOutcome(err error) string {
	switch {
	case errors.Is(err, treasurehunt.ErrCodeInvalid):
		return "code_invalid"
	case errors.Is(err, treasurehunt.ErrCodeUsed):
		return "code_used"
	case errors.Is(err, treasurehunt.ErrPhoneTaken):
		return "phone_taken"
	}
	return "error"
}

// handleRecover issues a fresh token for the player registered with the
// given phone number.
func handleRecover(logger *slog.Logger, store Store, tokens *TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RecoverRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Phone = normalizePhone(req.Phone)
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, validationMessage(err))
			return
		}

		player, err := store.PlayerByPhone(r.Context(), req.Phone)
		if errors.Is(err, treasurehunt.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no player registered with this phone")
			return
		}
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}

		token, exp, err := tokens.Issue(player.ID)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, SessionResponse{Token: token, ExpiresAt: exp, Player: toPlayerResponse(player)})
	}
}
