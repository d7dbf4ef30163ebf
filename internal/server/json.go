package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mallhunt/treasurehunt/internal/progress"
	"github.com/mallhunt/treasurehunt/internal/treasurehunt"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error         string     `json:"error"`
	CooldownUntil *time.Time `json:"cooldownUntil,omitempty"`
}

var (
	errConflict   = errors.New("conflict")
	errBadRequest = errors.New("bad request")
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeDomainError maps the business rejections to their HTTP status.
// Anything unrecognised is logged and reported as an internal error.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var cd *progress.CooldownError
	switch {
	case errors.As(err, &cd):
		until := cd.Until.UTC()
		writeJSON(w, http.StatusLocked, ErrorResponse{Error: "quiz is cooling down", CooldownUntil: &until})
	case errors.Is(err, treasurehunt.ErrCooldownActive):
		writeError(w, http.StatusLocked, "quiz is cooling down")
	case errors.Is(err, treasurehunt.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, treasurehunt.ErrCodeInvalid):
		writeError(w, http.StatusNotFound, "signup code not found")
	case errors.Is(err, treasurehunt.ErrCodeUsed):
		writeError(w, http.StatusConflict, "signup code already used")
	case errors.Is(err, treasurehunt.ErrPhoneTaken):
		writeError(w, http.StatusConflict, "phone number already registered")
	case errors.Is(err, treasurehunt.ErrLocationLocked):
		writeError(w, http.StatusConflict, "location is locked")
	case errors.Is(err, treasurehunt.ErrAlreadyCompleted):
		writeError(w, http.StatusConflict, "location already completed")
	case errors.Is(err, treasurehunt.ErrWrongStage):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, treasurehunt.ErrInvalidOption):
		writeError(w, http.StatusBadRequest, "answer is not one of the options")
	case errors.Is(err, treasurehunt.ErrPhotoRejected):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, errSubmissionInFlight):
		writeError(w, http.StatusConflict, "submission already in progress")
	case errors.Is(err, errConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
