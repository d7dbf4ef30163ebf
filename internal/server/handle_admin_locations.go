package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mallhunt/treasurehunt/internal/progress"
	"github.com/mallhunt/treasurehunt/internal/treasurehunt"
)

// AdminLocation is the full location including the quiz answer and the
// QR tokens. It never leaves the admin API.
type AdminLocation struct {
	ID            string   `json:"id" validate:"required,slug"`
	Name          string   `json:"name" validate:"required,max=80"`
	Floor         string   `json:"floor" validate:"required,max=20"`
	UnlockOrder   int      `json:"unlockOrder" validate:"gt=0"`
	Description   string   `json:"description" validate:"max=500"`
	QuizQuestion  string   `json:"quizQuestion" validate:"required"`
	QuizOptions   []string `json:"quizOptions" validate:"min=2,max=6,dive,required"`
	CorrectAnswer string   `json:"correctAnswer" validate:"required"`
	Tokens        []string `json:"tokens" validate:"dive,required"`
	MapX          *float64 `json:"mapX,omitempty"`
	MapY          *float64 `json:"mapY,omitempty"`
}

func toAdminLocation(l treasurehunt.Location) AdminLocation {
	tokens := l.Tokens
	if len(tokens) == 0 {
		tokens = progress.DefaultTokens(l.ID)
	}
	return AdminLocation{
		ID:            l.ID,
		Name:          l.Name,
		Floor:         l.Floor,
		UnlockOrder:   l.UnlockOrder,
		Description:   l.Description,
		QuizQuestion:  l.QuizQuestion,
		QuizOptions:   l.QuizOptions,
		CorrectAnswer: l.CorrectAnswer,
		Tokens:        tokens,
		MapX:          l.MapX,
		MapY:          l.MapY,
	}
}

func (req *AdminLocation) normalize() {
	req.ID = strings.ToLower(strings.TrimSpace(req.ID))
	req.Name = strings.TrimSpace(req.Name)
	req.Floor = strings.ToUpper(strings.TrimSpace(req.Floor))
	req.Description = strings.TrimSpace(req.Description)
	req.QuizQuestion = strings.TrimSpace(req.QuizQuestion)
	req.CorrectAnswer = strings.TrimSpace(req.CorrectAnswer)
	for i := range req.QuizOptions {
		req.QuizOptions[i] = strings.TrimSpace(req.QuizOptions[i])
	}
	for i := range req.Tokens {
		req.Tokens[i] = strings.ToUpper(strings.TrimSpace(req.Tokens[i]))
	}
}

func (req AdminLocation) location() treasurehunt.Location {
	return treasurehunt.Location{
		ID:            req.ID,
		Name:          req.Name,
		Floor:         req.Floor,
		UnlockOrder:   req.UnlockOrder,
		Description:   req.Description,
		QuizQuestion:  req.QuizQuestion,
		QuizOptions:   req.QuizOptions,
		CorrectAnswer: req.CorrectAnswer,
		Tokens:        req.Tokens,
		MapX:          req.MapX,
		MapY:          req.MapY,
	}
}

// checkLocation validates one location and, against the rest of the
// set, that its tokens stay unambiguous.
func checkLocation(req AdminLocation, existing []treasurehunt.Location) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", errBadRequest, validationMessage(err))
	}
	if !slices.ContainsFunc(req.QuizOptions, func(o string) bool { return strings.EqualFold(o, req.CorrectAnswer) }) {
		return fmt.Errorf("%w: correctAnswer must be one of quizOptions", errBadRequest)
	}

	others := slices.DeleteFunc(slices.Clone(existing), func(l treasurehunt.Location) bool { return l.ID == req.ID })
	if _, err := progress.TokenSetFor(append(others, req.location())); err != nil {
		return fmt.Errorf("%w: %v", errConflict, err)
	}
	return nil
}

func handleAdminListLocations(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		locations, err := store.Locations(r.Context())
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		out := make([]AdminLocation, 0, len(locations))
		for _, l := range progress.SortLocations(locations) {
			out = append(out, toAdminLocation(l))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleAdminGetLocation(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loc, err := store.Location(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAdminLocation(loc))
	}
}

func handleAdminCreateLocation(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdminLocation
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.normalize()

		existing, err := store.Locations(r.Context())
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		if err := checkLocation(req, existing); err != nil {
			writeDomainError(w, logger, err)
			return
		}
		if err := store.CreateLocation(r.Context(), req.location()); err != nil {
			writeDomainError(w, logger, err)
			return
		}
		logger.Info("location created", "location_id", req.ID, "admin", adminFrom(r).Email)
		writeJSON(w, http.StatusCreated, toAdminLocation(req.location()))
	}
}

func handleAdminUpdateLocation(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdminLocation
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.ID = chi.URLParam(r, "id")
		req.normalize()

		if _, err := store.Location(r.Context(), req.ID); err != nil {
			writeDomainError(w, logger, err)
			return
		}
		existing, err := store.Locations(r.Context())
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		if err := checkLocation(req, existing); err != nil {
			writeDomainError(w, logger, err)
			return
		}
		if err := store.UpdateLocation(r.Context(), req.location()); err != nil {
			writeDomainError(w, logger, err)
			return
		}
		logger.Info("location updated", "location_id", req.ID, "admin", adminFrom(r).Email)
		writeJSON(w, http.StatusOK, toAdminLocation(req.location()))
	}
}

func handleAdminDeleteLocation(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := store.DeleteLocation(r.Context(), id); err != nil {
			writeDomainError(w, logger, err)
			return
		}
		logger.Info("location deleted", "location_id", id, "admin", adminFrom(r).Email)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
