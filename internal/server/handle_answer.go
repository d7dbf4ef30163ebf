package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mallhunt/treasurehunt/internal/device"
	"github.com/mallhunt/treasurehunt/internal/progress"
	"github.com/mallhunt/treasurehunt/internal/telemetry"
	"github.com/mallhunt/treasurehunt/internal/treasurehunt"
)

type AnswerRequest struct {
	Answer string `json:"answer"`
}

type AnswerResponse struct {
	Correct       bool              `json:"correct"`
	Message       string            `json:"message"`
	Attempts      int               `json:"attempts"`
	CooldownUntil *time.Time        `json:"cooldownUntil,omitempty"`
	HuntComplete  bool              `json:"huntComplete"`
	Challenge     ChallengeResponse `json:"challenge"`
}

func handleAnswer(logger *slog.Logger, engine *progress.Engine, devices *device.Cache, guard SubmitGuard, broker *Broker, metrics *telemetry.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, _ := playerFrom(r)
		locationID := chi.URLParam(r, "id")

		var req AnswerRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Answer = strings.TrimSpace(req.Answer)
		if req.Answer == "" {
			writeError(w, http.StatusBadRequest, "answer is required")
			return
		}

		release, err := guard.Acquire(r.Context(), playerID, locationID)
		if err != nil {
			metrics.Answer("duplicate")
			writeDomainError(w, logger, err)
			return
		}
		defer release()

		out, err := engine.SubmitAnswer(r.Context(), playerID, locationID, req.Answer)
		if err != nil {
			metrics.Answer(answerRefusal(err))
			writeDomainError(w, logger, err)
			return
		}

		caps, _ := devices.Get(playerID)
		resp := AnswerResponse{
			Correct:       out.Correct,
			Attempts:      out.Challenge.Attempts,
			CooldownUntil: out.Challenge.CooldownUntil,
			HuntComplete:  out.HuntComplete,
			Challenge:     toChallengeResponse(out.Challenge, nil, caps),
		}

		if !out.Correct {
			metrics.Answer("wrong")
			resp.Message = "Wrong answer. Try again after the cooldown."
			broker.Publish(playerID, Event{
				Type:          "cooldown_started",
				LocationID:    locationID,
				Stage:         string(out.Challenge.Stage),
				CooldownUntil: out.Challenge.CooldownUntil,
			})
			writeJSON(w, http.StatusOK, resp)
			return
		}

		metrics.Answer("correct")
		resp.Message = "Correct! The next location is unlocked."
		if out.HuntComplete {
			resp.Message = "Correct! You have completed every location."
		}
		broker.Publish(playerID, Event{
			Type:         "location_completed",
			LocationID:   locationID,
			Stage:        string(out.Challenge.Stage),
			HuntComplete: out.HuntComplete,
		})
		writeJSON(w, http.StatusOK, resp)
	}
}

func answerRefusal(err error) string {
	switch {
	case errors.Is(err, treasurehunt.ErrCooldownActive):
		return "cooldown"
	case errors.Is(err, treasurehunt.ErrAlreadyCompleted):
		return "already_completed"
	case errors.Is(err, treasurehunt.ErrInvalidOption):
		return "invalid_option"
	case errors.Is(err, treasurehunt.ErrLocationLocked), errors.Is(err, treasurehunt.ErrWrongStage):
		return "refused"
	}
	return "error"
}
