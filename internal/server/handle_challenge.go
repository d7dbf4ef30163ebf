package server

import (
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

type QuizResponse struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type ChallengeResponse struct {
	LocationID       string        `json:"locationId"`
	Status           string        `json:"status"`
	Stage            string        `json:"stage"`
	Attempts         int           `json:"attempts"`
	CooldownUntil    *time.Time    `json:"cooldownUntil,omitempty"`
	PhotoURL         string        `json:"photoUrl,omitempty"`
	Quiz             *QuizResponse `json:"quiz,omitempty"`
	ManualScan       bool          `json:"manualScan"`
	PhotoSkipAllowed bool          `json:"photoSkipAllowed"`
}

type ScanRequest struct {
	Code   string `json:"code"`
	Method string `json:"method" validate:"omitempty,oneof=camera manual"`
}

type ScanResponse struct {
	Valid           bool              `json:"valid"`
	Reason          string            `json:"reason,omitempty"`
	MatchedLocation string            `json:"matchedLocation,omitempty"`
	Challenge       ChallengeResponse `json:"challenge"`
}

// toChallengeResponse reveals the quiz only once the photo stage is done.
func toChallengeResponse(ch progress.Challenge, loc *treasurehunt.Location, caps device.Capabilities) ChallengeResponse {
	resp := ChallengeResponse{
		LocationID:       ch.LocationID,
		Status:           string(ch.Status),
		Stage:            string(ch.Stage),
		Attempts:         ch.Attempts,
		CooldownUntil:    ch.CooldownUntil,
		PhotoURL:         ch.PhotoURL,
		ManualScan:       caps.ManualScan(),
		PhotoSkipAllowed: caps.PhotoSkipAllowed(),
	}
	if loc != nil && (ch.Stage == progress.StageAwaitingQuiz || ch.Stage == progress.StageCooldown) {
		resp.Quiz = &QuizResponse{Question: loc.QuizQuestion, Options: loc.QuizOptions}
	}
	return resp
}

func handleChallenge(logger *slog.Logger, store Store, engine *progress.Engine, devices *device.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, _ := playerFrom(r)
		locationID := chi.URLParam(r, "id")

		ch, err := engine.Challenge(r.Context(), playerID, locationID)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		loc, err := store.Location(r.Context(), locationID)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		caps, _ := devices.Get(playerID)
		writeJSON(w, http.StatusOK, toChallengeResponse(ch, &loc, caps))
	}
}

func handleScan(logger *slog.Logger, engine *progress.Engine, devices *device.Cache, guard SubmitGuard, broker *Broker, metrics *telemetry.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, _ := playerFrom(r)
		locationID := chi.URLParam(r, "id")

		var req ScanRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Method = strings.ToLower(strings.TrimSpace(req.Method))
		if strings.TrimSpace(req.Code) == "" {
			writeError(w, http.StatusBadRequest, "code is required")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, validationMessage(err))
			return
		}
		caps, _ := devices.Get(playerID)
		if req.Method == "" {
			req.Method = treasurehunt.ScanMethodCamera
			if caps.ManualScan() {
				req.Method = treasurehunt.ScanMethodManual
			}
		}

		release, err := guard.Acquire(r.Context(), playerID, locationID)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		defer release()

		out, err := engine.Scan(r.Context(), playerID, locationID, req.Code, req.Method)
		if err != nil {
			metrics.Scan("refused")
			writeDomainError(w, logger, err)
			return
		}

		resp := ScanResponse{
			Valid:           out.Result.Valid,
			Reason:          string(out.Result.Reason),
			MatchedLocation: out.Result.MatchedLocation,
			Challenge:       toChallengeResponse(out.Challenge, nil, caps),
		}
		if !out.Result.Valid {
			metrics.Scan(string(out.Result.Reason))
			writeJSON(w, http.StatusUnprocessableEntity, resp)
			return
		}

		metrics.Scan("valid")
		broker.Publish(playerID, Event{Type: "scan_accepted", LocationID: locationID, Stage: string(out.Challenge.Stage)})
		writeJSON(w, http.StatusOK, resp)
	}
}
