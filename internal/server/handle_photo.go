package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mallhunt/treasurehunt/internal/device"
	"github.com/mallhunt/treasurehunt/internal/photo"
	"github.com/mallhunt/treasurehunt/internal/progress"
	"github.com/mallhunt/treasurehunt/internal/telemetry"
	"github.com/mallhunt/treasurehunt/internal/treasurehunt"
)

// PhotoStore persists an accepted selfie and returns its URL.
type PhotoStore interface {
	Put(ctx context.Context, u photo.Upload) (string, error)
}

type PhotoResponse struct {
	PhotoURL  string            `json:"photoUrl,omitempty"`
	Issues    []string          `json:"issues"`
	Skipped   bool              `json:"skipped,omitempty"`
	Challenge ChallengeResponse `json:"challenge"`
}

func formFloat(r *http.Request, key string) *float64 {
	v, err := strconv.ParseFloat(r.FormValue(key), 64)
	if err != nil {
		return nil
	}
	return &v
}

func readPhoto(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", photo.ErrTooLarge, err)
	}
	f, _, err := r.FormFile("photo")
	if err != nil {
		return nil, photo.ErrEmpty
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxBytes+1))
}

// handlePhotoUpload stores the selfie and moves the pair to the quiz.
// The stage is checked before the upload so refused requests leave no
// object behind.
func handlePhotoUpload(logger *slog.Logger, engine *progress.Engine, photos PhotoStore, devices *device.Cache, guard SubmitGuard, broker *Broker, metrics *telemetry.Metrics, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, _ := playerFrom(r)
		locationID := chi.URLParam(r, "id")

		release, err := guard.Acquire(r.Context(), playerID, locationID)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		defer release()

		ch, err := engine.Challenge(r.Context(), playerID, locationID)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		switch ch.Stage {
		case progress.StageLocked:
			writeDomainError(w, logger, treasurehunt.ErrLocationLocked)
			return
		case progress.StageCompleted:
			writeDomainError(w, logger, treasurehunt.ErrAlreadyCompleted)
			return
		case progress.StageAwaitingPhoto:
		default:
			writeDomainError(w, logger, fmt.Errorf("%w: %s", treasurehunt.ErrWrongStage, ch.Stage))
			return
		}

		data, err := readPhoto(w, r, maxBytes)
		if err != nil {
			metrics.Photo("invalid")
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		contentType, err := photo.Sniff(data, maxBytes)
		if err != nil {
			metrics.Photo("invalid")
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		now := time.Now()
		report := photo.Inspect(data, now)
		upload := photo.Upload{
			PlayerID:    playerID,
			LocationID:  locationID,
			ContentType: contentType,
			Data:        data,
			TakenAt:     now,
			Latitude:    formFloat(r, "latitude"),
			Longitude:   formFloat(r, "longitude"),
			UserAgent:   r.UserAgent(),
		}
		if upload.Latitude == nil && report.Latitude != nil {
			upload.Latitude, upload.Longitude = report.Latitude, report.Longitude
		}

		url, err := photos.Put(r.Context(), upload)
		if err != nil {
			metrics.Photo("error")
			writeDomainError(w, logger, err)
			return
		}

		ch, err = engine.AcceptPhoto(r.Context(), playerID, locationID, progress.PhotoSubmission{URL: url, Issues: report.Issues})
		if errors.Is(err, treasurehunt.ErrPhotoRejected) {
			metrics.Photo("rejected")
			writeJSON(w, http.StatusUnprocessableEntity, PhotoResponse{Issues: report.Issues, Challenge: toChallengeResponse(ch, nil, device.Unknown())})
			return
		}
		if err != nil {
			metrics.Photo("error")
			writeDomainError(w, logger, err)
			return
		}

		metrics.Photo("accepted")
		if len(report.Issues) > 0 {
			logger.Info("photo advisory", "player_id", playerID, "location_id", locationID, "issues", report.Issues)
		}
		broker.Publish(playerID, Event{Type: "photo_accepted", LocationID: locationID, Stage: string(ch.Stage)})

		caps, _ := devices.Get(playerID)
		writeJSON(w, http.StatusOK, PhotoResponse{
			PhotoURL:  url,
			Issues:    nonNil(report.Issues),
			Challenge: toChallengeResponse(ch, nil, caps),
		})
	}
}

// handlePhotoSkip is the fallback for devices that reported the camera
// unavailable or denied.
func handlePhotoSkip(logger *slog.Logger, engine *progress.Engine, devices *device.Cache, broker *Broker, metrics *telemetry.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, _ := playerFrom(r)
		locationID := chi.URLParam(r, "id")

		caps, _ := devices.Get(playerID)
		if !caps.PhotoSkipAllowed() {
			writeError(w, http.StatusConflict, "camera is available, take a photo instead")
			return
		}

		ch, err := engine.AcceptPhoto(r.Context(), playerID, locationID, progress.PhotoSubmission{Skipped: true})
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		metrics.Photo("skipped")
		broker.Publish(playerID, Event{Type: "photo_accepted", LocationID: locationID, Stage: string(ch.Stage)})
		writeJSON(w, http.StatusOK, PhotoResponse{Issues: []string{}, Skipped: true, Challenge: toChallengeResponse(ch, nil, caps)})
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
