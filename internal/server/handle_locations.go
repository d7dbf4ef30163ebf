package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mallhunt/treasurehunt/internal/progress"
	"github.com/mallhunt/treasurehunt/internal/treasurehunt"
)

type LocationResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Floor       string   `json:"floor"`
	UnlockOrder int      `json:"unlockOrder"`
	Description string   `json:"description"`
	MapX        *float64 `json:"mapX,omitempty"`
	MapY        *float64 `json:"mapY,omitempty"`
	Status      string   `json:"status,omitempty"`
	Stage       string   `json:"stage,omitempty"`
}

type ProgressItem struct {
	LocationID   string    `json:"locationId"`
	CompletedAt  time.Time `json:"completedAt"`
	PhotoURL     string    `json:"photoUrl,omitempty"`
	QuizAttempts int       `json:"quizAttempts"`
}

type ProgressResponse struct {
	Player       PlayerResponse     `json:"player"`
	Completed    int                `json:"completed"`
	Total        int                `json:"total"`
	CompletedAll bool               `json:"completedAll"`
	Passed       []ProgressItem     `json:"passed"`
	Locations    []LocationResponse `json:"locations"`
}

func toLocationResponse(l treasurehunt.Location) LocationResponse {
	return LocationResponse{
		ID:          l.ID,
		Name:        l.Name,
		Floor:       l.Floor,
		UnlockOrder: l.UnlockOrder,
		Description: l.Description,
		MapX:        l.MapX,
		MapY:        l.MapY,
	}
}

func boardLocations(b progress.Board) []LocationResponse {
	out := make([]LocationResponse, len(b.Locations))
	for i, ls := range b.Locations {
		out[i] = toLocationResponse(ls.Location)
		out[i].Status = string(ls.Status)
		out[i].Stage = string(b.Challenges[i].Stage)
	}
	return out
}

// handleLocations lists locations in unlock order. Authenticated players
// also get their status and stage per location.
func handleLocations(logger *slog.Logger, store Store, engine *progress.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if playerID, ok := playerFrom(r); ok {
			b, err := engine.Board(r.Context(), playerID)
			if err != nil {
				writeDomainError(w, logger, err)
				return
			}
			writeJSON(w, http.StatusOK, boardLocations(b))
			return
		}

		locations, err := store.Locations(r.Context())
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		out := make([]LocationResponse, len(locations))
		for i, l := range progress.SortLocations(locations) {
			out[i] = toLocationResponse(l)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleProgress(logger *slog.Logger, store Store, engine *progress.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, _ := playerFrom(r)

		player, err := store.Player(r.Context(), playerID)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		b, err := engine.Board(r.Context(), playerID)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}

		resp := ProgressResponse{
			Player:       toPlayerResponse(player),
			Completed:    b.Completed(),
			Total:        len(b.Locations),
			CompletedAll: b.AllCompleted(),
			Passed:       make([]ProgressItem, 0, len(b.Passed)),
			Locations:    boardLocations(b),
		}
		for _, p := range b.Passed {
			resp.Passed = append(resp.Passed, ProgressItem{
				LocationID:   p.LocationID,
				CompletedAt:  p.CompletedAt,
				PhotoURL:     p.PhotoURL,
				QuizAttempts: p.QuizAttempts,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
