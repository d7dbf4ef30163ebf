package server

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"

	"github.com/mallhunt/treasurehunt/internal/progress"
	"github.com/mallhunt/treasurehunt/internal/treasurehunt"
)

const maxCodesPerRequest = 500

type AdminSignupCode struct {
	Code      string     `json:"code"`
	Status    string     `json:"status"`
	UsedBy    string     `json:"usedBy,omitempty"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// CreateCodesRequest either generates Count random codes or adds the
// explicit Codes list.
type CreateCodesRequest struct {
	Count int      `json:"count" validate:"gte=0,lte=500"`
	Codes []string `json:"codes" validate:"max=500,dive,signup_code"`
}

type AdminPlayer struct {
	PlayerResponse
	SignupCode string `json:"signupCode"`
}

func toAdminSignupCode(c treasurehunt.SignupCode) AdminSignupCode {
	return AdminSignupCode{
		Code:      c.Code,
		Status:    string(c.Status),
		UsedBy:    c.UsedBy,
		UsedAt:    c.UsedAt,
		CreatedAt: c.CreatedAt,
	}
}

// generateCode draws 6 characters from the base32 alphabet, which is a
// subset of the signup code alphabet.
func generateCode() string {
	return rand.Text()[:6]
}

func handleAdminListCodes(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		codes, err := store.ListSignupCodes(r.Context())
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		out := make([]AdminSignupCode, 0, len(codes))
		for _, c := range codes {
			out = append(out, toAdminSignupCode(c))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleAdminCreateCodes(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateCodesRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		for i := range req.Codes {
			req.Codes[i] = normalizeCode(req.Codes[i])
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, validationMessage(err))
			return
		}
		if req.Count == 0 && len(req.Codes) == 0 {
			writeError(w, http.StatusBadRequest, "count or codes is required")
			return
		}

		codes := req.Codes
		seen := make(map[string]bool, req.Count)
		for len(seen) < req.Count && len(seen) < maxCodesPerRequest {
			c := generateCode()
			if !seen[c] {
				seen[c] = true
				codes = append(codes, c)
			}
		}

		created, err := store.CreateSignupCodes(r.Context(), codes, time.Now())
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		logger.Info("signup codes created", "requested", len(codes), "created", len(created), "admin", adminFrom(r).Email)

		out := make([]AdminSignupCode, 0, len(created))
		for _, c := range created {
			out = append(out, toAdminSignupCode(c))
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

func handleAdminListPlayers(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		players, err := store.ListPlayers(r.Context())
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		out := make([]AdminPlayer, 0, len(players))
		for _, p := range players {
			out = append(out, AdminPlayer{PlayerResponse: toPlayerResponse(p), SignupCode: p.SignupCode})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleAdminExportPlayers streams the player list as an xlsx workbook.
func handleAdminExportPlayers(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		players, err := store.ListPlayers(r.Context())
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		locations, err := store.Locations(r.Context())
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}

		f := excelize.NewFile()
		defer f.Close()

		const sheet = "Players"
		f.SetSheetName("Sheet1", sheet)
		sw, err := f.NewStreamWriter(sheet)
		if err != nil {
			writeDomainError(w, logger, fmt.Errorf("creating stream writer: %w", err))
			return
		}

		headers := []any{"Name", "Phone", "Signup code", "Registered at", "Completed", "Total", "Finished"}
		if err := sw.SetRow("A1", headers); err != nil {
			writeDomainError(w, logger, err)
			return
		}
		for i, p := range players {
			finished := "No"
			if p.CompletedAll {
				finished = "Yes"
			}
			row := []any{
				sanitizeForExcel(p.Name),
				sanitizeForExcel(p.Phone),
				p.SignupCode,
				p.RegisteredAt.UTC().Format(time.RFC3339),
				p.CurrentProgress,
				len(locations),
				finished,
			}
			cell, _ := excelize.CoordinatesToCellName(1, i+2)
			if err := sw.SetRow(cell, row); err != nil {
				writeDomainError(w, logger, fmt.Errorf("writing row %d: %w", i+2, err))
				return
			}
		}
		if err := sw.Flush(); err != nil {
			writeDomainError(w, logger, err)
			return
		}

		filename := "players-" + time.Now().UTC().Format("20060102") + ".xlsx"
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		if err := f.Write(w); err != nil {
			logger.Error("writing xlsx", "error", err)
		}
	}
}

// sanitizeForExcel prefixes values that a spreadsheet would evaluate as
// a formula.
func sanitizeForExcel(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}

type RepairStatsResponse struct {
	DryRun  bool         `json:"dryRun"`
	Repairs []StatRepair `json:"repairs"`
}

func handleAdminRepairStats(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))
		repairs, err := store.RepairStats(r.Context(), dryRun)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		if repairs == nil {
			repairs = []StatRepair{}
		}
		logger.Info("player stats repaired", "dry_run", dryRun, "players", len(repairs), "admin", adminFrom(r).Email)
		writeJSON(w, http.StatusOK, RepairStatsResponse{DryRun: dryRun, Repairs: repairs})
	}
}

// handleAdminClearCooldown lifts a player's quiz lockout at one location.
func handleAdminClearCooldown(logger *slog.Logger, store Store, engine *progress.Engine, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID := chi.URLParam(r, "playerID")
		locationID := chi.URLParam(r, "locationID")

		if _, err := store.Player(r.Context(), playerID); err != nil {
			writeDomainError(w, logger, err)
			return
		}
		if _, err := store.Location(r.Context(), locationID); err != nil {
			writeDomainError(w, logger, err)
			return
		}
		if err := engine.ClearCooldown(r.Context(), playerID, locationID); err != nil {
			writeDomainError(w, logger, err)
			return
		}
		logger.Info("cooldown cleared", "player_id", playerID, "location_id", locationID, "admin", adminFrom(r).Email)
		broker.Publish(playerID, Event{Type: "cooldown_cleared", LocationID: locationID})
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
