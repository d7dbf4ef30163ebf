package server

import (
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"

	"github.com/mallhunt/treasurehunt/internal/progress"
)

const (
	defaultQRSize = 512
	maxQRSize     = 2048
)

// handleAdminLocationQR renders a printable QR code for one of the
// location's tokens. Without ?token= the first token is used.
func handleAdminLocationQR(logger *slog.Logger, store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loc, err := store.Location(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}

		tokens := loc.Tokens
		if len(tokens) == 0 {
			tokens = progress.DefaultTokens(loc.ID)
		}
		token := tokens[0]
		if q := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("token"))); q != "" {
			if !slices.Contains(tokens, q) {
				writeError(w, http.StatusNotFound, "token does not belong to this location")
				return
			}
			token = q
		}

		size := defaultQRSize
		if s, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil && s > 0 {
			size = min(s, maxQRSize)
		}

		png, err := qrcode.Encode(token, qrcode.Medium, size)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Disposition", `inline; filename="`+loc.ID+`.png"`)
		w.Write(png)
	}
}
