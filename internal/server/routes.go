package server

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/mallhunt/treasurehunt/internal/photo"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps, broker *Broker) {
	store, engine, devices, guard, metrics := deps.Store, deps.Engine, deps.Devices, deps.Guard, deps.Metrics
	maxBytes := deps.PhotoMaxBytes
	if maxBytes <= 0 {
		maxBytes = photo.DefaultMaxBytes
	}

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Mall Treasure Hunt API", "/openapi.json", "/docs"))

	// Registration and recovery are public.
	r.Get("/api/signup-codes/{code}", handleSignupCodeLookup(store))
	r.Post("/api/register", handleRegister(logger, store, deps.Tokens, metrics))
	r.Post("/api/recover", handleRecover(logger, store, deps.Tokens))

	r.With(optionalPlayerMiddleware(deps.Tokens)).Get("/api/locations", handleLocations(logger, store, engine))

	r.Group(func(r chi.Router) {
		r.Use(playerAuthMiddleware(deps.Tokens))

		r.Get("/api/progress", handleProgress(logger, store, engine))
		r.Get("/api/device", handleDeviceGet(devices))
		r.Post("/api/device", handleDeviceReport(devices))
		r.Get("/api/events", handleEvents(broker, metrics))
		r.Get("/ws/events", handleWSEvents(logger, broker, metrics))

		r.Route("/api/locations/{id}", func(r chi.Router) {
			r.Get("/challenge", handleChallenge(logger, store, engine, devices))
			r.Post("/scan", handleScan(logger, engine, devices, guard, broker, metrics))
			r.Post("/photo", handlePhotoUpload(logger, engine, deps.Photos, devices, guard, broker, metrics, maxBytes))
			r.Post("/photo/skip", handlePhotoSkip(logger, engine, devices, broker, metrics))
			r.Post("/answer", handleAnswer(logger, engine, devices, guard, broker, metrics))
		})
	})

	r.Post("/api/admin/login", handleAdminLogin(logger, store))
	r.Post("/api/admin/logout", handleAdminLogout(logger, store))

	r.Group(func(r chi.Router) {
		r.Use(adminAuthMiddleware(store))

		r.Get("/api/admin/me", handleAdminMe())

		r.Route("/api/admin/locations", func(r chi.Router) {
			r.Get("/", handleAdminListLocations(logger, store))
			r.Post("/", handleAdminCreateLocation(logger, store))
			r.Get("/{id}", handleAdminGetLocation(logger, store))
			r.Put("/{id}", handleAdminUpdateLocation(logger, store))
			r.Delete("/{id}", handleAdminDeleteLocation(logger, store))
			r.Get("/{id}/qr.png", handleAdminLocationQR(logger, store))
		})

		r.Get("/api/admin/signup-codes", handleAdminListCodes(logger, store))
		r.Post("/api/admin/signup-codes", handleAdminCreateCodes(logger, store))
		r.Get("/api/admin/players", handleAdminListPlayers(logger, store))
		r.Get("/api/admin/players/export.xlsx", handleAdminExportPlayers(logger, store))
		r.Delete("/api/admin/players/{playerID}/cooldowns/{locationID}", handleAdminClearCooldown(logger, store, engine, broker))
		r.Post("/api/admin/repair-stats", handleAdminRepairStats(logger, store))
	})

	if deps.SPADir != "" {
		if info, err := os.Stat(deps.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", deps.SPADir)
			r.NotFound(handleSPA(deps.SPADir))
		}
	}
}
