// Package router registers the field sampling engine's HTTP surface: the
// two field-chunk endpoints of spec.md §6, a health check, and a
// log-management endpoint, wrapped in the security/CORS/request-ID
// middleware chain.
package router

import (
	"github.com/go-chi/chi/v5"

	"fieldengine/internal/handler"
	"fieldengine/internal/middleware"
)

// New builds a chi.Mux with all routes registered against app.
func New(app *handler.App) *chi.Mux {
	r := chi.NewRouter()

	secure := middleware.Chain(
		middleware.SecurityHeaders(),
		middleware.CORS(),
		middleware.RequestID(),
	)
	r.Use(middleware.AsHandler(secure))

	r.Get("/api/artworks/field-chunk", handler.HandleFieldChunk(app))
	r.Post("/api/artworks/field-chunks", handler.HandleFieldChunks(app))
	r.Get("/api/health", handler.HandleHealth())
	r.Get("/api/logs", handler.HandleLogs())
	r.Get("/api/logs/rotation", handler.HandleLogsRotation())
	r.Put("/api/logs/rotation", handler.HandleLogsRotation())

	return r
}
