package handler

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/clipwatch/internal/middleware"
)

// Routes wires the handlers into a Fiber app
type Routes struct {
	Auth        *AuthHandler
	Generations *GenerationHandler
	Profiles    *ProfileHandler
	Playlists   *PlaylistHandler
	Catalog     *CatalogHandler

	APIAuth         fiber.Handler
	Limiter         *middleware.RateLimiter
	GeneratePerHour int
	CatalogPerMin   int
}

// Mount registers /auth/verify, the authenticated /api group and /ws
func (r *Routes) Mount(app *fiber.App) {
	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", r.Auth.Verify)

	api := app.Group("/api", r.APIAuth)

	generations := api.Group("/generations")
	generations.Get("/", r.Generations.List)
	generations.Post("/", r.Limiter.GenerateLimit(r.GeneratePerHour), r.Generations.Start)
	generations.Post("/watch", r.Generations.Watch)
	generations.Get("/:id", r.Generations.Status)
	generations.Post("/:id/cancel", r.Generations.Cancel)

	profiles := api.Group("/profiles")
	profiles.Get("/", r.Profiles.List)
	profiles.Post("/", r.Profiles.Create)
	profiles.Put("/:id", r.Profiles.Update)
	profiles.Post("/:id/activate", r.Profiles.Activate)
	profiles.Delete("/:id", r.Profiles.Delete)

	catalogLimit := r.Limiter.CatalogLimit(r.CatalogPerMin)

	playlists := api.Group("/playlists")
	playlists.Get("/", r.Playlists.List)
	playlists.Post("/", r.Playlists.Save)
	playlists.Put("/:id", r.Playlists.Rename)
	playlists.Delete("/:id", r.Playlists.Delete)
	playlists.Get("/:id/clips", catalogLimit, r.Playlists.Clips)

	api.Get("/songs", catalogLimit, r.Catalog.Songs)
	api.Get("/search", catalogLimit, r.Catalog.Search)
	api.Post("/lyrics", catalogLimit, r.Catalog.Lyrics)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/generations/:id", websocket.New(r.Generations.Subscribe))
}
