package handlers

import "github.com/gofiber/fiber/v3"

type Set struct {
	Auth    *AuthHandler
	Designs *DesignHandler
	Catalog *CatalogHandler
	Assets  *AssetHandler
}

// Register вешает маршруты studio на router.
func Register(r fiber.Router, s Set) {
	// Auth
	r.Post("/login", s.Auth.Login)
	r.Post("/logout", s.Auth.Logout)
	r.Get("/users/:id", s.Auth.GetUser)

	// Catalog
	r.Get("/presets", s.Catalog.Presets)
	r.Get("/categories", s.Catalog.Categories)
	r.Get("/templates", s.Catalog.Templates)
	r.Get("/templates/:templateId", s.Catalog.Template)
	r.Get("/fonts", s.Assets.ListFonts)

	// Designs
	r.Post("/users/:id/designs", s.Designs.Create)
	r.Get("/users/:id/designs", s.Designs.List)
	r.Get("/users/:id/designs/:designId", s.Designs.Get)
	r.Put("/users/:id/designs/:designId", s.Designs.Update)
	r.Delete("/users/:id/designs/:designId", s.Designs.Delete)

	// History
	r.Get("/users/:id/designs/:designId/history", s.Designs.History)
	r.Post("/users/:id/designs/:designId/history/undo", s.Designs.Undo)
	r.Post("/users/:id/designs/:designId/history/redo", s.Designs.Redo)
	r.Post("/users/:id/designs/:designId/history/seal", s.Designs.Seal)
	r.Post("/users/:id/designs/:designId/history/batch", s.Designs.BeginBatch)
	r.Delete("/users/:id/designs/:designId/history/batch", s.Designs.EndBatch)
	r.Post("/users/:id/designs/:designId/history/goto/:entryId", s.Designs.Goto)

	r.Post("/users/:id/designs/:designId/snap", s.Designs.Snap)
	r.Post("/users/:id/designs/:designId/apply-template", s.Designs.ApplyTemplate)
	r.Get("/users/:id/designs/:designId/export", s.Designs.Export)

	// Assets & fonts
	r.Post("/users/:id/assets", s.Assets.Upload)
	r.Get("/users/:id/assets", s.Assets.List)
	r.Get("/users/:id/assets/:name", s.Assets.Get)
	r.Post("/users/:id/fonts", s.Assets.UploadFont)
}
