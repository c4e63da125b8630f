package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	handler "github.com/krishkalaria12/snap-forge/handlers"
	"github.com/krishkalaria12/snap-forge/logger"
	"github.com/krishkalaria12/snap-forge/metrics"
	"github.com/krishkalaria12/snap-forge/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// bodyLimit leaves room for a batch of full-size uploads.
const bodyLimit = 100 << 20

func NewApp(log *logger.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "snap-forge",
		BodyLimit:    bodyLimit,
		ErrorHandler: handler.ErrorHandler(log),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	return app
}

func SetupRoutes(app *fiber.App, h *handler.Handler, m *metrics.Metrics) {
	if m != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api", fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	api.Get("/hello", func(c *fiber.Ctx) error {
		return c.SendString("Hello, World!")
	})

	// Auth
	auth := api.Group("/auth")
	auth.Post("/register", h.Register)
	auth.Post("/login", h.Login)
	auth.Post("/logout", h.Logout)

	requireAuth := middleware.AuthMiddleware(h.Auth())

	// User
	user := api.Group("/user", requireAuth)
	user.Get("/me", h.GetCurrentUser)

	// Images
	images := api.Group("/images", requireAuth)
	images.Post("/generate", h.GenerateImage)
	images.Post("/edit", h.EditImage)
	images.Post("/batch-edit", h.BatchEdit)
	images.Post("/filter", h.ApplyFilter)
	images.Post("/upscale", h.UpscaleImage)

	// Videos
	videos := api.Group("/videos", requireAuth)
	videos.Post("/", h.StartVideo)
	videos.Get("/status/:id", h.VideoStatus)

	// History
	hist := api.Group("/history", requireAuth)
	hist.Get("/", h.ListHistory)
	hist.Get("/:id", h.GetHistoryItem)
	hist.Get("/:id/download", h.DownloadHistoryItem)
	hist.Delete("/:id", h.DeleteHistoryItem)
}
