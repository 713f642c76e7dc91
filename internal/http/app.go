package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type AppConfig struct {
	AllowedOrigins []string
	BodyLimitMB    int
	AccessLog      bool
}

// NewApp builds the fiber app with middleware and every route.
func NewApp(h *Handler, cfg AppConfig) *fiber.App {
	fcfg := fiber.Config{DisableStartupMessage: true}
	if cfg.BodyLimitMB > 0 {
		fcfg.BodyLimit = cfg.BodyLimitMB * 1024 * 1024
	}
	app := fiber.New(fcfg)

	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(logger.New())
	}
	origins := "*"
	if len(cfg.AllowedOrigins) > 0 {
		origins = strings.Join(cfg.AllowedOrigins, ",")
	}
	app.Use(cors.New(cors.Config{AllowOrigins: origins}))

	app.Post("/upload", h.Upload)
	app.Post("/clear", h.Clear)
	app.Get("/classes", h.Classes)
	app.Post("/train", h.Train)
	app.Post("/predict", h.Predict)
	app.Post("/predict-stream", h.PredictStream)
	app.Get("/models", h.Models)
	app.Get("/history", h.History)
	app.Get("/health", h.Health)

	admin := app.Group("/admin")
	admin.Post("/unload", h.Unload)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	return app
}
