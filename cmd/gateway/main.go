package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"design-studio/internal/common/config"
	"design-studio/internal/common/logging"
	"design-studio/internal/common/middleware"
	"design-studio/internal/gateway/handlers"
	"design-studio/internal/gateway/proxy"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/rs/zerolog/log"
)

// ============================================================
// API Gateway
// ============================================================

const apiPrefix = "/api/v1"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	logger, err := logging.Init(cfg.Log, "gateway")
	if err != nil {
		log.Fatal().Err(err).Msg("init logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeoutDuration(),
		WriteTimeout: cfg.Upstream,
		BodyLimit:    64 << 20,
		AppName:      "API Gateway",
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
		ErrorHandler: middleware.ErrorHandler(logger),
	})

	// ============================================================
	// Global Middleware
	// ============================================================

	app.Use(recover.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS(cfg.CORSOrigins...))

	// ============================================================
	// Health Check Routes
	// ============================================================

	readiness := handlers.NewReadiness(map[string]string{
		"studio":   cfg.StudioURL,
		"renderer": cfg.RendererURL,
	}, 2*time.Second)

	app.Get("/health/live", handlers.LivenessProbe)
	app.Get("/health/ready", readiness.ReadinessProbe)
	app.Get("/health/startup", handlers.StartupProbe)

	app.Get("/docs", handlers.SwaggerUI)
	app.Get("/docs/openapi.yaml", handlers.SwaggerSpec(cfg.DocsPath))

	// ============================================================
	// API Routes
	// ============================================================

	api := app.Group(apiPrefix)

	api.Get("/", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Design Studio API v1",
			"status":  "ok",
		})
	})

	p := proxy.New(cfg.Upstream, logging.Component(logger, "proxy"))
	registerRoutes(api, p, cfg)

	// ============================================================
	// Server Start
	// ============================================================

	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("shutdown")
		}
	}()

	logger.Info().
		Str("addr", cfg.Addr()).
		Str("env", cfg.Environment).
		Str("studio", cfg.StudioURL).
		Str("renderer", cfg.RendererURL).
		Msg("starting API Gateway")
	if err := app.Listen(cfg.Addr()); err != nil {
		logger.Fatal().Err(err).Msg("failed to start server")
	}
}

// registerRoutes раскладывает публичные маршруты по сервисам.
func registerRoutes(api fiber.Router, p *proxy.Proxy, cfg *config.GatewayConfig) {
	// Studio Service
	studio := p.To(cfg.StudioURL, apiPrefix)
	api.Post("/login", studio)
	api.Post("/logout", studio)
	api.Get("/presets", studio)
	api.Get("/categories", studio)
	api.Get("/templates", studio)
	api.Get("/templates/:templateId", studio)
	api.Get("/fonts", studio)
	api.All("/users/*", studio)

	// Renderer Service
	renderer := p.To(cfg.RendererURL, apiPrefix)
	api.Post("/render", renderer)
	api.Post("/import/svg", renderer)
	api.Get("/cache/stats", renderer)
	api.Post("/cache/purge", renderer)
	api.Delete("/cache/templates/:id", renderer)
}
