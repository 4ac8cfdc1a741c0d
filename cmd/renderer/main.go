package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"design-studio/internal/common/config"
	"design-studio/internal/common/logging"
	"design-studio/internal/common/middleware"
	"design-studio/internal/render/cache"
	"design-studio/internal/render/export"
	"design-studio/internal/render/handlers"
	"design-studio/internal/render/raster"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/rs/zerolog/log"
)

// ============================================================
// Renderer Service
// ============================================================

func main() {
	cfg, err := config.LoadRenderer()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	logger, err := logging.Init(cfg.Log, "renderer")
	if err != nil {
		log.Fatal().Err(err).Msg("init logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ============================================================
	// Fonts & Rasterizer
	// ============================================================

	fonts, err := raster.NewFontRegistry()
	if err != nil {
		logger.Fatal().Err(err).Msg("init fonts")
	}
	defer fonts.Close()

	if n, err := fonts.LoadDir(cfg.FontsDir); err != nil {
		logger.Warn().Err(err).Str("dir", cfg.FontsDir).Msg("load fonts")
	} else {
		logger.Info().Int("fonts", n).Str("dir", cfg.FontsDir).Msg("custom fonts loaded")
	}

	assets := raster.DirAssets{Root: filepath.Clean(cfg.StorageDir)}
	rasterizer := raster.New(fonts, assets, logging.Component(logger, "raster"))
	exporter := export.New(rasterizer, logging.Component(logger, "export"))

	// ============================================================
	// Render Cache
	// ============================================================

	cacheOpts := cache.Options{
		MaxEntries:      cfg.Cache.MaxEntries,
		MaxBytes:        cfg.Cache.MaxBytes,
		TTL:             cfg.Cache.TTL,
		CleanupInterval: cfg.Cache.CleanupInterval,
		Logger:          logging.Component(logger, "cache"),
	}
	if cfg.Cache.RedisURL != "" {
		remote, err := cache.NewRedisStore(ctx, cfg.Cache.RedisURL, cfg.Cache.RedisPrefix)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using memory cache only")
		} else {
			defer remote.Close()
			cacheOpts.Remote = remote
			logger.Info().Str("prefix", cfg.Cache.RedisPrefix).Msg("redis cache tier enabled")
		}
	}
	renderCache := cache.New(cacheOpts)
	go renderCache.Run(ctx)

	renderHandler := handlers.NewRenderHandler(renderCache, exporter, fonts, cfg.FontsDir, logging.Component(logger, "render"))
	cacheHandler := handlers.NewCacheHandler(renderCache, logging.Component(logger, "cache"))
	importHandler := handlers.NewImportHandler(logging.Component(logger, "import"))

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeoutDuration(),
		WriteTimeout: cfg.WriteTimeoutDuration(),
		AppName:      "Renderer Service",
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
		ErrorHandler: middleware.ErrorHandler(logger),
	})

	// ============================================================
	// Global Middleware
	// ============================================================

	app.Use(recover.New())
	app.Use(middleware.Logger())

	// ============================================================
	// Health Check Routes
	// ============================================================

	app.Get("/health/live", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "alive"})
	})

	app.Get("/health/ready", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ready", "fonts": fonts.Families()})
	})

	// ============================================================
	// Renderer Routes
	// ============================================================

	app.Post("/render", renderHandler.Render)
	app.Post("/import/svg", importHandler.ImportSVG)
	app.Get("/cache/stats", cacheHandler.Stats)
	app.Post("/cache/purge", cacheHandler.Purge)
	app.Delete("/cache/templates/:id", cacheHandler.InvalidateTemplate)

	// ============================================================
	// Server Start
	// ============================================================

	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("shutdown")
		}
	}()

	logger.Info().Str("addr", cfg.Addr()).Str("env", cfg.Environment).Msg("starting Renderer Service")
	if err := app.Listen(cfg.Addr()); err != nil {
		logger.Fatal().Err(err).Msg("failed to start server")
	}
}
