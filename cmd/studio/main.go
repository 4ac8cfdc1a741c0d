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
	"design-studio/internal/design/history"
	"design-studio/internal/design/snap"
	"design-studio/internal/design/template"
	"design-studio/internal/studio/handlers"
	"design-studio/internal/studio/repository"
	"design-studio/internal/studio/service"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/rs/zerolog/log"
)

// ============================================================
// Studio Service
// ============================================================

const sessionSweepInterval = 10 * time.Minute

func main() {
	cfg, err := config.LoadStudio()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	logger, err := logging.Init(cfg.Log, "studio")
	if err != nil {
		log.Fatal().Err(err).Msg("init logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ============================================================
	// Storage
	// ============================================================

	db, err := repository.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open db")
	}
	defer db.Close()

	repo := repository.New(db)
	if err := repo.Init(ctx, cfg.MigrationsPath); err != nil {
		logger.Fatal().Err(err).Msg("init db")
	}

	catalog, err := template.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("load catalog")
	}
	if err := repo.SeedTemplates(ctx, catalog.Templates); err != nil {
		logger.Fatal().Err(err).Msg("seed templates")
	}
	logger.Info().
		Int("presets", len(catalog.Presets)).
		Int("templates", len(catalog.Templates)).
		Msg("catalog loaded")

	storage := service.NewFileStorage(cfg.StorageDir)

	// ============================================================
	// Services
	// ============================================================

	sessions := service.NewSessionManager(cfg.SessionTTL)
	renderer := service.NewRendererClient(cfg.RendererURL, cfg.WriteTimeoutDuration())

	historyOpts := history.DefaultOptions()
	historyOpts.MaxEntries = cfg.History.MaxEntries
	historyOpts.MergeWindow = cfg.History.MergeWindow

	snapOpts := snap.DefaultOptions()
	snapOpts.Threshold = cfg.Snap.Threshold
	snapOpts.GridSize = cfg.Snap.GridSize

	designs := service.NewDesigns(repo, service.DesignsOptions{
		Catalog:  catalog,
		Renderer: renderer,
		Storage:  storage,
		History:  historyOpts,
		Snap:     snapOpts,
	}, logging.Component(logger, "designs"))

	compressor := service.NewCompressor(service.CompressOptions{
		Workers:      cfg.Upload.Workers,
		MaxDimension: cfg.Upload.MaxDimension,
		JPEGQuality:  cfg.Upload.JPEGQuality,
		MaxFileSize:  cfg.Upload.MaxFileSize,
		MaxPixels:    cfg.Upload.MaxPixels,
	}, logging.Component(logger, "compress"))
	assets := service.NewAssets(storage, compressor, logging.Component(logger, "assets"))

	fonts, err := service.NewFonts(storage, logging.Component(logger, "fonts"))
	if err != nil {
		logger.Fatal().Err(err).Msg("init fonts")
	}
	defer fonts.Close()

	go func() {
		ticker := time.NewTicker(sessionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := sessions.Sweep(); n > 0 {
					logger.Debug().Int("sessions", n).Msg("expired sessions removed")
				}
			}
		}
	}()

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeoutDuration(),
		WriteTimeout: cfg.WriteTimeoutDuration(),
		BodyLimit:    int(cfg.Upload.MaxFileSize) * 4,
		AppName:      "Studio Service",
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
		ErrorHandler: middleware.ErrorHandler(logger),
	})

	// ============================================================
	// Global Middleware
	// ============================================================

	app.Use(recover.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())

	// ============================================================
	// Health Check Routes
	// ============================================================

	app.Get("/health/live", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "alive"})
	})

	app.Get("/health/ready", func(c fiber.Ctx) error {
		if err := db.PingContext(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "db unavailable"})
		}
		status := "ready"
		if err := renderer.Ping(c.Context()); err != nil {
			// редактирование работает и без renderer, недоступен только экспорт
			status = "degraded"
		}
		return c.JSON(fiber.Map{"status": status})
	})

	// ============================================================
	// Studio Routes
	// ============================================================

	handlers.Register(app, handlers.Set{
		Auth:    handlers.NewAuthHandler(repo, sessions, logging.Component(logger, "auth")),
		Designs: handlers.NewDesignHandler(designs, sessions, logging.Component(logger, "designs")),
		Catalog: handlers.NewCatalogHandler(catalog, repo),
		Assets:  handlers.NewAssetHandler(assets, fonts, sessions, logging.Component(logger, "assets")),
	})

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
		Str("renderer", cfg.RendererURL).
		Msg("starting Studio Service")
	if err := app.Listen(cfg.Addr()); err != nil {
		logger.Fatal().Err(err).Msg("failed to start server")
	}
}
