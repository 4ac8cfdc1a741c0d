package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ============================================================
// Configuration
// ============================================================

type LogConfig struct {
	Level      string `envconfig:"LEVEL" default:"info"`
	Format     string `envconfig:"FORMAT" default:"console"`
	Output     string `envconfig:"OUTPUT" default:"stdout"`
	FilePath   string `envconfig:"FILE" default:"logs/app.log"`
	TimeFormat string `envconfig:"TIME_FORMAT" default:"rfc3339"`
}

// Config - общие для всех сервисов параметры HTTP-сервера и логирования.
type Config struct {
	Port         string    `envconfig:"PORT"`
	Environment  string    `envconfig:"ENV" default:"development"`
	ReadTimeout  int       `envconfig:"READ_TIMEOUT" default:"10"`
	WriteTimeout int       `envconfig:"WRITE_TIMEOUT" default:"10"`
	Log          LogConfig `envconfig:"LOG"`
}

func (c Config) ReadTimeoutDuration() time.Duration {
	return time.Duration(c.ReadTimeout) * time.Second
}

func (c Config) WriteTimeoutDuration() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%s", c.Port)
}

type GatewayConfig struct {
	Config
	StudioURL   string        `envconfig:"STUDIO_URL" default:"http://localhost:3002"`
	RendererURL string        `envconfig:"RENDERER_URL" default:"http://localhost:3001"`
	DocsPath    string        `envconfig:"DOCS_PATH" default:"docs/openapi.yaml"`
	CORSOrigins []string      `envconfig:"CORS_ORIGINS" default:"*"`
	Upstream    time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"60s"`
}

type StudioConfig struct {
	Config
	DBPath         string        `envconfig:"STUDIO_DB_PATH" default:"data/db/studio.db"`
	MigrationsPath string        `envconfig:"STUDIO_MIGRATIONS" default:"migrations/001_init_studio.sql"`
	StorageDir     string        `envconfig:"STORAGE_DIR" default:"source"`
	CatalogPath    string        `envconfig:"CATALOG_PATH" default:"config/catalog.yaml"`
	RendererURL    string        `envconfig:"RENDERER_URL" default:"http://localhost:3001"`
	SessionTTL     time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	History        HistoryConfig `envconfig:"HISTORY"`
	Snap           SnapConfig    `envconfig:"SNAP"`
	Upload         UploadConfig  `envconfig:"UPLOAD"`
}

type HistoryConfig struct {
	MaxEntries  int           `envconfig:"MAX_ENTRIES" default:"50"`
	MergeWindow time.Duration `envconfig:"MERGE_WINDOW" default:"1s"`
}

type SnapConfig struct {
	Threshold float64 `envconfig:"THRESHOLD" default:"6"`
	GridSize  float64 `envconfig:"GRID" default:"0"`
}

type UploadConfig struct {
	Workers      int   `envconfig:"WORKERS" default:"4"`
	MaxDimension int   `envconfig:"MAX_DIMENSION" default:"2048"`
	JPEGQuality  int   `envconfig:"JPEG_QUALITY" default:"85"`
	MaxFileSize  int64 `envconfig:"MAX_FILE_SIZE" default:"20971520"`
	MaxPixels    int   `envconfig:"MAX_PIXELS" default:"40000000"`
}

type RendererConfig struct {
	Config
	StorageDir string      `envconfig:"STORAGE_DIR" default:"source"`
	FontsDir   string      `envconfig:"FONTS_DIR" default:"source/fonts"`
	Cache      CacheConfig `envconfig:"CACHE"`
}

type CacheConfig struct {
	MaxEntries      int           `envconfig:"MAX_ENTRIES" default:"256"`
	MaxBytes        int64         `envconfig:"MAX_BYTES" default:"67108864"`
	TTL             time.Duration `envconfig:"TTL" default:"10m"`
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1m"`
	RedisURL        string        `envconfig:"REDIS_URL"`
	RedisPrefix     string        `envconfig:"REDIS_PREFIX" default:"design-studio:"`
}

// ============================================================
// Loaders
// ============================================================

// Load загружает конфигурацию шлюза из .env и переменных окружения.
func Load() (*GatewayConfig, error) {
	var cfg GatewayConfig
	if err := process(&cfg, &cfg.Config, "3000"); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadStudio() (*StudioConfig, error) {
	var cfg StudioConfig
	if err := process(&cfg, &cfg.Config, "3002"); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadRenderer() (*RendererConfig, error) {
	var cfg RendererConfig
	if err := process(&cfg, &cfg.Config, "3001"); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func process(spec any, base *Config, defaultPort string) error {
	if err := LoadDotEnv(); err != nil {
		return err
	}
	if err := envconfig.Process("", spec); err != nil {
		return fmt.Errorf("error processing environment configuration: %w", err)
	}
	if base.Port == "" {
		base.Port = defaultPort
	}
	return nil
}

// LoadDotEnv подхватывает .env (или файлы из аргументов); отсутствие файла не ошибка.
func LoadDotEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}
