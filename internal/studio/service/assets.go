package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"design-studio/internal/render/raster"
	"design-studio/internal/studio/models"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// ============================================================
// Assets
// ============================================================

var ErrAssetNotFound = errors.New("asset not found")

type AssetUpload struct {
	File  string        `json:"file"`
	Asset *models.Asset `json:"asset,omitempty"`
	Error string        `json:"error,omitempty"`
}

type Assets struct {
	storage    *FileStorage
	compressor *Compressor
	log        zerolog.Logger
}

func NewAssets(storage *FileStorage, compressor *Compressor, logger zerolog.Logger) *Assets {
	return &Assets{storage: storage, compressor: compressor, log: logger}
}

// Upload пережимает и сохраняет файлы; ошибки отдельных файлов возвращаются в их элементах.
func (a *Assets) Upload(ctx context.Context, userID string, files []UploadFile) []AssetUpload {
	out := make([]AssetUpload, len(files))
	valid := make([]UploadFile, 0, len(files))
	index := make([]int, 0, len(files))

	for i, f := range files {
		out[i].File = f.Name
		name, err := CleanName(f.Name)
		if err != nil {
			out[i].Error = err.Error()
			continue
		}
		valid = append(valid, UploadFile{Name: name, Data: f.Data})
		index = append(index, i)
	}

	for j, res := range a.compressor.Compress(ctx, valid) {
		i := index[j]
		if res.Err != nil {
			out[i].Error = res.Err.Error()
			a.log.Warn().Err(res.Err).Str("user", userID).Str("file", res.Name).Msg("asset rejected")
			continue
		}

		path := a.storage.AssetPath(userID, res.Name)
		if err := a.storage.SaveFile(path, res.Data); err != nil {
			out[i].Error = "failed to save file"
			a.log.Error().Err(err).Str("path", path).Msg("save asset")
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			out[i].Error = "failed to save file"
			continue
		}
		asset := a.describe(userID, info, res.ContentType)
		asset.Width, asset.Height = res.Width, res.Height
		out[i].Asset = &asset
	}
	return out
}

// List возвращает ассеты пользователя по имени.
func (a *Assets) List(userID string) ([]models.Asset, error) {
	infos, err := ListFiles(a.storage.AssetsDir(userID))
	if err != nil {
		return nil, err
	}

	out := make([]models.Asset, 0, len(infos))
	for _, info := range infos {
		asset := a.describe(userID, info, "")
		if f, err := os.Open(a.storage.AssetPath(userID, info.Name())); err == nil {
			if cfg, _, err := image.DecodeConfig(f); err == nil {
				asset.Width, asset.Height = cfg.Width, cfg.Height
			}
			f.Close()
		}
		out = append(out, asset)
	}
	return out, nil
}

// Path проверяет имя и возвращает путь к существующему ассету.
func (a *Assets) Path(userID, name string) (string, string, error) {
	clean, err := CleanName(name)
	if err != nil {
		return "", "", err
	}
	path := a.storage.AssetPath(userID, clean)
	if _, err := os.Stat(path); err != nil {
		return "", "", fmt.Errorf("%w: %s", ErrAssetNotFound, clean)
	}
	return path, contentTypeOf(clean), nil
}

func (a *Assets) describe(userID string, info os.FileInfo, contentType string) models.Asset {
	if contentType == "" {
		contentType = contentTypeOf(info.Name())
	}
	return models.Asset{
		Name:        info.Name(),
		Src:         a.storage.AssetSrc(userID, info.Name()),
		ContentType: contentType,
		Size:        info.Size(),
		HumanSize:   humanize.IBytes(uint64(info.Size())),
		UpdatedAt:   info.ModTime().UTC(),
	}
}

func contentTypeOf(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ============================================================
// Fonts
// ============================================================

// Fonts хранит пользовательские шрифты в общем каталоге fonts/, который читает renderer.
type Fonts struct {
	storage  *FileStorage
	registry *raster.FontRegistry
	log      zerolog.Logger
}

// NewFonts поднимает реестр со встроенными семействами и шрифтами из каталога.
func NewFonts(storage *FileStorage, logger zerolog.Logger) (*Fonts, error) {
	registry, err := raster.NewFontRegistry()
	if err != nil {
		return nil, err
	}
	if _, err := registry.LoadDir(storage.FontsDir()); err != nil {
		registry.Close()
		return nil, err
	}
	return &Fonts{storage: storage, registry: registry, log: logger}, nil
}

// Upload проверяет, что файл разбирается как TTF/OTF, и сохраняет его; семейство - имя файла.
func (f *Fonts) Upload(filename string, data []byte) (models.Font, error) {
	name, err := CleanName(filename)
	if err != nil {
		return models.Font{}, err
	}
	if !raster.IsFontFile(name) {
		return models.Font{}, fmt.Errorf("%w: only .ttf and .otf allowed", raster.ErrInvalidFont)
	}

	family := raster.FamilyFromFile(name)
	if err := f.registry.Register(family, data); err != nil {
		return models.Font{}, err
	}
	if err := f.storage.SaveFile(f.storage.FontPath(name), data); err != nil {
		return models.Font{}, fmt.Errorf("save font: %w", err)
	}

	f.log.Info().Str("family", family).Str("size", humanize.IBytes(uint64(len(data)))).Msg("font uploaded")
	return models.Font{Family: family, File: name, Custom: true}, nil
}

// List перечисляет все доступные семейства: встроенные и загруженные.
func (f *Fonts) List() ([]models.Font, error) {
	infos, err := ListFiles(f.storage.FontsDir())
	if err != nil {
		return nil, err
	}
	files := make(map[string]string, len(infos))
	for _, info := range infos {
		if raster.IsFontFile(info.Name()) {
			files[strings.ToLower(raster.FamilyFromFile(info.Name()))] = info.Name()
		}
	}

	families := f.registry.Families()
	out := make([]models.Font, 0, len(families))
	for _, family := range families {
		file, custom := files[strings.ToLower(family)]
		out = append(out, models.Font{Family: family, File: file, Custom: custom})
	}
	return out, nil
}

func (f *Fonts) Close() error {
	return f.registry.Close()
}
