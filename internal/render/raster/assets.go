package raster

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrAssetNotFound    = errors.New("asset not found")
	ErrInvalidAssetPath = errors.New("invalid asset path")
)

// AssetSource отдаёт байты изображения по ссылке из Object.Src.
type AssetSource interface {
	Open(ctx context.Context, src string) ([]byte, error)
}

// DirAssets читает файлы из каталога Root; data: URI декодируются на месте.
type DirAssets struct {
	Root string
}

func (d DirAssets) Open(ctx context.Context, src string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.HasPrefix(src, "data:") {
		return DecodeDataURI(src)
	}
	if d.Root == "" {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, src)
	}

	rel := filepath.FromSlash(strings.TrimPrefix(src, "/"))
	if !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAssetPath, src)
	}

	data, err := os.ReadFile(filepath.Join(d.Root, rel))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, src)
		}
		return nil, fmt.Errorf("read asset %s: %w", src, err)
	}
	return data, nil
}

// DecodeDataURI разбирает data:[<mime>][;base64],<data>.
func DecodeDataURI(uri string) ([]byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, fmt.Errorf("%w: not a data uri", ErrInvalidAssetPath)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("%w: malformed data uri", ErrInvalidAssetPath)
	}

	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAssetPath, err)
		}
		return data, nil
	}

	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAssetPath, err)
	}
	return []byte(s), nil
}

// EncodeDataURI - обратная операция для встраивания изображений в SVG.
func EncodeDataURI(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
