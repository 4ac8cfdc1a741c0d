package service

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ============================================================
// File Storage
// ============================================================

var ErrInvalidFileName = errors.New("invalid file name")

// FileStorage раскладывает файлы по каталогу, общему с renderer:
// <root>/<user>/assets, <root>/<user>/exports и <root>/fonts.
type FileStorage struct {
	root string
}

func NewFileStorage(root string) *FileStorage {
	return &FileStorage{root: root}
}

func (s *FileStorage) Root() string {
	return s.root
}

func (s *FileStorage) UserDir(userID string) string {
	return filepath.Join(s.root, userID)
}

func (s *FileStorage) AssetsDir(userID string) string {
	return filepath.Join(s.UserDir(userID), "assets")
}

func (s *FileStorage) AssetPath(userID, name string) string {
	return filepath.Join(s.AssetsDir(userID), name)
}

// AssetSrc - ссылка на ассет относительно корня хранилища, как её читает renderer.
func (s *FileStorage) AssetSrc(userID, name string) string {
	return path.Join(userID, "assets", name)
}

func (s *FileStorage) ExportsDir(userID string) string {
	return filepath.Join(s.UserDir(userID), "exports")
}

func (s *FileStorage) ExportPath(userID, filename string) string {
	return filepath.Join(s.ExportsDir(userID), filename)
}

func (s *FileStorage) FontsDir() string {
	return filepath.Join(s.root, "fonts")
}

func (s *FileStorage) FontPath(filename string) string {
	return filepath.Join(s.FontsDir(), filename)
}

// SaveFile пишет файл, создавая каталоги по пути.
func (s *FileStorage) SaveFile(target string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(target), err)
	}
	return os.WriteFile(target, data, 0o644)
}

// CleanName оставляет только базовое имя файла и отбрасывает пути вида ../x.
func CleanName(name string) (string, error) {
	name = strings.TrimSpace(filepath.Base(filepath.FromSlash(name)))
	if name == "" || name == "." || name == ".." || !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	return name, nil
}

// ListFiles возвращает файлы каталога (без подкаталогов) по имени; отсутствующий каталог - пустой список.
func ListFiles(dir string) ([]os.FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []os.FileInfo{}, nil
		}
		return nil, err
	}

	out := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}
