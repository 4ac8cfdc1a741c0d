package raster

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

// ============================================================
// Font Registry
// ============================================================

const DefaultFamily = "Go"

var ErrInvalidFont = errors.New("invalid font")

type faceKey struct {
	family string
	size   float64
}

// FontRegistry хранит шрифты по семействам. Неизвестное семейство заменяется шрифтом по умолчанию.
type FontRegistry struct {
	mu      sync.RWMutex
	sources map[string]*text.FontSource // ключ - семейство в нижнем регистре
	names   map[string]string
	faces   map[faceKey]text.Face
}

// NewFontRegistry регистрирует встроенные семейства Go, Go Bold, Go Mono.
func NewFontRegistry() (*FontRegistry, error) {
	r := &FontRegistry{
		sources: make(map[string]*text.FontSource),
		names:   make(map[string]string),
		faces:   make(map[faceKey]text.Face),
	}

	builtin := []struct {
		family string
		data   []byte
	}{
		{DefaultFamily, goregular.TTF},
		{"Go Bold", gobold.TTF},
		{"Go Mono", gomono.TTF},
	}
	for _, f := range builtin {
		if err := r.Register(f.family, f.data); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register добавляет или заменяет семейство шрифтом TTF/OTF.
func (r *FontRegistry) Register(family string, data []byte) error {
	family = strings.TrimSpace(family)
	if family == "" {
		return fmt.Errorf("%w: empty family name", ErrInvalidFont)
	}

	src, err := text.NewFontSource(data)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidFont, family, err)
	}

	key := strings.ToLower(family)

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.sources[key]; ok {
		old.Close()
		for fk := range r.faces {
			if fk.family == key {
				delete(r.faces, fk)
			}
		}
	}
	r.sources[key] = src
	r.names[key] = family
	return nil
}

// LoadDir регистрирует все *.ttf и *.otf каталога; семейство - имя файла без расширения.
func (r *FontRegistry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read fonts dir: %w", err)
	}

	loaded := 0
	for _, e := range entries {
		if e.IsDir() || !IsFontFile(e.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return loaded, fmt.Errorf("read font %s: %w", e.Name(), err)
		}
		if err := r.Register(FamilyFromFile(e.Name()), data); err != nil {
			return loaded, err
		}
		loaded++
	}
	return loaded, nil
}

// Face возвращает начертание заданного размера.
func (r *FontRegistry) Face(family string, size float64) text.Face {
	key := strings.ToLower(strings.TrimSpace(family))

	r.mu.RLock()
	if _, ok := r.sources[key]; !ok {
		key = strings.ToLower(DefaultFamily)
	}
	fk := faceKey{family: key, size: size}
	face, ok := r.faces[fk]
	r.mu.RUnlock()
	if ok {
		return face
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if face, ok := r.faces[fk]; ok {
		return face
	}
	src, ok := r.sources[key]
	if !ok {
		return nil
	}
	face = src.Face(size)
	r.faces[fk] = face
	return face
}

func (r *FontRegistry) Has(family string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sources[strings.ToLower(strings.TrimSpace(family))]
	return ok
}

func (r *FontRegistry) Families() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *FontRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, src := range r.sources {
		src.Close()
	}
	r.sources = map[string]*text.FontSource{}
	r.names = map[string]string{}
	r.faces = map[faceKey]text.Face{}
	return nil
}

func IsFontFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ttf", ".otf":
		return true
	}
	return false
}

func FamilyFromFile(name string) string {
	return strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
}
