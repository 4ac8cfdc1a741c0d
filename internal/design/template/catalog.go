package template

import (
	"fmt"
	"os"
	"sort"

	"design-studio/internal/design/models"

	"gopkg.in/yaml.v3"
)

// ============================================================
// Catalog
// ============================================================

// Catalog - пресеты размеров и шаблоны из config/catalog.yaml.
type Catalog struct {
	Presets   []models.Preset   `yaml:"presets"`
	Templates []models.Template `yaml:"templates"`
}

// LoadCatalog читает и проверяет YAML-каталог.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	presets := make(map[string]struct{}, len(c.Presets))
	for _, p := range c.Presets {
		if p.ID == "" || p.Width <= 0 || p.Height <= 0 {
			return nil, fmt.Errorf("preset %q: invalid size or id", p.ID)
		}
		if _, ok := presets[p.ID]; ok {
			return nil, fmt.Errorf("preset %q: duplicate id", p.ID)
		}
		presets[p.ID] = struct{}{}
	}

	templates := make(map[string]struct{}, len(c.Templates))
	for i := range c.Templates {
		t := &c.Templates[i]
		if t.ID == "" {
			return nil, fmt.Errorf("template #%d: empty id", i)
		}
		if _, ok := templates[t.ID]; ok {
			return nil, fmt.Errorf("template %q: duplicate id", t.ID)
		}
		templates[t.ID] = struct{}{}

		t.Canvas.Normalize()
		if err := t.Canvas.Validate(); err != nil {
			return nil, fmt.Errorf("template %q: %w", t.ID, err)
		}
	}

	return &c, nil
}

func (c *Catalog) Preset(id string) (models.Preset, bool) {
	for _, p := range c.Presets {
		if p.ID == id {
			return p, true
		}
	}
	return models.Preset{}, false
}

func (c *Catalog) Template(id string) (models.Template, bool) {
	for _, t := range c.Templates {
		if t.ID == id {
			t.Canvas = t.Canvas.Clone()
			return t, true
		}
	}
	return models.Template{}, false
}

// ByCategory возвращает шаблоны категории; пустая категория - все.
func (c *Catalog) ByCategory(category string) []models.Template {
	out := make([]models.Template, 0, len(c.Templates))
	for _, t := range c.Templates {
		if category != "" && t.Category != category {
			continue
		}
		t.Canvas = t.Canvas.Clone()
		out = append(out, t)
	}
	return out
}

func (c *Catalog) Categories() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range c.Templates {
		if _, ok := seen[t.Category]; ok {
			continue
		}
		seen[t.Category] = struct{}{}
		out = append(out, t.Category)
	}
	sort.Strings(out)
	return out
}
