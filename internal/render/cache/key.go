package cache

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Key - параметры рендера. Любое изменение содержимого холста меняет Revision.
type Key struct {
	TemplateID string  `json:"template_id,omitempty"`
	DesignID   string  `json:"design_id,omitempty"`
	Revision   string  `json:"revision"`
	Format     string  `json:"format"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Scale      float64 `json:"scale"`
	Quality    int     `json:"quality,omitempty"`
}

// Revision хэширует снимок холста.
func Revision(snapshot []byte) string {
	return strconv.FormatUint(xxhash.Sum64(snapshot), 16)
}

// String возвращает render:<templateID|design>:<hash параметров>.
func (k Key) String() string {
	scope := k.TemplateID
	if scope == "" {
		scope = "design"
	}
	return TemplatePrefix(scope) + strconv.FormatUint(xxhash.Sum64String(k.canonical()), 16)
}

// TemplatePrefix - общий префикс ключей всех рендеров шаблона.
func TemplatePrefix(templateID string) string {
	return "render:" + templateID + ":"
}

func (k Key) canonical() string {
	return fmt.Sprintf("t=%s|d=%s|r=%s|f=%s|w=%d|h=%d|s=%s|q=%d",
		k.TemplateID, k.DesignID, k.Revision, k.Format, k.Width, k.Height,
		strconv.FormatFloat(k.Scale, 'f', -1, 64), k.Quality)
}
