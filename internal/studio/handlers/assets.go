package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"slices"

	"design-studio/internal/studio/service"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
)

// ============================================================
// Asset Handler
// ============================================================

type AssetHandler struct {
	assets   *service.Assets
	fonts    *service.Fonts
	sessions *service.SessionManager
	log      zerolog.Logger
}

func NewAssetHandler(assets *service.Assets, fonts *service.Fonts, sessions *service.SessionManager, logger zerolog.Logger) *AssetHandler {
	return &AssetHandler{assets: assets, fonts: fonts, sessions: sessions, log: logger}
}

// Upload принимает несколько файлов в полях "files" и "file".
// Отклонённые файлы перечисляются в ответе, остальные сохраняются.
func (h *AssetHandler) Upload(c fiber.Ctx) error {
	userID, err := authorize(c, h.sessions)
	if err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid multipart data"})
	}

	headers := slices.Concat(form.File["files"], form.File["file"])
	if len(headers) == 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "file required"})
	}

	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		data, err := readFile(fh)
		if err != nil {
			h.log.Error().Err(err).Str("file", fh.Filename).Msg("read upload")
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read file"})
		}
		files = append(files, service.UploadFile{Name: fh.Filename, Data: data})
	}

	results := h.assets.Upload(c.Context(), userID, files)

	saved := 0
	for _, r := range results {
		if r.Asset != nil {
			saved++
		}
	}
	h.log.Info().Str("user", userID).Int("files", len(files)).Int("saved", saved).Msg("assets uploaded")

	status := http.StatusCreated
	if saved == 0 {
		status = http.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(fiber.Map{"results": results, "saved": saved})
}

func (h *AssetHandler) List(c fiber.Ctx) error {
	userID, err := authorize(c, h.sessions)
	if err != nil {
		return err
	}

	list, err := h.assets.List(userID)
	if err != nil {
		return fail(err)
	}
	return c.JSON(list)
}

func (h *AssetHandler) Get(c fiber.Ctx) error {
	userID, err := authorize(c, h.sessions)
	if err != nil {
		return err
	}

	path, contentType, err := h.assets.Path(userID, c.Params("name"))
	if err != nil {
		return fail(err)
	}
	c.Set("Content-Type", contentType)
	return c.SendFile(path)
}

// UploadFont сохраняет TTF/OTF в общий каталог шрифтов.
func (h *AssetHandler) UploadFont(c fiber.Ctx) error {
	if _, err := authorize(c, h.sessions); err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "file required"})
	}
	data, err := readFile(fh)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read file"})
	}

	font, err := h.fonts.Upload(fh.Filename, data)
	if err != nil {
		return fail(err)
	}
	return c.Status(http.StatusCreated).JSON(font)
}

func (h *AssetHandler) ListFonts(c fiber.Ctx) error {
	list, err := h.fonts.List()
	if err != nil {
		return fail(err)
	}
	return c.JSON(list)
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	file, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}
