package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"design-studio/internal/design/template"
	"design-studio/internal/render/export"
	"design-studio/internal/studio/service"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
)

// ============================================================
// Design Handler
// ============================================================

type DesignHandler struct {
	designs  *service.Designs
	sessions *service.SessionManager
	log      zerolog.Logger
}

func NewDesignHandler(designs *service.Designs, sessions *service.SessionManager, logger zerolog.Logger) *DesignHandler {
	return &DesignHandler{designs: designs, sessions: sessions, log: logger}
}

func (h *DesignHandler) Create(c fiber.Ctx) error {
	userID, err := authorize(c, h.sessions)
	if err != nil {
		return err
	}

	var in service.CreateInput
	if err := decode(c, &in); err != nil {
		return err
	}

	d, err := h.designs.Create(c.Context(), userID, in)
	if err != nil {
		return fail(err)
	}
	return c.Status(http.StatusCreated).JSON(d)
}

func (h *DesignHandler) List(c fiber.Ctx) error {
	userID, err := authorize(c, h.sessions)
	if err != nil {
		return err
	}

	list, err := h.designs.List(c.Context(), userID)
	if err != nil {
		return fail(err)
	}
	return c.JSON(list)
}

func (h *DesignHandler) Get(c fiber.Ctx) error {
	userID, err := authorize(c, h.sessions)
	if err != nil {
		return err
	}

	d, err := h.designs.Get(c.Context(), userID, c.Params("designId"))
	if err != nil {
		return fail(err)
	}
	return c.JSON(d)
}

// Update сохраняет холст; action в теле становится меткой записи истории.
func (h *DesignHandler) Update(c fiber.Ctx) error {
	userID, err := authorize(c, h.sessions)
	if err != nil {
		return err
	}

	var in service.SaveInput
	if err := decode(c, &in); err != nil {
		return err
	}

	res, err := h.designs.Save(c.Context(), userID, c.Params("designId"), in)
	if err != nil {
		return fail(err)
	}
	return c.JSON(res)
}

func (h *DesignHandler) Delete(c fiber.Ctx) error {
	userID, err := authorize(c, h.sessions)
	if err != nil {
		return err
	}

	if err := h.designs.Delete(c.Context(), userID, c.Params("designId")); err != nil {
		return fail(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// ============================================================
// History
// ============================================================

func (h *DesignHandler) History(c fiber.Ctx) error {
	return h.historyOp(c, h.designs.History)
}

func (h *DesignHandler) Undo(c fiber.Ctx) error {
	return h.historyOp(c, h.designs.Undo)
}

func (h *DesignHandler) Redo(c fiber.Ctx) error {
	return h.historyOp(c, h.designs.Redo)
}

func (h *DesignHandler) Seal(c fiber.Ctx) error {
	return h.historyOp(c, h.designs.Seal)
}

func (h *DesignHandler) Goto(c fiber.Ctx) error {
	userID, err := authorize(c, h.sessions)
	if err != nil {
		return err
	}

	res, err := h.designs.Goto(c.Context(), userID, c.Params("designId"), c.Params("entryId"))
	if err != nil {
		return fail(err)
	}
	return c.JSON(res)
}

type batchRequest struct {
	Action string `json:"action"`
}

// BeginBatch открывает батч: последующие сохранения станут одной записью.
func (h *DesignHandler) BeginBatch(c fiber.Ctx) error {
	userID, err := authorize(c, h.sessions)
	if err != nil {
		return err
	}

	var req batchRequest
	if err := decode(c, &req); err != nil {
		return err
	}

	res, err := h.designs.BeginBatch(c.Context(), userID, c.Params("designId"), req.Action)
	if err != nil {
		return fail(err)
	}
	return c.JSON(res)
}

// EndBatch фиксирует батч; ?cancel=1 отменяет его и откатывает холст.
func (h *DesignHandler) EndBatch(c fiber.Ctx) error {
	userID, err := authorize(c, h.sessions)
	if err != nil {
		return err
	}

	cancel, _ := strconv.ParseBool(c.Query("cancel"))
	res, err := h.designs.EndBatch(c.Context(), userID, c.Params("designId"), cancel)
	if err != nil {
		return fail(err)
	}
	return c.JSON(res)
}

func (h *DesignHandler) historyOp(c fiber.Ctx, op func(ctx context.Context, ownerID, id string) (*service.HistoryResult, error)) error {
	userID, err := authorize(c, h.sessions)
	if err != nil {
		return err
	}

	res, err := op(c.Context(), userID, c.Params("designId"))
	if err != nil {
		return fail(err)
	}
	return c.JSON(res)
}

// ============================================================
// Snap, Templates, Export
// ============================================================

func (h *DesignHandler) Snap(c fiber.Ctx) error {
	userID, err := authorize(c, h.sessions)
	if err != nil {
		return err
	}

	var in service.SnapInput
	if err := decode(c, &in); err != nil {
		return err
	}

	res, err := h.designs.Snap(c.Context(), userID, c.Params("designId"), in)
	if err != nil {
		return fail(err)
	}
	return c.JSON(res)
}

type applyTemplateRequest struct {
	TemplateID string `json:"template_id"`
	Mode       string `json:"mode"`
}

func (h *DesignHandler) ApplyTemplate(c fiber.Ctx) error {
	userID, err := authorize(c, h.sessions)
	if err != nil {
		return err
	}

	var req applyTemplateRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	if req.TemplateID == "" {
		return fiber.NewError(http.StatusBadRequest, "template_id required")
	}
	mode, err := template.ParseMode(req.Mode)
	if err != nil {
		return fail(err)
	}

	res, err := h.designs.ApplyTemplate(c.Context(), userID, c.Params("designId"), req.TemplateID, mode)
	if err != nil {
		return fail(err)
	}
	return c.JSON(res)
}

// Export отдаёт файл дизайна в запрошенном формате; копия остаётся в exports/.
func (h *DesignHandler) Export(c fiber.Ctx) error {
	userID, err := authorize(c, h.sessions)
	if err != nil {
		return err
	}

	params, err := exportParams(c)
	if err != nil {
		return fail(err)
	}

	res, err := h.designs.Export(c.Context(), userID, c.Params("designId"), params)
	if err != nil {
		return fail(err)
	}

	if res.Cache != "" {
		c.Set("X-Cache", res.Cache)
	}
	c.Set("Content-Type", res.ContentType)
	c.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, res.Filename))
	return c.Send(res.Data)
}

func exportParams(c fiber.Ctx) (export.Params, error) {
	p := export.Params{Format: export.Format(c.Query("format"))}

	if s := c.Query("scale"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return p, fmt.Errorf("%w: %q", export.ErrInvalidScale, s)
		}
		p.Scale = v
	}
	if s := c.Query("quality"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return p, fmt.Errorf("%w: %q", export.ErrInvalidQuality, s)
		}
		p.Quality = v
	}
	return p.Normalize()
}
