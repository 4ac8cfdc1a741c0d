package handlers

import (
	"context"
	"errors"
	"net/http"

	"design-studio/internal/design/history"
	"design-studio/internal/design/models"
	"design-studio/internal/design/template"
	"design-studio/internal/render/export"
	"design-studio/internal/render/raster"
	"design-studio/internal/studio/repository"
	"design-studio/internal/studio/service"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v3"
)

// fail переводит ошибки слоёв в *fiber.Error; остальное уходит в ErrorHandler как 500.
func fail(err error) error {
	var rendererErr *service.RendererError
	if errors.As(err, &rendererErr) {
		if rendererErr.Status >= 500 {
			return fiber.NewError(http.StatusBadGateway, "renderer failed")
		}
		return fiber.NewError(rendererErr.Status, rendererErr.Message)
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "not found")
	case errors.Is(err, history.ErrEntryNotFound),
		errors.Is(err, service.ErrAssetNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())

	case errors.Is(err, repository.ErrVersionConflict),
		errors.Is(err, history.ErrNothingToUndo),
		errors.Is(err, history.ErrNothingToRedo),
		errors.Is(err, history.ErrBatchOpen),
		errors.Is(err, history.ErrNoBatch):
		return fiber.NewError(http.StatusConflict, err.Error())

	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidFileName),
		errors.Is(err, models.ErrInvalidCanvas),
		errors.Is(err, models.ErrInvalidColor),
		errors.Is(err, models.ErrDuplicateObject),
		errors.Is(err, models.ErrUnknownObjectType),
		errors.Is(err, models.ErrObjectNotFound),
		errors.Is(err, history.ErrEmptySnapshot),
		errors.Is(err, template.ErrUnknownMode),
		errors.Is(err, export.ErrUnsupportedFormat),
		errors.Is(err, export.ErrInvalidScale),
		errors.Is(err, export.ErrInvalidQuality),
		errors.Is(err, raster.ErrInvalidFont):
		return fiber.NewError(http.StatusBadRequest, err.Error())

	case errors.Is(err, service.ErrRendererUnavailable):
		return fiber.NewError(http.StatusBadGateway, "renderer unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(http.StatusServiceUnavailable, "request cancelled")
	}
	return err
}

func decode(c fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return fiber.NewError(http.StatusBadRequest, "empty body")
	}
	if err := sonic.Unmarshal(c.Body(), v); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid json")
	}
	return nil
}
