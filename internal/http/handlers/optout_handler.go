package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/textforce/backend/internal/http/dto"
	"github.com/textforce/backend/internal/middleware"
	"github.com/textforce/backend/internal/models"
	"github.com/textforce/backend/internal/services"
	"go.uber.org/zap"
)

type OptOutRecorder interface {
	Record(ctx context.Context, actor models.Requester, cell string) (int64, error)
}

type OptOutHandler struct {
	optOuts OptOutRecorder
	log     *zap.Logger
}

func NewOptOutHandler(optOuts OptOutRecorder, log *zap.Logger) *OptOutHandler {
	return &OptOutHandler{optOuts: optOuts, log: log}
}

func (h *OptOutHandler) Record(c *fiber.Ctx) error {
	if _, ok := sameOrganization(c); !ok {
		return fail(c, fiber.StatusForbidden, "not a member of this organization")
	}

	var req dto.OptOutRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request")
	}

	changed, err := h.optOuts.Record(c.Context(), middleware.GetRequester(c), req.Cell)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: dto.OptOutResponse{
		Cell:            services.NormalizeCell(req.Cell),
		ContactsChanged: changed,
	}})
}
