package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/textforce/backend/internal/http/dto"
	"github.com/textforce/backend/internal/middleware"
	"github.com/textforce/backend/internal/models"
	"go.uber.org/zap"
)

type EscalationRouter interface {
	ListEscalated(ctx context.Context, requester models.Requester, teamID int64, purpose models.Purpose) ([]int64, error)
	ClaimEscalated(ctx context.Context, requester models.Requester, teamID int64, count int, purpose models.Purpose) ([]int64, error)
}

type TeamHandler struct {
	escalation EscalationRouter
	log        *zap.Logger
}

func NewTeamHandler(escalation EscalationRouter, log *zap.Logger) *TeamHandler {
	return &TeamHandler{escalation: escalation, log: log}
}

func (h *TeamHandler) Escalated(c *fiber.Ctx) error {
	teamID, ok := paramID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "invalid team id")
	}
	purpose, ok := models.ParsePurpose(c.Query("purpose", string(models.PurposeNeedsReply)))
	if !ok {
		return fail(c, fiber.StatusBadRequest, "purpose must be needsMessage or needsReply")
	}

	ids, err := h.escalation.ListEscalated(c.Context(), middleware.GetRequester(c), teamID, purpose)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ClaimResponse{ContactIDs: ids}})
}

func (h *TeamHandler) ClaimEscalated(c *fiber.Ctx) error {
	teamID, ok := paramID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "invalid team id")
	}

	req := dto.ClaimRequest{Purpose: string(models.PurposeNeedsReply)}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request")
	}
	purpose, ok := models.ParsePurpose(req.Purpose)
	if !ok {
		return fail(c, fiber.StatusBadRequest, "purpose must be needsMessage or needsReply")
	}

	ids, err := h.escalation.ClaimEscalated(c.Context(), middleware.GetRequester(c), teamID, req.Count, purpose)
	if err != nil {
		return writeErrorResponse(c, h.log, err, dto.ErrorResponse{ContactIDs: ids})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ClaimResponse{ContactIDs: ids}})
}
