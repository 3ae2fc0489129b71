package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/textforce/backend/internal/eligibility"
	"github.com/textforce/backend/internal/http/dto"
	"github.com/textforce/backend/internal/middleware"
	"github.com/textforce/backend/internal/models"
	"github.com/textforce/backend/internal/services"
	"go.uber.org/zap"
)

type Claimer interface {
	Claim(ctx context.Context, req services.ClaimRequest) (models.ClaimResult, error)
}

type Previewer interface {
	Preview(ctx context.Context, requester models.Requester, campaignID, contactID int64, purpose models.Purpose) (eligibility.Decision, error)
}

type ClaimHandler struct {
	claims  Claimer
	preview Previewer
	log     *zap.Logger
}

func NewClaimHandler(claims Claimer, preview Previewer, log *zap.Logger) *ClaimHandler {
	return &ClaimHandler{claims: claims, preview: preview, log: log}
}

func (h *ClaimHandler) Claim(c *fiber.Ctx) error {
	campaignID, ok := paramID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "invalid campaign id")
	}

	var req dto.ClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request")
	}
	purpose, ok := models.ParsePurpose(req.Purpose)
	if !ok {
		return fail(c, fiber.StatusBadRequest, "purpose must be needsMessage or needsReply")
	}
	if req.Count < 0 {
		return fail(c, fiber.StatusBadRequest, "count must not be negative")
	}

	res, err := h.claims.Claim(c.Context(), services.ClaimRequest{
		Requester:  middleware.GetRequester(c),
		CampaignID: campaignID,
		Count:      req.Count,
		Purpose:    purpose,
	})
	if err != nil {
		return writeErrorResponse(c, h.log, err, dto.ErrorResponse{ContactIDs: res.ContactIDs})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ClaimResponse{
		AssignmentID: res.AssignmentID,
		ContactIDs:   res.ContactIDs,
	}})
}

func (h *ClaimHandler) Assignability(c *fiber.Ctx) error {
	campaignID, ok := paramID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "invalid campaign id")
	}
	contactID, ok := paramID(c, "contactId")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "invalid contact id")
	}
	purpose, ok := models.ParsePurpose(c.Query("purpose"))
	if !ok {
		return fail(c, fiber.StatusBadRequest, "purpose must be needsMessage or needsReply")
	}

	d, err := h.preview.Preview(c.Context(), middleware.GetRequester(c), campaignID, contactID, purpose)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: d})
}
