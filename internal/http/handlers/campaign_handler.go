package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/textforce/backend/internal/http/dto"
	"github.com/textforce/backend/internal/middleware"
	"github.com/textforce/backend/internal/models"
	"github.com/textforce/backend/internal/repositories"
	"go.uber.org/zap"
)

type CampaignSelector interface {
	SelectAssignableCampaigns(ctx context.Context, organizationID int64, purpose models.Purpose) ([]models.CampaignRef, error)
	SelectAutosendCampaigns(ctx context.Context, organizationID int64) ([]models.CampaignRef, error)
	SetAutosendStatus(ctx context.Context, actor models.Requester, campaignID int64, status string) (*models.Campaign, error)
}

type Archiver interface {
	SetArchived(ctx context.Context, actor models.Requester, campaignID int64, archived bool) (repositories.CascadeResult, error)
}

type CampaignHandler struct {
	campaigns CampaignSelector
	archive   Archiver
	log       *zap.Logger
}

func NewCampaignHandler(campaigns CampaignSelector, archive Archiver, log *zap.Logger) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns, archive: archive, log: log}
}

func (h *CampaignHandler) ListAssignable(c *fiber.Ctx) error {
	orgID, ok := sameOrganization(c)
	if !ok {
		return fail(c, fiber.StatusForbidden, "not a member of this organization")
	}
	purpose, ok := models.ParsePurpose(c.Query("purpose"))
	if !ok {
		return fail(c, fiber.StatusBadRequest, "purpose must be needsMessage or needsReply")
	}

	refs, err := h.campaigns.SelectAssignableCampaigns(c.Context(), orgID, purpose)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: refs})
}

func (h *CampaignHandler) ListAutosend(c *fiber.Ctx) error {
	orgID, ok := sameOrganization(c)
	if !ok {
		return fail(c, fiber.StatusForbidden, "not a member of this organization")
	}

	refs, err := h.campaigns.SelectAutosendCampaigns(c.Context(), orgID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: refs})
}

func (h *CampaignHandler) Archive(c *fiber.Ctx) error {
	return h.setArchived(c, true)
}

func (h *CampaignHandler) Unarchive(c *fiber.Ctx) error {
	return h.setArchived(c, false)
}

func (h *CampaignHandler) setArchived(c *fiber.Ctx, archived bool) error {
	id, ok := paramID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "invalid campaign id")
	}

	res, err := h.archive.SetArchived(c.Context(), middleware.GetRequester(c), id, archived)
	if err != nil {
		return writeError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ArchiveResponse{
		CampaignID:      id,
		Archived:        archived,
		CampaignChanged: res.CampaignChanged,
		ContactsChanged: res.ContactsChanged,
	}})
}

func (h *CampaignHandler) SetAutosendStatus(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "invalid campaign id")
	}

	var req dto.SetAutosendStatusRequest
	if err := c.BodyParser(&req); err != nil || req.Status == "" {
		return fail(c, fiber.StatusBadRequest, "status is required")
	}

	campaign, err := h.campaigns.SetAutosendStatus(c.Context(), middleware.GetRequester(c), id, req.Status)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: campaign})
}
