package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/textforce/backend/internal/http/dto"
	"github.com/textforce/backend/internal/middleware"
	"github.com/textforce/backend/internal/services"
	"go.uber.org/zap"
)

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
}

// writeError maps service errors onto HTTP statuses.
func writeError(c *fiber.Ctx, log *zap.Logger, err error) error {
	return writeErrorResponse(c, log, err, dto.ErrorResponse{})
}

// writeErrorResponse is writeError with extra fields carried in the body.
func writeErrorResponse(c *fiber.Ctx, log *zap.Logger, err error, body dto.ErrorResponse) error {
	body.RequestID = middleware.GetRequestID(c)
	status := fiber.StatusInternalServerError
	body.Error = "internal error"

	switch {
	case errors.Is(err, services.ErrCampaignNotFound),
		errors.Is(err, services.ErrContactNotFound),
		errors.Is(err, services.ErrTeamNotFound):
		status, body.Error = fiber.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrNotTeamMember), errors.Is(err, services.ErrForbidden):
		status, body.Error = fiber.StatusForbidden, err.Error()
	case errors.Is(err, services.ErrInvalidTransition):
		status, body.Error = fiber.StatusConflict, err.Error()
	case errors.Is(err, services.ErrInvalidCell):
		status, body.Error = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrStorageUnavailable):
		c.Set("Retry-After", "1")
		status, body.Error = fiber.StatusServiceUnavailable, services.ErrStorageUnavailable.Error()
	default:
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}

	return c.Status(status).JSON(body)
}

func paramID(c *fiber.Ctx, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// sameOrganization checks the :orgId path parameter against the requester.
func sameOrganization(c *fiber.Ctx) (int64, bool) {
	orgID, ok := paramID(c, "orgId")
	if !ok || orgID != middleware.GetRequester(c).OrganizationID {
		return 0, false
	}
	return orgID, true
}
