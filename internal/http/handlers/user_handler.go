package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/textforce/backend/internal/http/dto"
	"github.com/textforce/backend/internal/middleware"
	"github.com/textforce/backend/internal/models"
	"go.uber.org/zap"
)

type UserGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type UserHandler struct {
	users UserGetter
	log   *zap.Logger
}

func NewUserHandler(users UserGetter, log *zap.Logger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

func (h *UserHandler) GetMe(c *fiber.Ctx) error {
	req := middleware.GetRequester(c)
	if req.Autosender {
		return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{
			"id":              req.UserID,
			"organization_id": req.OrganizationID,
			"role":            req.Role,
			"autosender":      true,
		}})
	}

	user, err := h.users.GetByID(c.Context(), req.UserID)
	if err != nil {
		return fail(c, fiber.StatusNotFound, "user not found")
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: user})
}
