package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/textforce/backend/internal/config"
	"github.com/textforce/backend/internal/http/handlers"
	"github.com/textforce/backend/internal/middleware"
	"github.com/textforce/backend/internal/rbac"
	"go.uber.org/zap"
)

type Handlers struct {
	User     *handlers.UserHandler
	Claim    *handlers.ClaimHandler
	Campaign *handlers.CampaignHandler
	Team     *handlers.TeamHandler
	OptOut   *handlers.OptOutHandler
	WS       *handlers.WSHub
}

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	h Handlers,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Claims are rate limited per user
	limited := func(handler fiber.Handler) []fiber.Handler {
		if rdb == nil {
			return []fiber.Handler{handler}
		}
		return []fiber.Handler{middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute), handler}
	}
	perm := middleware.RequirePermission

	// User
	protected.Get("/me", h.User.GetMe)

	// Claims
	protected.Post("/campaigns/:id/claims", append([]fiber.Handler{perm(rbac.PermClaimContacts)}, limited(h.Claim.Claim)...)...)
	protected.Get("/campaigns/:id/contacts/:contactId/assignability", perm(rbac.PermPreviewAssignability), h.Claim.Assignability)

	// Campaign selection and state
	protected.Get("/organizations/:orgId/campaigns/assignable", perm(rbac.PermViewCampaigns), h.Campaign.ListAssignable)
	protected.Get("/organizations/:orgId/campaigns/autosend", perm(rbac.PermViewCampaigns), h.Campaign.ListAutosend)
	protected.Post("/campaigns/:id/archive", perm(rbac.PermArchiveCampaign), h.Campaign.Archive)
	protected.Post("/campaigns/:id/unarchive", perm(rbac.PermArchiveCampaign), h.Campaign.Unarchive)
	protected.Post("/campaigns/:id/autosend", perm(rbac.PermManageAutosend), h.Campaign.SetAutosendStatus)

	// Escalations
	protected.Get("/teams/:id/escalated", perm(rbac.PermViewEscalations), h.Team.Escalated)
	protected.Post("/teams/:id/claims", append([]fiber.Handler{perm(rbac.PermViewEscalations)}, limited(h.Team.ClaimEscalated)...)...)

	// Opt-outs
	protected.Post("/organizations/:orgId/opt-outs", perm(rbac.PermRecordOptOut), h.OptOut.Record)

	// WebSocket
	if h.WS != nil {
		app.Use("/ws", handlers.WSUpgradeMiddleware())
		app.Get("/ws", websocket.New(h.WS.HandleWS))
	}
}
