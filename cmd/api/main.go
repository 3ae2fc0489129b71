package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/textforce/backend/internal/config"
	"github.com/textforce/backend/internal/db"
	"github.com/textforce/backend/internal/eligibility"
	"github.com/textforce/backend/internal/events"
	apphttp "github.com/textforce/backend/internal/http"
	"github.com/textforce/backend/internal/http/handlers"
	"github.com/textforce/backend/internal/repositories"
	"github.com/textforce/backend/internal/retry"
	"github.com/textforce/backend/internal/services"
	"github.com/textforce/backend/internal/texthours"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, db.DefaultPoolOptions("textforce-api"), log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	orgRepo := repositories.NewOrganizationRepo(pool)
	campaignRepo := repositories.NewCampaignRepo(pool)
	contactRepo := repositories.NewContactRepo(pool)
	assignmentRepo := repositories.NewAssignmentRepo(pool)
	teamRepo := repositories.NewTeamRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	backoff := retry.NewBackoff(cfg.Backoff())
	resolver := texthours.NewResolver(log)
	engine := eligibility.NewEngine(resolver, cfg.Eligibility())
	claimOpts := claimOptions(cfg)

	campaignService := services.NewCampaignService(campaignRepo, orgRepo, auditRepo, publisher, resolver, backoff, cfg.DueByGrace, log)
	claimService := services.NewClaimService(campaignRepo, orgRepo, contactRepo, assignmentRepo, campaignService, engine, auditRepo, publisher, backoff, claimOpts, log)
	escalationService := services.NewEscalationService(teamRepo, campaignRepo, orgRepo, contactRepo, campaignService, claimService, engine, backoff, claimOpts, log)
	archiveService := services.NewArchiveService(campaignRepo, contactRepo, auditRepo, publisher, backoff, log)
	optOutService := services.NewOptOutService(contactRepo, auditRepo, publisher, backoff, log)
	previewService := services.NewAssignabilityService(campaignRepo, orgRepo, contactRepo, engine, backoff, log)

	// Handlers
	wsHub := handlers.NewWSHub(cfg, subscriber, log)
	h := apphttp.Handlers{
		User:     handlers.NewUserHandler(userRepo, log),
		Claim:    handlers.NewClaimHandler(claimService, previewService, log),
		Campaign: handlers.NewCampaignHandler(campaignService, archiveService, log),
		Team:     handlers.NewTeamHandler(escalationService, log),
		OptOut:   handlers.NewOptOutHandler(optOutService, log),
		WS:       wsHub,
	}

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, h)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

func claimOptions(cfg *config.Config) services.ClaimOptions {
	return services.ClaimOptions{
		Timeout:       cfg.ClaimTimeout,
		CandidatePage: cfg.ClaimCandidatePage,
		MaxPerRequest: cfg.MaxClaimPerRequest,
	}
}
