package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/textforce/backend/internal/config"
	"github.com/textforce/backend/internal/db"
	"github.com/textforce/backend/internal/eligibility"
	"github.com/textforce/backend/internal/events"
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

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, db.DefaultPoolOptions("textforce-worker"), log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	orgRepo := repositories.NewOrganizationRepo(pool)
	campaignRepo := repositories.NewCampaignRepo(pool)
	contactRepo := repositories.NewContactRepo(pool)
	assignmentRepo := repositories.NewAssignmentRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	backoff := retry.NewBackoff(cfg.Backoff())
	resolver := texthours.NewResolver(log)
	engine := eligibility.NewEngine(resolver, cfg.Eligibility())

	campaignService := services.NewCampaignService(campaignRepo, orgRepo, auditRepo, publisher, resolver, backoff, cfg.DueByGrace, log)
	claimService := services.NewClaimService(campaignRepo, orgRepo, contactRepo, assignmentRepo, campaignService, engine, auditRepo, publisher, backoff, claimOptions(cfg), log)
	autosend := services.NewAutosendService(campaignService, claimService, campaignRepo, publisher, cfg.AutosendUserID, cfg.AutosendBatchSize, log)

	status := &runStatus{}
	go serveHealth(cfg, status, log)

	log.Info("worker started", zap.Duration("autosend_interval", cfg.AutosendInterval))

	autosendTicker := time.NewTicker(cfg.AutosendInterval)
	defer autosendTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-autosendTicker.C:
			runAutosend(ctx, autosend, status, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runAutosend(ctx context.Context, autosend *services.AutosendService, status *runStatus, log *zap.Logger) {
	started := time.Now()
	stats, err := autosend.RunOnce(ctx)
	status.record(started, stats, err)

	if err != nil {
		log.Error("autosend pass failed", zap.Error(err))
		return
	}
	if stats.Claimed > 0 || stats.Failed > 0 {
		log.Info("autosend pass",
			zap.Int("organizations", stats.Organizations),
			zap.Int("campaigns", stats.Campaigns),
			zap.Int("claimed", stats.Claimed),
			zap.Int("failed", stats.Failed),
			zap.Duration("took", time.Since(started)),
		)
	}
}

// runStatus keeps the outcome of the latest autosend pass for /health.
type runStatus struct {
	mu      sync.Mutex
	lastRun time.Time
	stats   services.AutosendStats
	lastErr string
}

func (s *runStatus) record(at time.Time, stats services.AutosendStats, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = at
	s.stats = stats
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
}

func serveHealth(cfg *config.Config, status *runStatus, log *zap.Logger) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/health", func(c *fiber.Ctx) error {
		status.mu.Lock()
		defer status.mu.Unlock()
		return c.JSON(fiber.Map{
			"status":   "ok",
			"last_run": status.lastRun,
			"stats":    status.stats,
			"error":    status.lastErr,
		})
	})

	addr := fmt.Sprintf(":%s", cfg.WorkerPort)
	if err := app.Listen(addr); err != nil {
		log.Error("worker health server stopped", zap.Error(err))
	}
}

func claimOptions(cfg *config.Config) services.ClaimOptions {
	return services.ClaimOptions{
		Timeout:       cfg.ClaimTimeout,
		CandidatePage: cfg.ClaimCandidatePage,
		MaxPerRequest: cfg.MaxClaimPerRequest,
	}
}
