package services

import (
	"context"
	"fmt"
	"time"

	"github.com/textforce/backend/internal/eligibility"
	"github.com/textforce/backend/internal/events"
	"github.com/textforce/backend/internal/models"
	"github.com/textforce/backend/internal/repositories"
	"github.com/textforce/backend/internal/retry"
	"go.uber.org/zap"
)

type ClaimOptions struct {
	Timeout       time.Duration
	CandidatePage int
	MaxPerRequest int
}

func DefaultClaimOptions() ClaimOptions {
	return ClaimOptions{
		Timeout:       5 * time.Second,
		CandidatePage: 200,
		MaxPerRequest: 300,
	}
}

type ClaimRequest struct {
	Requester  models.Requester
	CampaignID int64
	Count      int
	Purpose    models.Purpose
}

// ClaimService binds unassigned contacts to a requester's assignment. Each
// contact is taken with a conditional write, so concurrent claimants never
// receive the same contact and a lost race just moves on to the next one.
type ClaimService struct {
	campaigns   CampaignStore
	orgs        OrganizationStore
	contacts    ContactStore
	assignments AssignmentStore
	selector    *CampaignService
	engine      *eligibility.Engine
	auditRepo   AuditLogger
	publisher   events.Publisher
	store       storage
	opts        ClaimOptions
	log         *zap.Logger
}

func NewClaimService(
	campaigns CampaignStore,
	orgs OrganizationStore,
	contacts ContactStore,
	assignments AssignmentStore,
	selector *CampaignService,
	engine *eligibility.Engine,
	auditRepo AuditLogger,
	publisher events.Publisher,
	backoff *retry.Backoff,
	opts ClaimOptions,
	log *zap.Logger,
) *ClaimService {
	if opts.CandidatePage <= 0 || opts.CandidatePage > 1000 {
		opts.CandidatePage = 200
	}
	return &ClaimService{
		campaigns:   campaigns,
		orgs:        orgs,
		contacts:    contacts,
		assignments: assignments,
		selector:    selector,
		engine:      engine,
		auditRepo:   auditRepo,
		publisher:   publisher,
		store:       newStorage(backoff, log),
		opts:        opts,
		log:         log,
	}
}

// ClaimContacts claims up to desired needs-message contacts and returns their
// ids. Fewer than desired, including none, is a normal outcome.
func (s *ClaimService) ClaimContacts(ctx context.Context, requester models.Requester, campaignID int64, desired int) ([]int64, error) {
	res, err := s.Claim(ctx, ClaimRequest{
		Requester:  requester,
		CampaignID: campaignID,
		Count:      desired,
		Purpose:    models.PurposeNeedsMessage,
	})
	return res.ContactIDs, err
}

func (s *ClaimService) Claim(ctx context.Context, req ClaimRequest) (models.ClaimResult, error) {
	res := models.ClaimResult{ContactIDs: []int64{}}

	count := req.Count
	if count <= 0 {
		return res, nil
	}
	if s.opts.MaxPerRequest > 0 && count > s.opts.MaxPerRequest {
		count = s.opts.MaxPerRequest
	}
	if req.Purpose == "" {
		req.Purpose = models.PurposeNeedsMessage
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	var campaign *models.CampaignWithStats
	err := s.store.do(ctx, "get campaign", func(ctx context.Context) error {
		var err error
		campaign, err = s.campaigns.GetWithStats(ctx, req.CampaignID)
		return err
	})
	if err != nil {
		return s.stop(ctx, req, res, mapNotFound(err, ErrCampaignNotFound))
	}
	if campaign.OrganizationID != req.Requester.OrganizationID {
		return res, ErrCampaignNotFound
	}

	var org *models.Organization
	err = s.store.do(ctx, "get organization", func(ctx context.Context) error {
		var err error
		org, err = s.orgs.GetByID(ctx, campaign.OrganizationID)
		return err
	})
	if err != nil {
		return s.stop(ctx, req, res, err)
	}

	now := s.engine.Now()
	if req.Requester.Autosender {
		if req.Purpose != models.PurposeNeedsMessage || !s.selector.IsAutosendOpen(campaign, org, now) {
			return res, nil
		}
	} else if !s.selector.IsAssignable(&campaign.Campaign, org, req.Purpose, now) {
		return res, nil
	}

	if campaign.LimitAssignmentToTeams && !req.Requester.Autosender {
		var linked bool
		err = s.store.do(ctx, "check team link", func(ctx context.Context) error {
			var err error
			linked, err = s.campaigns.IsTeamLinked(ctx, campaign.ID, req.Requester.UserID)
			return err
		})
		if err != nil {
			return s.stop(ctx, req, res, err)
		}
		if !linked {
			return res, ErrNotTeamMember
		}
	}

	var assignment *models.Assignment
	err = s.store.do(ctx, "get assignment", func(ctx context.Context) error {
		var err error
		assignment, err = s.assignments.GetOrCreate(ctx, req.Requester.UserID, campaign.ID)
		return err
	})
	if err != nil {
		return s.stop(ctx, req, res, err)
	}
	res.AssignmentID = assignment.ID

	if assignment.MaxContacts != nil {
		var owned int
		err = s.store.do(ctx, "count owned", func(ctx context.Context) error {
			var err error
			owned, err = s.contacts.CountOwned(ctx, assignment.ID)
			return err
		})
		if err != nil {
			return s.stop(ctx, req, res, err)
		}
		count = min(count, *assignment.MaxContacts-owned)
	}
	if req.Requester.Autosender {
		if room := AutosendRoom(campaign); room >= 0 {
			count = min(count, room)
		}
	}
	if count <= 0 {
		return res, nil
	}

	filter := repositories.CandidateFilter{
		CampaignID:       campaign.ID,
		MessageStatus:    req.Purpose.MessageStatus(),
		Limit:            s.opts.CandidatePage,
		ExcludeEscalated: true,
	}
	eval := func(now time.Time, c *models.CampaignContact) eligibility.Decision {
		return s.engine.Evaluate(now, eligibility.Input{
			Contact:      c,
			Campaign:     &campaign.Campaign,
			Organization: org,
			Purpose:      req.Purpose,
		})
	}

	spec := repositories.ClaimSpec{
		AssignmentID:  assignment.ID,
		MessageStatus: filter.MessageStatus,
		Autosend:      req.Requester.Autosender,
	}
	res.ContactIDs, err = s.claimLoop(ctx, spec, filter, count, eval)
	return s.stop(ctx, req, res, err)
}

type evalFunc func(now time.Time, c *models.CampaignContact) eligibility.Decision

// claimLoop walks candidates in ascending id order, claiming eligible ones
// until count is reached, a cap is hit, or the pool is exhausted. It returns
// what it claimed even when it stops on an error.
func (s *ClaimService) claimLoop(ctx context.Context, spec repositories.ClaimSpec, filter repositories.CandidateFilter, count int, eval evalFunc) ([]int64, error) {
	claimed := []int64{}

	for len(claimed) < count {
		var page []models.CampaignContact
		err := s.store.do(ctx, "list candidates", func(ctx context.Context) error {
			var err error
			page, err = s.contacts.ListCandidates(ctx, filter)
			return err
		})
		if err != nil {
			return claimed, err
		}
		if len(page) == 0 {
			break
		}

		now := s.engine.Now()
		want := make([]int64, 0, count-len(claimed))
		examined := 0
		for i := range page {
			c := &page[i]
			examined++
			filter.AfterID = c.ID

			if c.AssignmentID != nil {
				s.log.Error("assigned contact returned as candidate",
					zap.Int64("contact_id", c.ID),
					zap.Int64("assignment_id", *c.AssignmentID))
				continue
			}
			if d := eval(now, c); !d.Eligible {
				continue
			}
			want = append(want, c.ID)
			if len(want) == count-len(claimed) {
				break
			}
		}

		if len(want) > 0 {
			spec.IDs = want
			got, capReached, err := s.claimBatch(ctx, spec)
			claimed = append(claimed, got...)
			if err != nil {
				return claimed, err
			}
			if capReached {
				break
			}
		}

		if examined == len(page) && len(page) < filter.Limit {
			break
		}
	}

	return claimed, nil
}

// claimBatch runs one conditional write and checks that it only returned
// contacts it was asked for. It also reports whether a cap stopped the write.
func (s *ClaimService) claimBatch(ctx context.Context, spec repositories.ClaimSpec) ([]int64, bool, error) {
	var out repositories.ClaimOutcome
	err := s.store.do(ctx, "claim batch", func(ctx context.Context) error {
		var err error
		out, err = s.contacts.ClaimBatch(ctx, spec)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	assignmentID, want, got := spec.AssignmentID, spec.IDs, out.IDs

	requested := make(map[int64]struct{}, len(want))
	for _, id := range want {
		requested[id] = struct{}{}
	}
	legit := make([]int64, 0, len(got))
	var stray []int64
	for _, id := range got {
		if _, ok := requested[id]; !ok {
			stray = append(stray, id)
			continue
		}
		legit = append(legit, id)
		delete(requested, id)
	}
	if len(stray) > 0 {
		s.log.Error("claim returned contacts that were not requested",
			zap.Int64("assignment_id", assignmentID),
			zap.Int64s("unrequested", stray),
			zap.Int64s("requested", want),
			zap.Int64s("returned", got))
		return legit, out.CapReached, fmt.Errorf("%w: contacts %v", ErrInvariantViolation, stray)
	}

	if lost := len(want) - len(got); lost > 0 {
		s.log.Debug("claim contention", zap.Int64("assignment_id", assignmentID), zap.Int("lost", lost))
	}
	return got, out.CapReached, nil
}

// stop settles a claim: it reports what was claimed and maps a deadline or
// cancellation into a plain partial result.
func (s *ClaimService) stop(ctx context.Context, req ClaimRequest, res models.ClaimResult, err error) (models.ClaimResult, error) {
	if len(res.ContactIDs) > 0 {
		s.announce(context.WithoutCancel(ctx), req, res)
	}

	if err != nil && ctx.Err() != nil {
		s.log.Warn("claim stopped by deadline",
			zap.Int64("campaign_id", req.CampaignID),
			zap.Int("claimed", len(res.ContactIDs)),
			zap.Error(err))
		return res, nil
	}
	if err != nil {
		return res, err
	}
	return res, nil
}

func (s *ClaimService) announce(ctx context.Context, req ClaimRequest, res models.ClaimResult) {
	actorID := req.Requester.UserID

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorUserID: &actorID,
		ActorType:   req.Requester.ActorType(),
		Action:      "contacts_claimed",
		EntityType:  "assignment",
		EntityID:    res.AssignmentID,
		Meta: map[string]any{
			"campaign_id": req.CampaignID,
			"purpose":     string(req.Purpose),
			"count":       len(res.ContactIDs),
		},
	})

	_ = s.publisher.Publish(ctx, events.StreamAssignment, events.Event{
		Type:           events.EventContactsClaimed,
		OrganizationID: req.Requester.OrganizationID,
		Payload: map[string]any{
			"campaign_id":   req.CampaignID,
			"assignment_id": res.AssignmentID,
			"user_id":       actorID.String(),
			"purpose":       string(req.Purpose),
			"contact_ids":   res.ContactIDs,
		},
	})

	s.log.Info("contacts claimed",
		zap.Int64("campaign_id", req.CampaignID),
		zap.Int64("assignment_id", res.AssignmentID),
		zap.String("actor_type", req.Requester.ActorType()),
		zap.Int("count", len(res.ContactIDs)))
}
