package services

import (
	"context"
	"time"

	"github.com/textforce/backend/internal/eligibility"
	"github.com/textforce/backend/internal/models"
	"github.com/textforce/backend/internal/repositories"
	"github.com/textforce/backend/internal/retry"
	"go.uber.org/zap"
)

// EscalationService routes contacts carrying escalation tags to the teams
// that own those tags.
type EscalationService struct {
	teams     TeamStore
	campaigns CampaignStore
	orgs      OrganizationStore
	contacts  ContactStore
	selector  *CampaignService
	claims    *ClaimService
	engine    *eligibility.Engine
	store     storage
	opts      ClaimOptions
	log       *zap.Logger
}

func NewEscalationService(
	teams TeamStore,
	campaigns CampaignStore,
	orgs OrganizationStore,
	contacts ContactStore,
	selector *CampaignService,
	claims *ClaimService,
	engine *eligibility.Engine,
	backoff *retry.Backoff,
	opts ClaimOptions,
	log *zap.Logger,
) *EscalationService {
	if opts.CandidatePage <= 0 || opts.CandidatePage > 1000 {
		opts.CandidatePage = 200
	}
	return &EscalationService{
		teams:     teams,
		campaigns: campaigns,
		orgs:      orgs,
		contacts:  contacts,
		selector:  selector,
		claims:    claims,
		engine:    engine,
		store:     newStorage(backoff, log),
		opts:      opts,
		log:       log,
	}
}

// EligibleEscalatedContacts lists, in ascending id order, the contacts the
// team may currently claim for purpose.
func (s *EscalationService) EligibleEscalatedContacts(ctx context.Context, teamID int64, purpose models.Purpose) ([]int64, error) {
	team, err := s.getTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	contacts, err := s.eligible(ctx, team, purpose)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(contacts))
	for _, c := range contacts {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// ListEscalated is EligibleEscalatedContacts scoped to the requester's
// organization.
func (s *EscalationService) ListEscalated(ctx context.Context, requester models.Requester, teamID int64, purpose models.Purpose) ([]int64, error) {
	team, err := s.getTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.OrganizationID != requester.OrganizationID {
		return nil, ErrTeamNotFound
	}
	return s.EligibleEscalatedContacts(ctx, teamID, purpose)
}

// ClaimEscalated claims up to count escalated contacts for a team member.
// Contacts may span campaigns; each campaign gets its own assignment.
func (s *EscalationService) ClaimEscalated(ctx context.Context, requester models.Requester, teamID int64, count int, purpose models.Purpose) ([]int64, error) {
	claimed := []int64{}
	if count <= 0 {
		return claimed, nil
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	team, err := s.getTeam(ctx, teamID)
	if err != nil {
		return claimed, err
	}
	if team.OrganizationID != requester.OrganizationID {
		return claimed, ErrTeamNotFound
	}

	var member bool
	err = s.store.do(ctx, "check team membership", func(ctx context.Context) error {
		var err error
		member, err = s.teams.IsMember(ctx, teamID, requester.UserID)
		return err
	})
	if err != nil {
		return claimed, err
	}
	if !member {
		return claimed, ErrNotTeamMember
	}

	candidates, err := s.eligible(ctx, team, purpose)
	if err != nil {
		if ctx.Err() != nil {
			return claimed, nil
		}
		return claimed, err
	}

	byCampaign := map[int64][]int64{}
	var order []int64
	for _, c := range candidates {
		if _, ok := byCampaign[c.CampaignID]; !ok {
			order = append(order, c.CampaignID)
		}
		byCampaign[c.CampaignID] = append(byCampaign[c.CampaignID], c.ID)
	}

	for _, campaignID := range order {
		remaining := count - len(claimed)
		if remaining <= 0 {
			break
		}
		ids := byCampaign[campaignID]
		if len(ids) > remaining {
			ids = ids[:remaining]
		}

		req := ClaimRequest{Requester: requester, CampaignID: campaignID, Count: len(ids), Purpose: purpose}
		res, err := s.claimCampaign(ctx, req, ids)
		claimed = append(claimed, res.ContactIDs...)
		if err != nil {
			if ctx.Err() != nil {
				return claimed, nil
			}
			return claimed, err
		}
	}

	return claimed, nil
}

func (s *EscalationService) claimCampaign(ctx context.Context, req ClaimRequest, ids []int64) (models.ClaimResult, error) {
	res := models.ClaimResult{ContactIDs: []int64{}}

	var assignment *models.Assignment
	err := s.store.do(ctx, "get assignment", func(ctx context.Context) error {
		var err error
		assignment, err = s.claims.assignments.GetOrCreate(ctx, req.Requester.UserID, req.CampaignID)
		return err
	})
	if err != nil {
		return res, err
	}
	res.AssignmentID = assignment.ID

	got, _, err := s.claims.claimBatch(ctx, repositories.ClaimSpec{
		AssignmentID:  assignment.ID,
		MessageStatus: req.Purpose.MessageStatus(),
		IDs:           ids,
	})
	res.ContactIDs = append(res.ContactIDs, got...)
	if len(got) > 0 {
		s.claims.announce(context.WithoutCancel(ctx), req, res)
	}
	return res, err
}

func (s *EscalationService) getTeam(ctx context.Context, teamID int64) (*models.Team, error) {
	var team *models.Team
	err := s.store.do(ctx, "get team", func(ctx context.Context) error {
		var err error
		team, err = s.teams.GetByID(ctx, teamID)
		return err
	})
	if err != nil {
		return nil, mapNotFound(err, ErrTeamNotFound)
	}
	return team, nil
}

// eligible pages through the organization's escalated contacts and keeps the
// ones the team may claim, up to the team's request cap.
func (s *EscalationService) eligible(ctx context.Context, team *models.Team, purpose models.Purpose) ([]models.CampaignContact, error) {
	out := []models.CampaignContact{}
	if !team.IsAssignmentEnabled || !team.AllowsPurpose(purpose) || len(team.EscalationTagIDs) == 0 {
		return out, nil
	}

	limit := s.opts.MaxPerRequest
	if team.MaxRequestCount != nil && *team.MaxRequestCount > 0 {
		limit = *team.MaxRequestCount
	}
	if limit <= 0 {
		return out, nil
	}

	var org *models.Organization
	err := s.store.do(ctx, "get organization", func(ctx context.Context) error {
		var err error
		org, err = s.orgs.GetByID(ctx, team.OrganizationID)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Campaigns looked up for this call only.
	campaigns := map[int64]*models.Campaign{}
	open := map[int64]bool{}

	filter := repositories.CandidateFilter{
		OrganizationID:   team.OrganizationID,
		MessageStatus:    purpose.MessageStatus(),
		EscalationTagIDs: team.EscalationTagIDs,
		Limit:            s.opts.CandidatePage,
	}

	for len(out) < limit {
		var page []models.CampaignContact
		err := s.store.do(ctx, "list escalated candidates", func(ctx context.Context) error {
			var err error
			page, err = s.contacts.ListCandidates(ctx, filter)
			return err
		})
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		filter.AfterID = page[len(page)-1].ID

		now := s.engine.Now()
		for i := range page {
			c := &page[i]
			camp, ok, err := s.campaign(ctx, c.CampaignID, org, purpose, now, campaigns, open)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}

			d := s.engine.Evaluate(now, eligibility.Input{
				Contact:          c,
				Campaign:         camp,
				Organization:     org,
				Purpose:          purpose,
				Escalated:        true,
				EscalationTagIDs: team.EscalationTagIDs,
			})
			if !d.Eligible {
				continue
			}
			out = append(out, *c)
			if len(out) == limit {
				break
			}
		}

		if len(page) < filter.Limit {
			break
		}
	}

	return out, nil
}

func (s *EscalationService) campaign(
	ctx context.Context,
	id int64,
	org *models.Organization,
	purpose models.Purpose,
	now time.Time,
	cache map[int64]*models.Campaign,
	open map[int64]bool,
) (*models.Campaign, bool, error) {
	if c, ok := cache[id]; ok {
		return c, open[id], nil
	}

	var c *models.Campaign
	err := s.store.do(ctx, "get campaign", func(ctx context.Context) error {
		var err error
		c, err = s.campaigns.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, false, mapNotFound(err, ErrCampaignNotFound)
	}

	cache[id] = c
	open[id] = s.selector.IsAssignable(c, org, purpose, now)
	return c, open[id], nil
}
