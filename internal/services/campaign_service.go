package services

import (
	"context"
	"fmt"
	"time"

	"github.com/textforce/backend/internal/events"
	"github.com/textforce/backend/internal/models"
	"github.com/textforce/backend/internal/retry"
	"github.com/textforce/backend/internal/texthours"
	"go.uber.org/zap"
)

// CampaignService selects the campaigns currently open for assignment or
// autosend and manages the autosend lifecycle. Selection is read only.
type CampaignService struct {
	campaigns  CampaignStore
	orgs       OrganizationStore
	auditRepo  AuditLogger
	publisher  events.Publisher
	resolver   *texthours.Resolver
	store      storage
	dueByGrace time.Duration
	now        func() time.Time
	log        *zap.Logger
}

func NewCampaignService(
	campaigns CampaignStore,
	orgs OrganizationStore,
	auditRepo AuditLogger,
	publisher events.Publisher,
	resolver *texthours.Resolver,
	backoff *retry.Backoff,
	dueByGrace time.Duration,
	log *zap.Logger,
) *CampaignService {
	return &CampaignService{
		campaigns:  campaigns,
		orgs:       orgs,
		auditRepo:  auditRepo,
		publisher:  publisher,
		resolver:   resolver,
		store:      newStorage(backoff, log),
		dueByGrace: dueByGrace,
		now:        time.Now,
		log:        log,
	}
}

func (s *CampaignService) SelectAssignableCampaigns(ctx context.Context, organizationID int64, purpose models.Purpose) ([]models.CampaignRef, error) {
	org, campaigns, err := s.loadOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	refs := []models.CampaignRef{}
	for i := range campaigns {
		if s.IsAssignable(&campaigns[i].Campaign, org, purpose, now) {
			refs = append(refs, campaigns[i].Ref())
		}
	}
	return refs, nil
}

func (s *CampaignService) SelectAutosendCampaigns(ctx context.Context, organizationID int64) ([]models.CampaignRef, error) {
	org, campaigns, err := s.loadOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	refs := []models.CampaignRef{}
	for i := range campaigns {
		if s.IsAutosendOpen(&campaigns[i], org, now) {
			refs = append(refs, campaigns[i].Ref())
		}
	}
	return refs, nil
}

func (s *CampaignService) loadOrganization(ctx context.Context, organizationID int64) (*models.Organization, []models.CampaignWithStats, error) {
	var org *models.Organization
	var campaigns []models.CampaignWithStats

	err := s.store.do(ctx, "load organization", func(ctx context.Context) error {
		var err error
		org, err = s.orgs.GetByID(ctx, organizationID)
		return err
	})
	if err != nil {
		return nil, nil, mapNotFound(err, ErrForbidden)
	}

	err = s.store.do(ctx, "list campaigns", func(ctx context.Context) error {
		var err error
		campaigns, err = s.campaigns.ListActiveByOrganization(ctx, organizationID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return org, campaigns, nil
}

// IsAssignable reports whether human texters may currently claim from c for
// purpose. An autosending campaign keeps its needs-message contacts for the
// autosender.
func (s *CampaignService) IsAssignable(c *models.Campaign, org *models.Organization, purpose models.Purpose, now time.Time) bool {
	if !c.IsOpen() || !c.IsAutoassignEnabled {
		return false
	}
	if purpose == models.PurposeNeedsMessage {
		if c.AutosendStatus == models.AutosendStatusSending {
			return false
		}
		if s.PastDue(c, org, now) {
			return false
		}
	}
	return true
}

// IsAutosendOpen reports whether the autosender may claim from c.
func (s *CampaignService) IsAutosendOpen(c *models.CampaignWithStats, org *models.Organization, now time.Time) bool {
	if c.AutosendStatus != models.AutosendStatusSending || !c.IsOpen() {
		return false
	}
	if s.PastDue(&c.Campaign, org, now) {
		return false
	}
	return AutosendRoom(c) != 0
}

// AutosendRoom returns how many more contacts the autosender may take, or -1
// when the campaign has no limit.
func AutosendRoom(c *models.CampaignWithStats) int {
	if c.AutosendLimit == nil {
		return -1
	}
	room := *c.AutosendLimit - c.Committed
	if room < 0 {
		return 0
	}
	return room
}

// PastDue reports whether the campaign's due-by day has ended. The deadline
// is midnight of the due-by date in the campaign zone plus the grace period.
func (s *CampaignService) PastDue(c *models.Campaign, org *models.Organization, now time.Time) bool {
	if c.DueBy == nil {
		return false
	}

	loc := time.UTC
	if l, ok := s.resolver.Location(c.Timezone); ok {
		loc = l
	} else if org != nil {
		if l, ok := s.resolver.Location(&org.DefaultTimezone); ok {
			loc = l
		}
	}

	y, m, d := c.DueBy.In(loc).Date()
	deadline := time.Date(y, m, d, 0, 0, 0, 0, loc).Add(s.dueByGrace)
	return !now.Before(deadline)
}

func (s *CampaignService) SetAutosendStatus(ctx context.Context, actor models.Requester, campaignID int64, status string) (*models.Campaign, error) {
	var c *models.Campaign
	err := s.store.do(ctx, "get campaign", func(ctx context.Context) error {
		var err error
		c, err = s.campaigns.GetByID(ctx, campaignID)
		return err
	})
	if err != nil {
		return nil, mapNotFound(err, ErrCampaignNotFound)
	}
	if c.OrganizationID != actor.OrganizationID {
		return nil, ErrCampaignNotFound
	}

	if !models.IsValidAutosendTransition(c.AutosendStatus, status) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, c.AutosendStatus, status)
	}

	var moved bool
	err = s.store.do(ctx, "update autosend status", func(ctx context.Context) error {
		var err error
		moved, err = s.campaigns.UpdateAutosendStatus(ctx, campaignID, c.AutosendStatus, status)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
	}

	oldStatus := c.AutosendStatus
	c.AutosendStatus = status

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorUserID: &actor.UserID,
		ActorType:   actor.ActorType(),
		Action:      fmt.Sprintf("autosend_%s_to_%s", oldStatus, status),
		EntityType:  "campaign",
		EntityID:    campaignID,
		Meta:        map[string]any{"old_status": oldStatus, "new_status": status},
	})

	_ = s.publisher.Publish(ctx, events.StreamCampaign, events.Event{
		Type:           events.EventAutosendStatusChanged,
		OrganizationID: c.OrganizationID,
		Payload: map[string]any{
			"campaign_id": campaignID,
			"old_status":  oldStatus,
			"new_status":  status,
		},
	})

	return c, nil
}

// AutosendOrganizations lists organizations with at least one sending campaign.
func (s *CampaignService) AutosendOrganizations(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.store.do(ctx, "list autosend organizations", func(ctx context.Context) error {
		var err error
		ids, err = s.campaigns.ListAutosendOrganizationIDs(ctx)
		return err
	})
	return ids, err
}
