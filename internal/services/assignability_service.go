package services

import (
	"context"

	"github.com/textforce/backend/internal/eligibility"
	"github.com/textforce/backend/internal/models"
	"github.com/textforce/backend/internal/retry"
	"go.uber.org/zap"
)

// AssignabilityService explains whether one contact could be claimed right
// now. It never writes.
type AssignabilityService struct {
	campaigns CampaignStore
	orgs      OrganizationStore
	contacts  ContactStore
	engine    *eligibility.Engine
	store     storage
}

func NewAssignabilityService(campaigns CampaignStore, orgs OrganizationStore, contacts ContactStore, engine *eligibility.Engine, backoff *retry.Backoff, log *zap.Logger) *AssignabilityService {
	return &AssignabilityService{
		campaigns: campaigns,
		orgs:      orgs,
		contacts:  contacts,
		engine:    engine,
		store:     newStorage(backoff, log),
	}
}

func (s *AssignabilityService) Preview(ctx context.Context, requester models.Requester, campaignID, contactID int64, purpose models.Purpose) (eligibility.Decision, error) {
	var campaign *models.Campaign
	err := s.store.do(ctx, "get campaign", func(ctx context.Context) error {
		var err error
		campaign, err = s.campaigns.GetByID(ctx, campaignID)
		return err
	})
	if err != nil {
		return eligibility.Decision{}, mapNotFound(err, ErrCampaignNotFound)
	}
	if campaign.OrganizationID != requester.OrganizationID {
		return eligibility.Decision{}, ErrCampaignNotFound
	}

	var contact *models.CampaignContact
	err = s.store.do(ctx, "get contact", func(ctx context.Context) error {
		var err error
		contact, err = s.contacts.GetByID(ctx, contactID)
		return err
	})
	if err != nil {
		return eligibility.Decision{}, mapNotFound(err, ErrContactNotFound)
	}
	if contact.CampaignID != campaignID {
		return eligibility.Decision{}, ErrContactNotFound
	}

	var org *models.Organization
	err = s.store.do(ctx, "get organization", func(ctx context.Context) error {
		var err error
		org, err = s.orgs.GetByID(ctx, campaign.OrganizationID)
		return err
	})
	if err != nil {
		return eligibility.Decision{}, err
	}

	return s.engine.Evaluate(s.engine.Now(), eligibility.Input{
		Contact:      contact,
		Campaign:     campaign,
		Organization: org,
		Purpose:      purpose,
	}), nil
}
