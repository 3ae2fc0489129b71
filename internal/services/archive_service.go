package services

import (
	"context"

	"github.com/textforce/backend/internal/events"
	"github.com/textforce/backend/internal/models"
	"github.com/textforce/backend/internal/repositories"
	"github.com/textforce/backend/internal/retry"
	"go.uber.org/zap"
)

// ArchiveService keeps contact archival in step with campaign archival.
type ArchiveService struct {
	campaigns CampaignStore
	contacts  ContactStore
	auditRepo AuditLogger
	publisher events.Publisher
	store     storage
	log       *zap.Logger
}

func NewArchiveService(
	campaigns CampaignStore,
	contacts ContactStore,
	auditRepo AuditLogger,
	publisher events.Publisher,
	backoff *retry.Backoff,
	log *zap.Logger,
) *ArchiveService {
	return &ArchiveService{
		campaigns: campaigns,
		contacts:  contacts,
		auditRepo: auditRepo,
		publisher: publisher,
		store:     newStorage(backoff, log),
		log:       log,
	}
}

// OnCampaignArchived mirrors archived onto every contact of the campaign.
// Running it again with the same value changes nothing.
func (s *ArchiveService) OnCampaignArchived(ctx context.Context, campaignID int64, archived bool) (repositories.CascadeResult, error) {
	var res repositories.CascadeResult
	err := s.store.do(ctx, "cascade archived", func(ctx context.Context) error {
		var err error
		res, err = s.contacts.CascadeArchived(ctx, campaignID, archived)
		return err
	})
	if err != nil {
		return res, mapNotFound(err, ErrCampaignNotFound)
	}

	if res.CampaignChanged || res.ContactsChanged > 0 {
		s.log.Info("campaign archival cascaded",
			zap.Int64("campaign_id", campaignID),
			zap.Bool("archived", archived),
			zap.Bool("campaign_changed", res.CampaignChanged),
			zap.Int64("contacts_changed", res.ContactsChanged))
	}
	return res, nil
}

// SetArchived archives or unarchives a campaign on behalf of an organization
// admin.
func (s *ArchiveService) SetArchived(ctx context.Context, actor models.Requester, campaignID int64, archived bool) (repositories.CascadeResult, error) {
	var c *models.Campaign
	err := s.store.do(ctx, "get campaign", func(ctx context.Context) error {
		var err error
		c, err = s.campaigns.GetByID(ctx, campaignID)
		return err
	})
	if err != nil {
		return repositories.CascadeResult{}, mapNotFound(err, ErrCampaignNotFound)
	}
	if c.OrganizationID != actor.OrganizationID {
		return repositories.CascadeResult{}, ErrCampaignNotFound
	}

	res, err := s.OnCampaignArchived(ctx, campaignID, archived)
	if err != nil {
		return res, err
	}
	if !res.CampaignChanged {
		return res, nil
	}

	action, eventType := "campaign_unarchived", events.EventCampaignUnarchived
	if archived {
		action, eventType = "campaign_archived", events.EventCampaignArchived
	}

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorUserID: &actor.UserID,
		ActorType:   actor.ActorType(),
		Action:      action,
		EntityType:  "campaign",
		EntityID:    campaignID,
		Meta:        map[string]any{"contacts_changed": res.ContactsChanged},
	})

	_ = s.publisher.Publish(ctx, events.StreamCampaign, events.Event{
		Type:           eventType,
		OrganizationID: c.OrganizationID,
		Payload: map[string]any{
			"campaign_id":      campaignID,
			"contacts_changed": res.ContactsChanged,
		},
	})

	return res, nil
}
