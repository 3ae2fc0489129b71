package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/textforce/backend/internal/events"
	"github.com/textforce/backend/internal/models"
	"go.uber.org/zap"
)

// AutosendService drives autosending campaigns: each run claims a batch of
// needs-message contacts per campaign on behalf of the autosender and hands
// them to the delivery side through an event.
type AutosendService struct {
	selector  *CampaignService
	claims    *ClaimService
	campaigns CampaignStore
	publisher events.Publisher
	senderID  uuid.UUID
	batchSize int
	log       *zap.Logger
}

// NewAutosendService builds the runner. A nil senderID attributes claims to
// each campaign's creator.
func NewAutosendService(selector *CampaignService, claims *ClaimService, campaigns CampaignStore, publisher events.Publisher, senderID uuid.UUID, batchSize int, log *zap.Logger) *AutosendService {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &AutosendService{
		selector:  selector,
		claims:    claims,
		campaigns: campaigns,
		publisher: publisher,
		senderID:  senderID,
		batchSize: batchSize,
		log:       log,
	}
}

type AutosendStats struct {
	Organizations int `json:"organizations"`
	Campaigns     int `json:"campaigns"`
	Claimed       int `json:"claimed"`
	Failed        int `json:"failed"`
}

// RunOnce makes one pass over every organization with a sending campaign.
// Failures are logged per campaign and do not stop the pass.
func (s *AutosendService) RunOnce(ctx context.Context) (AutosendStats, error) {
	var stats AutosendStats

	orgIDs, err := s.selector.AutosendOrganizations(ctx)
	if err != nil {
		return stats, err
	}

	for _, orgID := range orgIDs {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Organizations++

		refs, err := s.selector.SelectAutosendCampaigns(ctx, orgID)
		if err != nil {
			s.log.Error("select autosend campaigns failed", zap.Int64("organization_id", orgID), zap.Error(err))
			stats.Failed++
			continue
		}

		for _, ref := range refs {
			stats.Campaigns++
			n, err := s.runCampaign(ctx, ref)
			if err != nil {
				s.log.Error("autosend batch failed", zap.Int64("campaign_id", ref.ID), zap.Error(err))
				stats.Failed++
				continue
			}
			stats.Claimed += n
		}
	}

	return stats, nil
}

func (s *AutosendService) runCampaign(ctx context.Context, ref models.CampaignRef) (int, error) {
	sender := s.senderID
	if sender == uuid.Nil {
		c, err := s.campaigns.GetByID(ctx, ref.ID)
		if err != nil {
			return 0, mapNotFound(err, ErrCampaignNotFound)
		}
		if c.CreatorID == nil {
			s.log.Warn("autosend campaign has no creator and no sender is configured", zap.Int64("campaign_id", ref.ID))
			return 0, nil
		}
		sender = *c.CreatorID
	}

	res, err := s.claims.Claim(ctx, ClaimRequest{
		Requester: models.Requester{
			UserID:         sender,
			OrganizationID: ref.OrganizationID,
			Role:           models.RoleAdmin,
			Autosender:     true,
		},
		CampaignID: ref.ID,
		Count:      s.batchSize,
		Purpose:    models.PurposeNeedsMessage,
	})
	if err != nil {
		return len(res.ContactIDs), err
	}
	if len(res.ContactIDs) == 0 {
		return 0, nil
	}

	_ = s.publisher.Publish(ctx, events.StreamAutosend, events.Event{
		Type:           events.EventAutosendBatchClaimed,
		OrganizationID: ref.OrganizationID,
		Payload: map[string]any{
			"campaign_id":   ref.ID,
			"assignment_id": res.AssignmentID,
			"contact_ids":   res.ContactIDs,
		},
	})
	return len(res.ContactIDs), nil
}
