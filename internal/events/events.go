package events

import "context"

// Streams
const (
	StreamAssignment = "events:assignment"
	StreamCampaign   = "events:campaign"
	StreamAutosend   = "events:autosend"
)

// Event types
const (
	EventContactsClaimed       = "contacts_claimed"
	EventCampaignArchived      = "campaign_archived"
	EventCampaignUnarchived    = "campaign_unarchived"
	EventAutosendStatusChanged = "autosend_status_changed"
	EventAutosendBatchClaimed  = "autosend_batch_claimed"
	EventContactsOptedOut      = "contacts_opted_out"
)

// Event is routed to subscribers of its stream; OrganizationID scopes who may
// see it.
type Event struct {
	Type           string         `json:"type"`
	OrganizationID int64          `json:"organization_id"`
	Payload        map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, handler func(stream string, event Event), streams ...string) error
}
