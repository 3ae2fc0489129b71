package models

import (
	"time"

	"github.com/google/uuid"
)

type Campaign struct {
	ID                     int64      `json:"id"`
	OrganizationID         int64      `json:"organization_id"`
	CreatorID              *uuid.UUID `json:"creator_id,omitempty"`
	Title                  string     `json:"title"`
	IsStarted              bool       `json:"is_started"`
	IsArchived             bool       `json:"is_archived"`
	IsAutoassignEnabled    bool       `json:"is_autoassign_enabled"`
	IsTemplate             bool       `json:"is_template"`
	Timezone               *string    `json:"timezone,omitempty"` // IANA name, nil falls back to the organization default
	TextingHoursStart      int        `json:"texting_hours_start"`
	TextingHoursEnd        int        `json:"texting_hours_end"`
	DueBy                  *time.Time `json:"due_by,omitempty"`
	AutosendStatus         string     `json:"autosend_status"`
	AutosendLimit          *int       `json:"autosend_limit,omitempty"`
	LimitAssignmentToTeams bool       `json:"limit_assignment_to_teams"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// CampaignWithStats carries the counters the campaign selector needs for
// autosend throttling. Committed counts contacts already messaged or held by
// an assignment.
type CampaignWithStats struct {
	Campaign
	Committed int `json:"committed"`
}

// CampaignRef is the listing shape returned by the campaign selector.
type CampaignRef struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organization_id"`
	Title          string `json:"title"`
	AutosendStatus string `json:"autosend_status"`
}

func (c *Campaign) Ref() CampaignRef {
	return CampaignRef{
		ID:             c.ID,
		OrganizationID: c.OrganizationID,
		Title:          c.Title,
		AutosendStatus: c.AutosendStatus,
	}
}

// IsOpen reports whether the campaign takes part in assignability at all.
func (c *Campaign) IsOpen() bool {
	return c.IsStarted && !c.IsArchived && !c.IsTemplate
}
