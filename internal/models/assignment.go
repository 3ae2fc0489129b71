package models

import (
	"time"

	"github.com/google/uuid"
)

type Assignment struct {
	ID          int64     `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	CampaignID  int64     `json:"campaign_id"`
	MaxContacts *int      `json:"max_contacts,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ClaimResult is what a claim hands back to its caller. An empty ContactIDs
// slice means no contacts are available right now.
type ClaimResult struct {
	AssignmentID int64   `json:"assignment_id,omitempty"`
	ContactIDs   []int64 `json:"contact_ids"`
}
