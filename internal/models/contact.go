package models

import "time"

// Message statuses. Only needsMessage and needsResponse take part in
// assignment; the rest are terminal or in-conversation states.
const (
	MessageStatusNeedsMessage  = "needsMessage"
	MessageStatusNeedsResponse = "needsResponse"
	MessageStatusMessaged      = "messaged"
	MessageStatusConvo         = "convo"
	MessageStatusClosed        = "closed"
)

// Purpose is what a claim or eligibility check is for.
type Purpose string

const (
	PurposeNeedsMessage Purpose = "needsMessage"
	PurposeNeedsReply   Purpose = "needsReply"
)

func ParsePurpose(s string) (Purpose, bool) {
	switch Purpose(s) {
	case PurposeNeedsMessage, "":
		return PurposeNeedsMessage, true
	case PurposeNeedsReply:
		return PurposeNeedsReply, true
	}
	return "", false
}

// MessageStatus returns the contact message status a purpose claims against.
func (p Purpose) MessageStatus() string {
	if p == PurposeNeedsReply {
		return MessageStatusNeedsResponse
	}
	return MessageStatusNeedsMessage
}

type CampaignContact struct {
	ID                 int64      `json:"id"`
	CampaignID         int64      `json:"campaign_id"`
	Cell               string     `json:"cell"`
	MessageStatus      string     `json:"message_status"`
	IsOptedOut         bool       `json:"is_opted_out"`
	Archived           bool       `json:"archived"`
	Timezone           *string    `json:"timezone,omitempty"`
	AssignmentID       *int64     `json:"assignment_id,omitempty"`
	AutoReplyEligible  bool       `json:"auto_reply_eligible"`
	AutoReplyExpiresAt *time.Time `json:"auto_reply_expires_at,omitempty"`
	Tags               []TagRef   `json:"tags,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// HasEscalationTag reports whether any tag on the contact is non-assignable.
func (c *CampaignContact) HasEscalationTag() bool {
	for _, t := range c.Tags {
		if !t.IsAssignable {
			return true
		}
	}
	return false
}

// AutoReplyPending reports whether an automatic reply flow still owns the
// contact's next step at now.
func (c *CampaignContact) AutoReplyPending(now time.Time) bool {
	if !c.AutoReplyEligible {
		return false
	}
	return c.AutoReplyExpiresAt == nil || now.Before(*c.AutoReplyExpiresAt)
}
