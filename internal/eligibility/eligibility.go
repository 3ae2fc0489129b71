// Package eligibility decides whether a campaign contact may be claimed right
// now, and if not, why.
//
// Rules are evaluated in a fixed order and the first failing rule names the
// denial:
//
//  1. campaign started, not archived, not a template
//  2. contact not already assigned
//  3. contact not opted out
//  4. contact not archived
//  5. escalation tags: none for standard routing, a team tag for escalated routing
//  6. message status matches the purpose
//  7. needs-message only: no automatic reply flow pending
//  8. texting hours, resolved contact zone -> campaign zone -> UTC fallback
package eligibility

import (
	"time"

	"github.com/textforce/backend/internal/models"
	"github.com/textforce/backend/internal/texthours"
)

type Denial string

const (
	DenialNone                 Denial = ""
	DenialCampaignNotOpen      Denial = "CampaignNotOpen"
	DenialAlreadyAssigned      Denial = "AlreadyAssigned"
	DenialOptedOut             Denial = "OptedOut"
	DenialArchived             Denial = "Archived"
	DenialEscalationRestricted Denial = "EscalationRestricted"
	DenialNotEscalated         Denial = "NotEscalated"
	DenialWrongStatus          Denial = "WrongStatus"
	DenialAutoReplyPending     Denial = "AutoReplyPending"
	DenialOutsideTextingHours  Denial = "OutsideTextingHours"
)

// Tier records which timezone source decided the texting-hours rule.
type Tier string

const (
	TierNone     Tier = ""
	TierContact  Tier = "contact"
	TierCampaign Tier = "campaign"
	TierFallback Tier = "fallback"
	TierDisabled Tier = "disabled"
)

type Options struct {
	InitialMessageBuffer time.Duration
	ReplyBuffer          time.Duration
	AllowNullTimezone    bool
}

func DefaultOptions() Options {
	return Options{
		InitialMessageBuffer: texthours.InitialMessageBuffer,
		ReplyBuffer:          texthours.ReplyBuffer,
		AllowNullTimezone:    true,
	}
}

// Input is everything one evaluation looks at. Organization may be nil, in
// which case texting hours are enforced with no organization default zone.
// EscalationTagIDs switches rule 5 to escalated routing: the contact must
// carry a non-assignable tag from this set.
type Input struct {
	Contact          *models.CampaignContact
	Campaign         *models.Campaign
	Organization     *models.Organization
	Purpose          models.Purpose
	Escalated        bool
	EscalationTagIDs []int64
}

type Decision struct {
	Eligible bool   `json:"eligible"`
	Denial   Denial `json:"denial,omitempty"`
	Tier     Tier   `json:"tier,omitempty"`
}

type Engine struct {
	resolver *texthours.Resolver
	opts     Options
	now      func() time.Time
}

func NewEngine(resolver *texthours.Resolver, opts Options) *Engine {
	return &Engine{resolver: resolver, opts: opts, now: time.Now}
}

// WithClock returns a copy of the engine reading time from now.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	cp := *e
	cp.now = now
	return &cp
}

func (e *Engine) Now() time.Time {
	return e.now().UTC()
}

// Assignable evaluates standard routing at the current instant.
func (e *Engine) Assignable(contact *models.CampaignContact, campaign *models.Campaign, org *models.Organization, purpose models.Purpose) (bool, Denial) {
	d := e.Evaluate(e.Now(), Input{
		Contact:      contact,
		Campaign:     campaign,
		Organization: org,
		Purpose:      purpose,
	})
	return d.Eligible, d.Denial
}

func (e *Engine) Evaluate(now time.Time, in Input) Decision {
	c := in.Contact
	camp := in.Campaign

	if camp == nil || !camp.IsOpen() {
		return deny(DenialCampaignNotOpen)
	}
	if c.AssignmentID != nil {
		return deny(DenialAlreadyAssigned)
	}
	if c.IsOptedOut {
		return deny(DenialOptedOut)
	}
	if c.Archived {
		return deny(DenialArchived)
	}
	if in.Escalated {
		if !carriesAny(c, in.EscalationTagIDs) {
			return deny(DenialNotEscalated)
		}
	} else if c.HasEscalationTag() {
		return deny(DenialEscalationRestricted)
	}
	if c.MessageStatus != in.Purpose.MessageStatus() {
		return deny(DenialWrongStatus)
	}
	if in.Purpose == models.PurposeNeedsMessage && c.AutoReplyPending(now) {
		return deny(DenialAutoReplyPending)
	}

	ok, tier := e.withinTextingHours(now, c, camp, in.Organization, in.Purpose)
	if !ok {
		return Decision{Denial: DenialOutsideTextingHours, Tier: tier}
	}
	return Decision{Eligible: true, Tier: tier}
}

func (e *Engine) buffer(p models.Purpose) time.Duration {
	if p == models.PurposeNeedsReply {
		return e.opts.ReplyBuffer
	}
	return e.opts.InitialMessageBuffer
}

func (e *Engine) withinTextingHours(now time.Time, c *models.CampaignContact, camp *models.Campaign, org *models.Organization, p models.Purpose) (bool, Tier) {
	if org != nil && !org.TextingHoursEnforced {
		return true, TierDisabled
	}

	start, end := camp.TextingHoursStart, camp.TextingHoursEnd
	bufferMinutes := int(e.buffer(p) / time.Minute)

	// contact zone
	if _, ok := e.resolver.Location(c.Timezone); ok {
		return e.resolver.IsWithinWindow(now, c.Timezone, start, end, bufferMinutes, false), TierContact
	}

	// campaign zone, inheriting the organization default
	tz := camp.Timezone
	if _, ok := e.resolver.Location(tz); !ok && org != nil {
		tz = &org.DefaultTimezone
	}
	if _, ok := e.resolver.Location(tz); ok {
		return e.resolver.IsWithinWindow(now, tz, start, end, bufferMinutes, false), TierCampaign
	}

	return e.resolver.IsWithinWindow(now, nil, start, end, bufferMinutes, e.opts.AllowNullTimezone), TierFallback
}

func carriesAny(c *models.CampaignContact, tagIDs []int64) bool {
	for _, t := range c.Tags {
		if t.IsAssignable {
			continue
		}
		for _, id := range tagIDs {
			if t.ID == id {
				return true
			}
		}
	}
	return false
}

func deny(d Denial) Decision {
	return Decision{Denial: d}
}
