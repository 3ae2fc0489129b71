package services

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/textforce/backend/internal/eligibility"
	"github.com/textforce/backend/internal/events"
	"github.com/textforce/backend/internal/models"
	"github.com/textforce/backend/internal/repositories"
	"github.com/textforce/backend/internal/retry"
	"github.com/textforce/backend/internal/texthours"
	"go.uber.org/zap"
)

// memDB is an in-memory stand-in for Postgres. ClaimBatch is a
// compare-and-swap under the mutex, like the conditional UPDATE, and applies
// the same assignment and autosend caps.
type memDB struct {
	mu            sync.Mutex
	orgs          map[int64]*models.Organization
	campaigns     map[int64]*models.Campaign
	contacts      map[int64]*models.CampaignContact
	assignments   map[int64]*models.Assignment
	teams         map[int64]*models.Team
	members       map[int64]map[uuid.UUID]bool
	campaignTeams map[int64][]int64
	optOuts       map[int64]map[string]bool
	nextAssign    int64

	// test hooks
	claimErrs      []error
	claimOverride  func(ids []int64) []int64
	blockListing   bool
	beforeClaimFor func(ids []int64)
}

func newMemDB() *memDB {
	return &memDB{
		orgs:          map[int64]*models.Organization{},
		campaigns:     map[int64]*models.Campaign{},
		contacts:      map[int64]*models.CampaignContact{},
		assignments:   map[int64]*models.Assignment{},
		teams:         map[int64]*models.Team{},
		members:       map[int64]map[uuid.UUID]bool{},
		campaignTeams: map[int64][]int64{},
		optOuts:       map[int64]map[string]bool{},
	}
}

func (db *memDB) addOrg(o *models.Organization) { db.orgs[o.ID] = o }

func (db *memDB) addCampaign(c *models.Campaign) { db.campaigns[c.ID] = c }

func (db *memDB) addContacts(campaignID int64, status string, ids ...int64) {
	for _, id := range ids {
		db.contacts[id] = &models.CampaignContact{
			ID:            id,
			CampaignID:    campaignID,
			Cell:          "+1555000" + string(rune('0'+id%10)),
			MessageStatus: status,
		}
	}
}

func (db *memDB) contact(id int64) models.CampaignContact {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.contacts[id]
}

func (db *memDB) owner(id int64) *int64 {
	c := db.contact(id)
	return c.AssignmentID
}

type memCampaigns struct{ db *memDB }

func (s memCampaigns) GetByID(ctx context.Context, id int64) (*models.Campaign, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.campaigns[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s memCampaigns) GetWithStats(ctx context.Context, id int64) (*models.CampaignWithStats, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.campaigns[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	out := &models.CampaignWithStats{Campaign: *c}
	if c.AutosendLimit != nil {
		out.Committed = s.db.committedLocked(id)
	}
	return out, nil
}

func (s memCampaigns) ListActiveByOrganization(ctx context.Context, organizationID int64) ([]models.CampaignWithStats, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.CampaignWithStats
	for _, c := range s.db.campaigns {
		if c.OrganizationID != organizationID || !c.IsOpen() {
			continue
		}
		cs := models.CampaignWithStats{Campaign: *c}
		if c.AutosendLimit != nil {
			cs.Committed = s.db.committedLocked(c.ID)
		}
		out = append(out, cs)
	}
	slices.SortFunc(out, func(a, b models.CampaignWithStats) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s memCampaigns) UpdateAutosendStatus(ctx context.Context, id int64, from, to string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.campaigns[id]
	if !ok || c.AutosendStatus != from {
		return false, nil
	}
	c.AutosendStatus = to
	return true, nil
}

func (s memCampaigns) ListAutosendOrganizationIDs(ctx context.Context) ([]int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	seen := map[int64]bool{}
	var ids []int64
	for _, c := range s.db.campaigns {
		if c.AutosendStatus == models.AutosendStatusSending && !c.IsArchived && !seen[c.OrganizationID] {
			seen[c.OrganizationID] = true
			ids = append(ids, c.OrganizationID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s memCampaigns) IsTeamLinked(ctx context.Context, campaignID int64, userID uuid.UUID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, teamID := range s.db.campaignTeams[campaignID] {
		if s.db.members[teamID][userID] {
			return true, nil
		}
	}
	return false, nil
}

type memOrgs struct{ db *memDB }

func (s memOrgs) GetByID(ctx context.Context, id int64) (*models.Organization, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.orgs[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

type memContacts struct{ db *memDB }

func (s memContacts) GetByID(ctx context.Context, id int64) (*models.CampaignContact, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.contacts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func hasEscalationTag(c *models.CampaignContact, only []int64) bool {
	for _, t := range c.Tags {
		if t.IsAssignable {
			continue
		}
		if only == nil || slices.Contains(only, t.ID) {
			return true
		}
	}
	return false
}

func (s memContacts) ListCandidates(ctx context.Context, f repositories.CandidateFilter) ([]models.CampaignContact, error) {
	s.db.mu.Lock()
	block := s.db.blockListing
	s.db.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var out []models.CampaignContact
	for _, c := range s.db.contacts {
		if c.AssignmentID != nil || c.IsOptedOut || c.Archived || c.MessageStatus != f.MessageStatus || c.ID <= f.AfterID {
			continue
		}
		if f.CampaignID != 0 && c.CampaignID != f.CampaignID {
			continue
		}
		if f.OrganizationID != 0 {
			camp := s.db.campaigns[c.CampaignID]
			if camp == nil || camp.OrganizationID != f.OrganizationID || camp.IsArchived {
				continue
			}
		}
		if len(f.EscalationTagIDs) > 0 && !hasEscalationTag(c, f.EscalationTagIDs) {
			continue
		}
		if f.ExcludeEscalated && hasEscalationTag(c, nil) {
			continue
		}
		cp := *c
		cp.Tags = slices.Clone(c.Tags)
		out = append(out, cp)
	}

	slices.SortFunc(out, func(a, b models.CampaignContact) int { return cmp.Compare(a.ID, b.ID) })
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s memContacts) ClaimBatch(ctx context.Context, spec repositories.ClaimSpec) (repositories.ClaimOutcome, error) {
	out := repositories.ClaimOutcome{IDs: []int64{}}
	if hook := s.db.beforeClaimFor; hook != nil {
		hook(spec.IDs)
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if len(s.db.claimErrs) > 0 {
		err := s.db.claimErrs[0]
		s.db.claimErrs = s.db.claimErrs[1:]
		return out, err
	}

	a, ok := s.db.assignments[spec.AssignmentID]
	if !ok {
		return out, repositories.ErrNotFound
	}
	room := -1
	if a.MaxContacts != nil {
		room = max(*a.MaxContacts-s.db.ownedLocked(a.ID), 0)
	}
	if camp := s.db.campaigns[a.CampaignID]; spec.Autosend && camp != nil && camp.AutosendLimit != nil {
		left := max(*camp.AutosendLimit-s.db.committedLocked(camp.ID), 0)
		if room < 0 || left < room {
			room = left
		}
	}
	if room == 0 {
		out.CapReached = true
		return out, nil
	}

	ids := slices.Clone(spec.IDs)
	slices.Sort(ids)
	var got []int64
	for _, id := range ids {
		if room > 0 && len(got) == room {
			break
		}
		c, ok := s.db.contacts[id]
		if !ok || c.AssignmentID != nil || c.Archived || c.IsOptedOut || c.MessageStatus != spec.MessageStatus {
			continue
		}
		aid := spec.AssignmentID
		c.AssignmentID = &aid
		got = append(got, id)
	}
	out.CapReached = room > 0 && len(got) >= room

	if s.db.claimOverride != nil {
		got = s.db.claimOverride(got)
	}
	if got != nil {
		out.IDs = got
	}
	return out, nil
}

func (db *memDB) ownedLocked(assignmentID int64) int {
	n := 0
	for _, c := range db.contacts {
		if c.AssignmentID != nil && *c.AssignmentID == assignmentID {
			n++
		}
	}
	return n
}

// committedLocked mirrors the autosend committed counter of the campaign query.
func (db *memDB) committedLocked(campaignID int64) int {
	n := 0
	for _, c := range db.contacts {
		if c.CampaignID == campaignID && (c.MessageStatus != models.MessageStatusNeedsMessage || c.AssignmentID != nil) {
			n++
		}
	}
	return n
}

func (s memContacts) CountOwned(ctx context.Context, assignmentID int64) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.ownedLocked(assignmentID), nil
}

func (s memContacts) CascadeArchived(ctx context.Context, campaignID int64, archived bool) (repositories.CascadeResult, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var res repositories.CascadeResult
	camp, ok := s.db.campaigns[campaignID]
	if !ok {
		return res, repositories.ErrNotFound
	}
	if camp.IsArchived != archived {
		camp.IsArchived = archived
		res.CampaignChanged = true
	}
	for _, c := range s.db.contacts {
		if c.CampaignID == campaignID && c.Archived != archived {
			c.Archived = archived
			res.ContactsChanged++
		}
	}
	return res, nil
}

func (s memContacts) MarkOptedOut(ctx context.Context, organizationID int64, cell string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if s.db.optOuts[organizationID] == nil {
		s.db.optOuts[organizationID] = map[string]bool{}
	}
	s.db.optOuts[organizationID][cell] = true

	var n int64
	for _, c := range s.db.contacts {
		camp := s.db.campaigns[c.CampaignID]
		if camp != nil && camp.OrganizationID == organizationID && c.Cell == cell && !c.IsOptedOut {
			c.IsOptedOut = true
			n++
		}
	}
	return n, nil
}

type memAssignments struct{ db *memDB }

func (s memAssignments) GetOrCreate(ctx context.Context, userID uuid.UUID, campaignID int64) (*models.Assignment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, a := range s.db.assignments {
		if a.UserID == userID && a.CampaignID == campaignID {
			cp := *a
			return &cp, nil
		}
	}
	s.db.nextAssign++
	a := &models.Assignment{ID: s.db.nextAssign, UserID: userID, CampaignID: campaignID, CreatedAt: time.Now()}
	s.db.assignments[a.ID] = a
	cp := *a
	return &cp, nil
}

type memTeams struct{ db *memDB }

func (s memTeams) GetByID(ctx context.Context, id int64) (*models.Team, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.teams[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s memTeams) IsMember(ctx context.Context, teamID int64, userID uuid.UUID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.members[teamID][userID], nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (a *memAudit) Log(ctx context.Context, entry models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *memAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type memPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *memPublisher) Publish(ctx context.Context, stream string, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *memPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// fixture wires every service over one memDB.
type fixture struct {
	db         *memDB
	audit      *memAudit
	pub        *memPublisher
	selector   *CampaignService
	claims     *ClaimService
	escalation *EscalationService
	archive    *ArchiveService
	optOuts    *OptOutService
	preview    *AssignabilityService
}

// 2026-06-10 14:00 in Chicago
var fixtureNow = time.Date(2026, 6, 10, 19, 0, 0, 0, time.UTC)

func testBackoff() *retry.Backoff {
	return retry.NewBackoff(retry.Config{
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  3,
	})
}

func newFixture(opts ClaimOptions) *fixture {
	db := newMemDB()
	log := zap.NewNop()
	audit := &memAudit{}
	pub := &memPublisher{}
	backoff := testBackoff()
	resolver := texthours.NewResolver(log)
	clock := func() time.Time { return fixtureNow }
	engine := eligibility.NewEngine(resolver, eligibility.DefaultOptions()).WithClock(clock)

	campaigns, orgs, contacts := memCampaigns{db}, memOrgs{db}, memContacts{db}

	selector := NewCampaignService(campaigns, orgs, audit, pub, resolver, backoff, 24*time.Hour, log)
	selector.now = clock
	claims := NewClaimService(campaigns, orgs, contacts, memAssignments{db}, selector, engine, audit, pub, backoff, opts, log)

	return &fixture{
		db:         db,
		audit:      audit,
		pub:        pub,
		selector:   selector,
		claims:     claims,
		escalation: NewEscalationService(memTeams{db}, campaigns, orgs, contacts, selector, claims, engine, backoff, opts, log),
		archive:    NewArchiveService(campaigns, contacts, audit, pub, backoff, log),
		optOuts:    NewOptOutService(contacts, audit, pub, backoff, log),
		preview:    NewAssignabilityService(campaigns, orgs, contacts, engine, backoff, log),
	}
}

func strPtr(s string) *string { return &s }
func intPtr(v int) *int        { return &v }

// seed creates organization 1 with open campaign 1 holding needs-message
// contacts 1..n. Texting hours are enforced and the fixture clock is inside
// the window.
func (f *fixture) seed(n int) {
	f.db.addOrg(&models.Organization{ID: 1, Name: "org", DefaultTimezone: "America/New_York", TextingHoursEnforced: true})
	f.db.addCampaign(&models.Campaign{
		ID:                  1,
		OrganizationID:      1,
		Title:               "gotv",
		IsStarted:           true,
		IsAutoassignEnabled: true,
		Timezone:            strPtr("America/Chicago"),
		TextingHoursStart:   9,
		TextingHoursEnd:     21,
		AutosendStatus:      models.AutosendStatusUnstarted,
	})
	ids := make([]int64, 0, n)
	for i := 1; i <= n; i++ {
		ids = append(ids, int64(i))
	}
	f.db.addContacts(1, models.MessageStatusNeedsMessage, ids...)
}

func texter(orgID int64) models.Requester {
	return models.Requester{UserID: uuid.New(), OrganizationID: orgID, Role: models.RoleTexter}
}
