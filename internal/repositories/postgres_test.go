package repositories

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/textforce/backend/internal/db"
	"github.com/textforce/backend/internal/models"
	"go.uber.org/zap"
)

// testPool connects to TEST_POSTGRES_DSN and applies migrations. Tests using
// it are skipped when the variable is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := db.NewPostgresPool(ctx, dsn, db.DefaultPoolOptions("textforce-test"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.RunMigrations(ctx, pool, "../../migrations", zap.NewNop()))
	return pool
}

type pgSeed struct {
	orgID      int64
	campaignID int64
	users      []uuid.UUID
	contacts   []int64
}

// seedCampaign creates a fresh organization with one started campaign,
// the given number of users and needsMessage contacts.
func seedCampaign(t *testing.T, pool *pgxpool.Pool, users, contacts int) pgSeed {
	t.Helper()
	ctx := context.Background()
	var s pgSeed

	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO organizations (name) VALUES ($1) RETURNING id`, "test-"+uuid.NewString(),
	).Scan(&s.orgID))

	for i := 0; i < users; i++ {
		var id uuid.UUID
		require.NoError(t, pool.QueryRow(ctx,
			`INSERT INTO users (organization_id) VALUES ($1) RETURNING id`, s.orgID,
		).Scan(&id))
		s.users = append(s.users, id)
	}

	c := &models.Campaign{
		OrganizationID:      s.orgID,
		Title:               "integration",
		IsStarted:           true,
		IsAutoassignEnabled: true,
		TextingHoursStart:   9,
		TextingHoursEnd:     21,
	}
	require.NoError(t, NewCampaignRepo(pool).Create(ctx, c))
	s.campaignID = c.ID

	for i := 0; i < contacts; i++ {
		var id int64
		require.NoError(t, pool.QueryRow(ctx,
			`INSERT INTO campaign_contacts (campaign_id, cell) VALUES ($1, $2) RETURNING id`,
			s.campaignID, "+1555"+uuid.NewString()[:7],
		).Scan(&id))
		s.contacts = append(s.contacts, id)
	}
	return s
}

func TestContactRepo_ConcurrentClaimsNeverOverlap(t *testing.T) {
	pool := testPool(t)
	s := seedCampaign(t, pool, 6, 60)
	contacts := NewContactRepo(pool)
	assignments := NewAssignmentRepo(pool)
	ctx := context.Background()

	var (
		mu   sync.Mutex
		seen = map[int64]int64{}
		wg   sync.WaitGroup
	)
	for _, user := range s.users {
		wg.Add(1)
		go func(user uuid.UUID) {
			defer wg.Done()
			a, err := assignments.GetOrCreate(ctx, user, s.campaignID)
			if !assert.NoError(t, err) {
				return
			}
			for {
				page, err := contacts.ListCandidates(ctx, CandidateFilter{
					CampaignID:    s.campaignID,
					MessageStatus: models.MessageStatusNeedsMessage,
					Limit:         5,
				})
				if !assert.NoError(t, err) || len(page) == 0 {
					return
				}
				ids := make([]int64, len(page))
				for i, c := range page {
					ids[i] = c.ID
				}
				out, err := contacts.ClaimBatch(ctx, ClaimSpec{AssignmentID: a.ID, MessageStatus: models.MessageStatusNeedsMessage, IDs: ids})
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				for _, id := range out.IDs {
					if prev, dup := seen[id]; dup {
						t.Errorf("contact %d claimed by %d and %d", id, prev, a.ID)
					}
					seen[id] = a.ID
				}
				mu.Unlock()
			}
		}(user)
	}
	wg.Wait()

	assert.Len(t, seen, len(s.contacts))
}

func TestContactRepo_ClaimBatchHoldsMaxContactsUnderContention(t *testing.T) {
	pool := testPool(t)
	s := seedCampaign(t, pool, 1, 12)
	contacts := NewContactRepo(pool)
	assignments := NewAssignmentRepo(pool)
	ctx := context.Background()

	a, err := assignments.GetOrCreate(ctx, s.users[0], s.campaignID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `UPDATE assignments SET max_contacts = 5 WHERE id = $1`, a.ID)
	require.NoError(t, err)

	// Each writer asks for a disjoint slice so only the cap can stop them.
	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 4; i++ {
		ids := s.contacts[i*3 : i*3+3]
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := contacts.ClaimBatch(ctx, ClaimSpec{AssignmentID: a.ID, MessageStatus: models.MessageStatusNeedsMessage, IDs: ids})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			total += len(out.IDs)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, total)
	owned, err := contacts.CountOwned(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, owned)

	out, err := contacts.ClaimBatch(ctx, ClaimSpec{AssignmentID: a.ID, MessageStatus: models.MessageStatusNeedsMessage, IDs: s.contacts})
	require.NoError(t, err)
	assert.Empty(t, out.IDs)
	assert.True(t, out.CapReached)
}

func TestContactRepo_ListCandidatesAscending(t *testing.T) {
	pool := testPool(t)
	s := seedCampaign(t, pool, 1, 5)
	contacts := NewContactRepo(pool)
	ctx := context.Background()

	page, err := contacts.ListCandidates(ctx, CandidateFilter{
		CampaignID:    s.campaignID,
		MessageStatus: models.MessageStatusNeedsMessage,
		AfterID:       s.contacts[1],
		Limit:         10,
	})
	require.NoError(t, err)
	require.Len(t, page, 3)
	for i, c := range page {
		assert.Equal(t, s.contacts[i+2], c.ID)
	}
}

func TestContactRepo_CascadeArchivedIsIdempotent(t *testing.T) {
	pool := testPool(t)
	s := seedCampaign(t, pool, 1, 4)
	contacts := NewContactRepo(pool)
	assignments := NewAssignmentRepo(pool)
	ctx := context.Background()

	res, err := contacts.CascadeArchived(ctx, s.campaignID, true)
	require.NoError(t, err)
	assert.Equal(t, CascadeResult{CampaignChanged: true, ContactsChanged: 4}, res)

	res, err = contacts.CascadeArchived(ctx, s.campaignID, true)
	require.NoError(t, err)
	assert.Equal(t, CascadeResult{}, res)

	a, err := assignments.GetOrCreate(ctx, s.users[0], s.campaignID)
	require.NoError(t, err)
	spec := ClaimSpec{AssignmentID: a.ID, MessageStatus: models.MessageStatusNeedsMessage, IDs: s.contacts}
	claimed, err := contacts.ClaimBatch(ctx, spec)
	require.NoError(t, err)
	assert.Empty(t, claimed.IDs, "archived contacts cannot be claimed")

	res, err = contacts.CascadeArchived(ctx, s.campaignID, false)
	require.NoError(t, err)
	assert.Equal(t, CascadeResult{CampaignChanged: true, ContactsChanged: 4}, res)

	claimed, err = contacts.ClaimBatch(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, s.contacts, claimed.IDs)

	_, err = contacts.CascadeArchived(ctx, -1, true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestContactRepo_MarkOptedOut(t *testing.T) {
	pool := testPool(t)
	s := seedCampaign(t, pool, 1, 2)
	contacts := NewContactRepo(pool)
	ctx := context.Background()

	c, err := contacts.GetByID(ctx, s.contacts[0])
	require.NoError(t, err)

	n, err := contacts.MarkOptedOut(ctx, s.orgID, c.Cell)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = contacts.MarkOptedOut(ctx, s.orgID, c.Cell)
	require.NoError(t, err)
	assert.Zero(t, n)

	page, err := contacts.ListCandidates(ctx, CandidateFilter{
		CampaignID:    s.campaignID,
		MessageStatus: models.MessageStatusNeedsMessage,
	})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, s.contacts[1], page[0].ID)
}

func TestContactRepo_EscalationFilters(t *testing.T) {
	pool := testPool(t)
	s := seedCampaign(t, pool, 1, 3)
	contacts := NewContactRepo(pool)
	ctx := context.Background()

	var tagID int64
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO tags (organization_id, title, is_assignable) VALUES ($1, 'escalated', false) RETURNING id`, s.orgID,
	).Scan(&tagID))
	_, err := pool.Exec(ctx,
		`INSERT INTO campaign_contact_tags (campaign_contact_id, tag_id) VALUES ($1, $2)`, s.contacts[1], tagID)
	require.NoError(t, err)

	ordinary, err := contacts.ListCandidates(ctx, CandidateFilter{
		CampaignID:       s.campaignID,
		MessageStatus:    models.MessageStatusNeedsMessage,
		ExcludeEscalated: true,
	})
	require.NoError(t, err)
	require.Len(t, ordinary, 2)
	assert.Equal(t, s.contacts[0], ordinary[0].ID)
	assert.Equal(t, s.contacts[2], ordinary[1].ID)

	escalated, err := contacts.ListCandidates(ctx, CandidateFilter{
		OrganizationID:   s.orgID,
		MessageStatus:    models.MessageStatusNeedsMessage,
		EscalationTagIDs: []int64{tagID},
	})
	require.NoError(t, err)
	require.Len(t, escalated, 1)
	assert.Equal(t, s.contacts[1], escalated[0].ID)
	assert.Equal(t, []models.TagRef{{ID: tagID, IsAssignable: false}}, escalated[0].Tags)
}

func TestAssignmentRepo_GetOrCreateIsStable(t *testing.T) {
	pool := testPool(t)
	s := seedCampaign(t, pool, 1, 0)
	assignments := NewAssignmentRepo(pool)
	ctx := context.Background()

	a1, err := assignments.GetOrCreate(ctx, s.users[0], s.campaignID)
	require.NoError(t, err)
	a2, err := assignments.GetOrCreate(ctx, s.users[0], s.campaignID)
	require.NoError(t, err)
	assert.Equal(t, a1.ID, a2.ID)
}

func TestTeamRepo_EscalationTagsAndMembership(t *testing.T) {
	pool := testPool(t)
	s := seedCampaign(t, pool, 2, 0)
	teams := NewTeamRepo(pool)
	campaigns := NewCampaignRepo(pool)
	ctx := context.Background()

	var teamID, tagA, tagB int64
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO teams (organization_id, title, is_assignment_enabled, assignment_type) VALUES ($1, 'triage', true, 'UNREPLIED') RETURNING id`,
		s.orgID).Scan(&teamID))
	for _, id := range []*int64{&tagA, &tagB} {
		require.NoError(t, pool.QueryRow(ctx,
			`INSERT INTO tags (organization_id, title, is_assignable) VALUES ($1, 'escalated', false) RETURNING id`, s.orgID,
		).Scan(id))
		_, err := pool.Exec(ctx, `INSERT INTO team_escalation_tags (team_id, tag_id) VALUES ($1, $2)`, teamID, *id)
		require.NoError(t, err)
	}
	_, err := pool.Exec(ctx, `INSERT INTO campaign_teams (campaign_id, team_id) VALUES ($1, $2)`, s.campaignID, teamID)
	require.NoError(t, err)

	team, err := teams.GetByID(ctx, teamID)
	require.NoError(t, err)
	assert.Equal(t, []int64{tagA, tagB}, team.EscalationTagIDs)
	assert.True(t, team.AllowsPurpose(models.PurposeNeedsReply))
	assert.False(t, team.AllowsPurpose(models.PurposeNeedsMessage))

	require.NoError(t, teams.AddMember(ctx, teamID, s.users[0]))
	require.NoError(t, teams.AddMember(ctx, teamID, s.users[0]))

	ok, err := teams.IsMember(ctx, teamID, s.users[0])
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = teams.IsMember(ctx, teamID, s.users[1])
	require.NoError(t, err)
	assert.False(t, ok)

	linked, err := campaigns.IsTeamLinked(ctx, s.campaignID, s.users[0])
	require.NoError(t, err)
	assert.True(t, linked)
	linked, err = campaigns.IsTeamLinked(ctx, s.campaignID, s.users[1])
	require.NoError(t, err)
	assert.False(t, linked)

	_, err = teams.GetByID(ctx, -1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuditRepo_LogAndRead(t *testing.T) {
	pool := testPool(t)
	s := seedCampaign(t, pool, 1, 0)
	audit := NewAuditRepo(pool)
	ctx := context.Background()

	require.NoError(t, audit.Log(ctx, models.AuditLog{
		ActorUserID: &s.users[0],
		ActorType:   "user",
		Action:      "campaign_archived",
		EntityType:  "campaign",
		EntityID:    s.campaignID,
		Meta:        map[string]any{"contacts_changed": 0},
	}))

	logs, err := audit.GetByEntity(ctx, "campaign", s.campaignID, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "campaign_archived", logs[0].Action)
	require.NotNil(t, logs[0].ActorUserID)
	assert.Equal(t, s.users[0], *logs[0].ActorUserID)
}
