package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/textforce/backend/internal/models"
)

type CampaignRepo struct {
	pool *pgxpool.Pool
}

func NewCampaignRepo(pool *pgxpool.Pool) *CampaignRepo {
	return &CampaignRepo{pool: pool}
}

const campaignColumns = `
	c.id, c.organization_id, c.creator_id, c.title, c.is_started, c.is_archived,
	c.is_autoassign_enabled, c.is_template, c.timezone, c.texting_hours_start, c.texting_hours_end,
	c.due_by, c.autosend_status, c.autosend_limit, c.limit_assignment_to_teams, c.created_at, c.updated_at`

// committed counts contacts that already used autosend quota. It is only
// computed for campaigns that have a limit.
const committedColumn = `
	CASE WHEN c.autosend_limit IS NULL THEN 0 ELSE (
		SELECT count(*) FROM campaign_contacts cc
		WHERE cc.campaign_id = c.id
		  AND (cc.message_status <> 'needsMessage' OR cc.assignment_id IS NOT NULL)
	) END`

func scanCampaign(row pgx.Row, c *models.Campaign, extra ...any) error {
	dest := []any{
		&c.ID, &c.OrganizationID, &c.CreatorID, &c.Title, &c.IsStarted, &c.IsArchived,
		&c.IsAutoassignEnabled, &c.IsTemplate, &c.Timezone, &c.TextingHoursStart, &c.TextingHoursEnd,
		&c.DueBy, &c.AutosendStatus, &c.AutosendLimit, &c.LimitAssignmentToTeams, &c.CreatedAt, &c.UpdatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

func (r *CampaignRepo) Create(ctx context.Context, c *models.Campaign) error {
	if c.AutosendStatus == "" {
		c.AutosendStatus = models.AutosendStatusUnstarted
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO campaigns (organization_id, creator_id, title, is_started, is_archived, is_autoassign_enabled,
		                       is_template, timezone, texting_hours_start, texting_hours_end, due_by,
		                       autosend_status, autosend_limit, limit_assignment_to_teams)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at
	`, c.OrganizationID, c.CreatorID, c.Title, c.IsStarted, c.IsArchived, c.IsAutoassignEnabled,
		c.IsTemplate, c.Timezone, c.TextingHoursStart, c.TextingHoursEnd, c.DueBy,
		c.AutosendStatus, c.AutosendLimit, c.LimitAssignmentToTeams,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (r *CampaignRepo) GetByID(ctx context.Context, id int64) (*models.Campaign, error) {
	var c models.Campaign
	err := scanCampaign(r.pool.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns c WHERE c.id = $1`, id), &c)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *CampaignRepo) GetWithStats(ctx context.Context, id int64) (*models.CampaignWithStats, error) {
	var c models.CampaignWithStats
	err := scanCampaign(r.pool.QueryRow(ctx, `
		SELECT `+campaignColumns+`, `+committedColumn+`
		FROM campaigns c WHERE c.id = $1
	`, id), &c.Campaign, &c.Committed)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// ListActiveByOrganization returns started, unarchived, non-template
// campaigns of an organization ordered by id.
func (r *CampaignRepo) ListActiveByOrganization(ctx context.Context, organizationID int64) ([]models.CampaignWithStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+campaignColumns+`, `+committedColumn+`
		FROM campaigns c
		WHERE c.organization_id = $1 AND c.is_started AND NOT c.is_archived AND NOT c.is_template
		ORDER BY c.id
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []models.CampaignWithStats
	for rows.Next() {
		var c models.CampaignWithStats
		if err := scanCampaign(rows, &c.Campaign, &c.Committed); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// UpdateAutosendStatus moves the campaign from one autosend status to another
// and reports false when the campaign was no longer in from.
func (r *CampaignRepo) UpdateAutosendStatus(ctx context.Context, id int64, from, to string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaigns SET autosend_status = $3, updated_at = now()
		WHERE id = $1 AND autosend_status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *CampaignRepo) ListAutosendOrganizationIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT organization_id FROM campaigns
		WHERE autosend_status = 'sending' AND NOT is_archived
		ORDER BY organization_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsTeamLinked reports whether userID belongs to a team linked to the campaign.
func (r *CampaignRepo) IsTeamLinked(ctx context.Context, campaignID int64, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM campaign_teams ct
			JOIN team_members tm ON tm.team_id = ct.team_id
			WHERE ct.campaign_id = $1 AND tm.user_id = $2
		)
	`, campaignID, userID).Scan(&ok)
	return ok, err
}
