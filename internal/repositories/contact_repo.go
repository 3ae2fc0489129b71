package repositories

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/textforce/backend/internal/models"
)

type ContactRepo struct {
	pool *pgxpool.Pool
}

func NewContactRepo(pool *pgxpool.Pool) *ContactRepo {
	return &ContactRepo{pool: pool}
}

const contactSelect = `
	SELECT cc.id, cc.campaign_id, cc.cell, cc.message_status, cc.is_opted_out, cc.archived, cc.timezone,
	       cc.assignment_id, cc.auto_reply_eligible, cc.auto_reply_expires_at, cc.updated_at,
	       COALESCE(array_agg(t.id ORDER BY t.id) FILTER (WHERE t.id IS NOT NULL), '{}'),
	       COALESCE(array_agg(t.is_assignable ORDER BY t.id) FILTER (WHERE t.id IS NOT NULL), '{}')
	FROM campaign_contacts cc
	LEFT JOIN campaign_contact_tags cct ON cct.campaign_contact_id = cc.id
	LEFT JOIN tags t ON t.id = cct.tag_id
`

func scanContact(row pgx.Row) (*models.CampaignContact, error) {
	var c models.CampaignContact
	var tagIDs []int64
	var tagAssignable []bool
	err := row.Scan(&c.ID, &c.CampaignID, &c.Cell, &c.MessageStatus, &c.IsOptedOut, &c.Archived, &c.Timezone,
		&c.AssignmentID, &c.AutoReplyEligible, &c.AutoReplyExpiresAt, &c.UpdatedAt,
		&tagIDs, &tagAssignable)
	if err != nil {
		return nil, err
	}
	for i, id := range tagIDs {
		c.Tags = append(c.Tags, models.TagRef{ID: id, IsAssignable: tagAssignable[i]})
	}
	return &c, nil
}

func (r *ContactRepo) GetByID(ctx context.Context, id int64) (*models.CampaignContact, error) {
	c, err := scanContact(r.pool.QueryRow(ctx, contactSelect+` WHERE cc.id = $1 GROUP BY cc.id`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// CandidateFilter narrows the unassigned pool. Exactly one of CampaignID and
// OrganizationID should be set. EscalationTagIDs keeps only contacts carrying
// one of those non-assignable tags; ExcludeEscalated drops contacts carrying
// any non-assignable tag.
type CandidateFilter struct {
	CampaignID       int64
	OrganizationID   int64
	MessageStatus    string
	AfterID          int64
	Limit            int
	EscalationTagIDs []int64
	ExcludeEscalated bool
}

// ListCandidates returns unassigned, unarchived, non-opted-out contacts in
// ascending id order. The result is a snapshot; callers must still claim
// through ClaimBatch.
func (r *ContactRepo) ListCandidates(ctx context.Context, f CandidateFilter) ([]models.CampaignContact, error) {
	args := []any{f.MessageStatus, f.AfterID}
	argIdx := 3
	where := []string{
		"cc.assignment_id IS NULL",
		"NOT cc.is_opted_out",
		"NOT cc.archived",
		"cc.message_status = $1",
		"cc.id > $2",
	}

	if f.CampaignID != 0 {
		where = append(where, fmt.Sprintf("cc.campaign_id = $%d", argIdx))
		args = append(args, f.CampaignID)
		argIdx++
	}
	if f.OrganizationID != 0 {
		where = append(where, fmt.Sprintf("cc.campaign_id IN (SELECT id FROM campaigns WHERE organization_id = $%d AND NOT is_archived)", argIdx))
		args = append(args, f.OrganizationID)
		argIdx++
	}
	if len(f.EscalationTagIDs) > 0 {
		where = append(where, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM campaign_contact_tags x JOIN tags xt ON xt.id = x.tag_id
			WHERE x.campaign_contact_id = cc.id AND NOT xt.is_assignable AND x.tag_id = ANY($%d))`, argIdx))
		args = append(args, f.EscalationTagIDs)
		argIdx++
	}
	if f.ExcludeEscalated {
		where = append(where, `NOT EXISTS (
			SELECT 1 FROM campaign_contact_tags x JOIN tags xt ON xt.id = x.tag_id
			WHERE x.campaign_contact_id = cc.id AND NOT xt.is_assignable)`)
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	query := contactSelect + " WHERE " + strings.Join(where, " AND ") +
		fmt.Sprintf(" GROUP BY cc.id ORDER BY cc.id LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []models.CampaignContact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

// ClaimSpec describes one conditional claim write.
type ClaimSpec struct {
	AssignmentID  int64
	MessageStatus string
	IDs           []int64
	// Autosend also caps the write at the campaign's remaining autosend quota.
	Autosend bool
}

// ClaimOutcome lists the contacts actually claimed, in ascending order.
// CapReached is set when the assignment's max_contacts or the autosend quota
// left no room for more.
type ClaimOutcome struct {
	IDs        []int64
	CapReached bool
}

// ClaimBatch binds the given contacts to the assignment, but only those still
// unassigned, unarchived, not opted out and in MessageStatus at the moment
// of the write. Ids taken by someone else are silently absent.
//
// The assignment row is locked first, and for autosend the campaign row, so
// concurrent claims against the same caps are counted one after another.
func (r *ContactRepo) ClaimBatch(ctx context.Context, spec ClaimSpec) (ClaimOutcome, error) {
	out := ClaimOutcome{IDs: []int64{}}
	if len(spec.IDs) == 0 {
		return out, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return out, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var campaignID int64
	var maxContacts *int
	err = tx.QueryRow(ctx, `SELECT campaign_id, max_contacts FROM assignments WHERE id = $1 FOR UPDATE`,
		spec.AssignmentID).Scan(&campaignID, &maxContacts)
	if err != nil {
		return out, notFound(err)
	}

	room := -1
	if maxContacts != nil {
		var owned int
		err = tx.QueryRow(ctx, `SELECT count(*) FROM campaign_contacts WHERE assignment_id = $1`,
			spec.AssignmentID).Scan(&owned)
		if err != nil {
			return out, err
		}
		room = max(*maxContacts-owned, 0)
	}

	if spec.Autosend {
		var limit *int
		err = tx.QueryRow(ctx, `SELECT autosend_limit FROM campaigns WHERE id = $1 FOR UPDATE`, campaignID).Scan(&limit)
		if err != nil {
			return out, notFound(err)
		}
		if limit != nil {
			var committed int
			err = tx.QueryRow(ctx, `
				SELECT count(*) FROM campaign_contacts
				WHERE campaign_id = $1 AND (message_status <> 'needsMessage' OR assignment_id IS NOT NULL)
			`, campaignID).Scan(&committed)
			if err != nil {
				return out, err
			}
			left := max(*limit-committed, 0)
			if room < 0 || left < room {
				room = left
			}
		}
	}

	if room == 0 {
		out.CapReached = true
		return out, nil
	}
	var limitArg *int
	if room > 0 {
		limitArg = &room
	}

	rows, err := tx.Query(ctx, `
		UPDATE campaign_contacts SET assignment_id = $1, updated_at = now()
		WHERE id IN (
			SELECT id FROM campaign_contacts
			WHERE id = ANY($2) AND assignment_id IS NULL AND NOT archived AND NOT is_opted_out AND message_status = $3
			ORDER BY id
			LIMIT $4
		)
		  AND assignment_id IS NULL
		  AND NOT archived
		  AND NOT is_opted_out
		  AND message_status = $3
		RETURNING id
	`, spec.AssignmentID, spec.IDs, spec.MessageStatus, limitArg)
	if err != nil {
		return out, err
	}
	claimed, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return out, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ClaimOutcome{IDs: []int64{}}, err
	}

	slices.Sort(claimed)
	out.IDs = claimed
	out.CapReached = room > 0 && len(claimed) >= room
	return out, nil
}

// CountOwned returns how many contacts an assignment currently holds.
func (r *ContactRepo) CountOwned(ctx context.Context, assignmentID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM campaign_contacts WHERE assignment_id = $1`, assignmentID).Scan(&n)
	return n, err
}

type CascadeResult struct {
	CampaignChanged bool  `json:"campaign_changed"`
	ContactsChanged int64 `json:"contacts_changed"`
}

// CascadeArchived sets the campaign's archived flag and mirrors it onto every
// contact of the campaign in one transaction. The campaign row is locked
// first; contact rows locked here make concurrent claims re-check the
// archived flag after commit. Re-running with the same value changes nothing.
func (r *ContactRepo) CascadeArchived(ctx context.Context, campaignID int64, archived bool) (CascadeResult, error) {
	var res CascadeResult

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return res, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current bool
	err = tx.QueryRow(ctx, `SELECT is_archived FROM campaigns WHERE id = $1 FOR UPDATE`, campaignID).Scan(&current)
	if err != nil {
		return res, notFound(err)
	}

	if current != archived {
		if _, err := tx.Exec(ctx, `UPDATE campaigns SET is_archived = $2, updated_at = now() WHERE id = $1`, campaignID, archived); err != nil {
			return res, err
		}
		res.CampaignChanged = true
	}

	tag, err := tx.Exec(ctx, `
		UPDATE campaign_contacts SET archived = $2, updated_at = now()
		WHERE campaign_id = $1 AND archived <> $2
	`, campaignID, archived)
	if err != nil {
		return res, err
	}
	res.ContactsChanged = tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return CascadeResult{}, err
	}
	return res, nil
}

// MarkOptedOut records an opt-out for a cell and flags every matching contact
// in the organization.
func (r *ContactRepo) MarkOptedOut(ctx context.Context, organizationID int64, cell string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO opt_outs (organization_id, cell) VALUES ($1, $2)
		ON CONFLICT (organization_id, cell) DO NOTHING
	`, organizationID, cell); err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE campaign_contacts cc SET is_opted_out = true, updated_at = now()
		FROM campaigns c
		WHERE c.id = cc.campaign_id AND c.organization_id = $1 AND cc.cell = $2 AND NOT cc.is_opted_out
	`, organizationID, cell)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
