package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/textforce/backend/internal/models"
)

type TeamRepo struct {
	pool *pgxpool.Pool
}

func NewTeamRepo(pool *pgxpool.Pool) *TeamRepo {
	return &TeamRepo{pool: pool}
}

// GetByID loads a team with the escalation tags it is responsible for.
func (r *TeamRepo) GetByID(ctx context.Context, id int64) (*models.Team, error) {
	var t models.Team
	err := r.pool.QueryRow(ctx, `
		SELECT t.id, t.organization_id, t.title, t.is_assignment_enabled, t.assignment_type, t.max_request_count,
		       COALESCE(array_agg(tet.tag_id ORDER BY tet.tag_id) FILTER (WHERE tet.tag_id IS NOT NULL), '{}')
		FROM teams t
		LEFT JOIN team_escalation_tags tet ON tet.team_id = t.id
		WHERE t.id = $1
		GROUP BY t.id
	`, id).Scan(&t.ID, &t.OrganizationID, &t.Title, &t.IsAssignmentEnabled, &t.AssignmentType, &t.MaxRequestCount,
		&t.EscalationTagIDs)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *TeamRepo) IsMember(ctx context.Context, teamID int64, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM team_members WHERE team_id = $1 AND user_id = $2)
	`, teamID, userID).Scan(&ok)
	return ok, err
}

func (r *TeamRepo) AddMember(ctx context.Context, teamID int64, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO team_members (team_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, teamID, userID)
	return err
}
