package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/textforce/backend/internal/models"
)

type AssignmentRepo struct {
	pool *pgxpool.Pool
}

func NewAssignmentRepo(pool *pgxpool.Pool) *AssignmentRepo {
	return &AssignmentRepo{pool: pool}
}

// GetOrCreate returns the assignment binding userID to campaignID, creating
// it on first use.
func (r *AssignmentRepo) GetOrCreate(ctx context.Context, userID uuid.UUID, campaignID int64) (*models.Assignment, error) {
	var a models.Assignment
	err := r.pool.QueryRow(ctx, `
		INSERT INTO assignments (user_id, campaign_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, campaign_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id, user_id, campaign_id, max_contacts, created_at
	`, userID, campaignID).Scan(&a.ID, &a.UserID, &a.CampaignID, &a.MaxContacts, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
