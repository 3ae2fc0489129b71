package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/textforce/backend/internal/models"
)

type OrganizationRepo struct {
	pool *pgxpool.Pool
}

func NewOrganizationRepo(pool *pgxpool.Pool) *OrganizationRepo {
	return &OrganizationRepo{pool: pool}
}

func (r *OrganizationRepo) GetByID(ctx context.Context, id int64) (*models.Organization, error) {
	var o models.Organization
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, default_timezone, texting_hours_enforced, monthly_message_limit
		FROM organizations WHERE id = $1
	`, id).Scan(&o.ID, &o.Name, &o.DefaultTimezone, &o.TextingHoursEnforced, &o.MonthlyMessageLimit)
	if err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}
