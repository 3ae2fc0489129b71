package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/textforce/backend/internal/models"
	"github.com/textforce/backend/internal/repositories"
)

var (
	ErrCampaignNotFound   = errors.New("campaign not found")
	ErrContactNotFound    = errors.New("contact not found")
	ErrTeamNotFound       = errors.New("team not found")
	ErrNotTeamMember      = errors.New("requester is not a member of an assigned team")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidTransition  = errors.New("invalid autosend transition")
	ErrStorageUnavailable = errors.New("storage unavailable, retry later")
	ErrInvariantViolation = errors.New("claim invariant violated")
)

// Stores consumed by the services. The repositories package provides the
// Postgres implementations.

type CampaignStore interface {
	GetByID(ctx context.Context, id int64) (*models.Campaign, error)
	GetWithStats(ctx context.Context, id int64) (*models.CampaignWithStats, error)
	ListActiveByOrganization(ctx context.Context, organizationID int64) ([]models.CampaignWithStats, error)
	UpdateAutosendStatus(ctx context.Context, id int64, from, to string) (bool, error)
	ListAutosendOrganizationIDs(ctx context.Context) ([]int64, error)
	IsTeamLinked(ctx context.Context, campaignID int64, userID uuid.UUID) (bool, error)
}

type OrganizationStore interface {
	GetByID(ctx context.Context, id int64) (*models.Organization, error)
}

type ContactStore interface {
	GetByID(ctx context.Context, id int64) (*models.CampaignContact, error)
	ListCandidates(ctx context.Context, f repositories.CandidateFilter) ([]models.CampaignContact, error)
	ClaimBatch(ctx context.Context, spec repositories.ClaimSpec) (repositories.ClaimOutcome, error)
	CountOwned(ctx context.Context, assignmentID int64) (int, error)
	CascadeArchived(ctx context.Context, campaignID int64, archived bool) (repositories.CascadeResult, error)
	MarkOptedOut(ctx context.Context, organizationID int64, cell string) (int64, error)
}

type AssignmentStore interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID, campaignID int64) (*models.Assignment, error)
}

type TeamStore interface {
	GetByID(ctx context.Context, id int64) (*models.Team, error)
	IsMember(ctx context.Context, teamID int64, userID uuid.UUID) (bool, error)
}

type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

// mapNotFound turns the repository not-found error into the service one.
func mapNotFound(err, target error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return target
	}
	return err
}
