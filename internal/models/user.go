package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization roles
const (
	RoleOwner          = "OWNER"
	RoleAdmin          = "ADMIN"
	RoleSupervolunteer = "SUPERVOLUNTEER"
	RoleTexter         = "TEXTER"
)

type User struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Role           string    `json:"role"`
	DisplayName    string    `json:"display_name"`
	CreatedAt      time.Time `json:"created_at"`
}

// Requester identifies who is asking for contacts. Autosender marks a
// background autosend worker rather than a human texter.
type Requester struct {
	UserID         uuid.UUID
	OrganizationID int64
	Role           string
	Autosender     bool
}

func (r Requester) ActorType() string {
	if r.Autosender {
		return "autosender"
	}
	return "user"
}
