package models

// Team assignment types
const (
	AssignmentTypeUnsent    = "UNSENT"
	AssignmentTypeUnreplied = "UNREPLIED"
)

// TagRef is the slice of a tag carried on a contact snapshot.
type TagRef struct {
	ID           int64 `json:"id"`
	IsAssignable bool  `json:"is_assignable"`
}

type Team struct {
	ID                  int64   `json:"id"`
	OrganizationID      int64   `json:"organization_id"`
	Title               string  `json:"title"`
	IsAssignmentEnabled bool    `json:"is_assignment_enabled"`
	AssignmentType      *string `json:"assignment_type,omitempty"`
	MaxRequestCount     *int    `json:"max_request_count,omitempty"`
	EscalationTagIDs    []int64 `json:"escalation_tag_ids,omitempty"`
}

// AllowsPurpose reports whether team members may claim for purpose. A team
// with no declared assignment type allows both.
func (t *Team) AllowsPurpose(p Purpose) bool {
	if t.AssignmentType == nil || *t.AssignmentType == "" {
		return true
	}
	switch *t.AssignmentType {
	case AssignmentTypeUnsent:
		return p == PurposeNeedsMessage
	case AssignmentTypeUnreplied:
		return p == PurposeNeedsReply
	}
	return false
}
