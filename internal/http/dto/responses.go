package dto

// ErrorResponse carries ContactIDs when a claim failed after some contacts
// were already bound to the requester.
type ErrorResponse struct {
	Error      string  `json:"error"`
	RequestID  string  `json:"request_id,omitempty"`
	ContactIDs []int64 `json:"contact_ids,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// ClaimResponse carries the claimed contacts. An empty list means nothing is
// available right now, not a failure.
type ClaimResponse struct {
	AssignmentID int64   `json:"assignment_id,omitempty"`
	ContactIDs   []int64 `json:"contact_ids"`
}

type ArchiveResponse struct {
	CampaignID      int64 `json:"campaign_id"`
	Archived        bool  `json:"archived"`
	CampaignChanged bool  `json:"campaign_changed"`
	ContactsChanged int64 `json:"contacts_changed"`
}

type OptOutResponse struct {
	Cell            string `json:"cell"`
	ContactsChanged int64  `json:"contacts_changed"`
}
