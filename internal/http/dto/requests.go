package dto

type ClaimRequest struct {
	Count   int    `json:"count"`
	Purpose string `json:"purpose,omitempty"` // needsMessage (default) / needsReply
}

type SetAutosendStatusRequest struct {
	Status string `json:"status"`
}

type OptOutRequest struct {
	Cell string `json:"cell"`
}
