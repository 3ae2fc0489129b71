package models

// Autosend statuses
const (
	AutosendStatusUnstarted = "unstarted"
	AutosendStatusSending   = "sending"
	AutosendStatusPaused    = "paused"
	AutosendStatusComplete  = "complete"
)

// Valid autosend transitions: from -> []to
var ValidAutosendTransitions = map[string][]string{
	AutosendStatusUnstarted: {AutosendStatusSending},
	AutosendStatusSending:   {AutosendStatusPaused, AutosendStatusComplete},
	AutosendStatusPaused:    {AutosendStatusSending, AutosendStatusComplete},
	AutosendStatusComplete:  {},
}

func IsValidAutosendTransition(from, to string) bool {
	allowed, ok := ValidAutosendTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
