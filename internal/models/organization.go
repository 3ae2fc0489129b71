package models

type Organization struct {
	ID                   int64  `json:"id"`
	Name                 string `json:"name"`
	DefaultTimezone      string `json:"default_timezone"`
	TextingHoursEnforced bool   `json:"texting_hours_enforced"`
	MonthlyMessageLimit  *int   `json:"monthly_message_limit,omitempty"`
}
