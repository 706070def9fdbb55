package models

import "time"

type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in-progress"
	TicketResolved   TicketStatus = "resolved"
)

// Ticket records an issue filed for an actionable alert.
type Ticket struct {
	ID           string       `json:"id"`
	IssueNumber  string       `json:"issue_number"`
	AlertID      string       `json:"alert_id"`
	ActivityName string       `json:"activity"`
	Title        string       `json:"title"`
	Labels       []string     `json:"labels"`
	Score        int          `json:"score"`
	IsSimulated  bool         `json:"is_simulated"`
	DryRun       bool         `json:"dry_run"`
	Status       TicketStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// AlertStatistics summarizes archived alerts over a period.
type AlertStatistics struct {
	Total          int              `json:"total"`
	ByStatus       map[string]int   `json:"by_status"`
	ByActivity     map[string]int   `json:"by_activity"`
	ByAction       map[string]int   `json:"by_action"`
	Activities     []ActivityHealth `json:"activities"`
	HighScore      int              `json:"high_score_alerts"`
	SimulatedCount int              `json:"simulated_defects"`
}

// ActivityHealth is the check count and success rate of one activity.
type ActivityHealth struct {
	Name        string  `json:"name"`
	Checks      int     `json:"checks"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"success_rate"`
}

// StoredAlert is an archived processed alert.
type StoredAlert struct {
	Alert
	Score              int       `json:"score"`
	Action             Action    `json:"action"`
	ShouldCreateTicket bool      `json:"should_create_ticket"`
	StoredAt           time.Time `json:"stored_at"`
}
