package models

import "time"

type FrequencyCheck struct {
	Count5Min int  `json:"count_5_min"`
	Exceeded  bool `json:"exceeded"`
	IsStorm   bool `json:"is_storm"`
}

// Assessment holds the diagnostic signals computed for one alert.
type Assessment struct {
	IsFalsePositive      bool           `json:"is_false_positive"`
	IsKnownIssue         bool           `json:"is_known_issue"`
	FrequencyCheck       FrequencyCheck `json:"frequency_check"`
	HasHistoricalContext bool           `json:"has_historical_context"`
	SeverityScore        float64        `json:"severity_score"`
	ThresholdExceeded    bool           `json:"threshold_exceeded"`
}

type CorrelationGroup struct {
	GroupID   string    `json:"group_id"`
	Alerts    []Alert   `json:"alerts"`
	Count     int       `json:"count"`
	RootCause string    `json:"root_cause"`
	Timestamp time.Time `json:"timestamp"`
}

type Action string

const (
	ActionSuppress    Action = "SUPPRESS"
	ActionDeduplicate Action = "DEDUPLICATE"
	ActionEscalate    Action = "ESCALATE"
)

type RuleVerdict struct {
	Action             Action `json:"action"`
	Reason             string `json:"reason"`
	ShouldCreateTicket bool   `json:"should_create_ticket"`
}

// ProcessedAlert is the unit handed to persistence and notification.
type ProcessedAlert struct {
	Alert              Alert       `json:"alert"`
	Assessment         Assessment  `json:"assessment"`
	RuleVerdict        RuleVerdict `json:"rule_result"`
	Score              int         `json:"score"`
	ShouldCreateTicket bool        `json:"should_create_ticket"`
}

type Summary struct {
	TotalAlerts     int `json:"total_alerts"`
	Actionable      int `json:"actionable"`
	Suppressed      int `json:"suppressed"`
	Deduplicated    int `json:"deduplicated"`
	TicketsToCreate int `json:"tickets_to_create"`
}

// Statistics accumulates over every batch an engine has processed.
type Statistics struct {
	TotalProcessed int     `json:"total_processed"`
	AvgScore       float64 `json:"avg_score"`
	MinScore       int     `json:"min_score"`
	MaxScore       int     `json:"max_score"`
	HighPriority   int     `json:"high_priority"`
	MediumPriority int     `json:"medium_priority"`
	LowPriority    int     `json:"low_priority"`
}

type BatchResult struct {
	Actionable       []ProcessedAlert   `json:"actionable_alerts"`
	Suppressed       []ProcessedAlert   `json:"suppressed_alerts"`
	Deduplicated     []ProcessedAlert   `json:"deduplicated_alerts"`
	CorrelatedGroups []CorrelationGroup `json:"correlated_groups"`
	Summary          Summary            `json:"summary"`
	Statistics       Statistics         `json:"statistics"`
	Timestamp        time.Time          `json:"timestamp"`
}

// Tickets returns the actionable alerts that passed both ticket gates.
func (r *BatchResult) Tickets() []ProcessedAlert {
	var tickets []ProcessedAlert
	for _, pa := range r.Actionable {
		if pa.ShouldCreateTicket {
			tickets = append(tickets, pa)
		}
	}
	return tickets
}

// All returns every processed alert in bucket order.
func (r *BatchResult) All() []ProcessedAlert {
	all := make([]ProcessedAlert, 0, len(r.Actionable)+len(r.Suppressed)+len(r.Deduplicated))
	all = append(all, r.Actionable...)
	all = append(all, r.Suppressed...)
	all = append(all, r.Deduplicated...)
	return all
}
