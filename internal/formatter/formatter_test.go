package formatter

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/emirozbir/micro-triage/internal/models"
	"github.com/emirozbir/micro-triage/internal/notify"
)

func sampleResult() *models.BatchResult {
	login := models.Alert{AlertID: "a1", ActivityName: "Login", Status: models.StatusFailure, ErrorMessage: "Gateway timeout"}
	search := models.Alert{AlertID: "a2", ActivityName: "Search", Status: models.StatusSuccess}

	return &models.BatchResult{
		Actionable: []models.ProcessedAlert{
			{Alert: search, Score: 52, RuleVerdict: models.RuleVerdict{Action: models.ActionEscalate}},
			{Alert: login, Score: 95, ShouldCreateTicket: true, RuleVerdict: models.RuleVerdict{Action: models.ActionEscalate}},
		},
		Suppressed: []models.ProcessedAlert{
			{Alert: login, RuleVerdict: models.RuleVerdict{Action: models.ActionSuppress, Reason: "Maintenance window"}},
			{Alert: login, RuleVerdict: models.RuleVerdict{Action: models.ActionSuppress, Reason: "Maintenance window"}},
			{Alert: login, RuleVerdict: models.RuleVerdict{Action: models.ActionSuppress, Reason: "Low severity"}},
		},
		Deduplicated: []models.ProcessedAlert{},
		CorrelatedGroups: []models.CorrelationGroup{
			{GroupID: "group_0", Alerts: []models.Alert{login, login}, Count: 2, RootCause: "Network timeout or high latency"},
		},
		Summary:    models.Summary{TotalAlerts: 5, Actionable: 2, Suppressed: 3, TicketsToCreate: 1},
		Statistics: models.Statistics{TotalProcessed: 5, AvgScore: 40, MinScore: 0, MaxScore: 95, HighPriority: 1, LowPriority: 4},
		Timestamp:  time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC),
	}
}

func TestFormatBatchResultPlain(t *testing.T) {
	out := NewFormatter(false).FormatBatchResult(sampleResult())

	assert.NotContains(t, out, "\033[")
	assert.Contains(t, out, "Total Alerts:   5")
	assert.Contains(t, out, "Noise Reduced:  60.0%")
	assert.Contains(t, out, "group_0 │ 2 alerts")
	assert.Contains(t, out, "Root cause: Network timeout or high latency")
	assert.Contains(t, out, "○ SUPPRESS Maintenance window")
	assert.NotContains(t, out, "DEDUPLICATED")

	// highest score first
	assert.Less(t, strings.Index(out, "Login 🎫 ticket"), strings.Index(out, "Search"))
}

func TestFormatBatchResultColored(t *testing.T) {
	out := NewFormatter(true).FormatBatchResult(sampleResult())
	assert.Contains(t, out, Reset)
}

func TestFormatEmptyResult(t *testing.T) {
	out := NewFormatter(false).FormatBatchResult(&models.BatchResult{})
	assert.Contains(t, out, "No alerts processed")
	assert.NotContains(t, out, "Noise Reduced")
}

func TestFormatNotifications(t *testing.T) {
	out := NewFormatter(false).FormatNotifications(notify.Result{Alerts: 2, Sent: 1, DryRun: 1})
	assert.Contains(t, out, "Sent:     1")
	assert.NotContains(t, out, "Failed")
	assert.NotContains(t, out, "Skipped")

	out = NewFormatter(false).FormatNotifications(notify.Result{Alerts: 0, Skipped: 3})
	assert.Contains(t, out, "Skipped:  3")
}
