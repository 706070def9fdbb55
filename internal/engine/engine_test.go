package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emirozbir/micro-triage/internal/models"
)

// 2025-03-04 is a Tuesday.
var tuesday = time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

func ts(offset time.Duration) string {
	return models.FormatTimestamp(tuesday.Add(offset))
}

func newTestEngine() *Engine {
	return New(DefaultConfig(), nil, nil)
}

func TestScenarioCriticalFailureEscalates(t *testing.T) {
	e := newTestEngine()

	result := e.Process(context.Background(), []models.RawAlert{{
		"alert_id":      "a",
		"timestamp":     ts(0),
		"activity_name": "Transfer Funds",
		"url":           "https://transaction-server.bank.local/transfer",
		"status":        "failure",
		"response_code": 503,
		"response_time": 6,
		"is_simulated":  false,
	}})

	require.Len(t, result.Actionable, 1)
	pa := result.Actionable[0]
	assert.False(t, pa.Assessment.IsFalsePositive)
	assert.True(t, pa.Assessment.ThresholdExceeded)
	assert.GreaterOrEqual(t, pa.Assessment.SeverityScore, 9.0)
	assert.Equal(t, models.ActionEscalate, pa.RuleVerdict.Action)
	assert.Equal(t, 100, pa.Score)
	assert.True(t, pa.ShouldCreateTicket)
	assert.Equal(t, 1, result.Summary.TicketsToCreate)
}

func TestScenarioSimulatedMaintenanceIsSuppressed(t *testing.T) {
	e := newTestEngine()

	result := e.Process(context.Background(), []models.RawAlert{{
		"timestamp":     ts(0),
		"activity_name": "Login",
		"status":        "failure",
		"response_code": 500,
		"is_simulated":  true,
		"error_message": "maintenance window skip",
	}})

	require.Len(t, result.Suppressed, 1)
	pa := result.Suppressed[0]
	assert.True(t, pa.Assessment.IsFalsePositive)
	assert.Equal(t, models.ActionSuppress, pa.RuleVerdict.Action)
	assert.False(t, pa.ShouldCreateTicket)
}

func TestScenarioStormIsDeduplicated(t *testing.T) {
	e := newTestEngine()

	var raws []models.RawAlert
	for i := 0; i < 60; i++ {
		raws = append(raws, models.RawAlert{
			"alert_id":      fmt.Sprintf("a%02d", i),
			"timestamp":     ts(time.Duration(i) * 4 * time.Second),
			"activity_name": "Checkout",
			"status":        "failure",
			"response_code": 502,
		})
	}

	result := e.Process(context.Background(), raws)

	assert.Len(t, result.Deduplicated, 10)
	for _, pa := range result.Deduplicated {
		assert.True(t, pa.Assessment.FrequencyCheck.IsStorm)
		assert.Equal(t, "Alert storm detected", pa.RuleVerdict.Reason)
		assert.False(t, pa.ShouldCreateTicket)
	}
	assert.Equal(t, "a50", result.Deduplicated[0].Alert.AlertID)
	assert.Len(t, result.Actionable, 50)

	require.Len(t, result.CorrelatedGroups, 1)
	assert.Equal(t, 60, result.CorrelatedGroups[0].Count)
}

func TestScenarioSameActivityCorrelates(t *testing.T) {
	e := newTestEngine()

	result := e.Process(context.Background(), []models.RawAlert{
		{"alert_id": "a1", "timestamp": ts(0), "activity_name": "Login", "status": "failure", "error_message": "Connection reset by peer"},
		{"alert_id": "a2", "timestamp": ts(10 * time.Second), "activity_name": "Login", "status": "error", "error_message": "Gateway timeout"},
	})

	require.Len(t, result.CorrelatedGroups, 1)
	group := result.CorrelatedGroups[0]
	assert.Equal(t, 2, group.Count)
	assert.Equal(t, "Network timeout or high latency", group.RootCause)
}

func TestScenarioUnparseableTimestamp(t *testing.T) {
	e := newTestEngine()

	result := e.Process(context.Background(), []models.RawAlert{{
		"timestamp":     "last tuesday-ish",
		"activity_name": "Login",
		"status":        "failure",
		"response_code": 500,
	}})

	require.Len(t, result.Actionable, 1)
	pa := result.Actionable[0]
	assert.False(t, pa.Assessment.IsFalsePositive)
	assert.Equal(t, models.ActionEscalate, pa.RuleVerdict.Action)
	assert.Equal(t, "last tuesday-ish", pa.Alert.Timestamp)
	assert.Greater(t, pa.Score, 60)
}

func TestTicketNeedsBothGates(t *testing.T) {
	e := newTestEngine()

	// escalated by the rules but scores 25+20+7 = 52
	result := e.Process(context.Background(), []models.RawAlert{{
		"timestamp":     ts(0),
		"activity_name": "Search",
		"status":        "success",
		"response_code": 200,
	}})

	require.Len(t, result.Actionable, 1)
	pa := result.Actionable[0]
	assert.True(t, pa.RuleVerdict.ShouldCreateTicket)
	assert.Equal(t, 52, pa.Score)
	assert.False(t, pa.ShouldCreateTicket)
	assert.Zero(t, result.Summary.TicketsToCreate)
}

func TestBucketsPartitionTheBatch(t *testing.T) {
	e := newTestEngine()
	sundayNight := time.Date(2025, 3, 9, 22, 30, 0, 0, time.UTC)

	var raws []models.RawAlert
	statuses := []string{"success", "failure", "error"}
	for i := 0; i < 90; i++ {
		raw := models.RawAlert{
			"alert_id":      fmt.Sprintf("a%d", i),
			"activity_name": fmt.Sprintf("Activity %d", i%3),
			"status":        statuses[i%3],
			"timestamp":     ts(time.Duration(i) * time.Second),
		}
		switch i % 5 {
		case 0:
			raw["timestamp"] = models.FormatTimestamp(sundayNight)
		case 1:
			raw["is_simulated"] = true
			raw["error_message"] = "Maintenance"
		case 2:
			raw["timestamp"] = 12345
		}
		raws = append(raws, raw)
	}

	result := e.Process(context.Background(), raws)

	seen := map[string]int{}
	for _, pa := range result.All() {
		seen[pa.Alert.AlertID]++
		assert.GreaterOrEqual(t, pa.Score, 0)
		assert.LessOrEqual(t, pa.Score, 100)
	}
	assert.Len(t, seen, len(raws))
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}

	s := result.Summary
	assert.Equal(t, len(raws), s.TotalAlerts)
	assert.Equal(t, s.TotalAlerts, s.Actionable+s.Suppressed+s.Deduplicated)

	grouped := 0
	for _, g := range result.CorrelatedGroups {
		grouped += g.Count
	}
	assert.Equal(t, len(raws), grouped)
}

func TestEmptyBatch(t *testing.T) {
	e := newTestEngine()

	result := e.Process(context.Background(), nil)

	assert.Empty(t, result.All())
	assert.Empty(t, result.CorrelatedGroups)
	assert.Zero(t, result.Summary.TotalAlerts)
}

func TestStatisticsAccumulateAcrossBatches(t *testing.T) {
	e := newTestEngine()
	assert.Zero(t, e.Statistics().TotalProcessed)

	critical := models.RawAlert{
		"timestamp": ts(0), "activity_name": "Transfer", "status": "failure",
		"response_code": 503, "url": "https://loan-server/x",
	}
	quiet := models.RawAlert{"timestamp": ts(0), "activity_name": "Search", "status": "success"}

	e.Process(context.Background(), []models.RawAlert{critical})
	result := e.Process(context.Background(), []models.RawAlert{quiet})

	stats := e.Statistics()
	assert.Equal(t, 2, stats.TotalProcessed)
	assert.Equal(t, 100, stats.MaxScore)
	assert.Equal(t, 52, stats.MinScore)
	assert.Equal(t, 76.0, stats.AvgScore)
	assert.Equal(t, 1, stats.HighPriority)
	assert.Equal(t, 1, stats.LowPriority)
	assert.Equal(t, stats, result.Statistics)

	e.Reset()
	assert.Equal(t, models.Statistics{}, e.Statistics())
}

func TestConcurrentBatches(t *testing.T) {
	e := newTestEngine()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.Process(context.Background(), []models.RawAlert{
				{"timestamp": ts(time.Duration(i) * time.Second), "activity_name": "Login", "status": "failure"},
				{"timestamp": ts(time.Duration(i) * time.Second), "activity_name": "Search", "status": "success"},
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 16, e.Statistics().TotalProcessed)
}
