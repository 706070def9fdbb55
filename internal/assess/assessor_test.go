package assess

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emirozbir/micro-triage/internal/models"
)

// 2025-03-04 is a Tuesday, 2025-03-09 a Sunday.
var tuesday = time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

type fakeHistory struct {
	known map[string]bool
	err   error
}

func (f fakeHistory) HasHistory(_ context.Context, activity string) (bool, error) {
	return f.known[activity], f.err
}

func newTestAssessor() *Assessor {
	cfg := DefaultConfig()
	return New(cfg, NewFrequencyLog(cfg.FrequencyWindow, cfg.LogCapacity()), nil, nil)
}

func intPtr(i int) *int { return &i }

func alertAt(activity string, t time.Time) models.Alert {
	return models.Alert{
		AlertID:      fmt.Sprintf("%s-%d", activity, t.UnixNano()),
		Timestamp:    models.FormatTimestamp(t),
		ActivityName: activity,
		Status:       models.StatusSuccess,
	}
}

func TestFalsePositive(t *testing.T) {
	a := newTestAssessor()
	sundayNight := time.Date(2025, 3, 9, 22, 30, 0, 0, time.UTC)
	sundayEvening := time.Date(2025, 3, 9, 21, 59, 0, 0, time.UTC)

	simulated := alertAt("Login", tuesday)
	simulated.IsSimulated = true
	simulated.ErrorMessage = "Maintenance window skip"
	assert.True(t, a.Assess(context.Background(), simulated).IsFalsePositive)

	realMaintenance := alertAt("Login", tuesday)
	realMaintenance.ErrorMessage = "maintenance"
	assert.False(t, a.Assess(context.Background(), realMaintenance).IsFalsePositive)

	assert.True(t, a.Assess(context.Background(), alertAt("Login", sundayNight)).IsFalsePositive)
	assert.False(t, a.Assess(context.Background(), alertAt("Login", sundayEvening)).IsFalsePositive)
}

func TestFalsePositiveUnparseableTimestampFailsOpen(t *testing.T) {
	a := newTestAssessor()
	alert := alertAt("Login", tuesday)
	alert.Timestamp = "not-a-time"

	assessment := a.Assess(context.Background(), alert)

	assert.False(t, assessment.IsFalsePositive)
	assert.Equal(t, 1, assessment.FrequencyCheck.Count5Min)
}

func TestKnownIssue(t *testing.T) {
	a := newTestAssessor()

	assert.True(t, a.Assess(context.Background(), alertAt("Test Activity", tuesday)).IsKnownIssue)
	assert.True(t, a.Assess(context.Background(), alertAt("test activity", tuesday)).IsKnownIssue)
	assert.False(t, a.Assess(context.Background(), alertAt("Checkout", tuesday)).IsKnownIssue)
}

func TestSeverityScore(t *testing.T) {
	a := newTestAssessor()

	tests := []struct {
		name   string
		status models.Status
		code   *int
		rt     float64
		want   float64
	}{
		{"baseline success", models.StatusSuccess, nil, 0, 5},
		{"failure", models.StatusFailure, nil, 0, 8},
		{"client error", models.StatusError, intPtr(404), 0, 6},
		{"server error", models.StatusError, intPtr(502), 0, 7},
		{"slow response", models.StatusSuccess, intPtr(200), 11, 6},
		{"everything clamps to ten", models.StatusFailure, intPtr(503), 30, 10},
		{"six seconds is not slow", models.StatusFailure, intPtr(503), 6, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := alertAt("Login", tuesday)
			alert.Status = tt.status
			alert.ResponseCode = tt.code
			alert.ResponseTime = tt.rt
			assert.Equal(t, tt.want, a.severityScore(alert))
		})
	}
}

func TestThresholdExceeded(t *testing.T) {
	a := newTestAssessor()

	ok := alertAt("Login", tuesday)
	ok.ResponseCode = intPtr(200)
	ok.ResponseTime = 1.2
	assert.False(t, a.thresholdExceeded(ok))

	slow := ok
	slow.ResponseTime = 5.5
	assert.True(t, a.thresholdExceeded(slow))

	serverErr := ok
	serverErr.ResponseCode = intPtr(500)
	assert.True(t, a.thresholdExceeded(serverErr))

	failed := ok
	failed.Status = models.StatusError
	assert.True(t, a.thresholdExceeded(failed))
}

func TestStormDetection(t *testing.T) {
	a := newTestAssessor()

	var checks []models.FrequencyCheck
	for i := 0; i < 60; i++ {
		alert := alertAt("Checkout", tuesday.Add(time.Duration(i)*4*time.Second))
		checks = append(checks, a.Assess(context.Background(), alert).FrequencyCheck)
	}

	assert.False(t, checks[9].Exceeded)
	assert.True(t, checks[10].Exceeded)
	assert.False(t, checks[49].IsStorm)
	for i := 50; i < 60; i++ {
		assert.True(t, checks[i].IsStorm, "alert %d should be part of the storm", i+1)
	}
}

func TestFrequencyIsPerActivity(t *testing.T) {
	a := newTestAssessor()

	for i := 0; i < 20; i++ {
		a.Assess(context.Background(), alertAt("Checkout", tuesday.Add(time.Duration(i)*time.Second)))
	}
	check := a.Assess(context.Background(), alertAt("Login", tuesday)).FrequencyCheck

	assert.Equal(t, 1, check.Count5Min)
	assert.False(t, check.Exceeded)
}

func TestHistoricalContext(t *testing.T) {
	cfg := DefaultConfig()

	withHistory := New(cfg, nil, fakeHistory{known: map[string]bool{"Login": true}}, nil)
	assert.True(t, withHistory.Assess(context.Background(), alertAt("Login", tuesday)).HasHistoricalContext)
	assert.False(t, withHistory.Assess(context.Background(), alertAt("Checkout", tuesday)).HasHistoricalContext)

	failing := New(cfg, nil, fakeHistory{known: map[string]bool{"Login": true}, err: errors.New("db down")}, nil)
	assert.False(t, failing.Assess(context.Background(), alertAt("Login", tuesday)).HasHistoricalContext)

	none := New(cfg, nil, nil, nil)
	assert.False(t, none.Assess(context.Background(), alertAt("Login", tuesday)).HasHistoricalContext)
}

func TestAssessorSharesInjectedLog(t *testing.T) {
	cfg := DefaultConfig()
	log := NewFrequencyLog(cfg.FrequencyWindow, cfg.LogCapacity())
	first := New(cfg, log, nil, nil)
	second := New(cfg, log, nil, nil)

	first.Assess(context.Background(), alertAt("Login", tuesday))
	check := second.Assess(context.Background(), alertAt("Login", tuesday.Add(time.Second))).FrequencyCheck

	require.Equal(t, 2, check.Count5Min)
}

func TestLogCapacityCoversBothThresholds(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 51, cfg.LogCapacity())

	cfg.StormThreshold = 0
	assert.Equal(t, 11, cfg.LogCapacity())
}
