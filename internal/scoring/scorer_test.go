package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/emirozbir/micro-triage/internal/models"
)

func TestScoreComponents(t *testing.T) {
	s := NewScorer(DefaultConfig())

	tests := []struct {
		name       string
		alert      models.Alert
		assessment models.Assessment
		want       int
	}{
		{
			name:       "quiet success",
			alert:      models.Alert{Status: models.StatusSuccess},
			assessment: models.Assessment{SeverityScore: 5},
			want:       25 + 20 + 7,
		},
		{
			name:       "failure on a regular service",
			alert:      models.Alert{Status: models.StatusFailure, URL: "https://shop.example.com"},
			assessment: models.Assessment{SeverityScore: 8, ThresholdExceeded: true},
			want:       30 + 25 + 20 + 12 + 10,
		},
		{
			name:       "simulated storm false positive",
			alert:      models.Alert{Status: models.StatusError, IsSimulated: true},
			assessment: models.Assessment{IsFalsePositive: true, SeverityScore: 5, FrequencyCheck: models.FrequencyCheck{IsStorm: true}},
			want:       30 + 7 - 10,
		},
		{
			name:       "critical service clamps at 100",
			alert:      models.Alert{Status: models.StatusFailure, URL: "https://Account-Server.internal/health"},
			assessment: models.Assessment{SeverityScore: 10, ThresholdExceeded: true},
			want:       100,
		},
		{
			name:       "pathological input clamps at zero",
			alert:      models.Alert{IsSimulated: true},
			assessment: models.Assessment{IsFalsePositive: true, FrequencyCheck: models.FrequencyCheck{IsStorm: true}},
			want:       0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Score(tt.alert, tt.assessment))
		})
	}
}

func TestScoreAlwaysInRange(t *testing.T) {
	s := NewScorer(DefaultConfig())
	severities := []float64{0, 1.5, 5, 9.99, 10, -4, math.MaxFloat64}

	for _, sev := range severities {
		for _, failed := range []bool{true, false} {
			for _, sim := range []bool{true, false} {
				alert := models.Alert{Status: models.StatusSuccess, IsSimulated: sim}
				if failed {
					alert.Status = models.StatusFailure
				}
				score := s.Score(alert, models.Assessment{SeverityScore: sev})
				assert.GreaterOrEqual(t, score, 0)
				assert.LessOrEqual(t, score, 100)
			}
		}
	}
}

func TestCustomCriticalServices(t *testing.T) {
	s := NewScorer(Config{CriticalServices: []string{" Billing ", ""}, TicketThreshold: 60})

	boosted := s.Score(models.Alert{URL: "https://billing.example.com"}, models.Assessment{})
	plain := s.Score(models.Alert{URL: "https://example.com"}, models.Assessment{})

	assert.Equal(t, 15, boosted-plain)
}

func TestTicketGateIsExclusive(t *testing.T) {
	s := NewScorer(DefaultConfig())

	assert.False(t, s.PassesTicketGate(60))
	assert.True(t, s.PassesTicketGate(61))
}

func TestPriority(t *testing.T) {
	assert.Equal(t, "high", Priority(76))
	assert.Equal(t, "medium", Priority(75))
	assert.Equal(t, "medium", Priority(60))
	assert.Equal(t, "low", Priority(59))
}
