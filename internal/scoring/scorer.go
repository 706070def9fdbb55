package scoring

import (
	"strings"

	"github.com/emirozbir/micro-triage/internal/models"
)

const (
	weightFailure          = 30
	weightNotFalsePositive = 25
	weightNotStorm         = 20
	weightSeverity         = 15
	weightThreshold        = 10
	boostCriticalService   = 15
	penaltySimulated       = 10
)

type Config struct {
	CriticalServices []string `mapstructure:"critical_services"`
	// TicketThreshold is exclusive: a ticket needs a score above it.
	TicketThreshold int `mapstructure:"ticket_threshold"`
}

func DefaultConfig() Config {
	return Config{
		CriticalServices: []string{"account-server", "transaction-server", "loan-server"},
		TicketThreshold:  60,
	}
}

// Scorer computes the 0-100 actionability score. It does not look at the
// rule verdict; the engine combines the two.
type Scorer struct {
	cfg Config
}

func NewScorer(cfg Config) *Scorer {
	services := make([]string, 0, len(cfg.CriticalServices))
	for _, s := range cfg.CriticalServices {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			services = append(services, s)
		}
	}
	cfg.CriticalServices = services
	return &Scorer{cfg: cfg}
}

func (s *Scorer) Score(alert models.Alert, assessment models.Assessment) int {
	score := 0.0

	if alert.Status.Failed() {
		score += weightFailure
	}
	if !assessment.IsFalsePositive {
		score += weightNotFalsePositive
	}
	if !assessment.FrequencyCheck.IsStorm {
		score += weightNotStorm
	}
	score += assessment.SeverityScore / 10 * weightSeverity
	if assessment.ThresholdExceeded {
		score += weightThreshold
	}
	if s.isCritical(alert.URL) {
		score += boostCriticalService
	}
	if alert.IsSimulated {
		score -= penaltySimulated
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return int(score)
}

// PassesTicketGate reports whether score clears the ticket threshold.
func (s *Scorer) PassesTicketGate(score int) bool {
	return score > s.cfg.TicketThreshold
}

func (s *Scorer) isCritical(url string) bool {
	url = strings.ToLower(url)
	for _, service := range s.cfg.CriticalServices {
		if strings.Contains(url, service) {
			return true
		}
	}
	return false
}

// Priority buckets a score: high above 75, medium 60-75, low below 60.
func Priority(score int) string {
	switch {
	case score > 75:
		return "high"
	case score >= 60:
		return "medium"
	default:
		return "low"
	}
}
