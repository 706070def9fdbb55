package assess

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/emirozbir/micro-triage/internal/models"
)

// HistoryLookup answers whether earlier alerts for an activity were archived.
type HistoryLookup interface {
	HasHistory(ctx context.Context, activity string) (bool, error)
}

// Config tunes the assessor. Response times are in seconds.
type Config struct {
	FrequencyWindow          time.Duration            `mapstructure:"frequency_window"`
	ExceededThreshold        int                      `mapstructure:"exceeded_threshold"`
	StormThreshold           int                      `mapstructure:"storm_threshold"`
	SlowResponseSeconds      float64                  `mapstructure:"slow_response_seconds"`
	ThresholdResponseSeconds float64                  `mapstructure:"threshold_response_seconds"`
	KnownIssues              map[string][]string      `mapstructure:"known_issues"`
	MaintenanceWindow        models.MaintenanceWindow `mapstructure:"maintenance_window"`
}

func DefaultConfig() Config {
	return Config{
		FrequencyWindow:          5 * time.Minute,
		ExceededThreshold:        10,
		StormThreshold:           50,
		SlowResponseSeconds:      10,
		ThresholdResponseSeconds: 5,
		KnownIssues: map[string][]string{
			"License Check":    {"tuesday 14:30"},
			"Test Activity":    {"always"},
			"Maintenance Task": {"sunday 22-23"},
		},
		MaintenanceWindow: models.DefaultMaintenanceWindow(),
	}
}

// LogCapacity is how many entries per activity the frequency log must keep
// for both thresholds to be reachable.
func (c Config) LogCapacity() int {
	return max(c.StormThreshold, c.ExceededThreshold) + 1
}

// Assessor computes the per-alert diagnostic signals. The frequency log is
// the only shared state and is passed in so callers own its lifetime.
type Assessor struct {
	cfg     Config
	known   map[string]struct{}
	freq    *FrequencyLog
	history HistoryLookup
	logger  *zap.Logger
	now     func() time.Time
}

// New builds an assessor. history may be nil, in which case no alert has
// historical context.
func New(cfg Config, freq *FrequencyLog, history HistoryLookup, logger *zap.Logger) *Assessor {
	if freq == nil {
		freq = NewFrequencyLog(cfg.FrequencyWindow, cfg.LogCapacity())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	known := make(map[string]struct{}, len(cfg.KnownIssues))
	for activity := range cfg.KnownIssues {
		known[strings.ToLower(activity)] = struct{}{}
	}
	return &Assessor{
		cfg:     cfg,
		known:   known,
		freq:    freq,
		history: history,
		logger:  logger,
		now:     time.Now,
	}
}

func (a *Assessor) Assess(ctx context.Context, alert models.Alert) models.Assessment {
	return models.Assessment{
		IsFalsePositive:      a.checkFalsePositive(alert),
		IsKnownIssue:         a.checkKnownIssue(alert),
		FrequencyCheck:       a.checkFrequency(alert),
		HasHistoricalContext: a.hasHistoricalContext(ctx, alert),
		SeverityScore:        a.severityScore(alert),
		ThresholdExceeded:    a.thresholdExceeded(alert),
	}
}

func (a *Assessor) checkFalsePositive(alert models.Alert) bool {
	if alert.IsSimulated && strings.Contains(strings.ToLower(alert.ErrorMessage), "maintenance") {
		return true
	}
	return a.cfg.MaintenanceWindow.ContainsTimestamp(alert.Timestamp)
}

// checkKnownIssue matches on activity name, ignoring case; the recorded
// schedules are informational.
func (a *Assessor) checkKnownIssue(alert models.Alert) bool {
	_, ok := a.known[strings.ToLower(alert.ActivityName)]
	return ok
}

func (a *Assessor) checkFrequency(alert models.Alert) models.FrequencyCheck {
	at, err := alert.Time()
	if err != nil {
		at = a.now()
	}

	count := a.freq.Record(alert.ActivityName, at)

	return models.FrequencyCheck{
		Count5Min: count,
		Exceeded:  count > a.cfg.ExceededThreshold,
		IsStorm:   count > a.cfg.StormThreshold,
	}
}

func (a *Assessor) hasHistoricalContext(ctx context.Context, alert models.Alert) bool {
	if a.history == nil {
		return false
	}
	ok, err := a.history.HasHistory(ctx, alert.ActivityName)
	if err != nil {
		a.logger.Warn("history lookup failed",
			zap.String("activity", alert.ActivityName),
			zap.Error(err),
		)
		return false
	}
	return ok
}

func (a *Assessor) severityScore(alert models.Alert) float64 {
	score := 5.0

	if alert.Status == models.StatusFailure {
		score += 3
	}

	code := alert.Code()
	switch {
	case code >= 500:
		score += 2
	case code >= 400:
		score++
	}

	if alert.ResponseTime > a.cfg.SlowResponseSeconds {
		score++
	}

	if score > 10 {
		score = 10
	}
	return score
}

func (a *Assessor) thresholdExceeded(alert models.Alert) bool {
	if alert.ResponseTime > a.cfg.ThresholdResponseSeconds {
		return true
	}
	if alert.Code() >= 500 {
		return true
	}
	return alert.Status.Failed()
}
