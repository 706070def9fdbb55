package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/emirozbir/micro-triage/internal/models"
)

// Config toggles and tunes the ordered rule list. Keys mirror what operators
// put in the rules section of the config file.
type Config struct {
	FalsePositiveSuppression     bool                     `mapstructure:"false_positive_suppression"`
	MaintenanceWindowSuppression bool                     `mapstructure:"maintenance_window_suppression"`
	StormDeduplication           bool                     `mapstructure:"storm_deduplication"`
	LowSeveritySuppression       bool                     `mapstructure:"low_severity_suppression"`
	LowSeverityThreshold         float64                  `mapstructure:"low_severity_threshold"`
	MaintenanceWindow            models.MaintenanceWindow `mapstructure:"maintenance_window"`
	// FrequencyThreshold, when positive, replaces the assessor's exceeded
	// threshold for the 5-minute count.
	FrequencyThreshold int `mapstructure:"frequency_threshold_5min"`
}

// ErrUnknownRule reports rule keys that were ignored. The rest of the map is
// still applied.
var ErrUnknownRule = errors.New("unknown rule keys ignored")

func DefaultConfig() Config {
	return Config{
		FalsePositiveSuppression:     true,
		MaintenanceWindowSuppression: true,
		StormDeduplication:           true,
		LowSeveritySuppression:       true,
		LowSeverityThreshold:         2,
		MaintenanceWindow:            models.DefaultMaintenanceWindow(),
	}
}

// FromMap overlays an operator rule map on the defaults. Keys that are absent
// keep their default. Unknown keys are dropped and reported with
// ErrUnknownRule alongside the decoded config. On a decoding error the
// defaults are returned together with the error so the caller can log it and
// carry on.
func FromMap(m map[string]any) (Config, error) {
	cfg := DefaultConfig()
	if len(m) == 0 {
		return cfg, nil
	}

	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           &cfg,
	})
	if err != nil {
		return DefaultConfig(), err
	}
	if err := decoder.Decode(m); err != nil {
		return DefaultConfig(), fmt.Errorf("invalid rule configuration: %w", err)
	}

	if len(md.Unused) > 0 {
		sort.Strings(md.Unused)
		return cfg, fmt.Errorf("%w: %s", ErrUnknownRule, strings.Join(md.Unused, ", "))
	}
	return cfg, nil
}

type rule struct {
	name    string
	enabled func(Config) bool
	match   func(cfg Config, alert models.Alert, assessment models.Assessment) bool
	verdict models.RuleVerdict
}

// ordered; the first match decides
var ruleList = []rule{
	{
		name:    "false_positive_suppression",
		enabled: func(c Config) bool { return c.FalsePositiveSuppression },
		match: func(_ Config, _ models.Alert, as models.Assessment) bool {
			return as.IsFalsePositive
		},
		verdict: models.RuleVerdict{Action: models.ActionSuppress, Reason: "Known false positive"},
	},
	{
		// checked against the raw timestamp, independent of the assessment
		name:    "maintenance_window_suppression",
		enabled: func(c Config) bool { return c.MaintenanceWindowSuppression },
		match: func(c Config, a models.Alert, _ models.Assessment) bool {
			return c.MaintenanceWindow.ContainsTimestamp(a.Timestamp)
		},
		verdict: models.RuleVerdict{Action: models.ActionSuppress, Reason: "Maintenance window"},
	},
	{
		name:    "storm_deduplication",
		enabled: func(c Config) bool { return c.StormDeduplication },
		match: func(_ Config, _ models.Alert, as models.Assessment) bool {
			return as.FrequencyCheck.IsStorm
		},
		verdict: models.RuleVerdict{Action: models.ActionDeduplicate, Reason: "Alert storm detected"},
	},
	{
		name:    "low_severity_suppression",
		enabled: func(c Config) bool { return c.LowSeveritySuppression },
		match: func(c Config, a models.Alert, as models.Assessment) bool {
			return as.SeverityScore < c.LowSeverityThreshold && !a.IsSimulated
		},
		verdict: models.RuleVerdict{Action: models.ActionSuppress, Reason: "Low severity"},
	},
}

var escalate = models.RuleVerdict{
	Action:             models.ActionEscalate,
	Reason:             "Actionable alert",
	ShouldCreateTicket: true,
}

type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Apply returns the verdict of the first matching enabled rule, or an
// escalation when none match.
func (e *Engine) Apply(alert models.Alert, assessment models.Assessment) models.RuleVerdict {
	for _, r := range ruleList {
		if !r.enabled(e.cfg) {
			continue
		}
		if r.match(e.cfg, alert, assessment) {
			return r.verdict
		}
	}
	return escalate
}
