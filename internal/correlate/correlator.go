package correlate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emirozbir/micro-triage/internal/models"
)

const DefaultWindow = 300 * time.Second

var cascadeKeywords = []string{"timeout", "connection", "refused"}

// Correlator partitions a batch into groups of alerts likely to share a root
// cause. Grouping is a single greedy left-to-right sweep: each unassigned
// alert seeds a group and absorbs the later unassigned alerts that correlate
// with the seed. The result depends on batch order.
type Correlator struct {
	window time.Duration
	now    func() time.Time
}

func New(window time.Duration) *Correlator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Correlator{window: window, now: time.Now}
}

func (c *Correlator) Correlate(alerts []models.Alert) []models.CorrelationGroup {
	if len(alerts) == 0 {
		return nil
	}

	// parse once; a zero time marks an unparseable timestamp
	times := make([]time.Time, len(alerts))
	for i, a := range alerts {
		if t, err := a.Time(); err == nil {
			times[i] = t
		}
	}

	assigned := make([]bool, len(alerts))
	var groups []models.CorrelationGroup

	for i, seed := range alerts {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		members := []models.Alert{seed}

		for j := i + 1; j < len(alerts); j++ {
			if assigned[j] {
				continue
			}
			if c.correlated(seed, times[i], alerts[j], times[j]) {
				members = append(members, alerts[j])
				assigned[j] = true
			}
		}

		groups = append(groups, models.CorrelationGroup{
			GroupID:   fmt.Sprintf("group_%d", i),
			Alerts:    members,
			Count:     len(members),
			RootCause: InferRootCause(members),
			Timestamp: c.now(),
		})
	}

	return groups
}

// correlated reports whether b, later in the sweep, belongs with a.
func (c *Correlator) correlated(a models.Alert, ta time.Time, b models.Alert, tb time.Time) bool {
	if a.ActivityName == b.ActivityName {
		return true
	}

	if !ta.IsZero() && !tb.IsZero() && a.ErrorMessage == b.ErrorMessage {
		diff := ta.Sub(tb)
		if diff < 0 {
			diff = -diff
		}
		if diff < c.window {
			return true
		}
	}

	// cascade: a network failure upstream followed by connection trouble
	if containsFold(a.ErrorMessage, "network") {
		for _, kw := range cascadeKeywords {
			if containsFold(b.ErrorMessage, kw) {
				return true
			}
		}
	}

	return false
}

// InferRootCause labels a group. The first matching rule wins.
func InferRootCause(group []models.Alert) string {
	switch {
	case anyMessage(group, "timeout"):
		return "Network timeout or high latency"
	case anyMessage(group, "connection"):
		return "Connection/Connectivity issue"
	case anyCode(group, "503"):
		return "Service unavailable"
	case anyCode(group, "500"):
		return "Server error"
	case len(group) > 5:
		return "Multiple service failures - possible cascading issue"
	default:
		return "Unknown cause"
	}
}

func anyMessage(group []models.Alert, keyword string) bool {
	for _, a := range group {
		if containsFold(a.ErrorMessage, keyword) {
			return true
		}
	}
	return false
}

func anyCode(group []models.Alert, code string) bool {
	for _, a := range group {
		if a.ResponseCode != nil && strings.Contains(strconv.Itoa(*a.ResponseCode), code) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}
