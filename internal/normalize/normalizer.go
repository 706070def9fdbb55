package normalize

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/emirozbir/micro-triage/internal/models"
)

const (
	defaultActivity = "Unknown"
	defaultSeverity = 5
)

// Normalizer maps raw health-check events onto models.Alert. It never fails: absent
// or malformed fields fall back to defaults.
type Normalizer struct {
	now   func() time.Time
	newID func() string
}

func NewNormalizer() *Normalizer {
	return &Normalizer{
		now:   time.Now,
		newID: func() string { return "alert_" + uuid.NewString() },
	}
}

// Normalize builds a complete alert from raw. A source recorded in the raw
// event wins over the source tag, so normalized alerts round-trip unchanged.
func (n *Normalizer) Normalize(raw models.RawAlert, source string) models.Alert {
	alert := models.Alert{
		AlertID:        stringOr(raw, "alert_id", ""),
		Timestamp:      stringOr(raw, "timestamp", ""),
		ExecutionID:    stringOr(raw, "execution_id", ""),
		CheckID:        intOr(raw, "check_id", 0),
		ActivityName:   stringOr(raw, "activity_name", defaultActivity),
		URL:            stringOr(raw, "url", ""),
		Status:         models.Status(strings.ToLower(stringOr(raw, "status", string(models.StatusUnknown)))),
		ResponseCode:   optionalInt(raw, "response_code"),
		ResponseTime:   floatOr(raw, "response_time", 0),
		ErrorMessage:   stringOr(raw, "error_message", ""),
		Source:         stringOr(raw, "source", source),
		IsSimulated:    boolOr(raw, "is_simulated", false),
		PreviousStatus: stringOr(raw, "previous_status", string(models.StatusUnknown)),
		Severity:       intOr(raw, "severity", defaultSeverity),
		RetryCount:     intOr(raw, "retry_count", 0),
		StartsAt:       stringOr(raw, "starts_at", ""),
	}

	if alert.AlertID == "" {
		alert.AlertID = n.newID()
	}
	if alert.Timestamp == "" {
		alert.Timestamp = models.FormatTimestamp(n.now())
	}
	if alert.Source == "" {
		alert.Source = "unknown"
	}
	if alert.ResponseTime < 0 {
		alert.ResponseTime = 0
	}
	if alert.Severity < 1 || alert.Severity > 10 {
		alert.Severity = defaultSeverity
	}
	if alert.RetryCount < 0 {
		alert.RetryCount = 0
	}

	return alert
}

// NormalizeAll normalizes a batch, preserving order.
func (n *Normalizer) NormalizeAll(raws []models.RawAlert, source string) []models.Alert {
	alerts := make([]models.Alert, 0, len(raws))
	for _, raw := range raws {
		alerts = append(alerts, n.Normalize(raw, source))
	}
	return alerts
}

func stringOr(raw models.RawAlert, key, def string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return def
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return def
	}
	return s
}

func intOr(raw models.RawAlert, key string, def int) int {
	v, ok := raw[key]
	if !ok || v == nil {
		return def
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		// fractional strings such as "503.5"
		f, ferr := cast.ToFloat64E(v)
		if ferr != nil {
			return def
		}
		return int(f)
	}
	return i
}

func optionalInt(raw models.RawAlert, key string) *int {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil
	}
	if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
		return nil
	}
	i := intOr(raw, key, -1)
	if i < 0 {
		return nil
	}
	return &i
}

func floatOr(raw models.RawAlert, key string, def float64) float64 {
	v, ok := raw[key]
	if !ok || v == nil {
		return def
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return def
	}
	return f
}

func boolOr(raw models.RawAlert, key string, def bool) bool {
	v, ok := raw[key]
	if !ok || v == nil {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}
