package models

import (
	"fmt"
	"time"
)

// RawAlert is a health-check event as produced by a health checker. Field types are
// not trusted; the normalizer coerces and defaults every key.
type RawAlert map[string]any

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusError   Status = "error"
	// StatusUnknown is what the normalizer fills in when a checker omits the
	// status. The boundary validator rejects it.
	StatusUnknown Status = "unknown"
)

func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusError:
		return true
	}
	return false
}

// Failed reports whether the status is failure or error.
func (s Status) Failed() bool {
	return s == StatusFailure || s == StatusError
}

// Alert is the canonical, normalized form of a health-check outcome.
type Alert struct {
	AlertID        string  `json:"alert_id"`
	Timestamp      string  `json:"timestamp"`
	ExecutionID    string  `json:"execution_id"`
	CheckID        int     `json:"check_id"`
	ActivityName   string  `json:"activity_name"`
	URL            string  `json:"url"`
	Status         Status  `json:"status"`
	ResponseCode   *int    `json:"response_code"`
	ResponseTime   float64 `json:"response_time"`
	ErrorMessage   string  `json:"error_message"`
	Source         string  `json:"source"`
	IsSimulated    bool    `json:"is_simulated"`
	PreviousStatus string  `json:"previous_status"`
	Severity       int     `json:"severity"`
	RetryCount     int     `json:"retry_count"`
	// StartsAt is when the upstream system first saw the condition, if it
	// reports one. Timestamp is when this event was observed.
	StartsAt string `json:"starts_at,omitempty"`
}

// Time parses the alert timestamp.
func (a Alert) Time() (time.Time, error) {
	return ParseTimestamp(a.Timestamp)
}

// Code returns the response code, or 0 when the check got no response.
func (a Alert) Code() int {
	if a.ResponseCode == nil {
		return 0
	}
	return *a.ResponseCode
}

// ToRaw turns a normalized alert back into the loosely typed shape checkers send.
func (a Alert) ToRaw() RawAlert {
	raw := RawAlert{
		"alert_id":        a.AlertID,
		"timestamp":       a.Timestamp,
		"execution_id":    a.ExecutionID,
		"check_id":        a.CheckID,
		"activity_name":   a.ActivityName,
		"url":             a.URL,
		"status":          string(a.Status),
		"response_code":   nil,
		"response_time":   a.ResponseTime,
		"error_message":   a.ErrorMessage,
		"source":          a.Source,
		"is_simulated":    a.IsSimulated,
		"previous_status": a.PreviousStatus,
		"severity":        a.Severity,
		"retry_count":     a.RetryCount,
		"starts_at":       a.StartsAt,
	}
	if a.ResponseCode != nil {
		raw["response_code"] = *a.ResponseCode
	}
	return raw
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 and the naive ISO-8601 forms checkers emit.
// Naive timestamps are read in the local zone.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// FormatTimestamp renders t the way the normalizer stores generated timestamps.
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// MaintenanceWindow is a weekly window, [StartHour, EndHour) on Weekday, in
// the event's own zone.
type MaintenanceWindow struct {
	Weekday   time.Weekday `mapstructure:"weekday" json:"weekday"`
	StartHour int          `mapstructure:"start_hour" json:"start_hour"`
	EndHour   int          `mapstructure:"end_hour" json:"end_hour"`
}

func DefaultMaintenanceWindow() MaintenanceWindow {
	return MaintenanceWindow{Weekday: time.Sunday, StartHour: 22, EndHour: 24}
}

func (w MaintenanceWindow) Contains(t time.Time) bool {
	return t.Weekday() == w.Weekday && t.Hour() >= w.StartHour && t.Hour() < w.EndHour
}

// ContainsTimestamp is false for timestamps that cannot be parsed.
func (w MaintenanceWindow) ContainsTimestamp(ts string) bool {
	t, err := ParseTimestamp(ts)
	if err != nil {
		return false
	}
	return w.Contains(t)
}
