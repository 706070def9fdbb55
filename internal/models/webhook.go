package models

import (
	"strings"
	"time"
)

// AlertManagerWebhook represents the standard AlertManager webhook payload
type AlertManagerWebhook struct {
	Version           string              `json:"version"`
	GroupKey          string              `json:"groupKey"`
	TruncatedAlerts   int                 `json:"truncatedAlerts"`
	Status            string              `json:"status"` // "firing" or "resolved"
	Receiver          string              `json:"receiver"`
	GroupLabels       map[string]string   `json:"groupLabels"`
	CommonLabels      map[string]string   `json:"commonLabels"`
	CommonAnnotations map[string]string   `json:"commonAnnotations"`
	ExternalURL       string              `json:"externalURL"`
	Alerts            []AlertmanagerAlert `json:"alerts"`
}

type AlertmanagerAlert struct {
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     time.Time         `json:"startsAt"`
	EndsAt       time.Time         `json:"endsAt"`
	Status       string            `json:"status"`
	Fingerprint  string            `json:"fingerprint"`
	GeneratorURL string            `json:"generatorURL"`
}

func (a AlertmanagerAlert) GetAlertName() string {
	if name, ok := a.Labels["alertname"]; ok {
		return name
	}
	return "unknown"
}

func (a AlertmanagerAlert) GetSeverity() string {
	if sev, ok := a.Labels["severity"]; ok {
		return sev
	}
	return "unknown"
}

// severityHints maps Alertmanager severity labels onto the 1-10 input scale.
var severityHints = map[string]int{
	"critical": 9,
	"error":    7,
	"warning":  6,
	"info":     3,
	"none":     1,
}

// ToRaw converts an Alertmanager alert into a raw health-check event. Firing alerts
// become failures, resolved ones successes.
func (a AlertmanagerAlert) ToRaw() RawAlert {
	status := StatusFailure
	if a.Status == "resolved" {
		status = StatusSuccess
	}

	message := a.Annotations["summary"]
	if desc := a.Annotations["description"]; desc != "" {
		if message != "" {
			message += ": "
		}
		message += desc
	}

	raw := RawAlert{
		"activity_name": a.GetAlertName(),
		"url":           a.GeneratorURL,
		"status":        string(status),
		"error_message": message,
		"source":        "alertmanager",
	}
	if a.Fingerprint != "" {
		raw["alert_id"] = a.Fingerprint
	}
	// the event time is when it is observed; the normalizer stamps it
	if !a.StartsAt.IsZero() {
		raw["starts_at"] = FormatTimestamp(a.StartsAt)
	}
	if sev, ok := severityHints[strings.ToLower(a.GetSeverity())]; ok {
		raw["severity"] = sev
	}
	return raw
}

// RawAlerts converts every alert in the payload.
func (w AlertManagerWebhook) RawAlerts() []RawAlert {
	raws := make([]RawAlert, 0, len(w.Alerts))
	for _, a := range w.Alerts {
		raws = append(raws, a.ToRaw())
	}
	return raws
}
