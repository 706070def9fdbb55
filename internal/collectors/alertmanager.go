package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emirozbir/micro-triage/internal/config"
	"github.com/emirozbir/micro-triage/internal/models"
)

type AlertManagerCollector struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

func NewAlertManagerCollector(cfg *config.Config) *AlertManagerCollector {
	return &AlertManagerCollector{
		baseURL: strings.TrimRight(cfg.AlertManager.URL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: time.Now,
	}
}

func (a *AlertManagerCollector) Name() string { return "alertmanager" }

func (a *AlertManagerCollector) GetAlerts(ctx context.Context) ([]models.AlertmanagerAlert, error) {
	url := fmt.Sprintf("%s/api/v2/alerts", a.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch alerts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alertmanager returned status %d", resp.StatusCode)
	}

	var alerts []apiAlert
	if err := json.NewDecoder(resp.Body).Decode(&alerts); err != nil {
		return nil, fmt.Errorf("failed to decode alerts: %w", err)
	}

	out := make([]models.AlertmanagerAlert, 0, len(alerts))
	for _, alert := range alerts {
		// silenced or inhibited
		if alert.Status.State == "suppressed" {
			continue
		}
		out = append(out, alert.toModel(a.now()))
	}
	return out, nil
}

// Collect returns every alert Alertmanager currently knows about. Active
// alerts become failures; alerts whose end time has passed become successes.
// Events are stamped with the poll time; the upstream start time is kept in
// starts_at.
func (a *AlertManagerCollector) Collect(ctx context.Context) ([]models.RawAlert, error) {
	alerts, err := a.GetAlerts(ctx)
	if err != nil {
		return nil, err
	}

	executionID := uuid.NewString()
	timestamp := models.FormatTimestamp(a.now())

	raws := make([]models.RawAlert, 0, len(alerts))
	for _, alert := range alerts {
		raw := alert.ToRaw()
		raw["execution_id"] = executionID
		raw["timestamp"] = timestamp
		raws = append(raws, raw)
	}
	return raws, nil
}

// apiAlert is the gettableAlert shape of the v2 API, which has no
// firing/resolved string; resolution is read from endsAt.
type apiAlert struct {
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     time.Time         `json:"startsAt"`
	EndsAt       time.Time         `json:"endsAt"`
	Fingerprint  string            `json:"fingerprint"`
	GeneratorURL string            `json:"generatorURL"`
	Status       struct {
		State string `json:"state"`
	} `json:"status"`
}

func (a apiAlert) toModel(now time.Time) models.AlertmanagerAlert {
	status := "firing"
	if !a.EndsAt.IsZero() && a.EndsAt.Before(now) {
		status = "resolved"
	}
	return models.AlertmanagerAlert{
		Labels:       a.Labels,
		Annotations:  a.Annotations,
		StartsAt:     a.StartsAt,
		EndsAt:       a.EndsAt,
		Status:       status,
		Fingerprint:  a.Fingerprint,
		GeneratorURL: a.GeneratorURL,
	}
}
