package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emirozbir/micro-triage/internal/rules"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 720*time.Hour, cfg.Database.Retention)
	assert.Equal(t, "selenium", cfg.Engine.Source)
	assert.Equal(t, 300*time.Second, cfg.Engine.CorrelationWindow)
	assert.Equal(t, 5*time.Minute, cfg.Assessor.FrequencyWindow)
	assert.Equal(t, 50, cfg.Assessor.StormThreshold)
	assert.Equal(t, time.Sunday, cfg.Assessor.MaintenanceWindow.Weekday)
	assert.Equal(t, 22, cfg.Assessor.MaintenanceWindow.StartHour)
	assert.Equal(t, 60, cfg.Scoring.TicketThreshold)
	assert.Contains(t, cfg.Scoring.CriticalServices, "loan-server")
	assert.Equal(t, "https://api.github.com", cfg.Notify.GitHub.APIURL)
	assert.Equal(t, "smtp.gmail.com", cfg.Notify.Email.Host)
	assert.Equal(t, 465, cfg.Notify.Email.Port)
	assert.Equal(t, 24*time.Hour, cfg.Notify.Email.DigestInterval)
	assert.False(t, cfg.Notify.Email.Configured())
}

func TestLoadFileValues(t *testing.T) {
	path := writeConfig(t, `
engine:
  source: synthetic
  correlation_window: 2m
assessor:
  storm_threshold: 20
  known_issues:
    Nightly Export: ["always"]
scoring:
  critical_services: [billing]
  ticket_threshold: 70
rules:
  low_severity_threshold: 4
  storm_deduplication: false
kubernetes:
  enabled: true
  namespace: payments
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "synthetic", cfg.Engine.Source)
	assert.Equal(t, 2*time.Minute, cfg.Engine.CorrelationWindow)
	assert.Equal(t, 20, cfg.Assessor.StormThreshold)
	assert.Contains(t, cfg.Assessor.KnownIssues, "nightly export")
	assert.Contains(t, cfg.Assessor.KnownIssues, "license check")
	assert.Equal(t, []string{"billing"}, cfg.Scoring.CriticalServices)
	assert.True(t, cfg.Kubernetes.Enabled)
	assert.Equal(t, "payments", cfg.Kubernetes.Namespace)

	ec, err := cfg.Pipeline()
	require.NoError(t, err)
	assert.Equal(t, 4.0, ec.Rules.LowSeverityThreshold)
	assert.False(t, ec.Rules.StormDeduplication)
	assert.True(t, ec.Rules.FalsePositiveSuppression)
	assert.Equal(t, 70, ec.Scoring.TicketThreshold)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.test/x")
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("GITHUB_REPO_OWNER", "acme")
	t.Setenv("GITHUB_REPO_NAME", "incidents")
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("EMAIL_USER", "oncall@bank.test")
	t.Setenv("EMAIL_PASSWORD", "app-password")
	t.Setenv("EMAIL_RECIPIENTS", "sre@bank.test,ops@bank.test")

	cfg, err := Load(writeConfig(t, "notify:\n  github:\n    owner: someone-else\n"))
	require.NoError(t, err)

	assert.Equal(t, "https://hooks.slack.test/x", cfg.Notify.Slack.WebhookURL)
	assert.Equal(t, "ghp_test", cfg.Notify.GitHub.Token)
	assert.Equal(t, "acme", cfg.Notify.GitHub.Owner)
	assert.Equal(t, "incidents", cfg.Notify.GitHub.Repo)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "oncall@bank.test", cfg.Notify.Email.Username)
	assert.Equal(t, []string{"sre@bank.test", "ops@bank.test"}, cfg.Notify.Email.To)
	assert.True(t, cfg.Notify.Email.Configured())
}

func TestPipelineBadRulesFallsBack(t *testing.T) {
	cfg, err := Load(writeConfig(t, "rules:\n  low_severity_threshold: lots\n"))
	require.NoError(t, err)

	ec, err := cfg.Pipeline()
	assert.Error(t, err)
	assert.Equal(t, 2.0, ec.Rules.LowSeverityThreshold)
	assert.True(t, ec.Rules.StormDeduplication)
}

func TestPipelineFrequencyThresholdRule(t *testing.T) {
	cfg, err := Load(writeConfig(t, `rules:
  storm_deduplication: false
  frequency_threshold_5min: 20
  escalate_everything: true
`))
	require.NoError(t, err)

	ec, err := cfg.Pipeline()
	require.ErrorIs(t, err, rules.ErrUnknownRule)
	assert.Equal(t, 20, ec.Assessor.ExceededThreshold)
	assert.False(t, ec.Rules.StormDeduplication)
	assert.True(t, ec.Rules.FalsePositiveSuppression)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDefaultMatchesPipelineDefaults(t *testing.T) {
	ec, err := Default().Pipeline()
	require.NoError(t, err)

	assert.Equal(t, "selenium", ec.Source)
	assert.Equal(t, 10, ec.Assessor.ExceededThreshold)
	assert.Equal(t, 2.0, ec.Rules.LowSeverityThreshold)
	assert.Len(t, ec.Scoring.CriticalServices, 3)
}
