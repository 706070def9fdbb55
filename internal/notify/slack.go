package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/emirozbir/micro-triage/internal/config"
	"github.com/emirozbir/micro-triage/internal/models"
)

var slackColors = map[string]string{
	"critical": "#dc143c",
	"high":     "#ff8c00",
	"medium":   "#ffd700",
}

type SlackNotifier struct {
	webhookURL string
	channel    string
	client     *http.Client
	logger     *zap.Logger
}

// NewSlackNotifier posts to an incoming webhook. Without a webhook URL it
// runs in dry-run mode and only logs the message.
func NewSlackNotifier(cfg config.SlackConfig, logger *zap.Logger) *SlackNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.WebhookURL == "" {
		logger.Warn("slack webhook url not set, notifications in dry-run mode")
	}
	return &SlackNotifier{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) DryRun() bool { return s.webhookURL == "" }

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color     string       `json:"color"`
	Title     string       `json:"title"`
	TitleLink string       `json:"title_link,omitempty"`
	Fields    []slackField `json:"fields"`
	Footer    string       `json:"footer"`
	Ts        int64        `json:"ts"`
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

func (s *SlackNotifier) buildMessage(pa models.ProcessedAlert) slackMessage {
	alert := pa.Alert
	priority := Priority(pa.Score)
	emoji := priorityEmoji(priority)
	status := strings.ToUpper(string(alert.Status))

	code := "N/A"
	if alert.ResponseCode != nil {
		code = fmt.Sprint(*alert.ResponseCode)
	}
	kind := "Production Incident"
	if alert.IsSimulated {
		kind = "Test Defect ✓"
	}
	details := alert.ErrorMessage
	if details == "" {
		details = "No error message"
	}

	ts := time.Now()
	if t, err := alert.Time(); err == nil {
		ts = t
	}

	return slackMessage{
		Channel: s.channel,
		Text:    fmt.Sprintf("%s %s Alert: %s", emoji, strings.ToUpper(priority), alert.ActivityName),
		Attachments: []slackAttachment{{
			Color:     slackColors[priority],
			Title:     fmt.Sprintf("%s %s - %s", emoji, alert.ActivityName, status),
			TitleLink: alert.URL,
			Fields: []slackField{
				{Title: "Activity", Value: alert.ActivityName, Short: true},
				{Title: "Status", Value: status, Short: true},
				{Title: "Response Code", Value: code, Short: true},
				{Title: "Response Time", Value: fmt.Sprintf("%.2fs", alert.ResponseTime), Short: true},
				{Title: "Score", Value: fmt.Sprintf("%d/100", pa.Score), Short: true},
				{Title: "Type", Value: kind, Short: true},
				{Title: "Error Details", Value: details},
			},
			Footer: "Alert Engine | Automated Monitoring",
			Ts:     ts.Unix(),
		}},
	}
}

func (s *SlackNotifier) Notify(ctx context.Context, pa models.ProcessedAlert) error {
	msg := s.buildMessage(pa)

	if s.DryRun() {
		s.logger.Info("[dry-run] slack notification",
			zap.String("alert_id", pa.Alert.AlertID),
			zap.String("text", msg.Text),
		)
		return ErrDryRun
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}
