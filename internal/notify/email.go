package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/emirozbir/micro-triage/internal/config"
	"github.com/emirozbir/micro-triage/internal/models"
)

var alertMail = template.Must(template.New("alert").Parse(`<html>
<body style="font-family: Arial, sans-serif; background-color: #f4f4f4;">
  <div style="max-width: 600px; margin: 0 auto; background-color: white; padding: 20px; border-radius: 8px;">
    <h2 style="color: {{.Color}};">🚨 Alert Notification</h2>
    <div style="background-color: #f9f9f9; padding: 15px; border-left: 4px solid {{.Color}}; margin: 20px 0;">
      <h3>{{.Alert.ActivityName}}</h3>
      <p><strong>Status:</strong> <span style="color: {{.Color}};">{{.Status}}</span></p>
      <p><strong>Score:</strong> {{.Score}}/100</p>
      <p><strong>Response Code:</strong> {{.Code}}</p>
      <p><strong>Response Time:</strong> {{printf "%.2f" .Alert.ResponseTime}}s</p>
      <p><strong>URL:</strong> <a href="{{.Alert.URL}}">{{.Alert.URL}}</a></p>
      <p><strong>Timestamp:</strong> {{.Alert.Timestamp}}</p>
    </div>
    <div style="background-color: #fff3cd; padding: 15px; border-radius: 4px; margin: 20px 0;">
      <h4>Error Details:</h4>
      <p><code>{{or .Alert.ErrorMessage "No error message"}}</code></p>
    </div>
    <p style="color: #666; font-size: 12px; margin-top: 30px;">This is an automated alert from the Alert Engine.</p>
  </div>
</body>
</html>
`))

var digestMail = template.Must(template.New("digest").Parse(`<html>
<body style="font-family: Arial, sans-serif; background-color: #f4f4f4;">
  <div style="max-width: 800px; margin: 0 auto; background-color: white; padding: 20px; border-radius: 8px;">
    <h1 style="color: #333; border-bottom: 3px solid {{.Color}}; padding-bottom: 10px;">📊 Daily Health Check Report</h1>
    <div style="padding: 15px; border-left: 4px solid {{.Color}}; margin: 20px 0;">
      <h2 style="color: {{.Color}}; margin: 0;">{{.Headline}}</h2>
      <p style="margin: 5px 0;">Date: {{.Date}}</p>
    </div>
    <table style="width: 100%; margin: 20px 0;">
      <tr>
        <td><strong>Total Alerts</strong><br>{{.Stats.Total}}</td>
        <td><strong>Actionable</strong><br>{{.Actionable}}</td>
        <td><strong>Suppressed</strong><br>{{.Suppressed}}</td>
        <td><strong>Deduplicated</strong><br>{{.Deduplicated}}</td>
      </tr>
    </table>
    <h3 style="margin-top: 30px; color: #333;">Activity Status</h3>
    <table style="width: 100%; border-collapse: collapse; margin-top: 15px;">
      <thead>
        <tr style="background-color: #f0f0f0;">
          <th style="padding: 10px; text-align: left;">Activity</th>
          <th style="padding: 10px; text-align: center;">Checks</th>
          <th style="padding: 10px; text-align: center;">Success Rate</th>
        </tr>
      </thead>
      <tbody>
{{- range .Stats.Activities}}
        <tr>
          <td style="padding: 10px; border-bottom: 1px solid #ddd;">{{.Name}}</td>
          <td style="padding: 10px; border-bottom: 1px solid #ddd; text-align: center;">{{.Checks}}</td>
          <td style="padding: 10px; border-bottom: 1px solid #ddd; text-align: center;">{{printf "%.1f" .SuccessRate}}%</td>
        </tr>
{{- end}}
      </tbody>
    </table>
    <p style="color: #1976d2;"><strong>Test Defects:</strong> {{.Stats.SimulatedCount}} simulated failures were injected for system testing.</p>
    <p style="color: #666; font-size: 12px; margin-top: 30px;">This is an automated report from the Alert Engine.</p>
  </div>
</body>
</html>
`))

// DigestSender mails a summary of the archive.
type DigestSender interface {
	SendDigest(ctx context.Context, stats models.AlertStatistics, at time.Time) error
}

// EmailNotifier mails ticket-worthy alerts and the daily digest over SMTP.
// Without credentials or recipients it runs in dry-run mode and only logs.
type EmailNotifier struct {
	cfg    config.EmailConfig
	send   func(ctx context.Context, msgs ...*mail.Msg) error
	logger *zap.Logger
}

func NewEmailNotifier(cfg config.EmailConfig, logger *zap.Logger) *EmailNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if !cfg.Configured() {
		logger.Warn("email credentials or recipients not set, emails in dry-run mode")
	}

	e := &EmailNotifier{cfg: cfg, logger: logger}
	e.send = e.dialAndSend
	return e
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) DryRun() bool { return !e.cfg.Configured() }

// AlertSubject renders "🚨 Alert: <activity> - <STATUS>".
func AlertSubject(pa models.ProcessedAlert) string {
	return fmt.Sprintf("🚨 Alert: %s - %s", pa.Alert.ActivityName, strings.ToUpper(string(pa.Alert.Status)))
}

// AlertHTML renders the body of an alert mail.
func AlertHTML(pa models.ProcessedAlert) (string, error) {
	code := "N/A"
	if pa.Alert.ResponseCode != nil {
		code = fmt.Sprint(*pa.Alert.ResponseCode)
	}
	color := "#ff8c00"
	if pa.Alert.Status == models.StatusFailure {
		color = "#dc143c"
	}

	var buf bytes.Buffer
	err := alertMail.Execute(&buf, struct {
		models.ProcessedAlert
		Color  string
		Code   string
		Status string
	}{pa, color, code, strings.ToUpper(string(pa.Alert.Status))})
	if err != nil {
		return "", fmt.Errorf("failed to render alert mail: %w", err)
	}
	return buf.String(), nil
}

// DigestSubject renders "📊 Daily Health Check Report - <date>".
func DigestSubject(at time.Time) string {
	return "📊 Daily Health Check Report - " + at.Format("2006-01-02")
}

// DigestHTML renders the digest of the archive statistics.
func DigestHTML(stats models.AlertStatistics, at time.Time) (string, error) {
	actionable := stats.ByAction[string(models.ActionEscalate)]
	color, headline := "#36a64f", "✅ All Clear"
	switch {
	case actionable > 5:
		color, headline = "#dc143c", "⚠️ Multiple Issues"
	case actionable > 0:
		color, headline = "#ff8c00", "⚠️ Issues Found"
	}

	var buf bytes.Buffer
	err := digestMail.Execute(&buf, map[string]any{
		"Stats":        stats,
		"Color":        color,
		"Headline":     headline,
		"Date":         at.Format("2006-01-02 15:04:05"),
		"Actionable":   actionable,
		"Suppressed":   stats.ByAction[string(models.ActionSuppress)],
		"Deduplicated": stats.ByAction[string(models.ActionDeduplicate)],
	})
	if err != nil {
		return "", fmt.Errorf("failed to render digest: %w", err)
	}
	return buf.String(), nil
}

func (e *EmailNotifier) Notify(ctx context.Context, pa models.ProcessedAlert) error {
	body, err := AlertHTML(pa)
	if err != nil {
		return err
	}
	return e.deliver(ctx, AlertSubject(pa), body)
}

// SendDigest mails the statistics of the archive to every recipient.
func (e *EmailNotifier) SendDigest(ctx context.Context, stats models.AlertStatistics, at time.Time) error {
	body, err := DigestHTML(stats, at)
	if err != nil {
		return err
	}
	return e.deliver(ctx, DigestSubject(at), body)
}

func (e *EmailNotifier) deliver(ctx context.Context, subject, body string) error {
	if e.DryRun() {
		e.logger.Info("[dry-run] email",
			zap.Strings("to", e.cfg.To),
			zap.String("subject", subject),
		)
		return ErrDryRun
	}

	msgs := make([]*mail.Msg, 0, len(e.cfg.To))
	for _, to := range e.cfg.To {
		msg := mail.NewMsg()
		if err := msg.From(e.cfg.From); err != nil {
			return fmt.Errorf("invalid sender %q: %w", e.cfg.From, err)
		}
		if err := msg.To(to); err != nil {
			return fmt.Errorf("invalid recipient %q: %w", to, err)
		}
		msg.Subject(subject)
		msg.SetBodyString(mail.TypeTextHTML, body)
		msgs = append(msgs, msg)
	}

	if err := e.send(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	e.logger.Info("email sent", zap.Int("recipients", len(msgs)), zap.String("subject", subject))
	return nil
}

func (e *EmailNotifier) dialAndSend(ctx context.Context, msgs ...*mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(e.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(e.cfg.Username),
		mail.WithPassword(e.cfg.Password),
		mail.WithTimeout(e.cfg.Timeout),
	}
	if e.cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	client, err := mail.NewClient(e.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msgs...)
}
