package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/emirozbir/micro-triage/internal/config"
	"github.com/emirozbir/micro-triage/internal/models"
)

// TicketRecorder persists filed tickets and their status changes.
type TicketRecorder interface {
	SaveTicket(ctx context.Context, ticket *models.Ticket) error
	UpdateTicketStatus(ctx context.Context, idOrIssue string, status models.TicketStatus) error
}

// TicketCloser closes the external issue behind a ticket.
type TicketCloser interface {
	CloseIssue(ctx context.Context, number, resolution string) error
}

var issueBody = template.Must(template.New("issue").Funcs(template.FuncMap{
	"yesno": func(b bool) string {
		if b {
			return "✓ Yes"
		}
		return "✗ No"
	},
}).Parse(`## {{.Emoji}} Alert Details

### Activity Information
- **Activity Name:** {{.Alert.ActivityName}}
- **Check ID:** {{.Alert.CheckID}}
- **Timestamp:** {{.Alert.Timestamp}}
- **Execution ID:** {{or .Alert.ExecutionID "N/A"}}

### Status & Response
- **Status:** ` + "`{{.Alert.Status}}`" + `
- **Response Code:** {{.Code}}
- **Response Time:** {{printf "%.2f" .Alert.ResponseTime}}s
- **URL:** {{.Alert.URL}}

### Severity & Scoring
- **Actionability Score:** {{.Score}}/100
- **Severity Score:** {{printf "%.1f" .Assessment.SeverityScore}}/10
- **Previous Status:** {{.Alert.PreviousStatus}}

### Analysis
- **Is False Positive:** {{yesno .Assessment.IsFalsePositive}}
- **Is Threshold Exceeded:** {{yesno .Assessment.ThresholdExceeded}}
- **Has Historical Context:** {{yesno .Assessment.HasHistoricalContext}}

### Alert Details
` + "```" + `
{{or .Alert.ErrorMessage "No error message"}}
` + "```" + `

### Frequency Analysis
- **Alerts in 5 min:** {{.Assessment.FrequencyCheck.Count5Min}}
- **Is Storm:** {{yesno .Assessment.FrequencyCheck.IsStorm}}
- **Frequency Exceeded:** {{yesno .Assessment.FrequencyCheck.Exceeded}}

### Test Information
- **Is Simulated Defect:** {{yesno .Alert.IsSimulated}}
- **Retry Count:** {{.Alert.RetryCount}}

---
*Auto-generated by Alert Engine*
`))

// GitHubTicketer files a GitHub issue per ticket-worthy alert. Without a
// token it runs in dry-run mode: tickets are recorded with a dry-run issue
// number derived from the ticket id and nothing is posted.
type GitHubTicketer struct {
	apiURL   string
	owner    string
	repo     string
	client   *http.Client
	dryRun   bool
	recorder TicketRecorder
	logger   *zap.Logger
}

func NewGitHubTicketer(cfg config.GitHubConfig, recorder TicketRecorder, logger *zap.Logger) *GitHubTicketer {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}

	client := &http.Client{Timeout: timeout}
	dryRun := cfg.Token == "" || cfg.Owner == "" || cfg.Repo == ""
	if dryRun {
		logger.Warn("github token or repository not set, tickets in dry-run mode")
	} else {
		client = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
		client.Timeout = timeout
	}

	return &GitHubTicketer{
		apiURL:   apiURL,
		owner:    cfg.Owner,
		repo:     cfg.Repo,
		client:   client,
		dryRun:   dryRun,
		recorder: recorder,
		logger:   logger,
	}
}

func (g *GitHubTicketer) Name() string { return "github" }

func (g *GitHubTicketer) DryRun() bool { return g.dryRun }

// Title renders "<emoji> <PRIORITY> | <activity> - <STATUS>".
func Title(pa models.ProcessedAlert) string {
	priority := Priority(pa.Score)
	return fmt.Sprintf("%s %s | %s - %s",
		priorityEmoji(priority),
		strings.ToUpper(priority),
		pa.Alert.ActivityName,
		strings.ToUpper(string(pa.Alert.Status)),
	)
}

// Body renders the issue description.
func Body(pa models.ProcessedAlert) (string, error) {
	code := "N/A"
	if pa.Alert.ResponseCode != nil {
		code = fmt.Sprint(*pa.Alert.ResponseCode)
	}
	emoji := "🟡"
	switch {
	case pa.Score > 80:
		emoji = "🔴"
	case pa.Score > 70:
		emoji = "🟠"
	}

	var buf bytes.Buffer
	err := issueBody.Execute(&buf, struct {
		models.ProcessedAlert
		Emoji string
		Code  string
	}{pa, emoji, code})
	if err != nil {
		return "", fmt.Errorf("failed to render issue body: %w", err)
	}
	return buf.String(), nil
}

func (g *GitHubTicketer) Notify(ctx context.Context, pa models.ProcessedAlert) error {
	body, err := Body(pa)
	if err != nil {
		return err
	}

	ticket := &models.Ticket{
		ID:           uuid.NewString(),
		AlertID:      pa.Alert.AlertID,
		ActivityName: pa.Alert.ActivityName,
		Title:        Title(pa),
		Labels:       Labels(pa),
		Score:        pa.Score,
		IsSimulated:  pa.Alert.IsSimulated,
		DryRun:       g.dryRun,
		Status:       models.TicketOpen,
	}

	if g.dryRun {
		// unique across processes
		ticket.IssueNumber = "dry-run-" + ticket.ID

		g.logger.Info("[dry-run] github issue",
			zap.String("title", ticket.Title),
			zap.Strings("labels", ticket.Labels),
		)
	} else {
		number, err := g.postIssue(ctx, ticket.Title, body, ticket.Labels)
		if err != nil {
			return err
		}
		ticket.IssueNumber = number
		g.logger.Info("github issue created",
			zap.String("issue", number),
			zap.String("alert_id", pa.Alert.AlertID),
		)
	}

	if g.recorder != nil {
		if err := g.recorder.SaveTicket(ctx, ticket); err != nil {
			return fmt.Errorf("failed to record ticket %s: %w", ticket.IssueNumber, err)
		}
	}

	if g.dryRun {
		return ErrDryRun
	}
	return nil
}

func (g *GitHubTicketer) postIssue(ctx context.Context, title, body string, labels []string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"title":  title,
		"body":   body,
		"labels": labels,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal issue: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/issues", g.apiURL, g.owner, g.repo)
	resp, err := g.do(ctx, http.MethodPost, url, payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("github returned status %d", resp.StatusCode)
	}

	var issue struct {
		Number int `json:"number"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&issue); err != nil {
		return "", fmt.Errorf("failed to decode issue: %w", err)
	}
	return fmt.Sprint(issue.Number), nil
}

// CloseIssue closes the issue and marks the recorded ticket resolved.
func (g *GitHubTicketer) CloseIssue(ctx context.Context, number, resolution string) error {
	if !g.dryRun {
		payload, err := json.Marshal(map[string]string{
			"state": "closed",
			"body":  resolution + "\n\nAuto-resolved by Alert Engine",
		})
		if err != nil {
			return fmt.Errorf("failed to marshal issue update: %w", err)
		}

		url := fmt.Sprintf("%s/repos/%s/%s/issues/%s", g.apiURL, g.owner, g.repo, number)
		resp, err := g.do(ctx, http.MethodPatch, url, payload)
		if err != nil {
			return err
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("github returned status %d", resp.StatusCode)
		}
	} else {
		g.logger.Info("[dry-run] close github issue", zap.String("issue", number))
	}

	if g.recorder != nil {
		if err := g.recorder.UpdateTicketStatus(ctx, number, models.TicketResolved); err != nil {
			return fmt.Errorf("failed to resolve ticket %s: %w", number, err)
		}
	}
	return nil
}

func (g *GitHubTicketer) do(ctx context.Context, method, url string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call github: %w", err)
	}
	return resp, nil
}
