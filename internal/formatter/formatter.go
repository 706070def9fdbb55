package formatter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/emirozbir/micro-triage/internal/models"
	"github.com/emirozbir/micro-triage/internal/notify"
	"github.com/emirozbir/micro-triage/internal/scoring"
)

const (
	divider      = "═══════════════════════════════════════════════════════════════════════════════"
	sectionBreak = "───────────────────────────────────────────────────────────────────────────────"
)

type Formatter struct {
	p palette
}

func NewFormatter(useColors bool) *Formatter {
	return &Formatter{
		p: palette{enabled: useColors},
	}
}

func (f *Formatter) FormatBatchResult(result *models.BatchResult) string {
	var sb strings.Builder

	// Header
	sb.WriteString("\n")
	sb.WriteString(f.p.colorize(Cyan, divider))
	sb.WriteString("\n")
	sb.WriteString(f.p.title("  🚨 ALERT TRIAGE REPORT"))
	sb.WriteString("\n")
	sb.WriteString(f.p.colorize(Cyan, divider))
	sb.WriteString("\n\n")

	f.writeSummary(&sb, result)

	if len(result.CorrelatedGroups) > 0 {
		f.writeGroups(&sb, result.CorrelatedGroups)
	}

	if len(result.Actionable) > 0 {
		f.writeActionable(&sb, result.Actionable)
	}

	f.writeFiltered(&sb, "🔇 SUPPRESSED", result.Suppressed)
	f.writeFiltered(&sb, "🔁 DEDUPLICATED", result.Deduplicated)

	f.writeStatistics(&sb, result.Statistics)

	// Footer
	sb.WriteString(f.p.colorize(Cyan, divider))
	sb.WriteString("\n")

	return sb.String()
}

func (f *Formatter) header(sb *strings.Builder, text string) {
	sb.WriteString(f.p.section(text))
	sb.WriteString("\n")
	sb.WriteString(f.p.colorize(Gray, sectionBreak))
	sb.WriteString("\n")
}

func (f *Formatter) writeSummary(sb *strings.Builder, result *models.BatchResult) {
	s := result.Summary
	f.header(sb, "📋 SUMMARY")

	sb.WriteString(fmt.Sprintf("  Processed At:   %s\n", f.p.muted(result.Timestamp.Format(time.RFC3339))))
	sb.WriteString(fmt.Sprintf("  Total Alerts:   %s\n", f.p.bold(White, fmt.Sprint(s.TotalAlerts))))
	sb.WriteString(fmt.Sprintf("  Actionable:     %s\n", f.p.bold(Red, fmt.Sprint(s.Actionable))))
	sb.WriteString(fmt.Sprintf("  Suppressed:     %s\n", f.p.info(fmt.Sprint(s.Suppressed))))
	sb.WriteString(fmt.Sprintf("  Deduplicated:   %s\n", f.p.info(fmt.Sprint(s.Deduplicated))))
	sb.WriteString(fmt.Sprintf("  Tickets:        %s\n", f.p.bold(Yellow, fmt.Sprint(s.TicketsToCreate))))
	if s.TotalAlerts > 0 {
		noise := float64(s.Suppressed+s.Deduplicated) / float64(s.TotalAlerts) * 100
		sb.WriteString(fmt.Sprintf("  Noise Reduced:  %s\n", f.p.colorize(Green, fmt.Sprintf("%.1f%%", noise))))
	}
	sb.WriteString("\n")
}

func (f *Formatter) writeGroups(sb *strings.Builder, groups []models.CorrelationGroup) {
	f.header(sb, "🔗 CORRELATED GROUPS")

	for _, g := range groups {
		activities := lo.Uniq(lo.Map(g.Alerts, func(a models.Alert, _ int) string {
			return a.ActivityName
		}))

		sb.WriteString(fmt.Sprintf("  %s %s %s\n",
			f.p.colorize(Magenta, g.GroupID),
			f.p.muted("│"),
			f.p.bold(White, fmt.Sprintf("%d alerts", g.Count)),
		))
		sb.WriteString(fmt.Sprintf("  %s %s Root cause: %s\n",
			strings.Repeat(" ", len(g.GroupID)),
			f.p.muted("└─"),
			f.p.bold(Yellow, g.RootCause),
		))
		sb.WriteString(fmt.Sprintf("  %s    %s\n",
			strings.Repeat(" ", len(g.GroupID)),
			f.p.muted(strings.Join(activities, ", ")),
		))
	}
	sb.WriteString("\n")
}

func (f *Formatter) writeActionable(sb *strings.Builder, alerts []models.ProcessedAlert) {
	f.header(sb, "🎯 ACTIONABLE ALERTS")

	sorted := append([]models.ProcessedAlert(nil), alerts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	for i, pa := range sorted {
		ticket := ""
		if pa.ShouldCreateTicket {
			ticket = " " + f.p.bold(Red, "🎫 ticket")
		}
		sb.WriteString(fmt.Sprintf("  %s. %s %s %s%s\n",
			f.p.colorize(Yellow, fmt.Sprintf("%d", i+1)),
			f.p.priorityBadge(scoring.Priority(pa.Score)),
			f.p.bold(White, fmt.Sprintf("%3d", pa.Score)),
			f.p.bold(White, pa.Alert.ActivityName),
			ticket,
		))
		sb.WriteString(fmt.Sprintf("     %s %s\n",
			f.p.statusBadge(pa.Alert.Status),
			f.p.muted(pa.Alert.AlertID),
		))
		if pa.Alert.ErrorMessage != "" {
			sb.WriteString(fmt.Sprintf("     %s\n", f.p.colorize(Red, pa.Alert.ErrorMessage)))
		}
		if pa.Alert.URL != "" {
			sb.WriteString(fmt.Sprintf("     %s\n", f.p.muted(pa.Alert.URL)))
		}
	}
	sb.WriteString("\n")
}

// writeFiltered lists how many alerts were filtered out for each reason.
func (f *Formatter) writeFiltered(sb *strings.Builder, title string, alerts []models.ProcessedAlert) {
	if len(alerts) == 0 {
		return
	}
	f.header(sb, title)

	byReason := lo.GroupBy(alerts, func(pa models.ProcessedAlert) string {
		return pa.RuleVerdict.Reason
	})
	reasons := lo.Keys(byReason)
	sort.Strings(reasons)

	for _, reason := range reasons {
		sb.WriteString(fmt.Sprintf("  %s %-28s %s\n",
			f.p.actionBadge(byReason[reason][0].RuleVerdict.Action),
			reason,
			f.p.info(fmt.Sprint(len(byReason[reason]))),
		))
	}
	sb.WriteString("\n")
}

func (f *Formatter) writeStatistics(sb *strings.Builder, stats models.Statistics) {
	f.header(sb, "📊 SCORE STATISTICS")

	if stats.TotalProcessed == 0 {
		sb.WriteString(f.p.muted("  No alerts processed"))
		sb.WriteString("\n\n")
		return
	}

	sb.WriteString(fmt.Sprintf("  Processed:   %s\n", f.p.info(fmt.Sprint(stats.TotalProcessed))))
	sb.WriteString(fmt.Sprintf("  Average:     %s\n", f.p.info(fmt.Sprintf("%.1f", stats.AvgScore))))
	sb.WriteString(fmt.Sprintf("  Range:       %s\n", f.p.info(fmt.Sprintf("%d - %d", stats.MinScore, stats.MaxScore))))
	sb.WriteString(fmt.Sprintf("  Priority:    %s %d  %s %d  %s %d\n",
		f.p.priorityBadge("high"), stats.HighPriority,
		f.p.priorityBadge("medium"), stats.MediumPriority,
		f.p.priorityBadge("low"), stats.LowPriority,
	))
	sb.WriteString("\n")
}

func (f *Formatter) FormatNotifications(result notify.Result) string {
	var sb strings.Builder
	f.header(&sb, "📨 NOTIFICATIONS")

	sb.WriteString(fmt.Sprintf("  Alerts:   %s\n", f.p.info(fmt.Sprint(result.Alerts))))
	sb.WriteString(fmt.Sprintf("  Sent:     %s\n", f.p.colorize(Green, fmt.Sprint(result.Sent))))
	sb.WriteString(fmt.Sprintf("  Dry-run:  %s\n", f.p.muted(fmt.Sprint(result.DryRun))))
	if result.Skipped > 0 {
		sb.WriteString(fmt.Sprintf("  Skipped:  %s\n", f.p.muted(fmt.Sprint(result.Skipped))))
	}
	if result.Failed > 0 {
		sb.WriteString(fmt.Sprintf("  Failed:   %s\n", f.p.colorize(Red, fmt.Sprint(result.Failed))))
	}
	sb.WriteString("\n")

	return sb.String()
}
