package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/emirozbir/micro-triage/internal/models"
)

// ErrDryRun is returned by notifiers that are not configured to deliver. The
// dispatcher counts it separately from failures.
var ErrDryRun = errors.New("dry run")

// Notifier delivers one ticket-worthy alert to an external system.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, pa models.ProcessedAlert) error
}

type Result struct {
	Alerts int `json:"alerts"`
	Sent   int `json:"sent"`
	DryRun int `json:"dry_run"`
	Failed int `json:"failed"`
	// Skipped counts ticket-worthy alerts that already had an open ticket.
	Skipped int `json:"skipped"`
}

// Dispatcher fans ticket-worthy alerts out to every notifier.
type Dispatcher struct {
	notifiers   []Notifier
	maxParallel int
	logger      *zap.Logger
}

func NewDispatcher(logger *zap.Logger, maxParallel int, notifiers ...Notifier) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Dispatcher{
		notifiers:   notifiers,
		maxParallel: maxParallel,
		logger:      logger,
	}
}

// Dispatch sends every alert flagged for a ticket to every notifier,
// concurrently. Alerts not flagged are ignored. The returned error joins all
// delivery failures.
func (d *Dispatcher) Dispatch(ctx context.Context, alerts []models.ProcessedAlert) (Result, error) {
	tickets := lo.Filter(alerts, func(pa models.ProcessedAlert, _ int) bool {
		return pa.ShouldCreateTicket
	})
	result := Result{Alerts: len(tickets)}
	if len(tickets) == 0 || len(d.notifiers) == 0 {
		return result, nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
		sem  = make(chan struct{}, d.maxParallel)
	)

	for _, pa := range tickets {
		for _, n := range d.notifiers {
			wg.Add(1)
			go func(pa models.ProcessedAlert, n Notifier) {
				defer wg.Done()

				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					mu.Lock()
					result.Failed++
					errs = append(errs, fmt.Errorf("%s: alert %s: %w", n.Name(), pa.Alert.AlertID, ctx.Err()))
					mu.Unlock()
					return
				}

				err := n.Notify(ctx, pa)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					result.Sent++
				case errors.Is(err, ErrDryRun):
					result.DryRun++
				default:
					result.Failed++
					errs = append(errs, fmt.Errorf("%s: alert %s: %w", n.Name(), pa.Alert.AlertID, err))
				}
			}(pa, n)
		}
	}
	wg.Wait()

	d.logger.Info("notifications dispatched",
		zap.Int("alerts", result.Alerts),
		zap.Int("sent", result.Sent),
		zap.Int("dry_run", result.DryRun),
		zap.Int("failed", result.Failed),
	)

	return result, errors.Join(errs...)
}

// Priority buckets a ticket score: critical above 85, high above 70,
// otherwise medium.
func Priority(score int) string {
	switch {
	case score > 85:
		return "critical"
	case score > 70:
		return "high"
	default:
		return "medium"
	}
}

func priorityEmoji(priority string) string {
	switch priority {
	case "critical":
		return "🔴"
	case "high":
		return "🟠"
	default:
		return "🟡"
	}
}

// Labels returns the issue labels for a ticket-worthy alert.
func Labels(pa models.ProcessedAlert) []string {
	labels := []string{"auto-generated", Priority(pa.Score)}

	if pa.Alert.IsSimulated {
		labels = append(labels, "test-defect")
	} else {
		labels = append(labels, "production-incident")
	}

	slug := strings.ReplaceAll(strings.ToLower(pa.Alert.ActivityName), " ", "-")
	labels = append(labels, "activity-"+slug)

	if pa.Alert.Status.Failed() {
		labels = append(labels, string(pa.Alert.Status))
	}
	return labels
}
