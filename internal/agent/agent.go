package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/emirozbir/micro-triage/internal/assess"
	"github.com/emirozbir/micro-triage/internal/collectors"
	"github.com/emirozbir/micro-triage/internal/config"
	"github.com/emirozbir/micro-triage/internal/engine"
	"github.com/emirozbir/micro-triage/internal/metrics"
	"github.com/emirozbir/micro-triage/internal/models"
	"github.com/emirozbir/micro-triage/internal/notify"
	"github.com/emirozbir/micro-triage/internal/rules"
	"github.com/emirozbir/micro-triage/internal/ui"
)

// Store is the archive the agent writes batches to. *database.DB satisfies it.
type Store interface {
	assess.HistoryLookup
	notify.TicketRecorder
	SaveProcessed(ctx context.Context, processed []models.ProcessedAlert) error
	OpenTickets(ctx context.Context) ([]models.Ticket, error)
	Statistics(ctx context.Context, d time.Duration) (models.AlertStatistics, error)
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

type Agent struct {
	engine     *engine.Engine
	sources    []collectors.Source
	dispatcher *notify.Dispatcher
	closer     notify.TicketCloser
	digest     notify.DigestSender
	metrics    *metrics.Recorder
	store      Store
	config     *config.Config
	logger     *zap.Logger
}

type Option func(*options)

type options struct {
	sources   []collectors.Source
	notifiers []notify.Notifier
	custom    struct{ sources, notifiers bool }
}

// WithSources replaces the collectors built from the configuration.
func WithSources(sources ...collectors.Source) Option {
	return func(o *options) {
		o.sources = sources
		o.custom.sources = true
	}
}

// WithNotifiers replaces the notifiers built from the configuration.
func WithNotifiers(notifiers ...notify.Notifier) Option {
	return func(o *options) {
		o.notifiers = notifiers
		o.custom.notifiers = true
	}
}

// NewAgent wires the engine and its collaborators. store may be nil, in which
// case nothing is archived and no alert has historical context.
func NewAgent(cfg *config.Config, logger *zap.Logger, store Store, opts ...Option) (*Agent, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	engineCfg, err := cfg.Pipeline()
	switch {
	case errors.Is(err, rules.ErrUnknownRule):
		logger.Warn("ignoring unknown rule keys", zap.Error(err))
	case err != nil:
		logger.Warn("invalid rule configuration, using default rules", zap.Error(err))
	}

	var history assess.HistoryLookup
	var recorder notify.TicketRecorder
	if store != nil {
		history = store
		recorder = store
	}

	if !o.custom.sources {
		o.sources, err = sourcesFromConfig(cfg)
		if err != nil {
			return nil, err
		}
	}
	if !o.custom.notifiers {
		o.notifiers = []notify.Notifier{
			notify.NewSlackNotifier(cfg.Notify.Slack, logger.Named("slack")),
			notify.NewGitHubTicketer(cfg.Notify.GitHub, recorder, logger.Named("github")),
			notify.NewEmailNotifier(cfg.Notify.Email, logger.Named("email")),
		}
	}

	a := &Agent{
		engine:     engine.New(engineCfg, history, logger.Named("engine")),
		sources:    o.sources,
		dispatcher: notify.NewDispatcher(logger.Named("notify"), cfg.Agent.MaxParallelNotifications, o.notifiers...),
		metrics:    metrics.NewRecorder(),
		store:      store,
		config:     cfg,
		logger:     logger,
	}
	for _, n := range o.notifiers {
		if closer, ok := n.(notify.TicketCloser); ok && a.closer == nil {
			a.closer = closer
		}
		if digest, ok := n.(notify.DigestSender); ok && a.digest == nil {
			a.digest = digest
		}
	}
	return a, nil
}

func sourcesFromConfig(cfg *config.Config) ([]collectors.Source, error) {
	var sources []collectors.Source
	if cfg.AlertManager.URL != "" {
		sources = append(sources, collectors.NewAlertManagerCollector(cfg))
	}
	if cfg.Kubernetes.Enabled {
		k8sCollector, err := collectors.NewKubernetesCollector(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create k8s collector: %w", err)
		}
		sources = append(sources, k8sCollector)
	}
	return sources, nil
}

// Report is the outcome of one batch.
type Report struct {
	*models.BatchResult
	Notifications *notify.Result `json:"notifications,omitempty"`
}

// ProcessBatch runs raw events through the engine, archives the result,
// records metrics and, when enabled, dispatches notifications. The report is
// returned even when archiving or notification fails; the error joins those
// failures.
func (a *Agent) ProcessBatch(ctx context.Context, raws []models.RawAlert, progress ui.ProgressReporter) (*Report, error) {
	if progress == nil {
		progress = &NoOpProgressReporter{}
	}

	progress.Update(fmt.Sprintf("Processing %d alerts...", len(raws)))
	result := a.engine.Process(ctx, raws)
	a.metrics.ObserveBatch(result)

	report := &Report{BatchResult: result}
	var errs []error

	if a.store != nil {
		progress.Update("Archiving results...")
		if err := a.store.SaveProcessed(ctx, result.All()); err != nil {
			a.logger.Error("failed to archive batch", zap.Error(err))
			errs = append(errs, fmt.Errorf("archive: %w", err))
		}
	}

	if a.config.Notify.Enabled {
		progress.Update(fmt.Sprintf("Dispatching %d tickets...", result.Summary.TicketsToCreate))
		pending, skipped := a.withoutOpenTickets(ctx, result.Actionable)
		sent, err := a.dispatcher.Dispatch(ctx, pending)
		sent.Skipped = skipped
		a.metrics.ObserveNotifications(sent.Sent, sent.DryRun, sent.Failed)
		report.Notifications = &sent
		if err != nil {
			a.logger.Error("notification failures", zap.Error(err))
			errs = append(errs, fmt.Errorf("notify: %w", err))
		}
	}

	return report, errors.Join(errs...)
}

// withoutOpenTickets drops ticket-worthy alerts whose alert id already has
// an open ticket, and returns how many were dropped. Without an archive, or
// when it cannot be read, every alert is kept.
func (a *Agent) withoutOpenTickets(ctx context.Context, alerts []models.ProcessedAlert) ([]models.ProcessedAlert, int) {
	if a.store == nil {
		return alerts, 0
	}
	tickets, err := a.store.OpenTickets(ctx)
	if err != nil {
		a.logger.Warn("failed to read open tickets, notifying every alert", zap.Error(err))
		return alerts, 0
	}
	if len(tickets) == 0 {
		return alerts, 0
	}

	open := lo.Associate(tickets, func(t models.Ticket) (string, struct{}) {
		return t.AlertID, struct{}{}
	})
	pending := lo.Filter(alerts, func(pa models.ProcessedAlert, _ int) bool {
		_, ticketed := open[pa.Alert.AlertID]
		return !pa.ShouldCreateTicket || !ticketed
	})
	skipped := len(alerts) - len(pending)
	if skipped > 0 {
		a.logger.Info("skipping alerts with open tickets", zap.Int("count", skipped))
	}
	return pending, skipped
}

// Collect pulls raw events from every configured source in parallel. Events
// from healthy sources are returned even when others fail.
func (a *Agent) Collect(ctx context.Context) ([]models.RawAlert, error) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		raws []models.RawAlert
		errs []error
	)

	for _, source := range a.sources {
		wg.Add(1)
		go func(source collectors.Source) {
			defer wg.Done()
			collected, err := source.Collect(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", source.Name(), err))
				return
			}
			a.logger.Debug("collected events",
				zap.String("source", source.Name()),
				zap.Int("count", len(collected)),
			)
			raws = append(raws, collected...)
		}(source)
	}

	wg.Wait()

	if len(errs) > 0 {
		a.logger.Error("failed to collect from some sources", zap.Errors("errors", errs))
	}
	return raws, errors.Join(errs...)
}

// HasSources reports whether any collector is configured.
func (a *Agent) HasSources() bool {
	return len(a.sources) > 0
}

// ErrNoDigest is returned by SendDigest when no archive or mail notifier is
// configured.
var ErrNoDigest = errors.New("digest needs an archive and an email notifier")

// SendDigest mails the archive statistics of the last digest interval, or
// of the last day when no interval is configured.
func (a *Agent) SendDigest(ctx context.Context) error {
	if a.store == nil || a.digest == nil {
		return ErrNoDigest
	}
	period := a.config.Notify.Email.DigestInterval
	if period <= 0 {
		period = 24 * time.Hour
	}

	stats, err := a.store.Statistics(ctx, period)
	if err != nil {
		return fmt.Errorf("failed to load statistics: %w", err)
	}
	if err := a.digest.SendDigest(ctx, stats, time.Now()); err != nil {
		return err
	}
	a.logger.Info("digest sent", zap.Int("alerts", stats.Total))
	return nil
}

// Run collects and processes a batch every interval until ctx is done. It
// also applies archive retention once a day and mails the digest every
// digest interval.
func (a *Agent) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	poll := time.NewTicker(interval)
	defer poll.Stop()
	retention := time.NewTicker(24 * time.Hour)
	defer retention.Stop()

	var digest <-chan time.Time
	if every := a.config.Notify.Email.DigestInterval; every > 0 && a.store != nil && a.digest != nil {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		digest = ticker.C
	}

	a.logger.Info("polling collectors", zap.Duration("interval", interval), zap.Int("sources", len(a.sources)))
	a.cleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-retention.C:
			a.cleanup(ctx)
		case <-digest:
			if err := a.SendDigest(ctx); err != nil && !errors.Is(err, notify.ErrDryRun) {
				a.logger.Error("failed to send digest", zap.Error(err))
			}
		case <-poll.C:
			raws, _ := a.Collect(ctx)
			if len(raws) == 0 {
				continue
			}
			if _, err := a.ProcessBatch(ctx, raws, nil); err != nil {
				a.logger.Warn("batch completed with errors", zap.Error(err))
			}
		}
	}
}

func (a *Agent) cleanup(ctx context.Context) {
	if a.store == nil || a.config.Database.Retention <= 0 {
		return
	}
	removed, err := a.store.Cleanup(ctx, a.config.Database.Retention)
	if err != nil {
		a.logger.Error("failed to apply retention", zap.Error(err))
		return
	}
	a.logger.Info("applied retention", zap.Int64("removed", removed))
}

// CloseTicket closes the external issue filed for ticket. Dry-run tickets
// and agents without a ticketer have nothing to close.
func (a *Agent) CloseTicket(ctx context.Context, ticket models.Ticket, resolution string) error {
	if a.closer == nil || ticket.DryRun || ticket.IssueNumber == "" {
		return nil
	}
	if err := a.closer.CloseIssue(ctx, ticket.IssueNumber, resolution); err != nil {
		return fmt.Errorf("failed to close issue %s: %w", ticket.IssueNumber, err)
	}
	a.logger.Info("closed ticket", zap.String("ticket", ticket.ID), zap.String("issue", ticket.IssueNumber))
	return nil
}

// Statistics returns the engine's running score statistics.
func (a *Agent) Statistics() models.Statistics {
	return a.engine.Statistics()
}

// Reset clears the engine's running statistics and frequency log.
func (a *Agent) Reset() {
	a.engine.Reset()
	a.logger.Info("engine state reset")
}

func (a *Agent) MetricsHandler() http.Handler {
	return a.metrics.Handler()
}
