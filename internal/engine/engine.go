package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/emirozbir/micro-triage/internal/assess"
	"github.com/emirozbir/micro-triage/internal/correlate"
	"github.com/emirozbir/micro-triage/internal/models"
	"github.com/emirozbir/micro-triage/internal/normalize"
	"github.com/emirozbir/micro-triage/internal/rules"
	"github.com/emirozbir/micro-triage/internal/scoring"
)

type Config struct {
	// Source tags alerts whose raw event carries no source of its own.
	Source            string
	CorrelationWindow time.Duration
	Assessor          assess.Config
	Rules             rules.Config
	Scoring           scoring.Config
}

func DefaultConfig() Config {
	return Config{
		Source:            "selenium",
		CorrelationWindow: correlate.DefaultWindow,
		Assessor:          assess.DefaultConfig(),
		Rules:             rules.DefaultConfig(),
		Scoring:           scoring.DefaultConfig(),
	}
}

// Engine runs raw alert batches through normalization, assessment,
// correlation, rules and scoring. Process is safe to call from several
// goroutines; the frequency log and statistics are the only shared state.
type Engine struct {
	source     string
	normalizer *normalize.Normalizer
	assessor   *assess.Assessor
	freq       *assess.FrequencyLog
	correlator *correlate.Correlator
	rules      *rules.Engine
	scorer     *scoring.Scorer
	stats      *statsAccumulator
	logger     *zap.Logger
	now        func() time.Time
}

// New wires an engine. history may be nil.
func New(cfg Config, history assess.HistoryLookup, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	freq := assess.NewFrequencyLog(cfg.Assessor.FrequencyWindow, cfg.Assessor.LogCapacity())

	return &Engine{
		source:     cfg.Source,
		normalizer: normalize.NewNormalizer(),
		assessor:   assess.New(cfg.Assessor, freq, history, logger),
		freq:       freq,
		correlator: correlate.New(cfg.CorrelationWindow),
		rules:      rules.NewEngine(cfg.Rules),
		scorer:     scoring.NewScorer(cfg.Scoring),
		stats:      newStatsAccumulator(),
		logger:     logger,
		now:        time.Now,
	}
}

// Process turns a batch of raw events into a categorized result. It never
// fails: malformed events are defaulted by the normalizer.
func (e *Engine) Process(ctx context.Context, raws []models.RawAlert) *models.BatchResult {
	normalized := e.normalizer.NormalizeAll(raws, e.source)

	assessments := make([]models.Assessment, len(normalized))
	for i, alert := range normalized {
		assessments[i] = e.assessor.Assess(ctx, alert)
	}

	// correlation needs the whole batch
	groups := e.correlator.Correlate(normalized)

	result := &models.BatchResult{
		Actionable:       []models.ProcessedAlert{},
		Suppressed:       []models.ProcessedAlert{},
		Deduplicated:     []models.ProcessedAlert{},
		CorrelatedGroups: groups,
		Timestamp:        e.now(),
	}
	if result.CorrelatedGroups == nil {
		result.CorrelatedGroups = []models.CorrelationGroup{}
	}

	scores := make([]int, 0, len(normalized))
	for i, alert := range normalized {
		pa := e.evaluate(alert, assessments[i])
		scores = append(scores, pa.Score)

		switch pa.RuleVerdict.Action {
		case models.ActionSuppress:
			result.Suppressed = append(result.Suppressed, pa)
		case models.ActionDeduplicate:
			result.Deduplicated = append(result.Deduplicated, pa)
		default:
			result.Actionable = append(result.Actionable, pa)
		}

		e.logger.Debug("alert processed",
			zap.String("alert_id", alert.AlertID),
			zap.String("activity", alert.ActivityName),
			zap.String("action", string(pa.RuleVerdict.Action)),
			zap.String("reason", pa.RuleVerdict.Reason),
			zap.Int("score", pa.Score),
			zap.Bool("ticket", pa.ShouldCreateTicket),
		)
	}
	e.stats.add(scores...)

	result.Summary = models.Summary{
		TotalAlerts:     len(normalized),
		Actionable:      len(result.Actionable),
		Suppressed:      len(result.Suppressed),
		Deduplicated:    len(result.Deduplicated),
		TicketsToCreate: len(result.Tickets()),
	}
	result.Statistics = e.stats.snapshot()

	e.logger.Info("batch processed",
		zap.Int("total", result.Summary.TotalAlerts),
		zap.Int("actionable", result.Summary.Actionable),
		zap.Int("suppressed", result.Summary.Suppressed),
		zap.Int("deduplicated", result.Summary.Deduplicated),
		zap.Int("tickets", result.Summary.TicketsToCreate),
		zap.Int("groups", len(result.CorrelatedGroups)),
	)

	return result
}

func (e *Engine) evaluate(alert models.Alert, assessment models.Assessment) models.ProcessedAlert {
	verdict := e.rules.Apply(alert, assessment)
	score := e.scorer.Score(alert, assessment)

	return models.ProcessedAlert{
		Alert:              alert,
		Assessment:         assessment,
		RuleVerdict:        verdict,
		Score:              score,
		ShouldCreateTicket: verdict.ShouldCreateTicket && e.scorer.PassesTicketGate(score),
	}
}

// Statistics returns score statistics over every batch since start or the
// last Reset.
func (e *Engine) Statistics() models.Statistics {
	return e.stats.snapshot()
}

// Reset clears the running statistics and the frequency log.
func (e *Engine) Reset() {
	e.stats.reset()
	e.freq.Reset()
}
