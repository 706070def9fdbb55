package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/emirozbir/micro-triage/internal/agent"
	"github.com/emirozbir/micro-triage/internal/database"
	"github.com/emirozbir/micro-triage/internal/models"
	"github.com/emirozbir/micro-triage/internal/normalize"
	"github.com/emirozbir/micro-triage/internal/notify"
)

// Archive is the read side of the alert archive. *database.DB satisfies it.
type Archive interface {
	AlertsSince(ctx context.Context, d time.Duration, limit int) ([]models.StoredAlert, error)
	Statistics(ctx context.Context, d time.Duration) (models.AlertStatistics, error)
	OpenTickets(ctx context.Context) ([]models.Ticket, error)
	Ticket(ctx context.Context, idOrIssue string) (models.Ticket, error)
	UpdateTicketStatus(ctx context.Context, idOrIssue string, status models.TicketStatus) error
}

type Handler struct {
	agent   *agent.Agent
	logger  *zap.Logger
	archive Archive
}

// NewHandler builds the HTTP handlers. archive may be nil, in which case the
// archive endpoints answer 503.
func NewHandler(agent *agent.Agent, logger *zap.Logger, archive Archive) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		agent:   agent,
		logger:  logger,
		archive: archive,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"time":    time.Now(),
		"archive": h.archive != nil,
	})
}

// ProcessAlerts runs a JSON array of raw health-check events through the pipeline.
func (h *Handler) ProcessAlerts(c *gin.Context) {
	var raws []models.RawAlert
	if err := c.ShouldBindJSON(&raws); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}
	if err := normalize.ValidateAll(raws); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.process(c, raws)
}

// ReceiveAlertManagerWebhook handles incoming AlertManager webhook payloads
func (h *Handler) ReceiveAlertManagerWebhook(c *gin.Context) {
	var webhook models.AlertManagerWebhook
	if err := c.ShouldBindJSON(&webhook); err != nil {
		h.logger.Error("failed to bind webhook payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook payload: " + err.Error()})
		return
	}

	h.logger.Info("received alertmanager webhook",
		zap.String("receiver", webhook.Receiver),
		zap.String("status", webhook.Status),
		zap.Int("alert_count", len(webhook.Alerts)))

	h.process(c, webhook.RawAlerts())
}

func (h *Handler) process(c *gin.Context, raws []models.RawAlert) {
	// Create context with timeout for batch processing (5 minutes)
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Minute)
	defer cancel()

	report, err := h.agent.ProcessBatch(ctx, raws, nil)
	if report == nil {
		h.logger.Error("batch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Warn("batch completed with errors", zap.Error(err))
	}

	c.JSON(http.StatusOK, report)
}

func (h *Handler) ListAlerts(c *gin.Context) {
	if !h.requireArchive(c) {
		return
	}
	since, ok := sinceParam(c, time.Hour)
	if !ok {
		return
	}
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	alerts, err := h.archive.AlertsSince(c.Request.Context(), since, limit)
	if err != nil {
		h.logger.Error("failed to list alerts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
		"since":  since.String(),
	})
}

func (h *Handler) AlertStatistics(c *gin.Context) {
	if !h.requireArchive(c) {
		return
	}
	since, ok := sinceParam(c, 24*time.Hour)
	if !ok {
		return
	}

	stats, err := h.archive.Statistics(c.Request.Context(), since)
	if err != nil {
		h.logger.Error("failed to compute alert statistics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) EngineStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, h.agent.Statistics())
}

func (h *Handler) ResetEngine(c *gin.Context) {
	h.agent.Reset()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (h *Handler) OpenTickets(c *gin.Context) {
	if !h.requireArchive(c) {
		return
	}

	tickets, err := h.archive.OpenTickets(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list tickets", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tickets": tickets,
		"count":   len(tickets),
	})
}

// SendDigest mails the archive digest right away.
func (h *Handler) SendDigest(c *gin.Context) {
	err := h.agent.SendDigest(c.Request.Context())
	switch {
	case errors.Is(err, agent.ErrNoDigest):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, notify.ErrDryRun):
		c.JSON(http.StatusOK, gin.H{"sent": false, "dry_run": true})
	case err != nil:
		h.logger.Error("failed to send digest", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"sent": true, "dry_run": false})
	}
}

type UpdateTicketRequest struct {
	Status models.TicketStatus `json:"status" binding:"required"`

	// Resolution is posted on the closed issue.
	Resolution string `json:"resolution"`
}

func (h *Handler) UpdateTicket(c *gin.Context) {
	if !h.requireArchive(c) {
		return
	}

	var req UpdateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Status {
	case models.TicketOpen, models.TicketInProgress, models.TicketResolved:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ticket status: " + string(req.Status)})
		return
	}

	id := c.Param("id")
	ctx := c.Request.Context()
	if req.Status == models.TicketResolved {
		ticket, err := h.archive.Ticket(ctx, id)
		switch {
		case errors.Is(err, database.ErrTicketNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		case err != nil:
			h.logger.Error("failed to load ticket", zap.String("ticket", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resolution := req.Resolution
		if resolution == "" {
			resolution = "Resolved via triage API"
		}
		if err := h.agent.CloseTicket(ctx, ticket, resolution); err != nil {
			h.logger.Error("failed to close ticket", zap.String("ticket", id), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
	}

	err := h.archive.UpdateTicketStatus(ctx, id, req.Status)
	switch {
	case errors.Is(err, database.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("failed to update ticket", zap.String("ticket", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "status": req.Status})
}

func (h *Handler) requireArchive(c *gin.Context) bool {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alert archive is disabled"})
		return false
	}
	return true
}

func sinceParam(c *gin.Context, def time.Duration) (time.Duration, bool) {
	raw := c.Query("since")
	if raw == "" {
		return def, true
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since duration"})
		return 0, false
	}
	return d, true
}
