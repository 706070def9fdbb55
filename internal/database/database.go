package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/emirozbir/micro-triage/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS alerts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	stored_at DATETIME NOT NULL,
	alert_id TEXT NOT NULL,
	activity_name TEXT NOT NULL,
	status TEXT NOT NULL,
	score INTEGER NOT NULL,
	action TEXT NOT NULL,
	should_create_ticket BOOLEAN NOT NULL,
	is_simulated BOOLEAN NOT NULL,
	alert_json TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_stored_at ON alerts(stored_at DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_activity ON alerts(activity_name);

CREATE TABLE IF NOT EXISTS tickets (
	id TEXT PRIMARY KEY,
	issue_number TEXT NOT NULL,
	alert_id TEXT NOT NULL,
	activity_name TEXT NOT NULL,
	title TEXT NOT NULL,
	labels_json TEXT NOT NULL,
	score INTEGER NOT NULL,
	is_simulated BOOLEAN NOT NULL,
	dry_run BOOLEAN NOT NULL,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
CREATE INDEX IF NOT EXISTS idx_tickets_issue ON tickets(issue_number);
`

// highScore is the archive's notion of a high-scoring alert.
const highScore = 70

// ErrTicketNotFound is returned when a status update matches no ticket.
var ErrTicketNotFound = errors.New("ticket not found")

// DB archives processed alerts and filed tickets in SQLite. Times are stored
// in UTC.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{conn: conn, now: time.Now}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) utcNow() time.Time {
	return db.now().UTC()
}

// SaveProcessed archives every alert of a batch in one transaction.
func (db *DB) SaveProcessed(ctx context.Context, processed []models.ProcessedAlert) error {
	if len(processed) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO alerts (
			stored_at, alert_id, activity_name, status, score, action,
			should_create_ticket, is_simulated, alert_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	storedAt := db.utcNow()
	for _, pa := range processed {
		alertJSON, err := json.Marshal(pa.Alert)
		if err != nil {
			return fmt.Errorf("failed to marshal alert %s: %w", pa.Alert.AlertID, err)
		}

		_, err = stmt.ExecContext(ctx,
			storedAt,
			pa.Alert.AlertID,
			pa.Alert.ActivityName,
			string(pa.Alert.Status),
			pa.Score,
			string(pa.RuleVerdict.Action),
			pa.ShouldCreateTicket,
			pa.Alert.IsSimulated,
			string(alertJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to insert alert %s: %w", pa.Alert.AlertID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alerts: %w", err)
	}
	return nil
}

// AlertsSince returns alerts archived within the last d, newest first.
func (db *DB) AlertsSince(ctx context.Context, d time.Duration, limit int) ([]models.StoredAlert, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT stored_at, score, action, should_create_ticket, alert_json
		FROM alerts
		WHERE stored_at > ?
		ORDER BY stored_at DESC, id DESC
		LIMIT ?
	`, db.utcNow().Add(-d), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.StoredAlert{}
	for rows.Next() {
		var stored models.StoredAlert
		var action, alertJSON string

		if err := rows.Scan(&stored.StoredAt, &stored.Score, &action, &stored.ShouldCreateTicket, &alertJSON); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(alertJSON), &stored.Alert); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert: %w", err)
		}
		stored.Action = models.Action(action)
		alerts = append(alerts, stored)
	}

	return alerts, rows.Err()
}

// Statistics aggregates alerts archived within the last d.
func (db *DB) Statistics(ctx context.Context, d time.Duration) (models.AlertStatistics, error) {
	stats := models.AlertStatistics{
		ByStatus: map[string]int{
			string(models.StatusSuccess): 0,
			string(models.StatusFailure): 0,
			string(models.StatusError):   0,
		},
		ByActivity: map[string]int{},
		ByAction: map[string]int{
			string(models.ActionEscalate):    0,
			string(models.ActionSuppress):    0,
			string(models.ActionDeduplicate): 0,
		},
		Activities: []models.ActivityHealth{},
	}
	cutoff := db.utcNow().Add(-d)

	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN score > ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN is_simulated THEN 1 ELSE 0 END), 0)
		FROM alerts
		WHERE stored_at > ?
	`, highScore, cutoff).Scan(&stats.Total, &stats.HighScore, &stats.SimulatedCount)
	if err != nil {
		return stats, fmt.Errorf("failed to count alerts: %w", err)
	}

	if err := db.groupCount(ctx, "status", cutoff, stats.ByStatus); err != nil {
		return stats, err
	}
	if err := db.groupCount(ctx, "activity_name", cutoff, stats.ByActivity); err != nil {
		return stats, err
	}
	if err := db.groupCount(ctx, "action", cutoff, stats.ByAction); err != nil {
		return stats, err
	}

	activities, err := db.activityHealth(ctx, cutoff)
	if err != nil {
		return stats, err
	}
	stats.Activities = activities

	return stats, nil
}

func (db *DB) activityHealth(ctx context.Context, cutoff time.Time) ([]models.ActivityHealth, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT activity_name, COUNT(*),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM alerts
		WHERE stored_at > ?
		GROUP BY activity_name
		ORDER BY activity_name
	`, string(models.StatusSuccess), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity health: %w", err)
	}
	defer rows.Close()

	activities := []models.ActivityHealth{}
	for rows.Next() {
		var a models.ActivityHealth
		if err := rows.Scan(&a.Name, &a.Checks, &a.Successes); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if a.Checks > 0 {
			a.SuccessRate = math.Round(float64(a.Successes)/float64(a.Checks)*1000) / 10
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// groupCount fills into with per-value counts of column. column is never
// user input.
func (db *DB) groupCount(ctx context.Context, column string, cutoff time.Time, into map[string]int) error {
	query := fmt.Sprintf(`
		SELECT %[1]s, COUNT(*)
		FROM alerts
		WHERE stored_at > ?
		GROUP BY %[1]s
	`, column)

	rows, err := db.conn.QueryContext(ctx, query, cutoff)
	if err != nil {
		return fmt.Errorf("failed to group alerts by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		into[key] = count
	}
	return rows.Err()
}

// HasHistory reports whether any alert for the activity has been archived.
func (db *DB) HasHistory(ctx context.Context, activity string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM alerts WHERE activity_name = ?)", activity,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query history: %w", err)
	}
	return exists, nil
}

// SaveTicket records a filed ticket. A missing ID or status is filled in.
func (db *DB) SaveTicket(ctx context.Context, ticket *models.Ticket) error {
	now := db.utcNow()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.Status == "" {
		ticket.Status = models.TicketOpen
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now

	labels, err := json.Marshal(ticket.Labels)
	if err != nil {
		return fmt.Errorf("failed to marshal labels: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO tickets (
			id, issue_number, alert_id, activity_name, title, labels_json,
			score, is_simulated, dry_run, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ticket.ID,
		ticket.IssueNumber,
		ticket.AlertID,
		ticket.ActivityName,
		ticket.Title,
		string(labels),
		ticket.Score,
		ticket.IsSimulated,
		ticket.DryRun,
		string(ticket.Status),
		ticket.CreatedAt.UTC(),
		ticket.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ticket: %w", err)
	}
	return nil
}

// OpenTickets returns tickets that are open or in progress, oldest first.
func (db *DB) OpenTickets(ctx context.Context) ([]models.Ticket, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, issue_number, alert_id, activity_name, title, labels_json,
		       score, is_simulated, dry_run, status, created_at, updated_at
		FROM tickets
		WHERE status IN (?, ?)
		ORDER BY created_at ASC, rowid ASC
	`, string(models.TicketOpen), string(models.TicketInProgress))
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets: %w", err)
	}
	defer rows.Close()

	tickets := []models.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}

	return tickets, rows.Err()
}

// Ticket returns the ticket matching either its id or its issue number.
func (db *DB) Ticket(ctx context.Context, idOrIssue string) (models.Ticket, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, issue_number, alert_id, activity_name, title, labels_json,
		       score, is_simulated, dry_run, status, created_at, updated_at
		FROM tickets
		WHERE id = ? OR issue_number = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, idOrIssue, idOrIssue)

	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Ticket{}, fmt.Errorf("%w: %s", ErrTicketNotFound, idOrIssue)
	}
	return t, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(s scanner) (models.Ticket, error) {
	var t models.Ticket
	var labels, status string

	err := s.Scan(
		&t.ID,
		&t.IssueNumber,
		&t.AlertID,
		&t.ActivityName,
		&t.Title,
		&labels,
		&t.Score,
		&t.IsSimulated,
		&t.DryRun,
		&status,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return t, err
	}
	if err != nil {
		return t, fmt.Errorf("failed to scan row: %w", err)
	}
	if err := json.Unmarshal([]byte(labels), &t.Labels); err != nil {
		return t, fmt.Errorf("failed to unmarshal labels: %w", err)
	}
	t.Status = models.TicketStatus(status)
	return t, nil
}

// UpdateTicketStatus sets the status of the ticket matching either its id or
// its issue number.
func (db *DB) UpdateTicketStatus(ctx context.Context, idOrIssue string, status models.TicketStatus) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE tickets SET status = ?, updated_at = ?
		WHERE id = ? OR issue_number = ?
	`, string(status), db.utcNow(), idOrIssue, idOrIssue)
	if err != nil {
		return fmt.Errorf("failed to update ticket: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update ticket: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTicketNotFound, idOrIssue)
	}
	return nil
}

// Cleanup removes alerts archived more than olderThan ago and returns how
// many were removed.
func (db *DB) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM alerts WHERE stored_at < ?", db.utcNow().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old alerts: %w", err)
	}
	return res.RowsAffected()
}
