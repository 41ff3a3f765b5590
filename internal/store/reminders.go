package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/ResellerBot/internal/models"
)

const reminderColumns = `id, tenant_id, client_id, template_id, message, edited_message, scheduled_date, scheduled_time,
	reminder_type, send_mode, status, sent_at, error_message, created_at, updated_at`

func scanReminder(row rowScanner) (models.Reminder, error) {
	var r models.Reminder
	var templateID, edited, errMsg sql.NullString
	var sendMode, status string
	var sentAt sql.NullTime
	err := row.Scan(&r.ID, &r.TenantID, &r.ClientID, &templateID, &r.Message, &edited, &r.ScheduledDate, &r.ScheduledTime,
		&r.ReminderType, &sendMode, &status, &sentAt, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	r.TemplateID = templateID.String
	r.EditedMessage = edited.String
	r.ErrorMessage = errMsg.String
	r.SendMode = models.SendMode(sendMode)
	r.Status = models.ReminderStatus(status)
	if sentAt.Valid {
		t := sentAt.Time
		r.SentAt = &t
	}
	return r, nil
}

// CreateReminder persists a new reminder in scheduled status.
func (s *sqlStore) CreateReminder(ctx context.Context, r *models.Reminder) error {
	if r.Status == "" {
		r.Status = models.ReminderStatusScheduled
	}
	if err := r.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if r.ID == "" {
		r.ID = newID()
	}
	r.CreatedAt, r.UpdatedAt = now, now

	var sentAt interface{}
	if r.SentAt != nil {
		sentAt = *r.SentAt
	}
	_, err := s.exec(ctx, `INSERT INTO billing_reminders (`+reminderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TenantID, r.ClientID, nilIfEmpty(r.TemplateID), r.Message, nilIfEmpty(r.EditedMessage),
		r.ScheduledDate, r.ScheduledTime, r.ReminderType, string(r.SendMode), string(r.Status),
		sentAt, nilIfEmpty(r.ErrorMessage), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		slog.Error("Store CreateReminder failed", "backend", s.backend, "error", err, "tenantID", r.TenantID, "clientID", r.ClientID)
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	slog.Debug("Store CreateReminder succeeded", "backend", s.backend, "id", r.ID, "date", r.ScheduledDate, "time", r.ScheduledTime, "mode", r.SendMode)
	return nil
}

// GetReminder returns the reminder or nil.
func (s *sqlStore) GetReminder(ctx context.Context, id string) (*models.Reminder, error) {
	r, err := scanReminder(s.queryRow(ctx, `SELECT `+reminderColumns+` FROM billing_reminders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("Store GetReminder failed", "backend", s.backend, "error", err, "id", id)
		return nil, fmt.Errorf("failed to get reminder %s: %w", id, err)
	}
	return &r, nil
}

// ListDueReminders returns scheduled reminders for q.Date whose time is at or
// before q.Time, limited to q.Modes.
func (s *sqlStore) ListDueReminders(ctx context.Context, q DueQuery) ([]models.Reminder, error) {
	if len(q.Modes) == 0 {
		return nil, nil
	}
	query := `SELECT ` + reminderColumns + ` FROM billing_reminders
		WHERE status = ? AND scheduled_date = ? AND substr(scheduled_time, 1, 5) <= ?
		AND send_mode IN (` + placeholders(len(q.Modes)) + `)`
	args := []interface{}{string(models.ReminderStatusScheduled), q.Date, q.Time}
	for _, m := range q.Modes {
		args = append(args, string(m))
	}
	if q.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, q.TenantID)
	}
	query += ` ORDER BY scheduled_time, created_at`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		slog.Error("Store ListDueReminders query failed", "backend", s.backend, "error", err, "date", q.Date, "time", q.Time)
		return nil, fmt.Errorf("failed to query due reminders: %w", err)
	}
	defer rows.Close()

	var reminders []models.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder row: %w", err)
		}
		reminders = append(reminders, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reminder rows: %w", err)
	}
	slog.Debug("Store ListDueReminders succeeded", "backend", s.backend, "date", q.Date, "time", q.Time, "count", len(reminders))
	return reminders, nil
}

// UpdateReminderStatus moves a scheduled reminder to status. The update only
// applies from scheduled, so a record is transitioned at most once.
func (s *sqlStore) UpdateReminderStatus(ctx context.Context, id string, status models.ReminderStatus, sentAt *time.Time, errMsg string) (bool, error) {
	var sent interface{}
	if sentAt != nil {
		sent = sentAt.UTC()
	}
	result, err := s.exec(ctx, `UPDATE billing_reminders SET status = ?, sent_at = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(status), sent, nilIfEmpty(errMsg), time.Now().UTC(), id, string(models.ReminderStatusScheduled))
	if err != nil {
		slog.Error("Store UpdateReminderStatus failed", "backend", s.backend, "error", err, "id", id, "status", status)
		return false, fmt.Errorf("failed to update reminder %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		slog.Warn("Store UpdateReminderStatus skipped, reminder not scheduled", "backend", s.backend, "id", id, "status", status)
		return false, nil
	}
	slog.Debug("Store UpdateReminderStatus succeeded", "backend", s.backend, "id", id, "status", status)
	return true, nil
}

// CancelReminder cancels a scheduled reminder.
func (s *sqlStore) CancelReminder(ctx context.Context, id string) error {
	ok, err := s.UpdateReminderStatus(ctx, id, models.ReminderStatusCancelled, nil, "")
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	r, err := s.GetReminder(ctx, id)
	if err != nil {
		return err
	}
	if r == nil {
		return models.ErrReminderNotFound
	}
	return models.ErrReminderNotScheduled
}

// GetReminderTemplate returns the template or nil.
func (s *sqlStore) GetReminderTemplate(ctx context.Context, id string) (*models.ReminderTemplate, error) {
	var t models.ReminderTemplate
	err := s.queryRow(ctx, `SELECT id, tenant_id, name, body FROM reminder_templates WHERE id = ?`, id).
		Scan(&t.ID, &t.TenantID, &t.Name, &t.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder template %s: %w", id, err)
	}
	return &t, nil
}

// SaveReminderTemplate inserts or updates a template by ID.
func (s *sqlStore) SaveReminderTemplate(ctx context.Context, t *models.ReminderTemplate) error {
	if t.ID == "" {
		t.ID = newID()
	}
	_, err := s.exec(ctx, `INSERT INTO reminder_templates (id, tenant_id, name, body) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, body = excluded.body`,
		t.ID, t.TenantID, t.Name, t.Body)
	if err != nil {
		return fmt.Errorf("failed to save reminder template: %w", err)
	}
	return nil
}
