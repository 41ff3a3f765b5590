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

// GetSession retrieves the session of a user with a tenant, or nil.
func (s *sqlStore) GetSession(ctx context.Context, tenantID, userID string) (*models.Session, error) {
	var sess models.Session
	var stack string
	var state string
	err := s.queryRow(ctx, `SELECT tenant_id, user_id, current_menu_key, navigation_stack, locked, state, created_at, updated_at
		FROM bot_sessions WHERE tenant_id = ? AND user_id = ?`, tenantID, userID).Scan(
		&sess.TenantID, &sess.UserID, &sess.CurrentMenuKey, &stack, &sess.Locked, &state, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("Store GetSession not found", "backend", s.backend, "tenantID", tenantID, "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("Store GetSession failed", "backend", s.backend, "error", err, "tenantID", tenantID, "userID", userID)
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	sess.Stack = decodeList(stack)
	sess.State = models.SessionState(state)
	slog.Debug("Store GetSession found", "backend", s.backend, "tenantID", tenantID, "userID", userID, "menu", sess.CurrentMenuKey, "state", sess.State)
	return &sess, nil
}

// SaveSession stores or updates a session.
func (s *sqlStore) SaveSession(ctx context.Context, sess models.Session) error {
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	_, err := s.exec(ctx, `INSERT INTO bot_sessions (tenant_id, user_id, current_menu_key, navigation_stack, locked, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			current_menu_key = excluded.current_menu_key,
			navigation_stack = excluded.navigation_stack,
			locked = excluded.locked,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		sess.TenantID, sess.UserID, sess.CurrentMenuKey, encodeList(sess.Stack), sess.Locked, string(sess.State), sess.CreatedAt, now)
	if err != nil {
		slog.Error("Store SaveSession failed", "backend", s.backend, "error", err, "tenantID", sess.TenantID, "userID", sess.UserID)
		return fmt.Errorf("failed to save session: %w", err)
	}
	slog.Debug("Store SaveSession succeeded", "backend", s.backend, "tenantID", sess.TenantID, "userID", sess.UserID, "menu", sess.CurrentMenuKey, "state", sess.State)
	return nil
}

// DeleteSession removes a session.
func (s *sqlStore) DeleteSession(ctx context.Context, tenantID, userID string) error {
	if _, err := s.exec(ctx, `DELETE FROM bot_sessions WHERE tenant_id = ? AND user_id = ?`, tenantID, userID); err != nil {
		slog.Error("Store DeleteSession failed", "backend", s.backend, "error", err, "tenantID", tenantID, "userID", userID)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// LogMessage appends a message to the conversation history.
func (s *sqlStore) LogMessage(ctx context.Context, e models.MessageLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, `INSERT INTO message_log (tenant_id, user_id, direction, body, message_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.TenantID, e.UserID, string(e.Direction), e.Body, nilIfEmpty(e.MessageID), e.CreatedAt)
	if err != nil {
		slog.Error("Store LogMessage failed", "backend", s.backend, "error", err, "tenantID", e.TenantID, "userID", e.UserID)
		return fmt.Errorf("failed to log message: %w", err)
	}
	return nil
}

// ListMessageLog returns up to limit entries for a user, oldest first.
func (s *sqlStore) ListMessageLog(ctx context.Context, tenantID, userID string, limit int) ([]models.MessageLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.query(ctx, `SELECT id, tenant_id, user_id, direction, body, message_id, created_at FROM (
			SELECT id, tenant_id, user_id, direction, body, message_id, created_at FROM message_log
			WHERE tenant_id = ? AND user_id = ? ORDER BY id DESC LIMIT ?
		) recent ORDER BY id`, tenantID, userID, limit)
	if err != nil {
		slog.Error("Store ListMessageLog query failed", "backend", s.backend, "error", err, "tenantID", tenantID, "userID", userID)
		return nil, fmt.Errorf("failed to query message log: %w", err)
	}
	defer rows.Close()

	var entries []models.MessageLogEntry
	for rows.Next() {
		var e models.MessageLogEntry
		var direction string
		var messageID sql.NullString
		if err := rows.Scan(&e.ID, &e.TenantID, &e.UserID, &direction, &e.Body, &messageID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message log row: %w", err)
		}
		e.Direction = models.MessageDirection(direction)
		e.MessageID = messageID.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message log rows: %w", err)
	}
	return entries, nil
}
